package export

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/agvkernel/core/model"
	"github.com/kilianp07/agvkernel/core/orderlog"
)

func records() []orderlog.Record {
	ts := time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC)
	return []orderlog.Record{{
		Timestamp:    ts,
		Order:        "T1",
		State:        model.OrderFinished,
		Vehicle:      "V1",
		Created:      ts.Add(-time.Hour),
		Destinations: []string{"L1", "L2"},
		Rejections:   []model.Rejection{{Vehicle: "V2", Reason: "no route"}},
	}}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, "CSV", records()))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "timestamp,order,type,state,vehicle,sequence,created,destinations,rejections,dispensable", lines[0])
	assert.Equal(t, "2026-05-04T10:30:00Z,T1,,FINISHED,V1,,2026-05-04T09:30:00Z,L1;L2,1,false", lines[1])
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, "", nil))
	assert.Equal(t, "[]\n", buf.String())

	buf.Reset()
	require.NoError(t, WriteJSON(&buf, records()))
	var got []orderlog.Record
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, model.OrderFinished, got[0].State)
}

func TestWriteUnknownFormat(t *testing.T) {
	assert.Error(t, Write(&bytes.Buffer{}, "xml", nil))
}
