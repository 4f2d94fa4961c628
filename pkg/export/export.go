// Package export writes order log records in exchange formats.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/kilianp07/agvkernel/core/orderlog"
)

// Format names accepted by Write.
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
)

// Write writes records in the named format.
func Write(w io.Writer, format string, recs []orderlog.Record) error {
	switch strings.ToLower(format) {
	case "", FormatJSON:
		return WriteJSON(w, recs)
	case FormatCSV:
		return WriteCSV(w, recs)
	default:
		return fmt.Errorf("unsupported export format %q", format)
	}
}

// WriteJSON writes the records to w as a JSON array.
func WriteJSON(w io.Writer, recs []orderlog.Record) error {
	if recs == nil {
		recs = []orderlog.Record{}
	}
	enc := json.NewEncoder(w)
	return enc.Encode(recs)
}

// WriteCSV writes one row per record with a header line.
func WriteCSV(w io.Writer, recs []orderlog.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{
		"timestamp", "order", "type", "state", "vehicle", "sequence",
		"created", "destinations", "rejections", "dispensable",
	}); err != nil {
		return err
	}
	for _, r := range recs {
		rec := []string{
			r.Timestamp.Format(time.RFC3339),
			r.Order,
			r.Type,
			r.State.String(),
			r.Vehicle,
			r.Sequence,
			r.Created.Format(time.RFC3339),
			strings.Join(r.Destinations, ";"),
			strconv.Itoa(len(r.Rejections)),
			strconv.FormatBool(r.Dispensable),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
