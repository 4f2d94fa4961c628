//go:build integration

package persistence

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestPostgresPersister(t *testing.T) {
	if os.Getenv("DOCKER_AVAILABLE") != "true" && os.Getenv("DOCKER_AVAILABLE") != "1" {
		t.Skip("docker not available")
	}
	ctx := context.Background()
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: tc.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "agv",
				"POSTGRES_PASSWORD": "agv",
				"POSTGRES_DB":       "agv",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	defer func() { _ = container.Terminate(ctx) }()

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)
	dsn := fmt.Sprintf("host=%s port=%s dbname=agv user=agv password=agv sslmode=disable", host, port.Port())

	p, err := OpenPostgres(dsn, 2)
	require.NoError(t, err)
	defer p.Close()

	for _, n := range []string{"a", "b", "c"} {
		require.NoError(t, p.SaveModel(ctx, plant(n)))
	}
	got, err := p.LoadModel(ctx)
	require.NoError(t, err)
	assert.Equal(t, plant("c"), got)
	revs, err := p.Revisions(ctx)
	require.NoError(t, err)
	assert.Len(t, revs, 2)
}
