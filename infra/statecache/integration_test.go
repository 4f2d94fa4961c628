//go:build integration

package statecache

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kilianp07/agvkernel/core/model"
)

func TestRedisCache(t *testing.T) {
	if os.Getenv("DOCKER_AVAILABLE") != "true" && os.Getenv("DOCKER_AVAILABLE") != "1" {
		t.Skip("docker not available")
	}
	ctx := context.Background()
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: tc.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err)
	defer func() { _ = container.Terminate(ctx) }()
	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	c, client, err := NewRedisCache(ctx, Config{Address: fmt.Sprintf("%s:%s", host, port.Port())})
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, c.PutVehicle(ctx, model.Vehicle{Name: "V1", EnergyLevel: 42}))
	v, ok, err := c.Vehicle(ctx, "V1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 42, v.EnergyLevel)

	require.NoError(t, c.Flush(ctx))
	names, err := c.VehicleNames(ctx)
	require.NoError(t, err)
	assert.Empty(t, names)
}
