package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/agvkernel/config"
	"github.com/kilianp07/agvkernel/core/factory"
	"github.com/kilianp07/agvkernel/core/model"
	"github.com/kilianp07/agvkernel/core/orderlog"
	"github.com/kilianp07/agvkernel/core/orderpool"
	"github.com/kilianp07/agvkernel/infra/persistence"
)

func plant() model.PlantModel {
	return model.PlantModel{
		Name:   "hall",
		Points: []model.Point{{Name: "P1"}, {Name: "P2"}, {Name: "P3"}},
		Paths: []model.Path{
			{Name: "P1--P2", Source: "P1", Destination: "P2", Length: 10},
			{Name: "P2--P3", Source: "P2", Destination: "P3", Length: 10},
		},
		LocationTypes: []model.LocationType{{Name: "station", AllowedOperations: []string{"LOAD", "UNLOAD"}}},
		Locations: []model.Location{
			{Name: "L1", Type: "station", Links: []string{"P1"}},
			{Name: "L3", Type: "station", Links: []string{"P3"}},
		},
		Vehicles: []model.Vehicle{{Name: "V1", IntegrationLevel: model.IntegrationToBeUtilized}},
	}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	modelFile := filepath.Join(dir, "plant.yaml")
	data, err := persistence.EncodeModel(plant(), modelFile)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(modelFile, data, 0o644))

	cfg := config.Default()
	cfg.ModelFile = modelFile
	cfg.Persistence = factory.ModuleConfig{Type: "memory"}
	cfg.OrderLog.Path = filepath.Join(dir, "orders.jsonl")
	cfg.Simulator.StepDelay = time.Millisecond
	cfg.Simulator.InitialPositions = map[string]string{"V1": "P1"}
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestServiceProcessesOrders(t *testing.T) {
	svc, err := New(context.Background(), testConfig(t))
	require.NoError(t, err)
	require.NoError(t, svc.Start(context.Background()))
	defer func() { assert.NoError(t, svc.Close()) }()
	assert.Equal(t, model.KernelOperating, svc.Kernel.State())

	o, err := svc.Kernel.CreateTransportOrder(orderpool.TransportOrderSpec{
		Name:         "T1",
		Destinations: []model.Destination{{Location: "L3", Operation: "LOAD"}},
	})
	require.NoError(t, err)
	_, err = svc.Kernel.ActivateTransportOrder(o.Name)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, err := svc.Kernel.TransportOrder("T1")
		return err == nil && got.State == model.OrderFinished
	}, 5*time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		recs, err := svc.orderLog.Query(context.Background(), orderlog.Query{Vehicle: "V1"})
		return err == nil && len(recs) == 1
	}, time.Second, 5*time.Millisecond)

	rec := httptest.NewRecorder()
	svc.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/orders/T1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var got model.TransportOrder
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "V1", got.ProcessingVehicle)

	v, err := svc.Kernel.Vehicle("V1")
	require.NoError(t, err)
	assert.Equal(t, "P3", v.CurrentPosition)
}

func TestServiceHandlerCreatesOrders(t *testing.T) {
	cfg := testConfig(t)
	cfg.API.Token = "secret"
	svc, err := New(context.Background(), cfg)
	require.NoError(t, err)
	require.NoError(t, svc.Start(context.Background()))
	defer func() { assert.NoError(t, svc.Close()) }()

	body, _ := json.Marshal(map[string]any{
		"name":         "T2",
		"destinations": []map[string]string{{"location": "L1", "operation": "UNLOAD"}},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	svc.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/orders", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	svc.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	require.Eventually(t, func() bool {
		o, err := svc.Kernel.TransportOrder("T2")
		return err == nil && o.State.IsFinal()
	}, 5*time.Second, 5*time.Millisecond)
}

func TestServiceShutdownThroughKernel(t *testing.T) {
	cfg := testConfig(t)
	cfg.API.Addr = "127.0.0.1:0"
	svc, err := New(context.Background(), cfg)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- svc.Run(context.Background()) }()
	require.Eventually(t, func() bool { return svc.Kernel.State() == model.KernelOperating }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, svc.Kernel.SetState(context.Background(), model.KernelShutdown))
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("service did not stop")
	}
	<-svc.Done()
}

func TestNewRejectsBadPersistence(t *testing.T) {
	cfg := testConfig(t)
	cfg.Persistence = factory.ModuleConfig{Type: "tape"}
	_, err := New(context.Background(), cfg)
	assert.ErrorContains(t, err, "model persister")
}
