package health

import (
	"fmt"
	"sync"
	"testing"
)

func TestNewMonitor(t *testing.T) {
	monitor := NewMonitor()

	if monitor == nil {
		t.Fatal("NewMonitor() returned nil")
	}
	if monitor.Count() != 0 {
		t.Errorf("new monitor should have 0 components, got %d", monitor.Count())
	}
}

func TestMonitor_Update(t *testing.T) {
	monitor := NewMonitor()

	status := Status{
		Status:  "healthy",
		Message: "subscribed",
	}

	monitor.Update("bus-client", status)

	retrieved, exists := monitor.Get("bus-client")
	if !exists {
		t.Fatal("component should exist after update")
	}
	if retrieved.Component != "bus-client" {
		t.Errorf("expected component name 'bus-client', got %s", retrieved.Component)
	}
	if retrieved.Status != "healthy" {
		t.Errorf("expected status 'healthy', got %s", retrieved.Status)
	}
	if retrieved.Timestamp.IsZero() {
		t.Error("Update should set timestamp if not provided")
	}
}

func TestMonitor_ConvenienceUpdates(t *testing.T) {
	monitor := NewMonitor()

	monitor.UpdateHealthy("bus", "connected")
	monitor.UpdateDegraded("pool", "queue backing up")
	monitor.UpdateUnhealthy("store", "bucket missing")

	if got, _ := monitor.Get("bus"); !got.IsHealthy() {
		t.Error("bus should be healthy")
	}
	if got, _ := monitor.Get("pool"); !got.IsDegraded() {
		t.Error("pool should be degraded")
	}
	if got, _ := monitor.Get("store"); !got.IsUnhealthy() {
		t.Error("store should be unhealthy")
	}
}

func TestMonitor_GetMissing(t *testing.T) {
	monitor := NewMonitor()

	_, exists := monitor.Get("nope")
	if exists {
		t.Error("Get() for unknown component should report not found")
	}
}

func TestMonitor_Remove(t *testing.T) {
	monitor := NewMonitor()

	monitor.UpdateHealthy("bus", "connected")
	monitor.Remove("bus")

	if _, exists := monitor.Get("bus"); exists {
		t.Error("component should be gone after Remove()")
	}
}

func TestMonitor_AggregateHealth(t *testing.T) {
	monitor := NewMonitor()

	monitor.UpdateHealthy("bus", "connected")
	monitor.UpdateHealthy("store", "bucket ready")

	agg := monitor.AggregateHealth("consumer")
	if !agg.IsHealthy() {
		t.Errorf("expected healthy aggregate, got %s", agg.Status)
	}

	monitor.UpdateUnhealthy("bus", "connection lost")

	agg = monitor.AggregateHealth("consumer")
	if !agg.IsUnhealthy() {
		t.Errorf("expected unhealthy aggregate, got %s", agg.Status)
	}
	if agg.Component != "consumer" {
		t.Errorf("expected aggregate component 'consumer', got %s", agg.Component)
	}
}

func TestMonitor_GetAllReturnsCopy(t *testing.T) {
	monitor := NewMonitor()
	monitor.UpdateHealthy("bus", "connected")

	all := monitor.GetAll()
	all["injected"] = NewHealthy("injected", "should not stick")

	if monitor.Count() != 1 {
		t.Error("mutating GetAll() result should not affect the monitor")
	}
}

func TestMonitor_ListComponents(t *testing.T) {
	monitor := NewMonitor()
	monitor.UpdateHealthy("bus", "ok")
	monitor.UpdateHealthy("pool", "ok")

	names := monitor.ListComponents()
	if len(names) != 2 {
		t.Errorf("expected 2 components, got %d", len(names))
	}
}

func TestMonitor_Clear(t *testing.T) {
	monitor := NewMonitor()
	monitor.UpdateHealthy("bus", "ok")
	monitor.UpdateHealthy("pool", "ok")

	monitor.Clear()

	if monitor.Count() != 0 {
		t.Errorf("expected 0 components after Clear(), got %d", monitor.Count())
	}
}

func TestMonitor_ConcurrentAccess(t *testing.T) {
	monitor := NewMonitor()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			name := fmt.Sprintf("component-%d", id)
			monitor.UpdateHealthy(name, "ok")
			monitor.Get(name)
			monitor.AggregateHealth("system")
		}(i)
	}
	wg.Wait()

	if monitor.Count() != 10 {
		t.Errorf("expected 10 components, got %d", monitor.Count())
	}
}
