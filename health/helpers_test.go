package health

import (
	"testing"
)

func TestNewHealthy(t *testing.T) {
	component := "bus-client"
	message := "connected"

	status := NewHealthy(component, message)

	if status.Component != component {
		t.Errorf("expected component %s, got %s", component, status.Component)
	}
	if status.Status != "healthy" {
		t.Errorf("expected status 'healthy', got %s", status.Status)
	}
	if status.Message != message {
		t.Errorf("expected message %s, got %s", message, status.Message)
	}
	if status.Timestamp.IsZero() {
		t.Error("expected timestamp to be set")
	}
	if !status.IsHealthy() {
		t.Error("expected IsHealthy() to return true")
	}
}

func TestNewUnhealthy(t *testing.T) {
	component := "consumer"
	message := "connection lost"

	status := NewUnhealthy(component, message)

	if status.Component != component {
		t.Errorf("expected component %s, got %s", component, status.Component)
	}
	if status.Status != "unhealthy" {
		t.Errorf("expected status 'unhealthy', got %s", status.Status)
	}
	if !status.IsUnhealthy() {
		t.Error("expected IsUnhealthy() to return true")
	}
	if status.Healthy {
		t.Error("expected Healthy field to be false")
	}
}

func TestNewDegraded(t *testing.T) {
	status := NewDegraded("producer", "buffer near capacity")

	if status.Status != "degraded" {
		t.Errorf("expected status 'degraded', got %s", status.Status)
	}
	if !status.IsDegraded() {
		t.Error("expected IsDegraded() to return true")
	}
	if status.Healthy {
		t.Error("expected Healthy field to be false")
	}
}

func TestAggregate(t *testing.T) {
	tests := []struct {
		name        string
		subStatuses []Status
		wantStatus  string
	}{
		{
			name:        "no sub-components is healthy",
			subStatuses: nil,
			wantStatus:  "healthy",
		},
		{
			name: "all healthy",
			subStatuses: []Status{
				NewHealthy("bus", "ok"),
				NewHealthy("store", "ok"),
			},
			wantStatus: "healthy",
		},
		{
			name: "one unhealthy wins over degraded",
			subStatuses: []Status{
				NewHealthy("bus", "ok"),
				NewDegraded("pool", "queue backing up"),
				NewUnhealthy("store", "bucket missing"),
			},
			wantStatus: "unhealthy",
		},
		{
			name: "degraded without unhealthy",
			subStatuses: []Status{
				NewHealthy("bus", "ok"),
				NewDegraded("pool", "queue backing up"),
			},
			wantStatus: "degraded",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Aggregate("system", tt.subStatuses)

			if got.Status != tt.wantStatus {
				t.Errorf("Aggregate() status = %s, want %s", got.Status, tt.wantStatus)
			}
			if len(got.SubStatuses) != len(tt.subStatuses) {
				t.Errorf("Aggregate() kept %d sub-statuses, want %d",
					len(got.SubStatuses), len(tt.subStatuses))
			}
		})
	}
}

func TestAggregate_CopiesSubStatuses(t *testing.T) {
	subs := []Status{NewHealthy("bus", "ok")}

	agg := Aggregate("system", subs)
	subs[0].Status = "unhealthy"

	if agg.SubStatuses[0].Status != "healthy" {
		t.Error("Aggregate() should copy sub-statuses, not share them")
	}
}
