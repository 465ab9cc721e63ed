package component

import (
	"context"
	"fmt"
	"testing"
)

// mockComponent implements Component for testing.
type mockComponent struct {
	name       string
	startErr   error
	stopErr    error
	health     Health
	startOrder *[]string
	stopOrder  *[]string
}

func (m *mockComponent) Name() string { return m.name }
func (m *mockComponent) Start(ctx context.Context) error {
	if m.startOrder != nil {
		*m.startOrder = append(*m.startOrder, m.name)
	}
	return m.startErr
}
func (m *mockComponent) Stop(ctx context.Context) error {
	if m.stopOrder != nil {
		*m.stopOrder = append(*m.stopOrder, m.name)
	}
	return m.stopErr
}
func (m *mockComponent) Health(ctx context.Context) Health {
	return m.health
}

func TestRegisterDuplicate(t *testing.T) {
	r := NewRegistry(nil)
	if err := r.Register(&mockComponent{name: "redis"}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := r.Register(&mockComponent{name: "redis"}); err == nil {
		t.Error("expected error for duplicate registration")
	}
}

func TestGet(t *testing.T) {
	r := NewRegistry(nil)
	_ = r.Register(&mockComponent{name: "redis"})

	if got := r.Get("redis"); got == nil || got.Name() != "redis" {
		t.Fatalf("expected to get registered component, got %v", got)
	}
	if r.Get("missing") != nil {
		t.Error("expected nil for unregistered component")
	}
}

func TestStartAllOrder(t *testing.T) {
	r := NewRegistry(nil)
	order := []string{}
	_ = r.Register(&mockComponent{name: "redis", startOrder: &order})
	_ = r.Register(&mockComponent{name: "storage", startOrder: &order})

	if err := r.StartAll(context.Background()); err != nil {
		t.Fatalf("StartAll failed: %v", err)
	}
	if len(order) != 2 || order[0] != "redis" || order[1] != "storage" {
		t.Errorf("expected start order [redis storage], got %v", order)
	}
}

func TestStartAllErrorStopsStarted(t *testing.T) {
	r := NewRegistry(nil)
	started, stopped := []string{}, []string{}
	_ = r.Register(&mockComponent{name: "redis", startOrder: &started, stopOrder: &stopped})
	_ = r.Register(&mockComponent{name: "kafka", startErr: fmt.Errorf("connection refused"), startOrder: &started, stopOrder: &stopped})
	_ = r.Register(&mockComponent{name: "http", startOrder: &started, stopOrder: &stopped})

	if err := r.StartAll(context.Background()); err == nil {
		t.Fatal("expected error from StartAll")
	}
	if len(started) != 2 {
		t.Errorf("expected start to halt at the failing component, got %v", started)
	}
	if len(stopped) != 1 || stopped[0] != "redis" {
		t.Errorf("expected only redis to be stopped again, got %v", stopped)
	}
}

func TestStopAllReverseOrder(t *testing.T) {
	r := NewRegistry(nil)
	order := []string{}
	_ = r.Register(&mockComponent{name: "redis", stopOrder: &order})
	_ = r.Register(&mockComponent{name: "storage", stopOrder: &order})
	_ = r.Register(&mockComponent{name: "kafka", stopOrder: &order})

	_ = r.StartAll(context.Background())
	if err := r.StopAll(context.Background()); err != nil {
		t.Fatalf("StopAll failed: %v", err)
	}
	if len(order) != 3 || order[0] != "kafka" || order[1] != "storage" || order[2] != "redis" {
		t.Errorf("expected reverse stop order [kafka storage redis], got %v", order)
	}
}

func TestStartLateStopsFirst(t *testing.T) {
	r := NewRegistry(nil)
	order := []string{}
	_ = r.Register(&mockComponent{name: "redis", stopOrder: &order})
	_ = r.StartAll(context.Background())

	if err := r.StartLate(context.Background(), &mockComponent{name: "server", stopOrder: &order}); err != nil {
		t.Fatalf("StartLate failed: %v", err)
	}
	if err := r.StartLate(context.Background(), &mockComponent{name: "redis"}); err == nil {
		t.Error("expected duplicate name to be rejected")
	}
	if err := r.StartLate(context.Background(), &mockComponent{name: "kafka", startErr: fmt.Errorf("boom")}); err == nil {
		t.Error("expected start error")
	}
	if r.Get("kafka") != nil {
		t.Error("failed component must not be registered")
	}

	_ = r.StopAll(context.Background())
	if len(order) != 2 || order[0] != "server" || order[1] != "redis" {
		t.Errorf("expected [server redis], got %v", order)
	}
}

func TestStopAllSkipsUnstarted(t *testing.T) {
	r := NewRegistry(nil)
	order := []string{}
	_ = r.Register(&mockComponent{name: "redis", stopOrder: &order})

	if err := r.StopAll(context.Background()); err != nil {
		t.Fatalf("StopAll failed: %v", err)
	}
	if len(order) != 0 {
		t.Errorf("expected 0 stops for unstarted components, got %d", len(order))
	}
}

func TestStopAllWithErrors(t *testing.T) {
	r := NewRegistry(nil)
	_ = r.Register(&mockComponent{name: "redis", stopErr: fmt.Errorf("stop failed")})
	_ = r.StartAll(context.Background())

	if err := r.StopAll(context.Background()); err == nil {
		t.Error("expected error from StopAll")
	}
}

func TestHealthAllAndOverall(t *testing.T) {
	r := NewRegistry(nil)
	_ = r.Register(&mockComponent{name: "redis", health: Health{Name: "redis", Status: StatusHealthy}})
	_ = r.Register(&mockComponent{name: "signedurl", health: Health{Name: "signedurl", Status: StatusDegraded}})

	results := r.HealthAll(context.Background())
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if got := Overall(results); got != StatusDegraded {
		t.Errorf("expected degraded, got %s", got)
	}

	results = append(results, Health{Name: "kafka", Status: StatusUnhealthy})
	if got := Overall(results); got != StatusUnhealthy {
		t.Errorf("expected unhealthy, got %s", got)
	}
	if got := Overall(nil); got != StatusHealthy {
		t.Errorf("expected healthy for no components, got %s", got)
	}
}
