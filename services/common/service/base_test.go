package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/mux"
)

func TestBaseServiceLifecycle(t *testing.T) {
	var hydrated, workerRan atomic.Bool

	b := NewBase(Config{ID: "orders", Name: "orders", Version: "1.0.0"}).
		WithHydrate(func(ctx context.Context) error {
			hydrated.Store(true)
			return nil
		}).
		AddWorker(func(ctx context.Context) {
			workerRan.Store(true)
		})

	if b.WorkerCount() != 1 {
		t.Errorf("WorkerCount = %d", b.WorkerCount())
	}
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !hydrated.Load() {
		t.Error("hydrate did not run")
	}

	deadline := time.After(time.Second)
	for !workerRan.Load() {
		select {
		case <-deadline:
			t.Fatal("worker did not run")
		case <-time.After(5 * time.Millisecond):
		}
	}

	// Stop twice; the second call must not panic.
	if err := b.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := b.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
	select {
	case <-b.StopChan():
	default:
		t.Error("stop channel not closed")
	}
}

func TestBaseServiceHydrateFailureAbortsStart(t *testing.T) {
	b := NewBase(Config{Name: "catalog"}).
		WithHydrate(func(ctx context.Context) error {
			return fmt.Errorf("backend offline")
		})
	if err := b.Start(context.Background()); err == nil {
		t.Fatal("expected hydrate error")
	}
}

func TestBaseServiceTickerWorkerStopsOnStop(t *testing.T) {
	var ticks atomic.Int32
	b := NewBase(Config{Name: "mailer"}).
		AddTickerWorker(5*time.Millisecond, func(ctx context.Context) error {
			ticks.Add(1)
			return nil
		})

	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(30 * time.Millisecond)
	b.Stop()
	stopped := ticks.Load()
	if stopped == 0 {
		t.Fatal("ticker worker never ran")
	}
	time.Sleep(30 * time.Millisecond)
	if after := ticks.Load(); after > stopped+1 {
		t.Errorf("worker kept ticking after Stop: %d -> %d", stopped, after)
	}
}

func TestHealthStatusReflectsProbes(t *testing.T) {
	var optionalDown, criticalDown atomic.Bool

	b := NewBase(Config{Name: "dashboard"}).
		AddDependency(DependencyProbe{
			Name: "cache",
			Check: func(ctx context.Context) error {
				if optionalDown.Load() {
					return fmt.Errorf("cache down")
				}
				return nil
			},
		}).
		AddDependency(DependencyProbe{
			Name:     "backend",
			Critical: true,
			Check: func(ctx context.Context) error {
				if criticalDown.Load() {
					return fmt.Errorf("backend down")
				}
				return nil
			},
		})

	if got := b.HealthStatus(); got != "healthy" {
		t.Errorf("status = %q, want healthy", got)
	}

	optionalDown.Store(true)
	if got := b.HealthStatus(); got != "degraded" {
		t.Errorf("status = %q, want degraded", got)
	}

	criticalDown.Store(true)
	if got := b.HealthStatus(); got != "unhealthy" {
		t.Errorf("status = %q, want unhealthy", got)
	}

	details := b.HealthDetails()
	deps, ok := details["dependencies"].(map[string]string)
	if !ok {
		t.Fatalf("dependencies missing: %+v", details)
	}
	if deps["cache"] != "failing" || deps["backend"] != "failing" {
		t.Errorf("deps = %+v", deps)
	}
}

func TestStandardRoutes(t *testing.T) {
	router := mux.NewRouter()
	b := NewBase(Config{Name: "settings", Version: "2.1.0", Router: router}).
		WithStats(func() map[string]any {
			return map[string]any{"cached": true}
		})
	b.RegisterStandardRoutes()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var health HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if health.Service != "settings" || health.Status != "healthy" {
		t.Errorf("health = %+v", health)
	}

	req = httptest.NewRequest(http.MethodGet, "/info", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var info InfoResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatalf("decode info: %v", err)
	}
	if info.Version != "2.1.0" {
		t.Errorf("version = %q", info.Version)
	}
	if info.Statistics["cached"] != true {
		t.Errorf("statistics = %+v", info.Statistics)
	}
}

func TestServiceMetricsExport(t *testing.T) {
	m := NewServiceMetrics("orders")
	m.RecordRequest(5*time.Millisecond, true)
	m.RecordRequest(80*time.Millisecond, true)
	m.RecordRequest(2*time.Second, false)
	m.RecordError("Conflict")
	m.SetGauge("live_subscribers", 3)

	resp := m.Export()
	if resp.Requests.Total != 3 || resp.Requests.Success != 2 || resp.Requests.Failed != 1 {
		t.Errorf("requests = %+v", resp.Requests)
	}
	if resp.Latency["lt_10ms"] != 1 || resp.Latency["lt_100ms"] != 1 || resp.Latency["gt_1s"] != 1 {
		t.Errorf("latency = %+v", resp.Latency)
	}
	if resp.Errors["Conflict"] != 1 {
		t.Errorf("errors = %+v", resp.Errors)
	}
	if resp.Gauges["live_subscribers"] != 3 {
		t.Errorf("gauges = %+v", resp.Gauges)
	}
}

func TestServiceMetricsMiddleware(t *testing.T) {
	m := NewServiceMetrics("catalog")
	handler := m.MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/orders", nil))

	resp := m.Export()
	if resp.Requests.Failed != 1 {
		t.Errorf("failed = %d, want 1", resp.Requests.Failed)
	}
	if resp.Errors[http.StatusText(http.StatusConflict)] != 1 {
		t.Errorf("errors = %+v", resp.Errors)
	}
}
