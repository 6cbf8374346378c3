package app

import (
	"context"
	"errors"
	"net/http"
	"testing"
)

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/api/health", nil, "")
	if rr.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rr.Code)
	}

	var response map[string]any
	decode(t, rr, &response)
	if ok, exists := response["ok"]; !exists || ok != true {
		t.Errorf("expected ok=true, got %v", ok)
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header")
	}
}

func TestReadyEndpoint_AllHealthy(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) {
		d.Checks = map[string]Pinger{"redis": pingFunc(func(context.Context) error { return nil })}
	})

	rr := env.do(t, http.MethodGet, "/api/ready", nil, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var response struct {
		OK     bool                      `json:"ok"`
		Status string                    `json:"status"`
		Checks map[string]map[string]any `json:"checks"`
	}
	decode(t, rr, &response)
	if !response.OK || response.Status != "ready" {
		t.Errorf("expected ready, got %+v", response)
	}
	for _, name := range []string{"storage", "redis"} {
		if response.Checks[name]["status"] != "ok" {
			t.Errorf("expected %s ok, got %v", name, response.Checks[name])
		}
	}
}

func TestReadyEndpoint_StorageDown(t *testing.T) {
	env := newTestEnv(t)
	env.store.FailOn("ping", errors.New("bucket missing"))

	rr := env.do(t, http.MethodGet, "/api/ready", nil, "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}

	var response struct {
		OK     bool                      `json:"ok"`
		Status string                    `json:"status"`
		Checks map[string]map[string]any `json:"checks"`
	}
	decode(t, rr, &response)
	if response.OK || response.Status != "not_ready" {
		t.Errorf("expected not_ready, got %+v", response)
	}
	if response.Checks["storage"]["status"] != "error" {
		t.Errorf("expected storage error, got %v", response.Checks["storage"])
	}
}

func TestMetaEndpoint(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/api/meta", nil, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var response struct {
		Statuses    []string `json:"statuses"`
		DeadReasons []string `json:"deadReasons"`
	}
	decode(t, rr, &response)
	if len(response.Statuses) != 5 || len(response.DeadReasons) != 7 {
		t.Errorf("unexpected enums: %+v", response)
	}
}

func TestUnknownRoute(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/api/nope", nil, "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}
