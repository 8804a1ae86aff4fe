package integration

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/devops-promotions/promotions/internal/application"
	"github.com/devops-promotions/promotions/internal/config"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()

	cfg := config.Config{
		Port:                 "0",
		DatabaseURI:          "sqlite://" + t.TempDir() + "/promotions.db",
		LogFacility:          "server.error",
		ShutdownGracePeriod:  time.Second,
		ReadHeaderTimeout:    time.Second,
		WriteTimeout:         5 * time.Second,
		IdleTimeout:          5 * time.Second,
		EnableRequestLogging: true,
	}

	app, err := application.New(cfg, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("application.New: %v", err)
	}
	server := httptest.NewServer(app.Handler())
	t.Cleanup(func() {
		server.Close()
		_ = app.Close()
	})
	return server
}

func performRequest(t *testing.T, client *http.Client, method, target string, body any) *http.Response {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, target, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, target, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestIntegrationFlow(t *testing.T) {
	server := newServer(t)
	client := server.Client()

	resp := performRequest(t, client, http.MethodGet, server.URL+"/health", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from health, got %d", resp.StatusCode)
	}

	payload := map[string]any{
		"name":       "Black Friday",
		"type":       "BUY_ONE_GET_ONE",
		"discount":   nil,
		"customer":   nil,
		"start_date": "2024-11-29",
		"end_date":   "2024-12-02",
	}
	resp = performRequest(t, client, http.MethodPost, server.URL+"/api/promotions", payload)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201 from create, got %d", resp.StatusCode)
	}

	var created struct {
		ID        int64  `json:"id"`
		Name      string `json:"name"`
		StartDate string `json:"start_date"`
		EndDate   string `json:"end_date"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	location := resp.Header.Get("Location")
	if location != server.URL+"/api/promotions/"+strconv.FormatInt(created.ID, 10) {
		t.Fatalf("unexpected Location %s", location)
	}

	resp = performRequest(t, client, http.MethodGet, location, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from Location, got %d", resp.StatusCode)
	}

	resp = performRequest(t, client, http.MethodPost, server.URL+"/api/promotions", payload)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate name, got %d", resp.StatusCode)
	}

	resp = performRequest(t, client, http.MethodPut, location+"/cancel", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from cancel, got %d", resp.StatusCode)
	}
	var cancelled struct {
		StartDate string `json:"start_date"`
		EndDate   string `json:"end_date"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&cancelled); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if cancelled.EndDate != created.StartDate {
		t.Fatalf("expected end date %s after cancel, got %s", created.StartDate, cancelled.EndDate)
	}

	resp = performRequest(t, client, http.MethodGet, server.URL+"/api/promotions?type=BUY_ONE_GET_ONE", nil)
	var listed []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&listed); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(listed) != 1 {
		t.Fatalf("expected one promotion, got %d", len(listed))
	}

	resp = performRequest(t, client, http.MethodDelete, location, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204 from delete, got %d", resp.StatusCode)
	}

	resp = performRequest(t, client, http.MethodGet, location, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", resp.StatusCode)
	}
}
