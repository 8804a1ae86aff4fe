package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	logger, err := New(Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if logger == nil {
		t.Fatalf("expected logger instance")
	}
	_ = logger.Sync()
}

func TestNewWritesFacilityRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "service.log")

	logger, err := New(Options{Facility: "promotions.audit", Level: "debug", OutputPaths: []string{path}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	logger.Debug("debug line")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}

	var record map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(string(data))), &record); err != nil {
		t.Fatalf("expected JSON record, got %q: %v", data, err)
	}
	if record["logger"] != "promotions.audit" {
		t.Fatalf("expected facility name, got %v", record["logger"])
	}
	if record["msg"] != "debug line" || record["level"] != "debug" {
		t.Fatalf("unexpected record: %v", record)
	}
	if _, ok := record["timestamp"]; !ok {
		t.Fatalf("expected timestamp key in %v", record)
	}
}

func TestNewDefaultsFacility(t *testing.T) {
	path := filepath.Join(t.TempDir(), "service.log")

	logger, err := New(Options{OutputPaths: []string{path}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	logger.Info("hello")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), `"logger":"`+DefaultFacility+`"`) {
		t.Fatalf("expected default facility in %s", data)
	}
}

func TestNewRejectsBadOptions(t *testing.T) {
	if _, err := New(Options{Level: "loud"}); err == nil {
		t.Fatalf("expected error for unknown level")
	}
	if _, err := New(Options{Encoding: "xml"}); err == nil {
		t.Fatalf("expected error for unknown encoding")
	}
}
