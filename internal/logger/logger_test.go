package logger

import (
	"bytes"
	"encoding/json"
	"log"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestInitWritesJSONWithInstance(t *testing.T) {
	var buf bytes.Buffer
	Init("test-1", "debug", &buf)

	logrus.WithField("lead_id", "lead_1").Info("lead captured")

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if entry["instance"] != "test-1" {
		t.Errorf("instance = %v", entry["instance"])
	}
	if entry["message"] != "lead captured" {
		t.Errorf("message = %v", entry["message"])
	}
	if entry["lead_id"] != "lead_1" {
		t.Errorf("lead_id = %v", entry["lead_id"])
	}
	if _, ok := entry["timestamp"]; !ok {
		t.Error("missing timestamp")
	}
}

func TestJSONLoggerBridgesStdlib(t *testing.T) {
	var buf bytes.Buffer
	Init("bridge", "info", &buf)

	std := log.New(&JSONLogger{Instance: "bridge"}, "", 0)
	std.Printf("serving on port %s", "8080")

	out := buf.String()
	if !strings.Contains(out, `"message":"serving on port 8080"`) {
		t.Fatalf("unexpected output %q", out)
	}
	if !strings.Contains(out, `"source":"stdlib"`) {
		t.Fatalf("missing source field in %q", out)
	}
}
