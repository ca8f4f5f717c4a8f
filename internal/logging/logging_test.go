package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNewWithOutputJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithOutput(&buf, "debug", "json")
	if err != nil {
		t.Fatalf("NewWithOutput() error = %v", err)
	}
	logger.WithField("user_id", "u1").Debug("hello")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not json: %v (%q)", err, buf.String())
	}
	if entry["msg"] != "hello" || entry["user_id"] != "u1" {
		t.Fatalf("entry = %+v", entry)
	}
}

func TestNewWithOutputDefaults(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithOutput(&buf, "", "")
	if err != nil {
		t.Fatalf("NewWithOutput() error = %v", err)
	}
	if logger.GetLevel() != logrus.InfoLevel {
		t.Fatalf("level = %v, want info", logger.GetLevel())
	}
	logger.Debug("hidden")
	if strings.Contains(buf.String(), "hidden") {
		t.Fatalf("debug line written at info level")
	}
}

func TestNewRejectsBadInput(t *testing.T) {
	if _, err := New("loud", "text"); err == nil {
		t.Fatalf("expected error for bad level")
	}
	if _, err := New("info", "xml"); err == nil {
		t.Fatalf("expected error for bad format")
	}
}
