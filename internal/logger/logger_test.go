package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewWithWriterJSON(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewWithWriter(&buf, "prod", "")
	if err != nil {
		t.Fatalf("NewWithWriter error: %v", err)
	}
	cl := Component(l, "scheduler")
	cl.Info().Str("k", "v").Msg("hello")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("output is not json: %v (%q)", err, buf.String())
	}
	if rec["component"] != "scheduler" || rec["message"] != "hello" || rec["k"] != "v" {
		t.Fatalf("unexpected record: %v", rec)
	}
	if _, ok := rec["timestamp"]; !ok {
		t.Fatalf("missing timestamp field: %v", rec)
	}
}

func TestNewWithWriterLevels(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewWithWriter(&buf, "dev", "warn")
	if err != nil {
		t.Fatalf("NewWithWriter error: %v", err)
	}
	if l.GetLevel() != zerolog.WarnLevel {
		t.Fatalf("level = %v, want warn", l.GetLevel())
	}
	l.Info().Msg("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered, got %q", buf.String())
	}

	if _, err := NewWithWriter(&buf, "staging", ""); err == nil {
		t.Fatal("expected error for unknown env")
	}
	if _, err := NewWithWriter(&buf, "dev", "loud"); err == nil {
		t.Fatal("expected error for bad level")
	}
}
