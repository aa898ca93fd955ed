package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, false)
	log.Info().Str("component", "ingest").Msg("hello")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("not JSON: %q", buf.String())
	}
	if line["message"] != "hello" || line["component"] != "ingest" || line["time"] == nil {
		t.Errorf("line = %v", line)
	}
}

func TestNewPretty(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, true)
	log.Warn().Msg("careful")
	out := buf.String()
	if strings.HasPrefix(out, "{") || !strings.Contains(out, "careful") {
		t.Errorf("pretty output = %q", out)
	}
}

func TestOpenOutput(t *testing.T) {
	if openOutput("") != os.Stderr || openOutput("stderr") != os.Stderr || openOutput("stdout") != os.Stdout {
		t.Error("named outputs mismatch")
	}

	path := filepath.Join(t.TempDir(), "logs", "app.log")
	w := openOutput(path)
	f, ok := w.(*os.File)
	if !ok || f == os.Stderr {
		t.Fatalf("expected log file, got %T", w)
	}
	defer f.Close()
	if _, err := os.Stat(path); err != nil {
		t.Errorf("log file not created: %v", err)
	}
}
