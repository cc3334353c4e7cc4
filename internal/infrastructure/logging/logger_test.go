package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nerrad567/homekit-bridge-manager/internal/infrastructure/config"
)

// captureStd points os.Stdout and os.Stderr at temp files for the test and
// returns readers for both.
func captureStd(t *testing.T) (stdout, stderr func() string) {
	t.Helper()
	dir := t.TempDir()

	open := func(name string) *os.File {
		f, err := os.Create(filepath.Join(dir, name))
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { f.Close() })
		return f
	}
	outFile, errFile := open("stdout"), open("stderr")

	origOut, origErr := os.Stdout, os.Stderr
	os.Stdout, os.Stderr = outFile, errFile
	t.Cleanup(func() { os.Stdout, os.Stderr = origOut, origErr })

	read := func(f *os.File) func() string {
		return func() string {
			data, err := os.ReadFile(f.Name())
			if err != nil {
				t.Fatal(err)
			}
			return string(data)
		}
	}
	return read(outFile), read(errFile)
}

func TestNew_OutputRouting(t *testing.T) {
	tests := []struct {
		output     string
		wantStdout bool
	}{
		{output: "stdout", wantStdout: true},
		{output: "STDOUT", wantStdout: true},
		{output: "stderr"},
		{output: ""},
		{output: "syslog"},
	}

	for _, tt := range tests {
		t.Run("output="+tt.output, func(t *testing.T) {
			stdout, stderr := captureStd(t)

			New(config.LoggingConfig{Level: "info", Output: tt.output}, "1.0.0").Info("bridge written")

			inOut := strings.Contains(stdout(), "bridge written")
			inErr := strings.Contains(stderr(), "bridge written")
			if inOut != tt.wantStdout || inErr == tt.wantStdout {
				t.Errorf("stdout=%v stderr=%v, want stdout=%v", inOut, inErr, tt.wantStdout)
			}
		})
	}
}

func TestNewWithWriter_Format(t *testing.T) {
	tests := []struct {
		format   string
		wantJSON bool
	}{
		{format: "json", wantJSON: true},
		{format: "JSON", wantJSON: true},
		{format: "text"},
		{format: ""},
	}

	for _, tt := range tests {
		t.Run("format="+tt.format, func(t *testing.T) {
			var buf bytes.Buffer
			NewWithWriter(config.LoggingConfig{Format: tt.format}, "1.0.0", &buf).Info("apply starting", "bridges", 2)

			var entry map[string]any
			isJSON := json.Unmarshal(buf.Bytes(), &entry) == nil
			if isJSON != tt.wantJSON {
				t.Errorf("JSON output = %v, want %v: %s", isJSON, tt.wantJSON, buf.String())
			}
			if !tt.wantJSON && !strings.Contains(buf.String(), "bridges=2") {
				t.Errorf("text output missing attribute: %s", buf.String())
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"verbose": slog.LevelInfo,
		"":        slog.LevelInfo,
	}

	for input, want := range tests {
		if got := parseLevel(input); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestNewWithWriter_DefaultFields(t *testing.T) {
	var buf bytes.Buffer

	logger := NewWithWriter(config.LoggingConfig{Level: "info", Format: "json"}, "0.3.1", &buf)
	logger.Info("mapping generated", "assigned", 42)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON output: %v", err)
	}

	want := map[string]any{
		"service":  "hkbridge",
		"version":  "0.3.1",
		"msg":      "mapping generated",
		"assigned": float64(42),
	}
	for k, v := range want {
		if entry[k] != v {
			t.Errorf("%s = %v, want %v", k, entry[k], v)
		}
	}
}

func TestLogger_WithKeepsParentUntouched(t *testing.T) {
	var buf bytes.Buffer

	parent := NewWithWriter(config.LoggingConfig{Level: "info", Format: "text"}, "dev", &buf)
	parent.With("component", "apply").Info("state changed")
	parent.Info("watch stopped")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2:\n%s", len(lines), buf.String())
	}
	if !strings.Contains(lines[0], "component=apply") {
		t.Errorf("child line missing component: %s", lines[0])
	}
	if strings.Contains(lines[1], "component=") {
		t.Errorf("parent line picked up child attribute: %s", lines[1])
	}
}

func TestNewWithWriter_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer

	logger := NewWithWriter(config.LoggingConfig{Level: "warn", Format: "text"}, "test", &buf)
	logger.Info("hidden")
	logger.Warn("shown")

	output := buf.String()
	if strings.Contains(output, "hidden") {
		t.Error("info message should be filtered at warn level")
	}
	if !strings.Contains(output, "shown") {
		t.Error("warn message should be written at warn level")
	}
}

func TestDefault_WritesInfoToStderr(t *testing.T) {
	stdout, stderr := captureStd(t)

	logger := Default()
	logger.Debug("not shown")
	logger.Info("before config")

	if stdout() != "" {
		t.Errorf("Default() wrote to stdout: %q", stdout())
	}
	got := stderr()
	if !strings.Contains(got, "before config") || strings.Contains(got, "not shown") {
		t.Errorf("stderr = %q, want the info line only", got)
	}
}
