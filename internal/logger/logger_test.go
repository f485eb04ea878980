package logger

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"trace", LevelTrace},
		{"TRACE", LevelTrace},
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestHandlerFormat(t *testing.T) {
	var sb strings.Builder
	log := slog.New(NewHandler(&sb, slog.LevelInfo))
	log.Info("lock acquired", "path", "/tmp/a.lock", "type", "exclusive")

	line := strings.TrimRight(sb.String(), "\r\n")
	fields := strings.SplitN(line, " ", 3)
	if len(fields) != 3 {
		t.Fatalf("line = %q, want timestamp level rest", line)
	}
	if _, err := time.Parse("2006-01-02T15:04:05.000Z", fields[0]); err != nil {
		t.Errorf("timestamp %q: %v", fields[0], err)
	}
	if fields[1] != "INFO" {
		t.Errorf("level = %q, want INFO", fields[1])
	}
	if fields[2] != "lock acquired path=/tmp/a.lock type=exclusive" {
		t.Errorf("rest = %q", fields[2])
	}
}

func TestHandlerQuotesSpacedValues(t *testing.T) {
	var sb strings.Builder
	log := slog.New(NewHandler(&sb, slog.LevelInfo))
	log.Info("msg", "err", "no such file")
	if !strings.Contains(sb.String(), `err="no such file"`) {
		t.Errorf("output %q lacks quoted value", sb.String())
	}
}

func TestHandlerLevelFilter(t *testing.T) {
	var sb strings.Builder
	log := slog.New(NewHandler(&sb, slog.LevelWarn))
	log.Info("dropped")
	log.Warn("kept")
	out := sb.String()
	if strings.Contains(out, "dropped") {
		t.Error("info record not filtered at warn level")
	}
	if !strings.Contains(out, "kept") {
		t.Error("warn record missing")
	}
}

func TestHandlerWithAttrsAndGroup(t *testing.T) {
	var sb strings.Builder
	log := slog.New(NewHandler(&sb, slog.LevelInfo)).
		With("pid", 42).
		WithGroup("lock").
		With("path", "/a")
	log.Info("msg", "type", "shared")

	out := sb.String()
	for _, want := range []string{" pid=42", " lock.path=/a", " lock.type=shared"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q lacks %q", out, want)
		}
	}
}

func TestTraceLevel(t *testing.T) {
	var sb strings.Builder
	log := slog.New(NewHandler(&sb, LevelTrace))
	Trace(log, "probe", "attempt", 1)
	if !strings.Contains(sb.String(), "TRACE probe attempt=1") {
		t.Errorf("output %q lacks trace record", sb.String())
	}
}

func TestTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log")
	lines := []string{"one", "two", "three", "four", "five"}
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := Tail(path, 3)
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if got != "three\nfour\nfive" {
		t.Errorf("Tail(3) = %q", got)
	}

	got, err = Tail(path, 10)
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if got != strings.Join(lines, "\n") {
		t.Errorf("Tail(10) = %q", got)
	}

	// Non-positive line counts yield nothing, not a panic.
	for _, n := range []int{0, -1} {
		got, err = Tail(path, n)
		if err != nil {
			t.Fatalf("Tail(%d): %v", n, err)
		}
		if got != "" {
			t.Errorf("Tail(%d) = %q, want empty", n, got)
		}
	}
}

func TestTailMissingFile(t *testing.T) {
	if _, err := Tail(filepath.Join(t.TempDir(), "nope"), 5); err == nil {
		t.Fatal("Tail of missing file succeeded")
	}
}
