package renewal

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

func TestParseResultFromOutput(t *testing.T) {
	output := []byte(`{"type":"system","subtype":"init"}` + "\n" +
		`{"type":"result","subtype":"success","is_error":false,"result":"ok"}` + "\n")
	got, ok := parseResultFromOutput(output)
	if !ok {
		t.Fatal("expected a result event")
	}
	if got.IsError || got.Result != "ok" {
		t.Fatalf("unexpected result: %#v", got)
	}
}

func TestParseResultFromOutputMissing(t *testing.T) {
	output := []byte(`{"type":"system"}` + "\n" + `non-json` + "\n")
	if _, ok := parseResultFromOutput(output); ok {
		t.Fatal("expected no result event")
	}
}

func TestExcerptTruncates(t *testing.T) {
	long := strings.Repeat("x", 2000)
	got := Excerpt([]byte("  " + long + "\n"))
	if len(got) != excerptLimit+3 || !strings.HasSuffix(got, "...") {
		t.Fatalf("unexpected excerpt length %d", len(got))
	}
	if Excerpt([]byte(" short ")) != "short" {
		t.Fatal("short output should only be trimmed")
	}
}

func TestExcerptCutsOnRuneBoundary(t *testing.T) {
	// the first multi-byte rune straddles the limit
	output := strings.Repeat("a", excerptLimit-1) + strings.Repeat("é世", 100)
	got := Excerpt([]byte(output))
	if !utf8.ValidString(got) {
		t.Fatalf("excerpt is not valid UTF-8: %q", got[len(got)-10:])
	}
	if !strings.HasSuffix(got, "...") || len(got) > excerptLimit+3 {
		t.Fatalf("unexpected excerpt length %d", len(got))
	}
	if !strings.HasPrefix(got, strings.Repeat("a", excerptLimit-1)) {
		t.Fatal("excerpt lost its ASCII prefix")
	}
}

func fakeTool(t *testing.T, script string) *ExecPinger {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not executable on windows")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "tool")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0o755); err != nil {
		t.Fatalf("write fake tool: %v", err)
	}
	return &ExecPinger{Binary: path, Dir: dir}
}

func TestExecPingerSuccess(t *testing.T) {
	p := fakeTool(t, `echo '{"type":"result","subtype":"success","is_error":false,"result":"ok"}'`)
	if err := p.Ping(context.Background(), PingRequest{Timeout: 5 * time.Second}); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

func TestExecPingerPassesModelAndMessage(t *testing.T) {
	dir := t.TempDir()
	argsFile := filepath.Join(dir, "args")
	p := fakeTool(t, `echo "$@" > `+argsFile)
	if err := p.Ping(context.Background(), PingRequest{Model: "haiku", Message: "hi", Timeout: 5 * time.Second}); err != nil {
		t.Fatalf("ping: %v", err)
	}
	data, err := os.ReadFile(argsFile)
	if err != nil {
		t.Fatalf("read args: %v", err)
	}
	if got := strings.TrimSpace(string(data)); got != "-p hi --model haiku --output-format json" {
		t.Fatalf("unexpected args: %q", got)
	}
}

func TestExecPingerNonZeroExit(t *testing.T) {
	p := fakeTool(t, `echo "Invalid API key" >&2; exit 3`)
	err := p.Ping(context.Background(), PingRequest{Timeout: 5 * time.Second})
	if !errors.Is(err, ErrPingFailed) {
		t.Fatalf("expected ErrPingFailed, got %v", err)
	}
	if !strings.Contains(err.Error(), "Invalid API key") {
		t.Fatalf("expected output excerpt in error, got %v", err)
	}
}

func TestExecPingerResultError(t *testing.T) {
	p := fakeTool(t, `echo '{"type":"result","subtype":"success","is_error":true,"result":"usage limit reached"}'`)
	err := p.Ping(context.Background(), PingRequest{Timeout: 5 * time.Second})
	if !errors.Is(err, ErrPingFailed) || !strings.Contains(err.Error(), "usage limit reached") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestExecPingerTimeout(t *testing.T) {
	p := fakeTool(t, `exec sleep 10`)
	start := time.Now()
	err := p.Ping(context.Background(), PingRequest{Timeout: 200 * time.Millisecond})
	if !errors.Is(err, ErrPingTimeout) {
		t.Fatalf("expected ErrPingTimeout, got %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatalf("timeout was not enforced, took %s", time.Since(start))
	}
}
