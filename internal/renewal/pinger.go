// Package renewal runs the external tool's cheapest request against the live account.
package renewal

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	DefaultModel   = "haiku"
	DefaultMessage = "Reply with exactly: ok"
	DefaultTimeout = 120 * time.Second

	excerptLimit = 600
)

var (
	ErrPingFailed  = errors.New("ping failed")
	ErrPingTimeout = errors.New("ping timed out")
)

type PingRequest struct {
	Model   string
	Message string
	Timeout time.Duration
}

func (r PingRequest) withDefaults() PingRequest {
	if strings.TrimSpace(r.Model) == "" {
		r.Model = DefaultModel
	}
	if strings.TrimSpace(r.Message) == "" {
		r.Message = DefaultMessage
	}
	if r.Timeout <= 0 {
		r.Timeout = DefaultTimeout
	}
	return r
}

// Pinger performs one authenticated request as whichever account is live.
type Pinger interface {
	Ping(ctx context.Context, req PingRequest) error
}

type ExecPinger struct {
	Binary string
	Dir    string
}

func NewExecPinger(binary string) *ExecPinger {
	if strings.TrimSpace(binary) == "" {
		binary = "claude"
	}
	return &ExecPinger{Binary: binary, Dir: os.TempDir()}
}

func (p *ExecPinger) Ping(ctx context.Context, req PingRequest) error {
	req = req.withDefaults()
	ctx, cancel := context.WithTimeout(ctx, req.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.Binary, "-p", req.Message, "--model", req.Model, "--output-format", "json")
	cmd.Dir = p.Dir
	cmd.WaitDelay = 2 * time.Second
	output, err := cmd.CombinedOutput()

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s", ErrPingTimeout, req.Timeout)
	}
	if err != nil {
		if message := Excerpt(output); message != "" {
			return fmt.Errorf("%w: %v: %s", ErrPingFailed, err, message)
		}
		return fmt.Errorf("%w: %v", ErrPingFailed, err)
	}
	if res, ok := parseResultFromOutput(output); ok && res.IsError {
		return fmt.Errorf("%w: %s", ErrPingFailed, Excerpt([]byte(res.Result)))
	}
	return nil
}

// Excerpt trims tool output to something that fits on a log line.
func Excerpt(output []byte) string {
	message := strings.TrimSpace(string(output))
	if len(message) > excerptLimit {
		cut := excerptLimit
		for cut > 0 && !utf8.RuneStart(message[cut]) {
			cut--
		}
		message = message[:cut] + "..."
	}
	return message
}

type toolResult struct {
	Type    string `json:"type"`
	Subtype string `json:"subtype"`
	IsError bool   `json:"is_error"`
	Result  string `json:"result"`
}

func parseResultFromOutput(output []byte) (toolResult, bool) {
	scanner := bufio.NewScanner(bytes.NewReader(output))
	scanner.Buffer(make([]byte, 64*1024), 10*1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, "{") {
			continue
		}
		var event toolResult
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			continue
		}
		if event.Type == "result" {
			return event, true
		}
	}
	return toolResult{}, false
}
