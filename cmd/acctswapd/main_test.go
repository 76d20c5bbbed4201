package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"acctswap/internal/app"
	"acctswap/internal/config"
	"acctswap/internal/core"
	"acctswap/internal/liveauth"
	"acctswap/internal/model"
	"acctswap/internal/renewal"
	"acctswap/internal/scheduler"
	"acctswap/internal/secrets"
	"acctswap/internal/store"
)

// recordingPinger fails for the live identities listed in fail.
type recordingPinger struct {
	profilePath string
	fail        map[string]bool
	seen        []string
}

func (p *recordingPinger) Ping(_ context.Context, req renewal.PingRequest) error {
	id, err := liveauth.New(nil, liveauth.NewProfileFile(p.profilePath)).Identity()
	if err != nil {
		return err
	}
	p.seen = append(p.seen, id.EmailAddress)
	if p.fail[id.EmailAddress] {
		return fmt.Errorf("%w after %s", renewal.ErrPingTimeout, req.Timeout)
	}
	return nil
}

type harness struct {
	t           *testing.T
	dataDir     string
	credPath    string
	profilePath string
	out         *bytes.Buffer
	pinger      *recordingPinger
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	h := &harness{
		t:           t,
		dataDir:     filepath.Join(dir, "data"),
		credPath:    filepath.Join(dir, "home", ".credentials.json"),
		profilePath: filepath.Join(dir, "home", ".claude.json"),
		out:         &bytes.Buffer{},
	}
	h.pinger = &recordingPinger{profilePath: h.profilePath, fail: map[string]bool{}}
	require.NoError(t, os.MkdirAll(h.dataDir, 0o700))
	return h
}

func (h *harness) env() *app.Env {
	h.t.Helper()
	secretStore, err := secrets.NewFileStore(filepath.Join(h.dataDir, "secrets"))
	require.NoError(h.t, err)
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	live := liveauth.New(liveauth.NewFileSlot(h.credPath), liveauth.NewProfileFile(h.profilePath))
	env, err := app.Assemble(config.Config{Dir: h.dataDir}, secretStore, live, logger)
	require.NoError(h.t, err)
	return env
}

func (h *harness) addAccount(uuid, email string) {
	h.t.Helper()
	require.NoError(h.t, os.MkdirAll(filepath.Dir(h.credPath), 0o700))
	require.NoError(h.t, os.WriteFile(h.credPath, []byte(`{"token":"`+uuid+`"}`), 0o600))
	raw, err := json.Marshal(map[string]any{"oauthAccount": map[string]string{"accountUuid": uuid, "emailAddress": email}})
	require.NoError(h.t, err)
	require.NoError(h.t, os.WriteFile(h.profilePath, raw, 0o600))
	_, err = h.env().Manager.AddAccount(context.Background(), core.AddAccountInput{})
	require.NoError(h.t, err)
}

func (h *harness) run(args ...string) (string, error) {
	h.t.Helper()
	h.out.Reset()
	zero := 0
	c := &cli{
		out: h.out,
		loadConfig: func() (config.Config, error) {
			return config.Config{Dir: h.dataDir, ToolBinary: "claude", PauseSeconds: &zero}, nil
		},
		open: func(config.Config, logrus.FieldLogger) (*app.Env, error) {
			return h.env(), nil
		},
		newPinger: func(config.Config) renewal.Pinger { return h.pinger },
	}
	cmd := newRootCmd(c)
	cmd.SetArgs(args)
	cmd.SetErr(io.Discard)
	err := cmd.Execute()
	return h.out.String(), err
}

func TestOnceRoundContinuesPastFailureAndRestores(t *testing.T) {
	h := newHarness(t)
	h.addAccount("u-1", "a@example.com")
	h.addAccount("u-2", "b@example.com")
	h.addAccount("u-3", "c@example.com")
	h.addAccount("u-1", "a@example.com")
	h.pinger.fail["b@example.com"] = true

	out, err := h.run("once")
	require.NoError(t, err)
	assert.Contains(t, out, "2 succeeded, 1 failed")
	assert.Contains(t, out, "FAILED: ping timed out")
	assert.Equal(t, []string{"a@example.com", "b@example.com", "c@example.com"}, h.pinger.seen)

	live, ok, err := h.env().Manager.ActiveAccount(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, live)
	data, err := os.ReadFile(h.credPath)
	require.NoError(t, err)
	assert.Equal(t, `{"token":"u-1"}`, string(data), "the account live before the round is restored")

	state, ok, err := store.NewSchedulerStateStore(h.dataDir).Load()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, state.SuccessCount)
	assert.Equal(t, 1, state.FailedCount)
}

func TestOnceWithExplicitAccounts(t *testing.T) {
	h := newHarness(t)
	h.addAccount("u-1", "a@example.com")
	h.addAccount("u-2", "b@example.com")

	out, err := h.run("once", "--accounts", "2,5")
	require.NoError(t, err)
	assert.Contains(t, out, "1 succeeded, 1 failed")
	assert.Equal(t, []string{"b@example.com"}, h.pinger.seen)

	_, err = h.run("once", "--accounts", "x")
	assert.ErrorIs(t, err, scheduler.ErrInvalidOption)
}

func TestStartRejectsBadOptionsWithoutSpawning(t *testing.T) {
	h := newHarness(t)
	_, err := h.run("start", "--at", "25:99")
	assert.ErrorIs(t, err, scheduler.ErrInvalidOption)
	_, err = os.Stat(filepath.Join(h.dataDir, "scheduler.pid"))
	assert.True(t, os.IsNotExist(err))
}

func TestStatus(t *testing.T) {
	h := newHarness(t)
	out, err := h.run("status")
	require.NoError(t, err)
	assert.Contains(t, out, "Scheduler is not running")
	assert.Contains(t, out, "No round has run yet")

	require.NoError(t, store.NewSchedulerStateStore(h.dataDir).Save(model.SchedulerState{
		LastPing:     time.Now().UTC(),
		NextPing:     time.Now().Add(time.Hour).UTC(),
		SuccessCount: 1,
		FailedCount:  1,
		Results: []model.PingResult{
			{Number: 1, Email: "a@example.com", OK: true},
			{Number: 2, Email: "b@example.com", Error: "ping timed out"},
		},
	}))
	out, err = h.run("status")
	require.NoError(t, err)
	assert.Contains(t, out, "1 succeeded, 1 failed")
	assert.Contains(t, out, "account 2 b@example.com: ping timed out")
	assert.NotContains(t, out, "account 1 a@example.com")
}

func TestStopWhenNotRunning(t *testing.T) {
	h := newHarness(t)
	out, err := h.run("stop")
	require.NoError(t, err)
	assert.Contains(t, out, "not running")
}

func TestLogTail(t *testing.T) {
	h := newHarness(t)
	out, err := h.run("log")
	require.NoError(t, err)
	assert.Contains(t, out, "No log yet")

	var lines []string
	for i := 1; i <= 80; i++ {
		lines = append(lines, fmt.Sprintf("line %d", i))
	}
	require.NoError(t, os.WriteFile(filepath.Join(h.dataDir, "scheduler.log"), []byte(strings.Join(lines, "\n")+"\n"), 0o600))

	out, err = h.run("log")
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), defaultLogLines)
	assert.True(t, strings.HasSuffix(out, "line 80\n"))

	out, err = h.run("log", "3")
	require.NoError(t, err)
	assert.Equal(t, "line 78\nline 79\nline 80\n", out)

	_, err = h.run("log", "zero")
	assert.Error(t, err)
}
