// Package scheduler keeps every managed account's usage window open by
// pinging each one in turn on a fixed cadence.
package scheduler

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"acctswap/internal/core"
	"acctswap/internal/model"
	"acctswap/internal/renewal"
)

const DefaultInterval = 5 * time.Hour

type State string

const (
	StateIdle     State = "idle"
	StateWaiting  State = "waiting-for-scheduled-time"
	StateRunning  State = "running-round"
	StateSleeping State = "sleeping"
)

type Switcher interface {
	Sequence(ctx context.Context) ([]int, error)
	ActiveAccount(ctx context.Context) (int, bool, error)
	SwitchTo(ctx context.Context, target int) (core.SwitchResult, error)
}

type stateStore interface {
	Save(state model.SchedulerState) error
}

type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

type Options struct {
	At       *ClockTime
	Accounts []int
	Interval time.Duration
	Model    string
	Message  string
	Timeout  time.Duration
	// Pause separates consecutive accounts so the tool never sees two
	// credential sets in quick succession.
	Pause time.Duration
}

type RoundReport struct {
	ID       string
	Started  time.Time
	Results  []model.PingResult
	Success  int
	Failed   int
	Restored bool
	Err      error
}

type Scheduler struct {
	switcher Switcher
	pinger   renewal.Pinger
	states   stateStore
	opts     Options
	clock    Clock
	log      logrus.FieldLogger

	mu    sync.Mutex
	state State
}

func New(switcher Switcher, pinger renewal.Pinger, states stateStore, opts Options, logger logrus.FieldLogger) *Scheduler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	return &Scheduler{
		switcher: switcher,
		pinger:   pinger,
		states:   states,
		opts:     opts,
		clock:    realClock{},
		log:      logger,
		state:    StateIdle,
	}
}

// WithClock replaces the wall clock, mainly for tests.
func (s *Scheduler) WithClock(c Clock) *Scheduler {
	s.clock = c
	return s
}

func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Scheduler) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// Run waits for the optional start time once, then runs a round every
// interval until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	defer s.setState(StateIdle)

	if s.opts.At != nil {
		now := s.clock.Now()
		at := s.opts.At.Next(now)
		s.setState(StateWaiting)
		s.log.WithField("at", at.Format(time.RFC3339)).Info("waiting for scheduled start")
		if err := s.sleep(ctx, at.Sub(now)); err != nil {
			return err
		}
	}

	for {
		report, err := s.RunRound(ctx)
		if err != nil {
			s.log.WithError(err).Error("renewal round could not be recorded")
		} else {
			s.log.WithFields(logrus.Fields{
				"round":   report.ID,
				"success": report.Success,
				"failed":  report.Failed,
			}).Info("renewal round finished")
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		s.setState(StateSleeping)
		s.log.WithField("next", s.clock.Now().Add(s.opts.Interval).Format(time.RFC3339)).Info("sleeping until next round")
		if err := s.sleep(ctx, s.opts.Interval); err != nil {
			return err
		}
	}
}

func (s *Scheduler) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.clock.After(d):
		return nil
	}
}

// RunRound pings every target account once. A failing account never stops
// the round; the account live at the start is restored afterwards and the
// outcome is persisted even when every ping failed.
func (s *Scheduler) RunRound(ctx context.Context) (RoundReport, error) {
	s.setState(StateRunning)
	defer s.setState(StateIdle)

	report := RoundReport{ID: uuid.NewString(), Started: s.clock.Now()}
	log := s.log.WithField("round", report.ID)
	var errs *multierror.Error

	targets := slices.Clone(s.opts.Accounts)
	if len(targets) == 0 {
		seq, err := s.switcher.Sequence(ctx)
		if err != nil {
			return report, fmt.Errorf("load rotation sequence: %w", err)
		}
		targets = seq
	}

	start, hadStart, err := s.switcher.ActiveAccount(ctx)
	if err != nil {
		log.WithError(err).Warn("could not determine live account before round")
	}

	for i, number := range targets {
		if ctx.Err() != nil {
			errs = multierror.Append(errs, ctx.Err())
			break
		}
		if i > 0 && s.opts.Pause > 0 {
			if err := s.sleep(ctx, s.opts.Pause); err != nil {
				errs = multierror.Append(errs, err)
				break
			}
		}

		result := s.pingAccount(ctx, number)
		report.Results = append(report.Results, result)
		entry := log.WithFields(logrus.Fields{"account": number, "email": result.Email, "duration": result.Duration})
		if result.OK {
			report.Success++
			entry.Info("ping succeeded")
			continue
		}
		report.Failed++
		errs = multierror.Append(errs, fmt.Errorf("account %d: %s", number, result.Error))
		entry.WithField("error", result.Error).Warn("ping failed")
	}

	if hadStart {
		restoreCtx := context.WithoutCancel(ctx)
		if _, err := s.switcher.SwitchTo(restoreCtx, start); err != nil {
			log.WithError(err).WithField("account", start).Error("could not restore the account live before the round")
			errs = multierror.Append(errs, fmt.Errorf("restore account %d: %w", start, err))
		} else {
			report.Restored = true
		}
	}
	report.Err = errs.ErrorOrNil()

	now := s.clock.Now()
	state := model.SchedulerState{
		LastPing:     now.UTC(),
		SuccessCount: report.Success,
		FailedCount:  report.Failed,
		Results:      report.Results,
	}
	if s.opts.Interval > 0 {
		state.NextPing = now.Add(s.opts.Interval).UTC()
	}
	if err := s.states.Save(state); err != nil {
		return report, fmt.Errorf("save scheduler state: %w", err)
	}
	return report, nil
}

func (s *Scheduler) pingAccount(ctx context.Context, number int) model.PingResult {
	started := s.clock.Now()
	result := model.PingResult{Number: number}

	switched, err := s.switcher.SwitchTo(ctx, number)
	if err != nil {
		result.Error = renewal.Excerpt([]byte("switch: " + err.Error()))
		result.Duration = s.clock.Now().Sub(started)
		return result
	}
	result.Email = switched.To.Email

	err = s.pinger.Ping(ctx, renewal.PingRequest{
		Model:   s.opts.Model,
		Message: s.opts.Message,
		Timeout: s.opts.Timeout,
	})
	result.Duration = s.clock.Now().Sub(started)
	if err != nil {
		result.Error = renewal.Excerpt([]byte(err.Error()))
		return result
	}
	result.OK = true
	return result
}
