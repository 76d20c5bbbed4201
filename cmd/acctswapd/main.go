package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"acctswap/internal/app"
	"acctswap/internal/config"
	"acctswap/internal/daemon"
	"acctswap/internal/logging"
	"acctswap/internal/renewal"
	"acctswap/internal/scheduler"
	"acctswap/internal/store"
)

const defaultLogLines = 50

type cli struct {
	out        io.Writer
	loadConfig func() (config.Config, error)
	open       func(cfg config.Config, logger logrus.FieldLogger) (*app.Env, error)
	newPinger  func(cfg config.Config) renewal.Pinger
}

func main() {
	c := &cli{
		out:        os.Stdout,
		loadConfig: config.LoadDefault,
		open:       app.Open,
		newPinger: func(cfg config.Config) renewal.Pinger {
			return renewal.NewExecPinger(cfg.ToolBinary)
		},
	}
	if err := newRootCmd(c).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:           "acctswapd",
		Short:         "Keep every managed account's usage window open",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(c.out)
	root.AddCommand(
		newOnceCmd(c),
		newStartCmd(c),
		newStopCmd(c),
		newStatusCmd(c),
		newLogCmd(c),
		newRunCmd(c),
	)
	return root
}

func addScheduleFlags(cmd *cobra.Command, s *config.Schedule) {
	cmd.Flags().StringVar(&s.At, "at", s.At, "wall-clock time HH:MM of the first round")
	cmd.Flags().StringVar(&s.Accounts, "accounts", s.Accounts, "accounts to ping: all or a comma separated list of numbers")
	cmd.Flags().Float64Var(&s.IntervalHours, "interval", s.IntervalHours, "hours between rounds")
	cmd.Flags().StringVar(&s.Model, "model", s.Model, "model used for the ping")
	cmd.Flags().StringVar(&s.Message, "message", s.Message, "prompt sent with the ping")
}

// build wires a scheduler against the live environment.
func (c *cli) build(ctx context.Context, cfg config.Config, s config.Schedule, logger logrus.FieldLogger) (*scheduler.Scheduler, error) {
	opts, err := s.Options()
	if err != nil {
		return nil, err
	}
	opts.Pause = cfg.Pause()

	env, err := c.open(cfg, logger)
	if err != nil {
		return nil, err
	}
	if _, err := env.Manager.Reconcile(ctx); err != nil {
		return nil, fmt.Errorf("recover interrupted switch: %w", err)
	}
	return scheduler.New(env.Manager, c.newPinger(cfg), env.States, opts, logger), nil
}

func newOnceCmd(c *cli) *cobra.Command {
	s := config.DefaultSchedule()
	cmd := &cobra.Command{
		Use:   "once",
		Short: "Run a single renewal round in the foreground",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			logger, err := logging.NewCLI(cfg.LogLevel)
			if err != nil {
				return err
			}
			sched, err := c.build(cmd.Context(), cfg, s, logger)
			if err != nil {
				return err
			}
			report, err := sched.RunRound(cmd.Context())
			if err != nil {
				return err
			}
			for _, r := range report.Results {
				status := "ok"
				if !r.OK {
					status = "FAILED: " + r.Error
				}
				fmt.Fprintf(c.out, "  %d %s  %s (%s)\n", r.Number, r.Email, status, r.Duration.Round(time.Millisecond))
			}
			fmt.Fprintf(c.out, "Round finished: %d succeeded, %d failed\n", report.Success, report.Failed)
			return nil
		},
	}
	addScheduleFlags(cmd, &s)
	cmd.Flags().Lookup("at").Hidden = true
	cmd.Flags().Lookup("interval").Hidden = true
	return cmd
}

func newStartCmd(c *cli) *cobra.Command {
	s := config.DefaultSchedule()
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the scheduler in the background",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			ctl := daemon.New(cfg.Dir)
			if info, running, err := ctl.Running(); err != nil {
				return err
			} else if running {
				return fmt.Errorf("%w (pid %d)", daemon.ErrAlreadyRunning, info.PID)
			}
			if err := config.SaveSchedule(cfg.Dir, s); err != nil {
				return err
			}
			info, err := ctl.Start([]string{"run"})
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "Scheduler started (pid %d)\n", info.PID)
			printSchedule(c.out, s)
			fmt.Fprintf(c.out, "  log: %s\n", ctl.LogPath())
			return nil
		},
	}
	addScheduleFlags(cmd, &s)
	return cmd
}

func printSchedule(w io.Writer, s config.Schedule) {
	at := s.At
	if at == "" {
		at = "now"
	}
	fmt.Fprintf(w, "  first round: %s\n", at)
	fmt.Fprintf(w, "  accounts: %s\n", s.Accounts)
	fmt.Fprintf(w, "  interval: %gh\n", s.IntervalHours)
	fmt.Fprintf(w, "  model: %s\n", s.Model)
}

func newStopCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the background scheduler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			info, err := daemon.New(cfg.Dir).Stop()
			if errors.Is(err, daemon.ErrNotRunning) {
				fmt.Fprintln(c.out, "Scheduler is not running")
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "Scheduler stopped (pid %d)\n", info.PID)
			return nil
		},
	}
}

func newStatusCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether the scheduler runs and how the last round went",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			ctl := daemon.New(cfg.Dir)
			info, running, err := ctl.Running()
			if err != nil {
				return err
			}
			if running {
				fmt.Fprintf(c.out, "Scheduler is running (pid %d, since %s)\n", info.PID, info.Started.Local().Format(time.RFC3339))
				if s, ok, err := config.LoadSchedule(cfg.Dir); err != nil {
					return err
				} else if ok {
					printSchedule(c.out, s)
				}
			} else {
				fmt.Fprintln(c.out, "Scheduler is not running")
			}

			state, ok, err := store.NewSchedulerStateStore(cfg.Dir).Load()
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(c.out, "No round has run yet")
				return nil
			}
			fmt.Fprintf(c.out, "Last round: %s (%d succeeded, %d failed)\n",
				state.LastPing.Local().Format(time.RFC3339), state.SuccessCount, state.FailedCount)
			if running && !state.NextPing.IsZero() {
				fmt.Fprintf(c.out, "Next round: %s\n", state.NextPing.Local().Format(time.RFC3339))
			}
			for _, r := range state.Results {
				if !r.OK {
					fmt.Fprintf(c.out, "  account %d %s: %s\n", r.Number, r.Email, r.Error)
				}
			}
			return nil
		},
	}
}

func newLogCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "log [N]",
		Short: "Print the last N lines of the scheduler log",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n := defaultLogLines
			if len(args) == 1 {
				v, err := strconv.Atoi(args[0])
				if err != nil || v <= 0 {
					return fmt.Errorf("line count %q must be a positive number", args[0])
				}
				n = v
			}
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			path := daemon.New(cfg.Dir).LogPath()
			lines, err := daemon.TailLog(path, n)
			if os.IsNotExist(err) {
				fmt.Fprintf(c.out, "No log yet at %s\n", path)
				return nil
			}
			if err != nil {
				return err
			}
			for _, line := range lines {
				fmt.Fprintln(c.out, line)
			}
			return nil
		},
	}
}

// newRunCmd is the body of the detached process started by start.
func newRunCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:    "run",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			ctl := daemon.New(cfg.Dir)
			logFile, err := logging.OpenLogFile(ctl.LogPath())
			if err != nil {
				return err
			}
			defer logFile.Close()
			logger, err := logging.NewDaemon(logFile, cfg.LogLevel)
			if err != nil {
				return err
			}

			pid := os.Getpid()
			if info, running, err := ctl.Running(); err != nil {
				return err
			} else if running && info.PID != pid {
				return fmt.Errorf("%w (pid %d)", daemon.ErrAlreadyRunning, info.PID)
			}
			if _, err := ctl.Record(pid, []string{"run"}); err != nil {
				return err
			}
			defer func() {
				if err := ctl.Clear(pid); err != nil {
					logger.WithError(err).Warn("could not remove pid record")
				}
			}()

			s, ok, err := config.LoadSchedule(cfg.Dir)
			if err != nil {
				return err
			}
			if !ok {
				s = config.DefaultSchedule()
			}
			sched, err := c.build(ctx, cfg, s, logger)
			if err != nil {
				logger.WithError(err).Error("scheduler could not start")
				return err
			}

			logger.WithFields(logrus.Fields{"pid": pid, "accounts": s.Accounts, "interval": s.IntervalHours}).Info("scheduler started")
			err = sched.Run(ctx)
			if errors.Is(err, context.Canceled) {
				logger.Info("scheduler stopped")
				return nil
			}
			return err
		},
	}
}
