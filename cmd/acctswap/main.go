package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"acctswap/internal/app"
	"acctswap/internal/config"
	"acctswap/internal/core"
	"acctswap/internal/logging"
	"acctswap/internal/model"
)

type cli struct {
	out         io.Writer
	in          io.Reader
	interactive func() bool
	open        func() (*app.Env, error)

	env *app.Env
}

func main() {
	c := &cli{
		out:         os.Stdout,
		in:          os.Stdin,
		interactive: isInteractive,
		open:        openDefault,
	}
	if err := newRootCmd(c).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func openDefault() (*app.Env, error) {
	cfg, err := config.LoadDefault()
	if err != nil {
		return nil, err
	}
	logger, err := logging.NewCLI(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	return app.Open(cfg, logger)
}

// isInteractive is true when both stdin and stdout are terminals.
func isInteractive() bool {
	return (isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())) &&
		(isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd()))
}

// manager opens the environment once and settles any switch a previous run
// left half done.
func (c *cli) manager(ctx context.Context) (*core.Manager, error) {
	if c.env == nil {
		env, err := c.open()
		if err != nil {
			return nil, err
		}
		if _, err := env.Manager.Reconcile(ctx); err != nil {
			return nil, fmt.Errorf("recover interrupted switch: %w", err)
		}
		c.env = env
	}
	return c.env.Manager, nil
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:           "acctswap",
		Short:         "Switch the account the coding assistant CLI is signed in as",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(c.out)
	root.AddCommand(
		newAddCmd(c),
		newRemoveCmd(c),
		newListCmd(c),
		newSwitchCmd(c),
		newSwitchToCmd(c),
	)
	return root
}

func newAddCmd(c *cli) *cobra.Command {
	var label string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Manage the account currently signed in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := c.manager(cmd.Context())
			if err != nil {
				return err
			}
			res, err := mgr.AddAccount(cmd.Context(), core.AddAccountInput{
				Label:       label,
				PromptLabel: c.promptLabel,
			})
			if err != nil {
				return err
			}
			if res.Created {
				fmt.Fprintf(c.out, "Added account %d: %s\n", res.Account.Number, res.Account.DisplayName())
			} else {
				fmt.Fprintf(c.out, "Account %d is already managed; backup refreshed: %s\n", res.Account.Number, res.Account.DisplayName())
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&label, "label", "", "label telling apart accounts that share an email")
	return cmd
}

func (c *cli) promptLabel(existing []model.Account) (string, error) {
	if !c.interactive() {
		return "", fmt.Errorf("%w: this email is already managed in the same organization; pass --label", core.ErrValidation)
	}
	fmt.Fprintln(c.out, "This email is already managed:")
	for _, acct := range existing {
		fmt.Fprintf(c.out, "  %d: %s\n", acct.Number, acct.DisplayName())
	}
	fmt.Fprint(c.out, "Label for the new account: ")
	line, err := bufio.NewReader(c.in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func newRemoveCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <number|email>",
		Short: "Stop managing an account and delete its backup",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := c.manager(cmd.Context())
			if err != nil {
				return err
			}
			acct, err := mgr.RemoveAccount(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "Removed account %d: %s\n", acct.Number, acct.DisplayName())
			return nil
		},
	}
}

func newListCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List managed accounts in rotation order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := c.manager(cmd.Context())
			if err != nil {
				return err
			}
			listing, err := mgr.ListAccounts(cmd.Context())
			if err != nil {
				return err
			}
			printListing(c.out, listing)
			return nil
		},
	}
}

func printListing(w io.Writer, listing core.Listing) {
	if len(listing.Accounts) == 0 {
		fmt.Fprintln(w, "No accounts managed yet. Sign in to the tool and run `acctswap add`.")
		return
	}
	for _, acct := range listing.Accounts {
		marker := " "
		if listing.HasLive && listing.Live == acct.Number {
			marker = "*"
		}
		fmt.Fprintf(w, "%s %d: %s\n", marker, acct.Number, acct.DisplayName())
	}
}

func newSwitchCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "switch",
		Short: "Rotate to the next managed account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := c.manager(cmd.Context())
			if err != nil {
				return err
			}
			res, err := mgr.SwitchNext(cmd.Context())
			if errors.Is(err, core.ErrReinvokeRotation) {
				fmt.Fprintf(c.out, "The signed-in account was not managed and is now account %d: %s\n", res.To.Number, res.To.DisplayName())
				fmt.Fprintln(c.out, "Run `acctswap switch` again to rotate.")
				return nil
			}
			if err != nil {
				return err
			}
			printSwitch(c.out, res)
			return nil
		},
	}
}

func newSwitchToCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "switch-to <number|email>",
		Short: "Make a specific managed account live",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := c.manager(cmd.Context())
			if err != nil {
				return err
			}
			acct, err := mgr.Resolve(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			res, err := mgr.SwitchTo(cmd.Context(), acct.Number)
			if err != nil {
				return err
			}
			printSwitch(c.out, res)
			return nil
		},
	}
}

func printSwitch(w io.Writer, res core.SwitchResult) {
	if !res.Changed {
		fmt.Fprintf(w, "Account %d is already live: %s\n", res.To.Number, res.To.DisplayName())
		return
	}
	fmt.Fprintf(w, "Switched to account %d: %s\n", res.To.Number, res.To.DisplayName())
	fmt.Fprintln(w, "Restart running sessions of the tool to pick up the change.")
}
