package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// ErrReloadFailed is returned when the daemon could not reload its settings.
var ErrReloadFailed = errors.New("reload failed")

// ErrTaskRejected is returned when the app already has an outstanding task.
var ErrTaskRejected = errors.New("task rejected")

func pingCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the daemon answers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, ctx, cancel, err := opts.connect(cmd)
			if err != nil {
				return err
			}
			defer cancel()
			pong, err := c.Ping(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), pong)
			return nil
		},
	}
}

func reloadCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Reload app settings and restart workers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, ctx, cancel, err := opts.connect(cmd)
			if err != nil {
				return err
			}
			defer cancel()
			result, err := c.Reload(ctx)
			if err != nil {
				return err
			}
			if result != "ok" {
				fmt.Fprintln(cmd.OutOrStdout(), Red(result))
				return fmt.Errorf("%w: %s", ErrReloadFailed, strings.TrimPrefix(result, "Err: "))
			}
			fmt.Fprintln(cmd.OutOrStdout(), Green(result))
			return nil
		},
	}
}

func listCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured apps",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, ctx, cancel, err := opts.connect(cmd)
			if err != nil {
				return err
			}
			defer cancel()
			apps, err := c.Apps(ctx)
			if err != nil {
				return err
			}
			for _, app := range apps {
				fmt.Fprintln(cmd.OutOrStdout(), app)
			}
			return nil
		},
	}
}

func commandsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "commands",
		Short: "List the commands the daemon answers to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, ctx, cancel, err := opts.connect(cmd)
			if err != nil {
				return err
			}
			defer cancel()
			cmds, err := c.Commands(ctx)
			if err != nil {
				return err
			}
			for _, entry := range cmds {
				fmt.Fprintf(cmd.OutOrStdout(), "%-10s %s\n", Bold(entry.Name), Dim(entry.Help))
			}
			return nil
		},
	}
}

func lastCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "last <app>",
		Short: "Show the last task of an app",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, ctx, cancel, err := opts.connect(cmd)
			if err != nil {
				return err
			}
			defer cancel()
			t, err := c.Last(ctx, args[0])
			if err != nil {
				return err
			}
			printTask(cmd.OutOrStdout(), t)
			return nil
		},
	}
}

func statusCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the last task of every app",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, ctx, cancel, err := opts.connect(cmd)
			if err != nil {
				return err
			}
			defer cancel()
			apps, err := c.Apps(ctx)
			if err != nil {
				return err
			}
			for _, app := range apps {
				t, err := c.Last(ctx, app)
				if err != nil {
					return fmt.Errorf("last %s: %w", app, err)
				}
				printTask(cmd.OutOrStdout(), t)
			}
			return nil
		},
	}
}

func taskCmd(opts *options, name, short string) *cobra.Command {
	return &cobra.Command{
		Use:   name + " <app>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, ctx, cancel, err := opts.connect(cmd)
			if err != nil {
				return err
			}
			defer cancel()
			res, err := c.Run(ctx, args[0], name)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !res.Admitted {
				fmt.Fprintf(out, "%s %s\n", Yellow("rejected:"), res.Message)
				return ErrTaskRejected
			}
			fmt.Fprintf(out, "%s %s\n", Green("admitted:"), res.Message)
			return nil
		},
	}
}
