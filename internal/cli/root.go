// Package cli provides the ciexctl command-line interface.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"ciex/internal/client"
)

// Version is set during build time
var Version = "dev"

const defaultAddr = "http://localhost:8765"

type options struct {
	addr    string
	timeout time.Duration
}

// taskCommands are the commands that submit a task for one app.
var taskCommands = []struct{ name, short string }{
	{"deploy", "Clone the app repository into src_path"},
	{"build", "Build the app"},
	{"start", "Start the app"},
	{"stop", "Stop the app"},
	{"upgrade", "Upgrade the running app"},
	{"downgrade", "Downgrade the running app"},
	{"pull", "Pull the latest sources"},
}

// Execute runs the root command
func Execute() error {
	return NewRootCmd(os.Stdout).Execute()
}

// NewRootCmd builds the ciexctl command tree writing to out.
func NewRootCmd(out io.Writer) *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "ciexctl",
		Short: "Control a running ciexd",
		Long: `ciexctl sends commands to the ciexd daemon.

Example:
  # Build appname1
  ciexctl build appname1

  # Show the last task of every app
  ciexctl status

  # Talk to a daemon on a unix socket
  ciexctl --addr unix:///run/ciex.sock list`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)

	addr := os.Getenv("CIEX_ADDR")
	if addr == "" {
		addr = defaultAddr
	}
	root.PersistentFlags().StringVar(&opts.addr, "addr", addr, "daemon address (http://host:port or unix:///path)")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "request timeout")

	root.AddCommand(
		pingCmd(opts),
		reloadCmd(opts),
		listCmd(opts),
		commandsCmd(opts),
		lastCmd(opts),
		statusCmd(opts),
	)
	for _, tc := range taskCommands {
		root.AddCommand(taskCmd(opts, tc.name, tc.short))
	}
	return root
}

func (o *options) connect(cmd *cobra.Command) (*client.Client, context.Context, context.CancelFunc, error) {
	c, err := client.New(o.addr)
	if err != nil {
		return nil, nil, nil, err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), o.timeout)
	return c, ctx, cancel, nil
}

func printTask(out io.Writer, t client.Task) {
	fmt.Fprintf(out, "%s  %s  %s", Bold(t.App), Cyan(t.Command), statusColor(t.Status))
	if t.Finish != "" {
		fmt.Fprintf(out, "  %s", Dim("finished "+t.Finish))
	} else if t.Start != "" {
		fmt.Fprintf(out, "  %s", Dim("started "+t.Start))
	}
	fmt.Fprintln(out)
	if t.Error != "" {
		fmt.Fprintf(out, "  %s %s\n", Red("error:"), t.Error)
	}
}
