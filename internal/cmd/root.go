package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/flo-mic/vmdeck/internal/config"
)

// NewRootCommand builds the vmdeck command tree writing to streams.
func NewRootCommand(streams Streams) *cobra.Command {
	var (
		conf    *config.Config
		logger  *slog.Logger
		server  string
		level   string
		noColor bool
		noInput bool
	)

	cmd := &cobra.Command{
		Use:           "vmdeck",
		Short:         "vmdeck - dashboard for the VM provisioning service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.LoadDotEnv(".env"); err != nil {
				return err
			}
			c, err := config.Load()
			if err != nil {
				return err
			}
			if server != "" {
				c.Server = server
			}
			if level != "" {
				c.LogLevel = level
			}
			l, err := newLogger(streams.Err, c.LogLevel)
			if err != nil {
				return err
			}
			conf, logger = c, l
			return nil
		},
	}
	cmd.SetIn(streams.In)
	cmd.SetOut(streams.Out)
	cmd.SetErr(streams.Err)

	cmd.PersistentFlags().StringVar(&server, "server", "", "backend URL (overrides "+config.EnvServer+")")
	cmd.PersistentFlags().StringVar(&level, "log-level", "", "log level: debug, info, warn, error")
	cmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	cmd.PersistentFlags().BoolVar(&noInput, "no-input", false, "never show interactive forms")

	h := Handler{
		Streams:        streams,
		ConfProvider:   func() *config.Config { return conf },
		LoggerProvider: func() *slog.Logger { return logger },
		Interactive: func() bool {
			return !noInput && isTerminal(streams.In) && isTerminal(streams.Out)
		},
		Color: func() bool {
			return !noColor && os.Getenv("NO_COLOR") == "" && isTerminal(streams.Out)
		},
	}
	for _, c := range Commands(h) {
		cmd.AddCommand(c)
	}
	return cmd
}

// Execute is the main entry point called from main.go.
func Execute() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	return NewRootCommand(StdStreams()).ExecuteContext(ctx)
}
