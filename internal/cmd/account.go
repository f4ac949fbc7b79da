package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/flo-mic/vmdeck/internal/config"
	"github.com/flo-mic/vmdeck/internal/dashboard"
)

// EnvPassword is read by login when neither stdin nor a form is used.
const EnvPassword = "VMDECK_PASSWORD"

func (h Handler) Init(cmd *cobra.Command, _ []string) error {
	conf, err := h.conf()
	if err != nil {
		return err
	}
	cfg := *conf

	if cmd.Flags().Changed("page-size") {
		cfg.PageSize, _ = cmd.Flags().GetInt("page-size")
	}
	if cmd.Flags().Changed("refresh-interval") {
		cfg.RefreshInterval, _ = cmd.Flags().GetDuration("refresh-interval")
	}
	if cfg.PageSize < 1 {
		return fmt.Errorf("page size must be at least 1")
	}
	if cfg.RefreshInterval <= 0 {
		return fmt.Errorf("refresh interval must be positive")
	}

	flagsGiven := cmd.Flags().Changed("page-size") || cmd.Flags().Changed("refresh-interval") ||
		cmd.Flags().Changed("server")
	if h.interactive() && !flagsGiven {
		fmt.Fprintln(h.Out, "Welcome to vmdeck. Let's point it at your provisioning service.")
		fmt.Fprintln(h.Out)
		if err := initForm(&cfg.Server, &cfg.PageSize, &cfg.RefreshInterval); err != nil {
			return err
		}
	}

	if err := config.Save(&cfg); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	path, _ := config.Path()
	fmt.Fprintf(h.Out, "Configuration written to %s\n", path)
	return nil
}

func (h Handler) Login(cmd *cobra.Command, _ []string) error {
	e, err := h.open(nil)
	if err != nil {
		return err
	}

	username, _ := cmd.Flags().GetString("username")
	if username == "" {
		username = e.conf.Username
	}
	fromStdin, _ := cmd.Flags().GetBool("password-stdin")

	var password string
	switch {
	case fromStdin:
		if password, err = readPassword(h.In); err != nil {
			return fmt.Errorf("reading password: %w", err)
		}
	case os.Getenv(EnvPassword) != "":
		password = os.Getenv(EnvPassword)
	case h.interactive():
		if err := loginForm(&username, &password); err != nil {
			return err
		}
	default:
		return fmt.Errorf("no password given: use --password-stdin, set %s or run in a terminal", EnvPassword)
	}

	ctx := commandContext(cmd)
	if err := e.dash.Login(ctx, username, password); err != nil {
		return reported(err)
	}
	// Login starts auto refresh; a one-shot command has no use for it.
	e.dash.Stop()

	if username != e.conf.Username {
		cfg := *e.conf
		cfg.Username = username
		if err := config.Save(&cfg); err != nil {
			e.log.Warn("could not remember username", "error", err)
		}
	}
	return e.close()
}

func (h Handler) Logout(cmd *cobra.Command, _ []string) error {
	e, err := h.open(nil)
	if err != nil {
		return err
	}
	// The backend error is logged by the dashboard; local state is gone
	// either way.
	_ = e.dash.Logout(commandContext(cmd))
	if err := e.jar.Clear(); err != nil {
		return fmt.Errorf("removing session: %w", err)
	}
	return e.list.Err()
}

func (h Handler) Status(cmd *cobra.Command, _ []string) error {
	e, err := h.open(nil)
	if err != nil {
		return err
	}
	sess := e.dash.Session()
	sess.Probe(commandContext(cmd))
	if !sess.IsAuthenticated() {
		fmt.Fprintf(h.Out, "Not logged in to %s\n", e.conf.Server)
		return reported(dashboard.ErrNotLoggedIn)
	}
	fmt.Fprintf(h.Out, "Logged in to %s as %s\n", e.conf.Server, sess.User().Username)
	return e.close()
}

// readPassword returns the first line of r without the line ending.
func readPassword(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", fmt.Errorf("empty password")
	}
	return line, nil
}
