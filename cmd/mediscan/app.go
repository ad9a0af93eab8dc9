package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/greg-hellings/mediscan/pkg/config"
	"github.com/greg-hellings/mediscan/pkg/document"
	"github.com/greg-hellings/mediscan/pkg/history"
	"github.com/greg-hellings/mediscan/pkg/prompt"
	"github.com/greg-hellings/mediscan/pkg/report/format"
	"github.com/greg-hellings/mediscan/pkg/repository"
	"github.com/greg-hellings/mediscan/pkg/route"
	"github.com/greg-hellings/mediscan/pkg/session"
	"github.com/spf13/cobra"
)

// errNotLoggedIn ends protected commands run without a session.
var errNotLoggedIn = errors.New("not logged in; run 'mediscan login' or 'mediscan signup'")

// reloginAdvice is printed when the service rejects the session token.
const reloginAdvice = "The service rejected your session. Run 'mediscan login' to sign in again."

// Global (root-level) flag values
type rootFlags struct {
	configFile  string
	server      string
	sessionFile string
	format      string
	noColor     bool
	yes         bool
	verbose     bool
	debug       bool
}

// app holds everything a command needs once the root pre-run has executed.
type app struct {
	flags rootFlags

	cfg       *config.Config
	logger    *slog.Logger
	session   *session.Store
	client    *repository.HTTPClient
	guard     *route.Guard
	renderer  *format.Renderer
	inspector *document.Inspector
}

// setup loads configuration and wires the session, client and renderer.
// Precedence is defaults, then the config file, then the environment, then flags.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.flags.configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return fmt.Errorf("invalid environment: %w", err)
	}
	flags := cmd.Flags()
	if flags.Changed("server") {
		cfg.Server.URL = a.flags.server
	}
	if flags.Changed("session-file") {
		cfg.Session.File = a.flags.sessionFile
	}
	if flags.Changed("format") {
		cfg.Output.Format = a.flags.format
	}
	if a.flags.noColor || os.Getenv("NO_COLOR") != "" {
		cfg.Output.NoColor = true
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	a.cfg = cfg

	a.logger = a.initLogging(cmd.ErrOrStderr())

	a.session, err = session.Open(session.NewFilePersister(cfg.Session.File))
	if err != nil {
		a.logger.Warn("Could not restore session, continuing logged out", "error", err)
	}
	a.session.SetLogger(a.logger)
	a.guard = route.NewGuard(route.NewRouter(), a.session)

	a.client, err = repository.NewHTTPClient(repository.Config{
		BaseURL:       cfg.Server.URL,
		Timeout:       cfg.Server.Timeout,
		UploadTimeout: cfg.Server.UploadTimeout,
		UserAgent:     repository.DefaultUserAgent + "/" + version,
		Logger:        a.logger,
	})
	if err != nil {
		return err
	}

	a.renderer, err = format.NewRenderer(cfg.Output.Format, !cfg.Output.NoColor)
	if err != nil {
		return err
	}

	maxSize, err := cfg.MaxUploadBytes()
	if err != nil {
		return err
	}
	a.inspector = document.NewInspector()
	a.inspector.MaxSize = maxSize
	a.inspector.Logger = a.logger

	a.logger.Debug("Configuration loaded",
		"server", cfg.Server.URL,
		"format", cfg.Output.Format,
		"session", a.session.State().String())
	return nil
}

// initLogging installs a text handler on w. --debug and --verbose win over
// the configured level.
func (a *app) initLogging(w io.Writer) *slog.Logger {
	var level slog.Level
	switch {
	case a.flags.debug:
		level = slog.LevelDebug
	case a.flags.verbose:
		level = slog.LevelInfo
	default:
		// Validate already rejected unknown names.
		level, _ = config.ParseLevel(a.cfg.Log.Level)
	}

	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
	})
	logger := slog.New(handler)
	slog.SetDefault(logger)
	logger.Debug("Logging initialized", "level", level.String())
	return logger
}

// authorize resolves path through the route guard. It returns the
// resolution when the view may be shown and errNotLoggedIn when the guard
// sent the user to the login view instead.
func (a *app) authorize(path string) (route.Resolution, error) {
	res := a.guard.Resolve(path)
	if res.Redirected() && res.View == route.Login {
		a.logger.Debug("Guard redirected", "from", res.RedirectedFrom, "to", res.Path)
		return res, errNotLoggedIn
	}
	return res, nil
}

// confirmer returns the confirmation source for destructive commands.
func (a *app) confirmer(p *prompt.Prompter) history.Confirmer {
	if a.flags.yes {
		return prompt.AlwaysConfirm{}
	}
	return p
}

// newHistory returns a history manager bound to the client.
func (a *app) newHistory(confirm history.Confirmer) *history.Manager {
	m := history.NewManager(a.client, confirm)
	m.SetLogger(a.logger)
	return m
}

// explain prints follow-up advice for err on w and returns err unchanged.
func (a *app) explain(w io.Writer, err error) error {
	if repository.IsAuth(err) {
		fmt.Fprintln(w, reloginAdvice)
	}
	return err
}
