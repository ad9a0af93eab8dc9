package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/greg-hellings/mediscan/pkg/history"
	"github.com/greg-hellings/mediscan/pkg/prompt"
	"github.com/greg-hellings/mediscan/pkg/route"
	"github.com/greg-hellings/mediscan/pkg/upload"
	"github.com/spf13/cobra"
)

const shellPrompt = "mediscan> "

const shellHelp = `Commands:
  select <file>     choose a PDF, JPEG or PNG report to analyze
  analyze           upload the selected file and show the analysis
  reset             clear the selection to analyze another file
  status            show the session and the upload state
  history           list past analyses
  open <#|id>       show a report from the history
  delete <#|id>     delete one report
  clear             delete every report
  login             log in again
  logout            forget the session token
  help              show this text
  exit              leave the shell`

func newShellCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Interactive session: select, analyze and browse reports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sh := newShell(a, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
			return sh.run(cmd.Context())
		},
	}
}

// shell keeps one upload workflow and one history list across commands.
type shell struct {
	app      *app
	prompt   *prompt.Prompter
	out      io.Writer
	errOut   io.Writer
	workflow *upload.Workflow
	history  *history.Manager
}

func newShell(a *app, in io.Reader, out, errOut io.Writer) *shell {
	p := prompt.New(in, out)
	return &shell{
		app:      a,
		prompt:   p,
		out:      out,
		errOut:   errOut,
		workflow: a.newWorkflow(),
		history:  a.newHistory(a.confirmer(p)),
	}
}

// run reads commands until exit or end of input. Command failures are
// printed and the loop continues.
func (s *shell) run(ctx context.Context) error {
	fmt.Fprintln(s.out, "MediScan shell. Type 'help' for commands.")
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		line, err := s.prompt.Read(shellPrompt)
		if errors.Is(err, prompt.ErrNoInput) {
			fmt.Fprintln(s.out)
			return nil
		}
		if err != nil {
			return err
		}
		name, arg, _ := strings.Cut(line, " ")
		arg = strings.TrimSpace(arg)
		if name == "" {
			continue
		}
		if name == "exit" || name == "quit" {
			return nil
		}
		if err := s.dispatch(ctx, name, arg); err != nil {
			fmt.Fprintf(s.errOut, "Error: %v\n", err)
		}
	}
}

func (s *shell) dispatch(ctx context.Context, name, arg string) error {
	a := s.app
	switch name {
	case "help", "?":
		fmt.Fprintln(s.out, shellHelp)
		return nil
	case "status":
		return s.status()
	case "login":
		var cf credentialFlags
		if err := askMissing(s.prompt, &cf, false); err != nil {
			return err
		}
		return a.login(ctx, s.out, s.errOut, cf)
	case "logout":
		// Drop everything tied to the old session.
		if err := s.workflow.Reset(); err != nil {
			return err
		}
		s.history = a.newHistory(a.confirmer(s.prompt))
		return a.logout(s.out)
	case "select":
		if arg == "" {
			return errors.New("usage: select <file>")
		}
		if _, err := a.authorize(route.UploadPath); err != nil {
			return err
		}
		err := a.selectFile(s.errOut, s.workflow, arg)
		if errors.Is(err, upload.ErrInvalidTransition) {
			return errors.New("a result is showing; run 'reset' to analyze another file")
		}
		return err
	case "analyze":
		if _, err := a.authorize(route.UploadPath); err != nil {
			return err
		}
		if !s.workflow.CanSubmit() {
			return fmt.Errorf("nothing to analyze (%s); run 'select <file>' first", s.workflow.State())
		}
		return a.analyze(ctx, s.out, s.errOut, s.workflow)
	case "reset":
		if err := s.workflow.Reset(); err != nil {
			return err
		}
		fmt.Fprintln(s.out, "Ready for a new file.")
		return nil
	case "history":
		if _, err := a.authorize(route.HistoryPath); err != nil {
			return err
		}
		return a.listHistory(ctx, s.out, s.errOut, s.history)
	case "open":
		return s.open(ctx, arg)
	case "delete":
		if arg == "" {
			return errors.New("usage: delete <#|id>")
		}
		if err := s.ensureHistory(ctx); err != nil {
			return err
		}
		return a.deleteReport(ctx, s.out, s.errOut, s.history, arg)
	case "clear":
		if err := s.ensureHistory(ctx); err != nil {
			return err
		}
		return a.clearHistory(ctx, s.out, s.errOut, s.history)
	default:
		return fmt.Errorf("unknown command %q; type 'help'", name)
	}
}

// open shows a report named by list position or id. Ids that are not in
// the loaded list are fetched directly.
func (s *shell) open(ctx context.Context, ref string) error {
	if ref == "" {
		return errors.New("usage: open <#|id>")
	}
	if err := s.ensureHistory(ctx); err != nil {
		return err
	}
	path := route.ReportPath(ref)
	if i, _, err := s.history.Find(ref); err == nil {
		if path, err = s.history.Open(i); err != nil {
			return err
		}
	}
	return s.app.showReport(ctx, s.out, s.errOut, path)
}

// ensureHistory loads the list on first use.
func (s *shell) ensureHistory(ctx context.Context) error {
	if _, err := s.app.authorize(route.HistoryPath); err != nil {
		return err
	}
	if s.history.Len() > 0 {
		return nil
	}
	return s.app.loadHistory(ctx, s.errOut, s.history)
}

func (s *shell) status() error {
	if err := s.app.printStatus(s.out); err != nil {
		return err
	}
	snap := s.workflow.Snapshot()
	fmt.Fprintf(s.out, "Upload:  %s\n", snap.State)
	if snap.File != nil {
		fmt.Fprintf(s.out, "File:    %s\n", snap.File)
	}
	if snap.Err != nil {
		fmt.Fprintf(s.out, "Last error: %v\n", snap.Err)
	}
	return nil
}
