package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/greg-hellings/mediscan/pkg/history"
	"github.com/greg-hellings/mediscan/pkg/prompt"
	"github.com/greg-hellings/mediscan/pkg/report"
	"github.com/greg-hellings/mediscan/pkg/report/format"
	"github.com/greg-hellings/mediscan/pkg/route"
	"github.com/greg-hellings/mediscan/pkg/upload"
	"github.com/spf13/cobra"
)

func newUploadCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a lab report and show its analysis",
		Long: strings.TrimSpace(`
Upload a PDF, JPEG or PNG lab report for analysis and print the extracted
test results and the medical analysis.

Examples:
  mediscan upload bloodwork.pdf
  mediscan upload scan.png --format json
`),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.authorize(route.UploadPath); err != nil {
				return err
			}
			w := a.newWorkflow()
			if err := a.selectFile(cmd.ErrOrStderr(), w, args[0]); err != nil {
				return err
			}
			return a.analyze(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), w)
		},
	}
}

func newHistoryCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "List past analyses, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.authorize(route.HistoryPath); err != nil {
				return err
			}
			m := a.newHistory(nil)
			return a.listHistory(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), m)
		},
	}
}

func newShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a stored report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.showReport(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), route.ReportPath(args[0]))
		},
	}
}

func newDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id|#>",
		Short: "Delete one report from the history",
		Long: strings.TrimSpace(`
Delete one report. The report is named by its id or by its position in
'mediscan history' (1 is the newest). Asks for confirmation unless --yes.`),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.authorize(route.HistoryPath); err != nil {
				return err
			}
			m := a.newHistory(a.confirmer(prompt.New(cmd.InOrStdin(), cmd.OutOrStdout())))
			if err := a.loadHistory(cmd.Context(), cmd.ErrOrStderr(), m); err != nil {
				return err
			}
			return a.deleteReport(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), m, args[0])
		},
	}
}

func newClearCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete every report in the history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.authorize(route.HistoryPath); err != nil {
				return err
			}
			m := a.newHistory(a.confirmer(prompt.New(cmd.InOrStdin(), cmd.OutOrStdout())))
			if err := a.loadHistory(cmd.Context(), cmd.ErrOrStderr(), m); err != nil {
				return err
			}
			return a.clearHistory(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), m)
		},
	}
}

// newWorkflow returns an upload workflow that logs its transitions.
func (a *app) newWorkflow() *upload.Workflow {
	return upload.NewWorkflow(a.client, upload.WithTransitionHook(func(from, to upload.State, snap upload.Snapshot) {
		a.logger.Debug("Upload state changed", "from", from.String(), "to", to.String(), "error", snap.Err)
	}))
}

// selectFile inspects path and selects it in w.
func (a *app) selectFile(errOut io.Writer, w *upload.Workflow, path string) error {
	file, err := a.inspector.Inspect(path)
	if err != nil {
		return err
	}
	if err := w.Select(file); err != nil {
		return err
	}
	fmt.Fprintf(errOut, "Selected %s\n", file)
	return nil
}

// analyze submits the selected file and renders the result.
func (a *app) analyze(ctx context.Context, out, errOut io.Writer, w *upload.Workflow) error {
	if snap := w.Snapshot(); snap.File != nil {
		fmt.Fprintf(errOut, "Analyzing %s...\n", snap.File.Name)
	}
	detail, err := w.Submit(ctx, a.session.AccessToken())
	if err != nil {
		if errors.Is(err, upload.ErrNoFile) || errors.Is(err, upload.ErrBusy) || errors.Is(err, upload.ErrInvalidTransition) {
			return err
		}
		fmt.Fprintln(errOut, upload.FailedMessage)
		return a.explain(errOut, err)
	}

	view := report.NormalizeDetail(detail)
	if err := a.renderer.Report(out, view); err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}
	if !view.Navigable() {
		fmt.Fprintln(errOut, "The service did not return an id for this result; it will appear in 'mediscan history'.")
	}
	return nil
}

// loadHistory loads m, printing advice on failure.
func (a *app) loadHistory(ctx context.Context, errOut io.Writer, m *history.Manager) error {
	if err := m.Load(ctx, a.session.AccessToken()); err != nil {
		return a.explain(errOut, err)
	}
	return nil
}

// listHistory loads and renders the history list.
func (a *app) listHistory(ctx context.Context, out, errOut io.Writer, m *history.Manager) error {
	if err := a.loadHistory(ctx, errOut, m); err != nil {
		return err
	}
	if err := a.renderer.History(out, m.Items()); err != nil {
		return fmt.Errorf("failed to render history: %w", err)
	}
	return nil
}

// showReport fetches and renders the report at path, a detail route.
func (a *app) showReport(ctx context.Context, out, errOut io.Writer, path string) error {
	res, err := a.authorize(path)
	if err != nil {
		return err
	}
	if res.View != route.Report {
		return fmt.Errorf("no report at %q", path)
	}

	detail, err := a.client.GetReport(ctx, res.Params[route.ReportParam], a.session.AccessToken())
	if err != nil {
		fmt.Fprintln(errOut, history.LoadFailedHint)
		return a.explain(errOut, err)
	}
	if err := a.renderer.Report(out, report.NormalizeDetail(detail)); err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}
	return nil
}

// deleteReport deletes the entry ref (id or 1-based position) of a loaded m.
func (a *app) deleteReport(ctx context.Context, out, errOut io.Writer, m *history.Manager, ref string) error {
	_, entry, err := m.Find(ref)
	if err != nil {
		return err
	}
	err = m.DeleteOne(ctx, entry.ID, a.session.AccessToken())
	switch {
	case errors.Is(err, history.ErrCanceled):
		fmt.Fprintln(out, "Canceled.")
		return nil
	case err != nil:
		return a.explain(errOut, err)
	}
	fmt.Fprintf(out, "Report deleted: %s\n", entry.FileName)
	return nil
}

// clearHistory deletes every entry of a loaded m.
func (a *app) clearHistory(ctx context.Context, out, errOut io.Writer, m *history.Manager) error {
	if m.Len() == 0 {
		fmt.Fprintln(out, format.NoReportsMessage)
		return nil
	}
	err := m.ClearAll(ctx, a.session.AccessToken())
	switch {
	case errors.Is(err, history.ErrCanceled):
		fmt.Fprintln(out, "Canceled.")
		return nil
	case err != nil:
		return a.explain(errOut, err)
	}
	fmt.Fprintln(out, "History cleared.")
	return nil
}
