package printer

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/slok/wrapperctl/internal/app/ingest"
	"github.com/slok/wrapperctl/internal/app/list"
	"github.com/slok/wrapperctl/internal/app/prune"
	"github.com/slok/wrapperctl/internal/app/reconcile"
	"github.com/slok/wrapperctl/internal/app/status"
	"github.com/slok/wrapperctl/internal/model"
)

// TablePrinter prints submission information in a table format.
type TablePrinter struct {
	writer io.Writer
}

// NewTablePrinter creates a new table printer.
func NewTablePrinter(w io.Writer) *TablePrinter {
	return &TablePrinter{writer: w}
}

// PrintList prints submissions in a table format.
func (t *TablePrinter) PrintList(entries []list.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintln(tw, "ID\tINDICATOR\tMODE\tSTATUS\tRESOURCE\tRELINK\tCREATED")

	for _, e := range entries {
		s := e.Submission
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			s.ID,
			s.IndicatorID,
			s.Mode,
			submissionState(s),
			orDash(s.ResourceID),
			FormatProgress(e.Relink),
			TimeAgo(s.CreatedAt),
		)
	}

	return nil
}

// PrintStatus prints detailed wrapper and submission status.
func (t *TablePrinter) PrintStatus(st status.Status) error {
	w := st.Wrapper
	fmt.Fprintf(t.writer, "Wrapper:    %s\n", w.ID)
	fmt.Fprintf(t.writer, "Status:     %s\n", w.Status)
	fmt.Fprintf(t.writer, "Source:     %s\n", w.SourceConfig.Kind)
	if api := w.SourceConfig.API; api != nil {
		fmt.Fprintf(t.writer, "Location:   %s\n", api.Location)
	}
	fmt.Fprintf(t.writer, "Resource:   %s\n", orDash(w.ResourceID))
	if w.ErrorMessage != "" {
		fmt.Fprintf(t.writer, "Error:      %s\n", w.ErrorMessage)
	}
	if !w.CreatedAt.IsZero() {
		fmt.Fprintf(t.writer, "Created:    %s\n", FormatTimestamp(w.CreatedAt))
	}
	if w.CompletedAt != nil {
		fmt.Fprintf(t.writer, "Completed:  %s (took %s)\n", FormatTimestamp(*w.CompletedAt), FormatElapsed(w.CreatedAt, w.CompletedAt))
	}

	if s := st.Submission; s != nil {
		fmt.Fprintf(t.writer, "\nSubmission: %s\n", s.ID)
		fmt.Fprintf(t.writer, "Indicator:  %s\n", s.IndicatorID)
		fmt.Fprintf(t.writer, "Mode:       %s\n", s.Mode)
		if s.PreviousResourceID != "" {
			fmt.Fprintf(t.writer, "Replaces:   %s\n", s.PreviousResourceID)
		}
		fmt.Fprintf(t.writer, "State:      %s\n", submissionState(*s))
		if s.Error != "" {
			fmt.Fprintf(t.writer, "Error:      %s\n", s.Error)
		}
	}

	if len(st.Tasks) > 0 {
		fmt.Fprintln(t.writer)
		tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
		defer tw.Flush()
		fmt.Fprintln(tw, "STEP\tRESOURCE\tSTATUS\tERROR")
		for _, tk := range st.Tasks {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", tk.Name, tk.ResourceID, tk.Status, orDash(tk.Error))
		}
	}

	return nil
}

// PrintResult prints the result of a finished ingestion.
func (t *TablePrinter) PrintResult(res ingest.Result) error {
	if !res.Linked {
		fmt.Fprintf(t.writer, "Wrapper %s %s without resource, indicator %s unchanged\n", res.Wrapper.ID, res.Wrapper.Status, res.Submission.IndicatorID)
		return nil
	}

	fmt.Fprintf(t.writer, "Resource %s linked to indicator %s (wrapper %s %s)\n", res.Submission.ResourceID, res.Submission.IndicatorID, res.Wrapper.ID, res.Wrapper.Status)
	if res.Submission.Mode == model.SubmitModeEdit && res.Submission.PreviousResourceID != "" && res.Submission.PreviousResourceID != res.Submission.ResourceID {
		fmt.Fprintf(t.writer, "Resource %s replaced and deleted\n", res.Submission.PreviousResourceID)
	}
	return nil
}

// PrintReconcile prints the outcome of a reconciliation pass.
func (t *TablePrinter) PrintReconcile(report reconcile.Report) error {
	if len(report.Outcomes) == 0 {
		fmt.Fprintln(t.writer, "Nothing to reconcile")
		return nil
	}

	tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintln(tw, "SUBMISSION\tWRAPPER\tRESULT")
	for _, o := range report.Outcomes {
		result := "done"
		switch {
		case o.Err != nil:
			result = o.Err.Error()
		case o.Result != nil && !o.Result.Linked:
			result = "done (no resource)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", o.Submission.ID, o.Submission.WrapperID, result)
	}

	return nil
}

// PrintPrune prints the pruned submissions.
func (t *TablePrinter) PrintPrune(report prune.Report) error {
	if len(report.Pruned) > 0 {
		tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "SUBMISSION\tINDICATOR\tSTATUS\tFINISHED")
		for _, s := range report.Pruned {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.ID, s.IndicatorID, s.Status, TimeAgo(*s.CompletedAt))
		}
		tw.Flush()
	}

	verb := "Pruned"
	if report.DryRun {
		verb = "Would prune"
	}
	fmt.Fprintf(t.writer, "%s %d submissions", verb, len(report.Pruned))
	if n := len(report.Skipped); n > 0 {
		fmt.Fprintf(t.writer, ", %d skipped with pending steps (run reconcile)", n)
	}
	fmt.Fprintln(t.writer)

	return nil
}

// PrintMessage prints a simple text message.
func (t *TablePrinter) PrintMessage(msg string) error {
	fmt.Fprintln(t.writer, msg)
	return nil
}

// FormatProgress returns the relink progress as "done/total", with the failed
// steps when any.
func FormatProgress(p model.TaskProgress) string {
	if p.Total == 0 {
		return "-"
	}
	if p.Failed > 0 {
		return fmt.Sprintf("%d/%d (%d failed)", p.Done, p.Total, p.Failed)
	}
	return fmt.Sprintf("%d/%d", p.Done, p.Total)
}

func submissionState(s model.Submission) string {
	switch {
	case s.Finished() && s.Status == model.WrapperStatusError:
		return "failed"
	case s.Finished():
		return "done"
	case s.Error != "":
		return fmt.Sprintf("%s (relink pending)", s.Status)
	}
	return string(s.Status)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
