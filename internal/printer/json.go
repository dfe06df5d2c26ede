package printer

import (
	"encoding/json"
	"io"
	"time"

	"github.com/slok/wrapperctl/internal/app/ingest"
	"github.com/slok/wrapperctl/internal/app/list"
	"github.com/slok/wrapperctl/internal/app/prune"
	"github.com/slok/wrapperctl/internal/app/reconcile"
	"github.com/slok/wrapperctl/internal/app/status"
	"github.com/slok/wrapperctl/internal/model"
)

// JSONPrinter prints submission information in JSON format.
type JSONPrinter struct {
	writer io.Writer
}

// NewJSONPrinter creates a new JSON printer.
func NewJSONPrinter(w io.Writer) *JSONPrinter {
	return &JSONPrinter{writer: w}
}

type submissionOutput struct {
	ID                 string     `json:"id"`
	WrapperID          string     `json:"wrapper_id"`
	IndicatorID        string     `json:"indicator_id"`
	Mode               string     `json:"mode"`
	PreviousResourceID string     `json:"previous_resource_id,omitempty"`
	ResourceID         string     `json:"resource_id,omitempty"`
	SourceKind         string     `json:"source_kind"`
	Status             string     `json:"status"`
	Error              string     `json:"error,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	CompletedAt        *time.Time `json:"completed_at"`
}

type listItem struct {
	submissionOutput
	Relink progressOutput `json:"relink"`
}

type progressOutput struct {
	Done   int `json:"done"`
	Failed int `json:"failed"`
	Total  int `json:"total"`
}

type wrapperOutput struct {
	ID           string     `json:"wrapper_id"`
	Status       string     `json:"status"`
	ResourceID   string     `json:"resource_id,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	SourceKind   string     `json:"source_kind"`
	CreatedAt    time.Time  `json:"created_at"`
	CompletedAt  *time.Time `json:"completed_at"`
}

type taskOutput struct {
	Name       string `json:"name"`
	ResourceID string `json:"resource_id"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
}

type statusOutput struct {
	Wrapper    wrapperOutput     `json:"wrapper"`
	Submission *submissionOutput `json:"submission,omitempty"`
	Tasks      []taskOutput      `json:"relink_tasks,omitempty"`
}

type resultOutput struct {
	Submission submissionOutput `json:"submission"`
	Wrapper    wrapperOutput    `json:"wrapper"`
	Linked     bool             `json:"linked"`
}

type reconcileItem struct {
	SubmissionID string `json:"submission_id"`
	WrapperID    string `json:"wrapper_id"`
	Linked       bool   `json:"linked"`
	Error        string `json:"error,omitempty"`
}

type pruneOutput struct {
	DryRun  bool               `json:"dry_run"`
	Pruned  []submissionOutput `json:"pruned"`
	Skipped []submissionOutput `json:"skipped"`
}

type messageOutput struct {
	Message string `json:"message"`
}

// PrintList prints submissions in JSON format.
func (j *JSONPrinter) PrintList(entries []list.Entry) error {
	items := make([]listItem, len(entries))
	for i, e := range entries {
		items[i] = listItem{
			submissionOutput: toSubmissionOutput(e.Submission),
			Relink:           progressOutput{Done: e.Relink.Done, Failed: e.Relink.Failed, Total: e.Relink.Total},
		}
	}
	return j.encode(items)
}

// PrintStatus prints detailed wrapper and submission status in JSON format.
func (j *JSONPrinter) PrintStatus(st status.Status) error {
	out := statusOutput{Wrapper: toWrapperOutput(st.Wrapper)}
	if st.Submission != nil {
		s := toSubmissionOutput(*st.Submission)
		out.Submission = &s
	}
	for _, t := range st.Tasks {
		out.Tasks = append(out.Tasks, taskOutput{Name: t.Name, ResourceID: t.ResourceID, Status: string(t.Status), Error: t.Error})
	}
	return j.encode(out)
}

// PrintResult prints the result of a finished ingestion in JSON format.
func (j *JSONPrinter) PrintResult(res ingest.Result) error {
	return j.encode(resultOutput{
		Submission: toSubmissionOutput(res.Submission),
		Wrapper:    toWrapperOutput(res.Wrapper),
		Linked:     res.Linked,
	})
}

// PrintReconcile prints the outcome of a reconciliation pass in JSON format.
func (j *JSONPrinter) PrintReconcile(report reconcile.Report) error {
	items := make([]reconcileItem, len(report.Outcomes))
	for i, o := range report.Outcomes {
		items[i] = reconcileItem{SubmissionID: o.Submission.ID, WrapperID: o.Submission.WrapperID}
		if o.Result != nil {
			items[i].Linked = o.Result.Linked
		}
		if o.Err != nil {
			items[i].Error = o.Err.Error()
		}
	}
	return j.encode(items)
}

// PrintPrune prints the pruned submissions in JSON format.
func (j *JSONPrinter) PrintPrune(report prune.Report) error {
	out := pruneOutput{DryRun: report.DryRun, Pruned: []submissionOutput{}, Skipped: []submissionOutput{}}
	for _, s := range report.Pruned {
		out.Pruned = append(out.Pruned, toSubmissionOutput(s))
	}
	for _, s := range report.Skipped {
		out.Skipped = append(out.Skipped, toSubmissionOutput(s))
	}
	return j.encode(out)
}

// PrintMessage prints a simple message in JSON format.
func (j *JSONPrinter) PrintMessage(msg string) error {
	return j.encode(messageOutput{Message: msg})
}

func (j *JSONPrinter) encode(v any) error {
	enc := json.NewEncoder(j.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func toSubmissionOutput(s model.Submission) submissionOutput {
	return submissionOutput{
		ID:                 s.ID,
		WrapperID:          s.WrapperID,
		IndicatorID:        s.IndicatorID,
		Mode:               string(s.Mode),
		PreviousResourceID: s.PreviousResourceID,
		ResourceID:         s.ResourceID,
		SourceKind:         string(s.SourceKind),
		Status:             string(s.Status),
		Error:              s.Error,
		CreatedAt:          s.CreatedAt.UTC(),
		CompletedAt:        utcPtr(s.CompletedAt),
	}
}

func toWrapperOutput(w model.Wrapper) wrapperOutput {
	return wrapperOutput{
		ID:           w.ID,
		Status:       string(w.Status),
		ResourceID:   w.ResourceID,
		ErrorMessage: w.ErrorMessage,
		SourceKind:   string(w.SourceConfig.Kind),
		CreatedAt:    w.CreatedAt.UTC(),
		CompletedAt:  utcPtr(w.CompletedAt),
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
