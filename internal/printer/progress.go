package printer

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"

	"github.com/slok/wrapperctl/internal/model"
)

const barWidth = 30

// ProgressReader wraps an io.Reader to display upload progress.
type ProgressReader struct {
	src          io.Reader
	statusWriter io.Writer
	total        int64
	read         int64
	mu           sync.Mutex
}

// NewProgressReader creates a new progress reader.
// src is the data being uploaded, statusWriter receives progress output.
// If total is 0 or negative, only bytes read are shown (no percentage).
func NewProgressReader(src io.Reader, statusWriter io.Writer, total int64) *ProgressReader {
	return &ProgressReader{
		src:          src,
		statusWriter: statusWriter,
		total:        total,
	}
}

func (pr *ProgressReader) Read(p []byte) (int, error) {
	n, err := pr.src.Read(p)

	pr.mu.Lock()
	pr.read += int64(n)
	pr.printProgress()
	pr.mu.Unlock()

	return n, err
}

// Finish prints the final progress line with a newline.
func (pr *ProgressReader) Finish() {
	fmt.Fprintln(pr.statusWriter)
}

func (pr *ProgressReader) printProgress() {
	if pr.total > 0 {
		fmt.Fprintf(pr.statusWriter, "\r  %s %s / %s", bar(float64(pr.read)/float64(pr.total)), FormatBytes(pr.read), FormatBytes(pr.total))
	} else {
		fmt.Fprintf(pr.statusWriter, "\r  %s uploaded", FormatBytes(pr.read))
	}
}

// FormatSteps renders the wizard step list with the current one highlighted and
// a progress bar, e.g. "[==========          ]  33% Fonte > [Configuração] > Revisão".
func FormatSteps(steps []string, current int) string {
	parts := make([]string, len(steps))
	for i, s := range steps {
		if i == current {
			s = "[" + s + "]"
		}
		parts[i] = s
	}

	done := 0.0
	if len(steps) > 1 {
		done = float64(current) / float64(len(steps)-1)
	}
	return fmt.Sprintf("%s %s", bar(done), strings.Join(parts, " > "))
}

var wrapperStages = []model.WrapperStatus{
	model.WrapperStatusPending,
	model.WrapperStatusGenerating,
	model.WrapperStatusCreatingResource,
	model.WrapperStatusExecuting,
	model.WrapperStatusCompleted,
}

// FormatWrapperStatus renders a wrapper status with its generation progress.
// Unknown statuses are shown as they are without progress.
func FormatWrapperStatus(w model.Wrapper) string {
	if w.Status == model.WrapperStatusError {
		msg := w.ErrorMessage
		if msg == "" {
			msg = model.DefaultJobErrorMessage
		}
		return fmt.Sprintf("wrapper %s: error: %s", w.ID, msg)
	}

	i := slices.Index(wrapperStages, w.Status)
	if i < 0 {
		return fmt.Sprintf("wrapper %s: %s", w.ID, w.Status)
	}
	return fmt.Sprintf("%s wrapper %s: %s", bar(float64(i)/float64(len(wrapperStages)-1)), w.ID, w.Status)
}

func bar(done float64) string {
	done = min(max(done, 0), 1)
	filled := int(done * barWidth)
	return fmt.Sprintf("[%s%s] %3.0f%%", strings.Repeat("=", filled), strings.Repeat(" ", barWidth-filled), done*100)
}
