package printer

import (
	"github.com/slok/wrapperctl/internal/app/ingest"
	"github.com/slok/wrapperctl/internal/app/list"
	"github.com/slok/wrapperctl/internal/app/prune"
	"github.com/slok/wrapperctl/internal/app/reconcile"
	"github.com/slok/wrapperctl/internal/app/status"
)

// Printer knows how to print submission information in different formats.
type Printer interface {
	PrintList(entries []list.Entry) error
	PrintStatus(st status.Status) error
	PrintResult(res ingest.Result) error
	PrintReconcile(report reconcile.Report) error
	PrintPrune(report prune.Report) error
	PrintMessage(msg string) error
}
