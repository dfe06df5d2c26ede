package backend

import (
	"context"
	"io"

	"github.com/slok/wrapperctl/internal/model"
)

// Client is the backend API used to ingest resources. Implementations return
// model.ErrNotFound (wrapped) when the requested entity doesn't exist.
type Client interface {
	// UploadFile uploads a source file and returns its file ID.
	UploadFile(ctx context.Context, name string, r io.Reader) (fileID string, err error)
	// GenerateWrapper requests a new wrapper generation job.
	GenerateWrapper(ctx context.Context, req model.GenerateRequest) (*model.Wrapper, error)
	// GetWrapper returns the current state of a wrapper job.
	GetWrapper(ctx context.Context, wrapperID string) (*model.Wrapper, error)
	// GetIndicator returns an indicator with its resources.
	GetIndicator(ctx context.Context, indicatorID string) (*model.Indicator, error)
	// LinkResource attaches a resource to an indicator. Linking an already linked
	// resource is not an error.
	LinkResource(ctx context.Context, indicatorID, resourceID string) error
	// UnlinkResource detaches a resource from an indicator.
	UnlinkResource(ctx context.Context, indicatorID, resourceID string) error
	// DeleteResource deletes a resource.
	DeleteResource(ctx context.Context, resourceID string) error
}
