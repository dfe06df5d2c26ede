package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/wrapperctl/internal/log"
	"github.com/slok/wrapperctl/internal/model"
	"github.com/slok/wrapperctl/internal/storage"
	"github.com/slok/wrapperctl/internal/storage/sqlite"
)

func submissionFixture(id, wrapperID string, createdAt time.Time) model.Submission {
	return model.Submission{
		ID:                 id,
		WrapperID:          wrapperID,
		IndicatorID:        "ind-1",
		Mode:               model.SubmitModeEdit,
		PreviousResourceID: "old-res",
		SourceKind:         model.SourceKindAPI,
		Status:             model.WrapperStatusPending,
		CreatedAt:          createdAt,
		UpdatedAt:          createdAt,
	}
}

func newRepo(t *testing.T) *sqlite.Repository {
	t.Helper()
	repo, err := sqlite.NewRepository(context.Background(), sqlite.RepositoryConfig{
		DBPath: filepath.Join(t.TempDir(), "test.db"),
		Logger: log.Noop,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestNewRepositoryRequiresPath(t *testing.T) {
	_, err := sqlite.NewRepository(context.Background(), sqlite.RepositoryConfig{})
	assert.Error(t, err)
}

func TestRepositoryCRUD(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	t0 := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, repo.CreateSubmission(ctx, submissionFixture("s1", "w1", t0)))

	got, err := repo.GetSubmission(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, submissionFixture("s1", "w1", t0), *got)

	got, err = repo.GetSubmissionByWrapper(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, "s1", got.ID)

	done := t0.Add(time.Minute)
	upd := *got
	upd.ResourceID = "new-res"
	upd.Status = model.WrapperStatusCompleted
	upd.UpdatedAt = done
	upd.CompletedAt = &done
	require.NoError(t, repo.UpdateSubmission(ctx, upd))

	got, err = repo.GetSubmission(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, upd, *got)

	require.NoError(t, repo.DeleteSubmission(ctx, "s1"))
	_, err = repo.GetSubmission(ctx, "s1")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestRepositoryConstraints(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

	tests := map[string]struct {
		actions func(ctx context.Context, repo *sqlite.Repository) error
		expErr  error
	}{
		"Duplicated id should fail.": {
			actions: func(ctx context.Context, repo *sqlite.Repository) error {
				_ = repo.CreateSubmission(ctx, submissionFixture("s1", "w1", t0))
				return repo.CreateSubmission(ctx, submissionFixture("s1", "w2", t0))
			},
			expErr: model.ErrAlreadyExists,
		},
		"Duplicated wrapper should fail.": {
			actions: func(ctx context.Context, repo *sqlite.Repository) error {
				_ = repo.CreateSubmission(ctx, submissionFixture("s1", "w1", t0))
				return repo.CreateSubmission(ctx, submissionFixture("s2", "w1", t0))
			},
			expErr: model.ErrAlreadyExists,
		},
		"Invalid submission should fail.": {
			actions: func(ctx context.Context, repo *sqlite.Repository) error {
				s := submissionFixture("s1", "w1", t0)
				s.PreviousResourceID = ""
				return repo.CreateSubmission(ctx, s)
			},
			expErr: model.ErrNotValid,
		},
		"Missing wrapper should fail.": {
			actions: func(ctx context.Context, repo *sqlite.Repository) error {
				_, err := repo.GetSubmissionByWrapper(ctx, "missing")
				return err
			},
			expErr: model.ErrNotFound,
		},
		"Updating a missing submission should fail.": {
			actions: func(ctx context.Context, repo *sqlite.Repository) error {
				return repo.UpdateSubmission(ctx, submissionFixture("s1", "w1", t0))
			},
			expErr: model.ErrNotFound,
		},
		"Deleting a missing submission should fail.": {
			actions: func(ctx context.Context, repo *sqlite.Repository) error {
				return repo.DeleteSubmission(ctx, "missing")
			},
			expErr: model.ErrNotFound,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			err := test.actions(context.Background(), newRepo(t))
			assert.ErrorIs(t, err, test.expErr)
		})
	}
}

func TestRepositoryListSubmissions(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	t0 := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	done := t0.Add(time.Hour)

	s1 := submissionFixture("s1", "w1", t0)
	s2 := submissionFixture("s2", "w2", t0.Add(time.Minute))
	s2.IndicatorID = "ind-2"
	s3 := submissionFixture("s3", "w3", t0.Add(2*time.Minute))
	s3.CompletedAt = &done
	for _, s := range []model.Submission{s1, s2, s3} {
		require.NoError(t, repo.CreateSubmission(ctx, s))
	}

	ids := func(subs []model.Submission) []string {
		out := []string{}
		for _, s := range subs {
			out = append(out, s.ID)
		}
		return out
	}

	all, err := repo.ListSubmissions(ctx, storage.ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"s3", "s2", "s1"}, ids(all))

	unfinished, err := repo.ListSubmissions(ctx, storage.ListOptions{OnlyUnfinished: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"s2", "s1"}, ids(unfinished))

	byInd, err := repo.ListSubmissions(ctx, storage.ListOptions{IndicatorID: "ind-2"})
	require.NoError(t, err)
	assert.Equal(t, []string{"s2"}, ids(byInd))
}
