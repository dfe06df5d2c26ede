package ingest_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/slok/wrapperctl/internal/app/ingest"
	"github.com/slok/wrapperctl/internal/backend"
	"github.com/slok/wrapperctl/internal/backend/backendmock"
	"github.com/slok/wrapperctl/internal/backend/fake"
	"github.com/slok/wrapperctl/internal/model"
	"github.com/slok/wrapperctl/internal/storage"
	storagememory "github.com/slok/wrapperctl/internal/storage/memory"
	"github.com/slok/wrapperctl/internal/task"
	taskmemory "github.com/slok/wrapperctl/internal/task/memory"
)

type testEnv struct {
	svc   *ingest.Service
	repo  *storagememory.Repository
	tasks *taskmemory.Manager
}

func newTestEnv(t *testing.T, b backend.Client) testEnv {
	t.Helper()

	repo, err := storagememory.NewRepository(storagememory.RepositoryConfig{})
	require.NoError(t, err)
	tasks, err := taskmemory.NewManager(taskmemory.ManagerConfig{})
	require.NoError(t, err)

	svc, err := ingest.NewService(ingest.ServiceConfig{
		Backend:      b,
		Repository:   repo,
		TaskManager:  tasks,
		PollInterval: time.Millisecond,
	})
	require.NoError(t, err)

	return testEnv{svc: svc, repo: repo, tasks: tasks}
}

// statusRecorder is an observer that records the seen statuses.
type statusRecorder struct {
	mu       sync.Mutex
	statuses []model.WrapperStatus
}

func (r *statusRecorder) observe(w model.Wrapper) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, w.Status)
}

func (r *statusRecorder) seen() []model.WrapperStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.WrapperStatus{}, r.statuses...)
}

// callRecorder records the relink calls in order.
type callRecorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *callRecorder) add(call string) func(mock.Arguments) {
	return func(mock.Arguments) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.calls = append(r.calls, call)
	}
}

func fileSource(fileID string) model.SourceConfig {
	return model.SourceConfig{Kind: model.SourceKindFile, File: &model.FileSource{FileID: fileID}}
}

func wrapper(status model.WrapperStatus, resourceID string) *model.Wrapper {
	return &model.Wrapper{ID: "w1", Status: status, ResourceID: resourceID}
}

func TestNewService(t *testing.T) {
	tests := map[string]struct {
		cfg    ingest.ServiceConfig
		expErr bool
	}{
		"Missing backend should fail.": {
			cfg:    ingest.ServiceConfig{Repository: &storagememory.Repository{}, TaskManager: &taskmemory.Manager{}},
			expErr: true,
		},
		"Missing repository should fail.": {
			cfg:    ingest.ServiceConfig{Backend: &backendmock.MockClient{}, TaskManager: &taskmemory.Manager{}},
			expErr: true,
		},
		"Missing task manager should fail.": {
			cfg:    ingest.ServiceConfig{Backend: &backendmock.MockClient{}, Repository: &storagememory.Repository{}},
			expErr: true,
		},
		"Complete config should work.": {
			cfg: ingest.ServiceConfig{Backend: &backendmock.MockClient{}, Repository: &storagememory.Repository{}, TaskManager: &taskmemory.Manager{}},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ingest.NewService(test.cfg)
			if test.expErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSubmitScenarios(t *testing.T) {
	tests := map[string]struct {
		req         ingest.Request
		mock        func(m *backendmock.MockClient, calls *callRecorder)
		expStatuses []model.WrapperStatus
		expCalls    []string
		expLinked   bool
		expErr      func(t *testing.T, err error)
	}{
		"Create mode should link the generated resource (scenario A).": {
			req: ingest.Request{Mode: model.SubmitModeCreate, IndicatorID: "i1", Source: fileSource("f1")},
			mock: func(m *backendmock.MockClient, calls *callRecorder) {
				m.On("GenerateWrapper", mock.Anything, mock.MatchedBy(func(r model.GenerateRequest) bool {
					return r.AutoCreateResource && r.SourceConfig.File.FileID == "f1"
				})).Once().Return(wrapper(model.WrapperStatusPending, ""), nil)
				m.On("GetWrapper", mock.Anything, "w1").Once().Return(wrapper(model.WrapperStatusPending, ""), nil)
				m.On("GetWrapper", mock.Anything, "w1").Once().Return(wrapper(model.WrapperStatusGenerating, ""), nil)
				m.On("GetWrapper", mock.Anything, "w1").Once().Return(wrapper(model.WrapperStatusCompleted, "r1"), nil)
				m.On("LinkResource", mock.Anything, "i1", "r1").Once().Run(calls.add("link i1 r1")).Return(nil)
			},
			expStatuses: []model.WrapperStatus{"pending", "pending", "generating", "completed"},
			expCalls:    []string{"link i1 r1"},
			expLinked:   true,
		},

		"Edit mode should link the new resource and then unlink and delete the old one (scenario B).": {
			req: ingest.Request{Mode: model.SubmitModeEdit, IndicatorID: "i1", PreviousResourceID: "r0", Source: fileSource("f1")},
			mock: func(m *backendmock.MockClient, calls *callRecorder) {
				m.On("GenerateWrapper", mock.Anything, mock.Anything).Once().Return(wrapper(model.WrapperStatusPending, ""), nil)
				m.On("GetWrapper", mock.Anything, "w1").Once().Return(wrapper(model.WrapperStatusGenerating, ""), nil)
				m.On("GetWrapper", mock.Anything, "w1").Once().Return(wrapper(model.WrapperStatusCompleted, "r1"), nil)
				m.On("LinkResource", mock.Anything, "i1", "r1").Once().Run(calls.add("link i1 r1")).Return(nil)
				m.On("UnlinkResource", mock.Anything, "i1", "r0").Once().Run(calls.add("unlink i1 r0")).Return(nil)
				m.On("DeleteResource", mock.Anything, "r0").Once().Run(calls.add("delete r0")).Return(nil)
			},
			expStatuses: []model.WrapperStatus{"pending", "generating", "completed"},
			expCalls:    []string{"link i1 r1", "unlink i1 r0", "delete r0"},
			expLinked:   true,
		},

		"Executing with a resource should relink without waiting for completion.": {
			req: ingest.Request{Mode: model.SubmitModeCreate, IndicatorID: "i1", Source: fileSource("f1")},
			mock: func(m *backendmock.MockClient, calls *callRecorder) {
				m.On("GenerateWrapper", mock.Anything, mock.Anything).Once().Return(wrapper(model.WrapperStatusPending, ""), nil)
				m.On("GetWrapper", mock.Anything, "w1").Return(wrapper(model.WrapperStatusExecuting, "r1"), nil)
				m.On("LinkResource", mock.Anything, "i1", "r1").Once().Run(calls.add("link i1 r1")).Return(nil)
			},
			expStatuses: []model.WrapperStatus{"pending", "executing"},
			expCalls:    []string{"link i1 r1"},
			expLinked:   true,
		},

		"Completed without resource should be a no-op success.": {
			req: ingest.Request{Mode: model.SubmitModeEdit, IndicatorID: "i1", PreviousResourceID: "r0", Source: fileSource("f1")},
			mock: func(m *backendmock.MockClient, calls *callRecorder) {
				m.On("GenerateWrapper", mock.Anything, mock.Anything).Once().Return(wrapper(model.WrapperStatusPending, ""), nil)
				m.On("GetWrapper", mock.Anything, "w1").Once().Return(wrapper(model.WrapperStatusCompleted, ""), nil)
			},
			expStatuses: []model.WrapperStatus{"pending", "completed"},
			expCalls:    nil,
			expLinked:   false,
		},

		"Unknown and failed fetches should not stop polling.": {
			req: ingest.Request{Mode: model.SubmitModeCreate, IndicatorID: "i1", Source: fileSource("f1")},
			mock: func(m *backendmock.MockClient, calls *callRecorder) {
				m.On("GenerateWrapper", mock.Anything, mock.Anything).Once().Return(wrapper(model.WrapperStatusPending, ""), nil)
				m.On("GetWrapper", mock.Anything, "w1").Once().Return(nil, errors.New("connection reset"))
				m.On("GetWrapper", mock.Anything, "w1").Once().Return(wrapper("archived", ""), nil)
				m.On("GetWrapper", mock.Anything, "w1").Once().Return(wrapper(model.WrapperStatusCompleted, "r1"), nil)
				m.On("LinkResource", mock.Anything, "i1", "r1").Once().Run(calls.add("link i1 r1")).Return(nil)
			},
			expStatuses: []model.WrapperStatus{"pending", "archived", "completed"},
			expCalls:    []string{"link i1 r1"},
			expLinked:   true,
		},

		"A wrapper error should not touch the indicator (scenario C).": {
			req: ingest.Request{Mode: model.SubmitModeEdit, IndicatorID: "i1", PreviousResourceID: "r0", Source: fileSource("f1")},
			mock: func(m *backendmock.MockClient, calls *callRecorder) {
				m.On("GenerateWrapper", mock.Anything, mock.Anything).Once().Return(wrapper(model.WrapperStatusPending, ""), nil)
				m.On("GetWrapper", mock.Anything, "w1").Once().Return(wrapper(model.WrapperStatusGenerating, ""), nil)
				m.On("GetWrapper", mock.Anything, "w1").Once().Return(&model.Wrapper{ID: "w1", Status: model.WrapperStatusError, ErrorMessage: "timeout"}, nil)
			},
			expStatuses: []model.WrapperStatus{"pending", "generating", "error"},
			expErr: func(t *testing.T, err error) {
				var jobErr *model.JobError
				require.ErrorAs(t, err, &jobErr)
				assert.Equal(t, "timeout", jobErr.Message)
			},
		},

		"A wrapper error without message should use the fallback message.": {
			req: ingest.Request{Mode: model.SubmitModeCreate, IndicatorID: "i1", Source: fileSource("f1")},
			mock: func(m *backendmock.MockClient, calls *callRecorder) {
				m.On("GenerateWrapper", mock.Anything, mock.Anything).Once().Return(wrapper(model.WrapperStatusPending, ""), nil)
				m.On("GetWrapper", mock.Anything, "w1").Once().Return(wrapper(model.WrapperStatusError, ""), nil)
			},
			expStatuses: []model.WrapperStatus{"pending", "error"},
			expErr: func(t *testing.T, err error) {
				var jobErr *model.JobError
				require.ErrorAs(t, err, &jobErr)
				assert.Equal(t, model.DefaultJobErrorMessage, jobErr.Message)
			},
		},

		"A rejected generation should fail before polling (scenario D).": {
			req: ingest.Request{Mode: model.SubmitModeCreate, IndicatorID: "i1", Source: fileSource("f1")},
			mock: func(m *backendmock.MockClient, calls *callRecorder) {
				m.On("GenerateWrapper", mock.Anything, mock.Anything).Once().Return(nil, errors.New("network unreachable"))
			},
			expErr: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ingest.ErrGenerate)
				assert.Contains(t, err.Error(), "network unreachable")
			},
		},

		"A failed relink step should be reported as a partial failure.": {
			req: ingest.Request{Mode: model.SubmitModeEdit, IndicatorID: "i1", PreviousResourceID: "r0", Source: fileSource("f1")},
			mock: func(m *backendmock.MockClient, calls *callRecorder) {
				m.On("GenerateWrapper", mock.Anything, mock.Anything).Once().Return(wrapper(model.WrapperStatusPending, ""), nil)
				m.On("GetWrapper", mock.Anything, "w1").Once().Return(wrapper(model.WrapperStatusCompleted, "r1"), nil)
				m.On("LinkResource", mock.Anything, "i1", "r1").Once().Run(calls.add("link i1 r1")).Return(nil)
				m.On("UnlinkResource", mock.Anything, "i1", "r0").Once().Run(calls.add("unlink i1 r0")).Return(errors.New("API error (status 500): boom"))
			},
			expStatuses: []model.WrapperStatus{"pending", "completed"},
			expCalls:    []string{"link i1 r1", "unlink i1 r0"},
			expErr: func(t *testing.T, err error) {
				var relinkErr *ingest.RelinkError
				require.ErrorAs(t, err, &relinkErr)
				assert.Equal(t, model.TaskUnlinkResource, relinkErr.Step)
				assert.Equal(t, "wrapper completed but failed to update resource: unlink-resource: API error (status 500): boom", err.Error())
			},
		},

		"Old resources already gone should not fail the relink.": {
			req: ingest.Request{Mode: model.SubmitModeEdit, IndicatorID: "i1", PreviousResourceID: "r0", Source: fileSource("f1")},
			mock: func(m *backendmock.MockClient, calls *callRecorder) {
				m.On("GenerateWrapper", mock.Anything, mock.Anything).Once().Return(wrapper(model.WrapperStatusPending, ""), nil)
				m.On("GetWrapper", mock.Anything, "w1").Once().Return(wrapper(model.WrapperStatusCompleted, "r1"), nil)
				m.On("LinkResource", mock.Anything, "i1", "r1").Once().Run(calls.add("link i1 r1")).Return(nil)
				m.On("UnlinkResource", mock.Anything, "i1", "r0").Once().Run(calls.add("unlink i1 r0")).Return(model.ErrNotFound)
				m.On("DeleteResource", mock.Anything, "r0").Once().Run(calls.add("delete r0")).Return(model.ErrNotFound)
			},
			expStatuses: []model.WrapperStatus{"pending", "completed"},
			expCalls:    []string{"link i1 r1", "unlink i1 r0", "delete r0"},
			expLinked:   true,
		},

		"Edit mode with the same resource should only link.": {
			req: ingest.Request{Mode: model.SubmitModeEdit, IndicatorID: "i1", PreviousResourceID: "r1", Source: fileSource("f1")},
			mock: func(m *backendmock.MockClient, calls *callRecorder) {
				m.On("GenerateWrapper", mock.Anything, mock.Anything).Once().Return(wrapper(model.WrapperStatusPending, ""), nil)
				m.On("GetWrapper", mock.Anything, "w1").Once().Return(wrapper(model.WrapperStatusCompleted, "r1"), nil)
				m.On("LinkResource", mock.Anything, "i1", "r1").Once().Run(calls.add("link i1 r1")).Return(nil)
			},
			expStatuses: []model.WrapperStatus{"pending", "completed"},
			expCalls:    []string{"link i1 r1"},
			expLinked:   true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			m := &backendmock.MockClient{}
			calls := &callRecorder{}
			test.mock(m, calls)
			env := newTestEnv(t, m)
			rec := &statusRecorder{}

			res, err := env.svc.Submit(context.Background(), test.req, rec.observe)

			m.AssertExpectations(t)
			assert.Equal(t, test.expCalls, calls.calls)
			assert.Equal(t, test.expStatuses, rec.seen())
			if test.expErr != nil {
				require.Error(t, err)
				test.expErr(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, test.expLinked, res.Linked)
			assert.Equal(t, "w1", res.Wrapper.ID)
			assert.True(t, res.Submission.Finished())
		})
	}
}

func TestSubmitJournal(t *testing.T) {
	t.Run("A finished submission should be journaled with its relink tasks done.", func(t *testing.T) {
		m := &backendmock.MockClient{}
		m.On("GenerateWrapper", mock.Anything, mock.Anything).Once().Return(wrapper(model.WrapperStatusPending, ""), nil)
		m.On("GetWrapper", mock.Anything, "w1").Once().Return(wrapper(model.WrapperStatusCompleted, "r1"), nil)
		m.On("LinkResource", mock.Anything, "i1", "r1").Return(nil)
		m.On("UnlinkResource", mock.Anything, "i1", "r0").Return(nil)
		m.On("DeleteResource", mock.Anything, "r0").Return(nil)
		env := newTestEnv(t, m)
		ctx := context.Background()

		res, err := env.svc.Submit(ctx, ingest.Request{Mode: model.SubmitModeEdit, IndicatorID: "i1", PreviousResourceID: "r0", Source: fileSource("f1")}, nil)
		require.NoError(t, err)

		sub, err := env.repo.GetSubmissionByWrapper(ctx, "w1")
		require.NoError(t, err)
		assert.Equal(t, res.Submission.ID, sub.ID)
		assert.Equal(t, model.WrapperStatusCompleted, sub.Status)
		assert.Equal(t, "r1", sub.ResourceID)
		assert.Equal(t, model.SourceKindFile, sub.SourceKind)
		assert.True(t, sub.Finished())

		tasks, err := env.tasks.ListTasks(ctx, sub.ID, model.OperationRelink)
		require.NoError(t, err)
		require.Len(t, tasks, 3)
		for _, tk := range tasks {
			assert.Equal(t, model.TaskStatusDone, tk.Status)
		}
	})

	t.Run("A failed relink should leave the submission unfinished with the failed task.", func(t *testing.T) {
		m := &backendmock.MockClient{}
		m.On("GenerateWrapper", mock.Anything, mock.Anything).Once().Return(wrapper(model.WrapperStatusPending, ""), nil)
		m.On("GetWrapper", mock.Anything, "w1").Once().Return(wrapper(model.WrapperStatusCompleted, "r1"), nil)
		m.On("LinkResource", mock.Anything, "i1", "r1").Return(errors.New("boom"))
		env := newTestEnv(t, m)
		ctx := context.Background()

		_, err := env.svc.Submit(ctx, ingest.Request{Mode: model.SubmitModeCreate, IndicatorID: "i1", Source: fileSource("f1")}, nil)
		require.Error(t, err)

		subs, err := env.repo.ListSubmissions(ctx, storage.ListOptions{OnlyUnfinished: true})
		require.NoError(t, err)
		require.Len(t, subs, 1)
		assert.Contains(t, subs[0].Error, "failed to update resource")

		next, err := env.tasks.NextTask(ctx, subs[0].ID, model.OperationRelink)
		require.NoError(t, err)
		require.NotNil(t, next)
		assert.Equal(t, model.TaskLinkResource, next.Name)
		assert.Equal(t, model.TaskStatusFailed, next.Status)
	})

	t.Run("A job error should finish the submission with the message.", func(t *testing.T) {
		m := &backendmock.MockClient{}
		m.On("GenerateWrapper", mock.Anything, mock.Anything).Once().Return(wrapper(model.WrapperStatusPending, ""), nil)
		m.On("GetWrapper", mock.Anything, "w1").Once().Return(&model.Wrapper{ID: "w1", Status: model.WrapperStatusError, ErrorMessage: "timeout"}, nil)
		env := newTestEnv(t, m)
		ctx := context.Background()

		_, err := env.svc.Submit(ctx, ingest.Request{Mode: model.SubmitModeCreate, IndicatorID: "i1", Source: fileSource("f1")}, nil)
		require.Error(t, err)

		sub, err := env.repo.GetSubmissionByWrapper(ctx, "w1")
		require.NoError(t, err)
		assert.True(t, sub.Finished())
		assert.Equal(t, "timeout", sub.Error)
	})
}

func TestSubmitCancel(t *testing.T) {
	m := &backendmock.MockClient{}
	m.On("GenerateWrapper", mock.Anything, mock.Anything).Once().Return(wrapper(model.WrapperStatusPending, ""), nil)
	m.On("GetWrapper", mock.Anything, "w1").Return(wrapper(model.WrapperStatusGenerating, ""), nil)
	env := newTestEnv(t, m)

	ctx, cancel := context.WithCancel(context.Background())
	rec := &statusRecorder{}
	obs := func(w model.Wrapper) {
		rec.observe(w)
		if w.Status == model.WrapperStatusGenerating {
			cancel()
		}
	}

	_, err := env.svc.Submit(ctx, ingest.Request{Mode: model.SubmitModeCreate, IndicatorID: "i1", Source: fileSource("f1")}, obs)
	assert.ErrorIs(t, err, context.Canceled)
	m.AssertNotCalled(t, "LinkResource", mock.Anything, mock.Anything, mock.Anything)

	sub, err := env.repo.GetSubmissionByWrapper(context.Background(), "w1")
	require.NoError(t, err)
	assert.False(t, sub.Finished())
}

func TestSubmitInvalidRequest(t *testing.T) {
	tests := map[string]struct {
		req ingest.Request
	}{
		"Missing indicator.": {
			req: ingest.Request{Mode: model.SubmitModeCreate, Source: fileSource("f1")},
		},
		"Edit without previous resource.": {
			req: ingest.Request{Mode: model.SubmitModeEdit, IndicatorID: "i1", Source: fileSource("f1")},
		},
		"Unknown mode.": {
			req: ingest.Request{Mode: "upsert", IndicatorID: "i1", Source: fileSource("f1")},
		},
		"File source without file.": {
			req: ingest.Request{Mode: model.SubmitModeCreate, IndicatorID: "i1", Source: model.SourceConfig{Kind: model.SourceKindFile}},
		},
		"Invalid api source.": {
			req: ingest.Request{Mode: model.SubmitModeCreate, IndicatorID: "i1", Source: model.SourceConfig{
				Kind: model.SourceKindAPI,
				API:  &model.APISource{Location: "ftp://x"},
			}},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			m := &backendmock.MockClient{}
			env := newTestEnv(t, m)

			_, err := env.svc.Submit(context.Background(), test.req, nil)
			assert.ErrorIs(t, err, model.ErrNotValid)
			m.AssertNotCalled(t, "GenerateWrapper", mock.Anything, mock.Anything)
		})
	}
}

func TestSubmitUpload(t *testing.T) {
	t.Run("A failed upload should not request a generation.", func(t *testing.T) {
		m := &backendmock.MockClient{}
		m.On("UploadFile", mock.Anything, "data.csv", mock.Anything).Once().Return("", errors.New("too large"))
		env := newTestEnv(t, m)

		_, err := env.svc.Submit(context.Background(), ingest.Request{
			Mode:        model.SubmitModeCreate,
			IndicatorID: "i1",
			Source:      model.SourceConfig{Kind: model.SourceKindFile},
			File:        &ingest.FileUpload{Name: "data.csv", Reader: strings.NewReader("a,b")},
		}, nil)
		assert.ErrorIs(t, err, ingest.ErrUpload)
		m.AssertNotCalled(t, "GenerateWrapper", mock.Anything, mock.Anything)
	})

	t.Run("The uploaded file id should be used as source.", func(t *testing.T) {
		m := &backendmock.MockClient{}
		m.On("UploadFile", mock.Anything, "data.csv", mock.Anything).Once().Return("f9", nil)
		m.On("GenerateWrapper", mock.Anything, mock.MatchedBy(func(r model.GenerateRequest) bool {
			return r.SourceConfig.File != nil && r.SourceConfig.File.FileID == "f9"
		})).Once().Return(wrapper(model.WrapperStatusPending, ""), nil)
		m.On("GetWrapper", mock.Anything, "w1").Once().Return(wrapper(model.WrapperStatusCompleted, "r1"), nil)
		m.On("LinkResource", mock.Anything, "i1", "r1").Return(nil)
		env := newTestEnv(t, m)

		_, err := env.svc.Submit(context.Background(), ingest.Request{
			Mode:        model.SubmitModeCreate,
			IndicatorID: "i1",
			Source:      model.SourceConfig{Kind: model.SourceKindFile},
			File:        &ingest.FileUpload{Name: "data.csv", Reader: strings.NewReader("a,b")},
		}, nil)
		require.NoError(t, err)
		m.AssertExpectations(t)
	})
}

func TestSubmitAPISourceTimeout(t *testing.T) {
	m := &backendmock.MockClient{}
	m.On("GenerateWrapper", mock.MatchedBy(func(ctx context.Context) bool {
		deadline, ok := ctx.Deadline()
		return ok && time.Until(deadline) <= 5*time.Second
	}), mock.Anything).Once().Return(nil, context.DeadlineExceeded)
	env := newTestEnv(t, m)

	_, err := env.svc.Submit(context.Background(), ingest.Request{
		Mode:        model.SubmitModeCreate,
		IndicatorID: "i1",
		Source: model.SourceConfig{Kind: model.SourceKindAPI, API: &model.APISource{
			Location:       "https://data.example.com",
			AuthType:       model.AuthTypeNone,
			TimeoutSeconds: 5,
		}},
	}, nil)
	assert.ErrorIs(t, err, ingest.ErrGenerate)
	m.AssertExpectations(t)
}

func TestSubmitWithFakeBackend(t *testing.T) {
	ctx := context.Background()
	fb, err := fake.NewClient(fake.ClientConfig{
		Indicators: []model.Indicator{{ID: "i1", Name: "CO2", Resources: []string{"r0"}}},
	})
	require.NoError(t, err)
	env := newTestEnv(t, fb)

	rec := &statusRecorder{}
	res, err := env.svc.Submit(ctx, ingest.Request{
		Mode:               model.SubmitModeEdit,
		IndicatorID:        "i1",
		PreviousResourceID: "r0",
		File:               &ingest.FileUpload{Name: "data.csv", Reader: strings.NewReader("year,value\n2024,1\n")},
		Source:             model.SourceConfig{Kind: model.SourceKindFile},
	}, rec.observe)
	require.NoError(t, err)
	assert.Equal(t, []model.WrapperStatus{"pending", "generating", "creating_resource", "executing"}, rec.seen())

	ind, err := fb.GetIndicator(ctx, "i1")
	require.NoError(t, err)
	assert.Equal(t, []string{res.Wrapper.ResourceID}, ind.Resources)
	assert.False(t, fb.HasResource("r0"))
	assert.Equal(t, model.WrapperStatusExecuting, res.Wrapper.Status)
}

func TestRelinkPlan(t *testing.T) {
	tests := map[string]struct {
		sub     model.Submission
		expPlan []task.Spec
	}{
		"Create mode should only link.": {
			sub:     model.Submission{Mode: model.SubmitModeCreate, ResourceID: "r1"},
			expPlan: []task.Spec{{Name: model.TaskLinkResource, ResourceID: "r1"}},
		},
		"Edit mode should link, unlink and delete in order.": {
			sub: model.Submission{Mode: model.SubmitModeEdit, ResourceID: "r1", PreviousResourceID: "r0"},
			expPlan: []task.Spec{
				{Name: model.TaskLinkResource, ResourceID: "r1"},
				{Name: model.TaskUnlinkResource, ResourceID: "r0"},
				{Name: model.TaskDeleteResource, ResourceID: "r0"},
			},
		},
		"Edit mode reusing the resource should only link.": {
			sub:     model.Submission{Mode: model.SubmitModeEdit, ResourceID: "r1", PreviousResourceID: "r1"},
			expPlan: []task.Spec{{Name: model.TaskLinkResource, ResourceID: "r1"}},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, test.expPlan, ingest.RelinkPlan(test.sub))
		})
	}
}

func TestRelinkerResumes(t *testing.T) {
	ctx := context.Background()
	tasks, err := taskmemory.NewManager(taskmemory.ManagerConfig{})
	require.NoError(t, err)
	sub := model.Submission{ID: "s1", WrapperID: "w1", IndicatorID: "i1", Mode: model.SubmitModeEdit, PreviousResourceID: "r0", ResourceID: "r1", Status: model.WrapperStatusCompleted}

	m := &backendmock.MockClient{}
	m.On("LinkResource", mock.Anything, "i1", "r1").Once().Return(nil)
	m.On("UnlinkResource", mock.Anything, "i1", "r0").Once().Return(errors.New("boom"))
	r, err := ingest.NewRelinker(ingest.RelinkerConfig{Backend: m, TaskManager: tasks})
	require.NoError(t, err)
	require.Error(t, r.Run(ctx, sub))

	// The second run must continue from the failed step.
	m2 := &backendmock.MockClient{}
	m2.On("UnlinkResource", mock.Anything, "i1", "r0").Once().Return(nil)
	m2.On("DeleteResource", mock.Anything, "r0").Once().Return(nil)
	r2, err := ingest.NewRelinker(ingest.RelinkerConfig{Backend: m2, TaskManager: tasks})
	require.NoError(t, err)
	require.NoError(t, r2.Run(ctx, sub))

	m.AssertExpectations(t)
	m2.AssertExpectations(t)
	m2.AssertNotCalled(t, "LinkResource", mock.Anything, mock.Anything, mock.Anything)
}

func TestRelinkerStalePlan(t *testing.T) {
	sub := model.Submission{ID: "s1", WrapperID: "w1", IndicatorID: "i1", Mode: model.SubmitModeCreate, ResourceID: "r2", Status: model.WrapperStatusCompleted}

	tests := map[string]struct {
		prepare  func(t *testing.T, tasks *taskmemory.Manager)
		mock     func(m *backendmock.MockClient)
		expTasks []string
	}{
		"A stored plan that didn't start should be replaced by the current one.": {
			prepare: func(t *testing.T, tasks *taskmemory.Manager) {
				err := tasks.AddTasks(context.Background(), "s1", model.OperationRelink, []task.Spec{{Name: model.TaskLinkResource, ResourceID: "r1"}})
				require.NoError(t, err)
			},
			mock: func(m *backendmock.MockClient) {
				m.On("LinkResource", mock.Anything, "i1", "r2").Once().Return(nil)
			},
			expTasks: []string{"link-resource:r2"},
		},
		"A stored plan that already started should be finished.": {
			prepare: func(t *testing.T, tasks *taskmemory.Manager) {
				ctx := context.Background()
				err := tasks.AddTasks(ctx, "s1", model.OperationRelink, []task.Spec{
					{Name: model.TaskLinkResource, ResourceID: "r1"},
					{Name: model.TaskDeleteResource, ResourceID: "r0"},
				})
				require.NoError(t, err)
				next, err := tasks.NextTask(ctx, "s1", model.OperationRelink)
				require.NoError(t, err)
				require.NoError(t, tasks.CompleteTask(ctx, next.ID))
			},
			mock: func(m *backendmock.MockClient) {
				m.On("DeleteResource", mock.Anything, "r0").Once().Return(nil)
			},
			expTasks: []string{"link-resource:r1", "delete-resource:r0"},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			tasks, err := taskmemory.NewManager(taskmemory.ManagerConfig{})
			require.NoError(t, err)
			test.prepare(t, tasks)

			m := &backendmock.MockClient{}
			test.mock(m)
			r, err := ingest.NewRelinker(ingest.RelinkerConfig{Backend: m, TaskManager: tasks})
			require.NoError(t, err)
			require.NoError(t, r.Run(ctx, sub))

			stored, err := tasks.ListTasks(ctx, "s1", model.OperationRelink)
			require.NoError(t, err)
			got := []string{}
			for _, tk := range stored {
				assert.Equal(t, model.TaskStatusDone, tk.Status)
				got = append(got, tk.Name+":"+tk.ResourceID)
			}
			assert.Equal(t, test.expTasks, got)
			m.AssertExpectations(t)
		})
	}
}

func TestResume(t *testing.T) {
	t.Run("A failed relink should be finished on resume.", func(t *testing.T) {
		ctx := context.Background()
		m := &backendmock.MockClient{}
		m.On("GenerateWrapper", mock.Anything, mock.Anything).Once().Return(wrapper(model.WrapperStatusPending, ""), nil)
		m.On("GetWrapper", mock.Anything, "w1").Return(wrapper(model.WrapperStatusCompleted, "r1"), nil)
		m.On("LinkResource", mock.Anything, "i1", "r1").Once().Return(errors.New("boom"))
		m.On("LinkResource", mock.Anything, "i1", "r1").Once().Return(nil)
		env := newTestEnv(t, m)

		_, err := env.svc.Submit(ctx, ingest.Request{Mode: model.SubmitModeCreate, IndicatorID: "i1", Source: fileSource("f1")}, nil)
		var relinkErr *ingest.RelinkError
		require.ErrorAs(t, err, &relinkErr)

		sub, err := env.repo.GetSubmissionByWrapper(ctx, "w1")
		require.NoError(t, err)
		res, err := env.svc.Resume(ctx, *sub, nil)
		require.NoError(t, err)
		assert.True(t, res.Linked)
		assert.True(t, res.Submission.Finished())
		assert.Empty(t, res.Submission.Error)

		m.AssertNumberOfCalls(t, "LinkResource", 2)
	})

	t.Run("A finished submission can't be resumed.", func(t *testing.T) {
		env := newTestEnv(t, &backendmock.MockClient{})
		now := time.Now()
		_, err := env.svc.Resume(context.Background(), model.Submission{ID: "s1", WrapperID: "w1", CompletedAt: &now}, nil)
		assert.ErrorIs(t, err, model.ErrNotValid)
	})
}
