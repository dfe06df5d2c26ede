package prune_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/slok/wrapperctl/internal/app/prune"
	"github.com/slok/wrapperctl/internal/model"
	"github.com/slok/wrapperctl/internal/storage"
	storagememory "github.com/slok/wrapperctl/internal/storage/memory"
	"github.com/slok/wrapperctl/internal/storage/storagemock"
	"github.com/slok/wrapperctl/internal/task"
	taskmemory "github.com/slok/wrapperctl/internal/task/memory"
	"github.com/slok/wrapperctl/internal/task/taskmock"
)

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func at(d time.Duration) *time.Time {
	t := now.Add(-d)
	return &t
}

func TestNewService(t *testing.T) {
	_, err := prune.NewService(prune.ServiceConfig{TaskManager: &taskmock.MockManager{}})
	assert.Error(t, err)
	_, err = prune.NewService(prune.ServiceConfig{Repository: &storagemock.MockRepository{}})
	assert.Error(t, err)
	_, err = prune.NewService(prune.ServiceConfig{Repository: &storagemock.MockRepository{}, TaskManager: &taskmock.MockManager{}})
	assert.NoError(t, err)
}

func TestService_Run(t *testing.T) {
	subs := []model.Submission{
		{ID: "old", WrapperID: "w1", IndicatorID: "i1", Mode: model.SubmitModeCreate, CompletedAt: at(48 * time.Hour)},
		{ID: "recent", WrapperID: "w2", IndicatorID: "i1", Mode: model.SubmitModeCreate, CompletedAt: at(time.Hour)},
		{ID: "unfinished", WrapperID: "w3", IndicatorID: "i1", Mode: model.SubmitModeCreate},
		{ID: "pending-steps", WrapperID: "w4", IndicatorID: "i1", Mode: model.SubmitModeCreate, CompletedAt: at(72 * time.Hour)},
		{ID: "other-indicator", WrapperID: "w5", IndicatorID: "i2", Mode: model.SubmitModeCreate, CompletedAt: at(72 * time.Hour)},
	}

	tests := map[string]struct {
		req        prune.Request
		expPruned  []string
		expSkipped []string
		expKept    []string
	}{
		"Finished submissions older than the cutoff should be pruned.": {
			req:        prune.Request{OlderThan: 24 * time.Hour},
			expPruned:  []string{"old", "other-indicator"},
			expSkipped: []string{"pending-steps"},
			expKept:    []string{"recent", "unfinished", "pending-steps"},
		},
		"Without age every finished submission should be pruned.": {
			req:        prune.Request{},
			expPruned:  []string{"old", "recent", "other-indicator"},
			expSkipped: []string{"pending-steps"},
			expKept:    []string{"unfinished", "pending-steps"},
		},
		"The indicator filter should only prune its submissions.": {
			req:       prune.Request{OlderThan: 24 * time.Hour, IndicatorID: "i2"},
			expPruned: []string{"other-indicator"},
			expKept:   []string{"old", "recent", "unfinished", "pending-steps"},
		},
		"A dry run should not delete anything.": {
			req:        prune.Request{OlderThan: 24 * time.Hour, DryRun: true},
			expPruned:  []string{"old", "other-indicator"},
			expSkipped: []string{"pending-steps"},
			expKept:    []string{"old", "recent", "unfinished", "pending-steps", "other-indicator"},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)
			ctx := context.Background()

			repo, err := storagememory.NewRepository(storagememory.RepositoryConfig{})
			require.NoError(err)
			tasks, err := taskmemory.NewManager(taskmemory.ManagerConfig{})
			require.NoError(err)
			for _, s := range subs {
				require.NoError(repo.CreateSubmission(ctx, s))
				require.NoError(tasks.AddTasks(ctx, s.ID, model.OperationRelink, []task.Spec{{Name: model.TaskLinkResource, ResourceID: "r-" + s.ID}}))
				if s.ID != "pending-steps" {
					next, err := tasks.NextTask(ctx, s.ID, model.OperationRelink)
					require.NoError(err)
					require.NoError(tasks.CompleteTask(ctx, next.ID))
				}
			}

			svc, err := prune.NewService(prune.ServiceConfig{Repository: repo, TaskManager: tasks, Now: func() time.Time { return now }})
			require.NoError(err)

			report, err := svc.Run(ctx, test.req)
			require.NoError(err)
			assert.ElementsMatch(test.expPruned, ids(report.Pruned))
			assert.ElementsMatch(test.expSkipped, ids(report.Skipped))

			kept, err := repo.ListSubmissions(ctx, storage.ListOptions{})
			require.NoError(err)
			assert.ElementsMatch(test.expKept, ids(kept))

			// Pruned submissions don't leave tasks behind.
			if !test.req.DryRun {
				for _, id := range test.expPruned {
					left, err := tasks.ListTasks(ctx, id, model.OperationRelink)
					require.NoError(err)
					assert.Empty(left)
				}
			}
		})
	}
}

func TestService_RunErrors(t *testing.T) {
	old := model.Submission{ID: "s1", CompletedAt: at(48 * time.Hour)}

	tests := map[string]struct {
		req  prune.Request
		mock func(r *storagemock.MockRepository, tm *taskmock.MockManager)
	}{
		"A negative age should fail.": {
			req:  prune.Request{OlderThan: -time.Hour},
			mock: func(r *storagemock.MockRepository, tm *taskmock.MockManager) {},
		},
		"A list error should fail.": {
			mock: func(r *storagemock.MockRepository, tm *taskmock.MockManager) {
				r.On("ListSubmissions", mock.Anything, mock.Anything).Once().Return(nil, errors.New("database error"))
			},
		},
		"A task clear error should stop the prune.": {
			mock: func(r *storagemock.MockRepository, tm *taskmock.MockManager) {
				r.On("ListSubmissions", mock.Anything, mock.Anything).Once().Return([]model.Submission{old}, nil)
				tm.On("HasPendingOperation", mock.Anything, "s1").Once().Return("", false, nil)
				tm.On("ClearOperation", mock.Anything, "s1", model.OperationRelink).Once().Return(errors.New("boom"))
			},
		},
		"A delete error should stop the prune.": {
			mock: func(r *storagemock.MockRepository, tm *taskmock.MockManager) {
				r.On("ListSubmissions", mock.Anything, mock.Anything).Once().Return([]model.Submission{old}, nil)
				tm.On("HasPendingOperation", mock.Anything, "s1").Once().Return("", false, nil)
				tm.On("ClearOperation", mock.Anything, "s1", model.OperationRelink).Once().Return(nil)
				r.On("DeleteSubmission", mock.Anything, "s1").Once().Return(errors.New("boom"))
			},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			r := &storagemock.MockRepository{}
			tm := &taskmock.MockManager{}
			test.mock(r, tm)

			svc, err := prune.NewService(prune.ServiceConfig{Repository: r, TaskManager: tm, Now: func() time.Time { return now }})
			require.NoError(t, err)

			_, err = svc.Run(context.Background(), test.req)
			assert.Error(t, err)

			r.AssertExpectations(t)
			tm.AssertExpectations(t)
		})
	}
}

func ids(subs []model.Submission) []string {
	out := []string{}
	for _, s := range subs {
		out = append(out, s.ID)
	}
	return out
}
