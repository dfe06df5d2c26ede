package model

import (
	"time"
)

// TaskStatus represents the state of a task.
type TaskStatus string

const (
	TaskStatusPending TaskStatus = "pending"
	TaskStatusDone    TaskStatus = "done"
	TaskStatusFailed  TaskStatus = "failed"
)

// Task represents a single step in a multi-step operation of a submission.
type Task struct {
	ID           string
	SubmissionID string
	Operation    string
	Sequence     int
	Name         string
	ResourceID   string
	Status       TaskStatus
	Error        string
	CreatedAt    time.Time
}

// TaskProgress represents the completion state of an operation.
type TaskProgress struct {
	Done   int
	Failed int
	Total  int
}

// OperationRelink attaches a generated resource to its indicator, and on edit
// mode detaches and deletes the superseded one.
const OperationRelink = "relink"

// Relink task names, in the order they must run.
const (
	TaskLinkResource   = "link-resource"
	TaskUnlinkResource = "unlink-resource"
	TaskDeleteResource = "delete-resource"
)
