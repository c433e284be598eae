package model

import "time"

// RunStatus is the lifecycle state of a pipeline run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

// RunTrigger records what started a pipeline run.
type RunTrigger string

const (
	TriggerScheduled RunTrigger = "scheduled"
	TriggerManual    RunTrigger = "manual"
	TriggerBackfill  RunTrigger = "backfill"
)

// PipelineRun is the bookkeeping record for one ingestion-and-derivation
// run. At most one run has status "running" at any time; that row is the
// cross-process concurrency guard.
type PipelineRun struct {
	ID              string     `json:"id"`
	Status          RunStatus  `json:"status"`
	Trigger         RunTrigger `json:"trigger"`
	StartedAt       time.Time  `json:"started_at"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
	ScenesFound     int        `json:"scenes_found"`
	ScenesNew       int        `json:"scenes_new"`
	ScenesProcessed int        `json:"scenes_processed"`
	ErrorCount      int        `json:"error_count"`
	Errors          []string   `json:"errors,omitempty"`
}

// RecordError appends a non-fatal error to the run.
func (r *PipelineRun) RecordError(msg string) {
	r.Errors = append(r.Errors, msg)
	r.ErrorCount = len(r.Errors)
}
