// Package types provides type definitions for structured data used throughout the feedsync system.
package types

import (
	"time"
)

// Location holds the optional location fields of a remote record.
type Location struct {
	City    string `json:"city,omitempty"`
	State   string `json:"state,omitempty"`
	Country string `json:"country,omitempty"`
}

// Record is a job listing as held by the remote source-of-truth system.
// Records are fetched fresh every cycle and never persisted directly.
type Record struct {
	ExternalID        string    `json:"external_id"`
	Title             string    `json:"title"`
	Description       string    `json:"description"`
	Location          Location  `json:"location"`
	EmploymentKind    string    `json:"employment_kind"`
	WorkArrangement   string    `json:"work_arrangement"`
	AssignedOwnerName string    `json:"assigned_owner_name"`
	LastModifiedAt    time.Time `json:"last_modified_at"`
	IsActive          bool      `json:"is_active"`
}

// Classification holds the AI-derived enrichment labels for a record.
// A zero Classification means the classifier declined or failed; the
// artifact entry is built with blank labels in that case.
type Classification struct {
	Function  string `json:"function,omitempty"`
	Industry  string `json:"industry,omitempty"`
	Seniority string `json:"seniority,omitempty"`
}

// FieldChange records a single material field difference between two
// versions of the same record.
type FieldChange struct {
	Field    string `json:"field"`
	OldValue string `json:"old_value"`
	NewValue string `json:"new_value"`
}

// ReconciliationSummary holds the counts for one reconciliation pass.
type ReconciliationSummary struct {
	PreviousCount int `json:"previous_count"`
	CurrentCount  int `json:"current_count"`
	AddedCount    int `json:"added_count"`
	RemovedCount  int `json:"removed_count"`
	ModifiedCount int `json:"modified_count"`
}

// ReconciliationResult partitions the current record set against the
// previous one.
type ReconciliationResult struct {
	Added    []string                 `json:"added"`
	Removed  []string                 `json:"removed"`
	Modified map[string][]FieldChange `json:"modified"`
	Summary  ReconciliationSummary    `json:"summary"`
}

// MutationFailure records a single artifact mutation that failed during a
// cycle. Failures do not abort the cycle; they are surfaced in the report.
type MutationFailure struct {
	ExternalID string `json:"external_id"`
	Operation  string `json:"operation"`
	Reason     string `json:"reason"`
}

// CycleReport is the end-of-cycle summary handed to the Notifier and
// recorded in the optional history store.
type CycleReport struct {
	StartedAt      time.Time            `json:"started_at"`
	FinishedAt     time.Time            `json:"finished_at"`
	Collections    []string             `json:"collections"`
	Result         ReconciliationResult `json:"result"`
	Failures       []MutationFailure    `json:"failures,omitempty"`
	SkippedRecords []string             `json:"skipped_records,omitempty"`
	Failed         bool                 `json:"failed"`
	FailureReason  string               `json:"failure_reason,omitempty"`
}
