package models

import "time"

// ScrutinyPass is one full evaluation of the rule catalog against a
// package's document set. Immutable once produced; a new pass supersedes
// the previous defect list wholesale.
type ScrutinyPass struct {
	ID         string
	PackageID  string
	SnapshotID string // fingerprint of the document set state evaluated
	CreatedAt  time.Time
	Defects    []*Defect
}

// PendingSummary counts still-pending defects by severity. It is reported
// to the next workflow stage when the completion gate is overridden.
type PendingSummary struct {
	MustFix  int `json:"must_fix"`
	Review   int `json:"review"`
	Advisory int `json:"advisory"`
}

// Total returns the number of pending defects across all severities.
func (p PendingSummary) Total() int {
	return p.MustFix + p.Review + p.Advisory
}

// ProceedDecision records one completion-gate decision for audit.
type ProceedDecision struct {
	ID        string
	PackageID string
	PassID    string
	Allowed   bool
	Override  bool
	Summary   PendingSummary
	DecidedAt time.Time
}
