package model

import (
	"time"
)

// ImportStatus is the lifecycle state of an ImportBatch.
type ImportStatus string

// Import lifecycle states.
const (
	StatusPending    ImportStatus = "PENDING"
	StatusProcessing ImportStatus = "PROCESSING"
	StatusCompleted  ImportStatus = "COMPLETED"
	StatusFailed     ImportStatus = "FAILED"
)

// statusRank orders states so transitions can only move forward.
var statusRank = map[ImportStatus]int{
	StatusPending:    0,
	StatusProcessing: 1,
	StatusCompleted:  2,
	StatusFailed:     2,
}

// IsValid reports whether s is a known status.
func (s ImportStatus) IsValid() bool {
	_, ok := statusRank[s]
	return ok
}

// IsTerminal reports whether no further transitions are allowed.
func (s ImportStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransitionTo reports whether moving from s to next keeps the lifecycle monotonic.
func (s ImportStatus) CanTransitionTo(next ImportStatus) bool {
	if !s.IsValid() || !next.IsValid() {
		return false
	}
	if s.IsTerminal() {
		return false
	}
	return statusRank[next] > statusRank[s]
}

// RecordType labels which leaf category an import declares.
type RecordType string

// Record types. RecordTypeMixed means more than one category (or none).
const (
	RecordTypeSessions    RecordType = "sessions"
	RecordTypeEvents      RecordType = "events"
	RecordTypeConversions RecordType = "conversions"
	RecordTypeCampaigns   RecordType = "campaigns"
	RecordTypeBenchmarks  RecordType = "benchmarks"
	RecordTypeMixed       RecordType = "mixed"
)

// LeafTypes lists the five leaf categories in a stable order.
var LeafTypes = []RecordType{
	RecordTypeSessions,
	RecordTypeEvents,
	RecordTypeConversions,
	RecordTypeCampaigns,
	RecordTypeBenchmarks,
}

// IsLeaf reports whether t names exactly one leaf category.
func (t RecordType) IsLeaf() bool {
	for _, lt := range LeafTypes {
		if t == lt {
			return true
		}
	}
	return false
}

// BatchMetadata is free-form information stored alongside a batch.
type BatchMetadata struct {
	Extra    map[string]string `json:"extra,omitempty"`
	Provider string            `json:"provider,omitempty"`
	Files    []string          `json:"files,omitempty"`
	Warnings []string          `json:"warnings,omitempty"`
}

// ImportBatch is one ingestion unit: a single upload or a single provider sync.
type ImportBatch struct {
	StartedAt     time.Time     `json:"startedAt"`
	CompletedAt   *time.Time    `json:"completedAt,omitempty"`
	ID            string        `json:"id"`
	SourceID      string        `json:"sourceId"`
	RecordType    RecordType    `json:"recordType"`
	Status        ImportStatus  `json:"status"`
	Metadata      BatchMetadata `json:"metadata"`
	ExpectedCount int           `json:"expectedCount"`
}

// BatchFilter narrows batch listings.
type BatchFilter struct {
	Since  *time.Time
	Status ImportStatus
	Limit  int
}
