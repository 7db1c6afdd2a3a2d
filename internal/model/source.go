package model

import "time"

// Provider identifies where a source's data comes from.
type Provider string

// Known providers.
const (
	ProviderUpload Provider = "upload"
	ProviderGA4    Provider = "ga4"
)

// Source is the single upstream record per (user, provider).
// Upserting it before each import serializes repeated syncs.
type Source struct {
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
	LastSyncedAt *time.Time `json:"lastSyncedAt,omitempty"`
	ID           string     `json:"id"`
	UserID       string     `json:"userId"`
	Provider     Provider   `json:"provider"`
	ExternalRef  string     `json:"externalRef,omitempty"`
}
