package types

import "time"

// ProviderType identifies which cloud platform a provider talks to.
// Immutable after the provider is registered.
type ProviderType string

const (
	ProviderOpenStack ProviderType = "openstack"
	ProviderAWS       ProviderType = "aws"
	ProviderAzure     ProviderType = "azure"
	ProviderGCP       ProviderType = "gcp"
)

// Valid reports whether t is a known provider type.
func (t ProviderType) Valid() bool {
	switch t {
	case ProviderOpenStack, ProviderAWS, ProviderAzure, ProviderGCP:
		return true
	}
	return false
}

// SyncOutcome records how a sync run for a provider ended.
type SyncOutcome string

const (
	SyncSucceeded       SyncOutcome = "success"
	SyncPartiallyFailed SyncOutcome = "partial"
	SyncFailed          SyncOutcome = "failed"
)

// Provider is a registered cloud account that Cirrus mirrors.
// Credentials live elsewhere; CredentialRef is only an opaque lookup key.
type Provider struct {
	ID              string       `json:"id"`
	Name            string       `json:"name"`
	Type            ProviderType `json:"type"`
	Regions         []string     `json:"regions,omitempty"`
	Enabled         bool         `json:"enabled"`
	CredentialRef   string       `json:"credential_ref"`
	LastSyncAt      time.Time    `json:"last_sync_at,omitzero"`
	LastSyncOutcome SyncOutcome  `json:"last_sync_outcome,omitempty"`
	LastSyncError   string       `json:"last_sync_error,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
}
