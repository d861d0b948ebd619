package types

import "time"

// InstanceStatus is the canonical power/lifecycle state of an instance.
type InstanceStatus string

const (
	StatusRunning    InstanceStatus = "running"
	StatusStopped    InstanceStatus = "stopped"
	StatusStarting   InstanceStatus = "starting"
	StatusStopping   InstanceStatus = "stopping"
	StatusTerminated InstanceStatus = "terminated"
	StatusRetired    InstanceStatus = "retired"
	StatusUnknown    InstanceStatus = "unknown"
)

// Instance is the canonical view of a VM, normalized from any provider.
type Instance struct {
	ID             string            `json:"id"`
	ProviderID     string            `json:"provider_id"`
	NativeID       string            `json:"native_id"`
	Name           string            `json:"name"`
	Status         InstanceStatus    `json:"status"`
	InstanceType   string            `json:"instance_type"`
	Region         string            `json:"region"`
	Zone           string            `json:"zone,omitempty"`
	VCPUs          int               `json:"vcpus,omitempty"`
	MemoryMB       int               `json:"memory_mb,omitempty"`
	PrivateIP      string            `json:"private_ip,omitempty"`
	PublicIP       string            `json:"public_ip,omitempty"`
	LaunchedAt     time.Time         `json:"launched_at,omitzero"`
	Tags           map[string]string `json:"tags,omitempty"`
	MonthlyCostUSD float64           `json:"monthly_cost_usd"`
	CostEstimated  bool              `json:"cost_estimated"`
	FirstSeenAt    time.Time         `json:"first_seen_at,omitzero"`
	LastSeenAt     time.Time         `json:"last_seen_at,omitzero"`
	RetiredAt      time.Time         `json:"retired_at,omitzero"`
}

// CanonicalInstanceID derives the stable canonical ID for an instance.
// Pure function of (provider id, provider-native id): two sync runs that
// observe the same native instance always land on the same row, so metric
// history keyed to the ID survives re-syncs.
func CanonicalInstanceID(providerID, nativeID string) string {
	return providerID + "/" + nativeID
}

// Retired reports whether the instance is in the terminal retired state.
func (i *Instance) Retired() bool {
	return i.Status == StatusRetired
}

// SyncEquals compares the attributes a sync run overwrites. Lineage fields
// (FirstSeenAt, LastSeenAt, RetiredAt) are excluded so an unchanged provider
// snapshot diffs to zero operations.
func (i *Instance) SyncEquals(other *Instance) bool {
	if i.Name != other.Name ||
		i.Status != other.Status ||
		i.InstanceType != other.InstanceType ||
		i.Region != other.Region ||
		i.Zone != other.Zone ||
		i.VCPUs != other.VCPUs ||
		i.MemoryMB != other.MemoryMB ||
		i.PrivateIP != other.PrivateIP ||
		i.PublicIP != other.PublicIP ||
		!i.LaunchedAt.Equal(other.LaunchedAt) ||
		i.MonthlyCostUSD != other.MonthlyCostUSD ||
		i.CostEstimated != other.CostEstimated {
		return false
	}
	return tagsEqual(i.Tags, other.Tags)
}

func tagsEqual(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}
