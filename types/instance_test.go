package types

import (
	"testing"
	"time"
)

func TestCanonicalInstanceID(t *testing.T) {
	tests := []struct {
		name       string
		providerID string
		nativeID   string
		want       string
	}{
		{"aws style", "aws-1", "i-0abc123", "aws-1/i-0abc123"},
		{"uuid native id", "os-prod", "9f1c2d3e-4b5a", "os-prod/9f1c2d3e-4b5a"},
		{"azure resource name", "az-1", "vm-web-01", "az-1/vm-web-01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CanonicalInstanceID(tt.providerID, tt.nativeID)
			if got != tt.want {
				t.Errorf("CanonicalInstanceID() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCanonicalInstanceIDStable(t *testing.T) {
	// Same inputs across repeated derivations must always agree.
	for i := 0; i < 100; i++ {
		if CanonicalInstanceID("aws-1", "i-001") != "aws-1/i-001" {
			t.Fatal("canonical id changed between derivations")
		}
	}
}

func TestInstanceSyncEquals(t *testing.T) {
	launched := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	base := func() Instance {
		return Instance{
			ID:             "aws-1/i-001",
			ProviderID:     "aws-1",
			NativeID:       "i-001",
			Name:           "web-1",
			Status:         StatusRunning,
			InstanceType:   "t3.medium",
			Region:         "us-east-1",
			Zone:           "us-east-1a",
			VCPUs:          2,
			MemoryMB:       4096,
			PrivateIP:      "10.0.0.5",
			LaunchedAt:     launched,
			Tags:           map[string]string{"env": "prod"},
			MonthlyCostUSD: 30.08,
			CostEstimated:  true,
		}
	}

	tests := []struct {
		name   string
		mutate func(*Instance)
		want   bool
	}{
		{"identical", func(i *Instance) {}, true},
		{"lineage ignored", func(i *Instance) {
			i.FirstSeenAt = time.Now()
			i.LastSeenAt = time.Now()
		}, true},
		{"status changed", func(i *Instance) { i.Status = StatusStopped }, false},
		{"type changed", func(i *Instance) { i.InstanceType = "t3.large" }, false},
		{"tag changed", func(i *Instance) { i.Tags = map[string]string{"env": "dev"} }, false},
		{"tag added", func(i *Instance) { i.Tags["team"] = "web" }, false},
		{"ip changed", func(i *Instance) { i.PublicIP = "3.3.3.3" }, false},
		{"cost changed", func(i *Instance) { i.MonthlyCostUSD = 60.16 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, b := base(), base()
			tt.mutate(&b)
			if got := a.SyncEquals(&b); got != tt.want {
				t.Errorf("SyncEquals() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestComputeStats(t *testing.T) {
	instances := []Instance{
		{ProviderID: "aws-1", Region: "us-east-1", Status: StatusRunning, MonthlyCostUSD: 30, CostEstimated: true},
		{ProviderID: "aws-1", Region: "us-east-1", Status: StatusStopped, MonthlyCostUSD: 15},
		{ProviderID: "gcp-1", Region: "us-central1", Status: StatusRetired, MonthlyCostUSD: 25},
	}

	stats := ComputeStats(instances)

	if stats.Total != 3 || stats.Running != 1 || stats.Stopped != 1 || stats.Retired != 1 {
		t.Errorf("counts = %+v", stats)
	}
	if stats.MonthlyCostUSD != 45 {
		t.Errorf("MonthlyCostUSD = %v, want 45 (retired excluded)", stats.MonthlyCostUSD)
	}
	if stats.ByProvider["aws-1"] != 2 || stats.ByProvider["gcp-1"] != 1 {
		t.Errorf("ByProvider = %v", stats.ByProvider)
	}
	if stats.ByRegion["us-central1"] != 0 {
		t.Errorf("retired instance counted in ByRegion: %v", stats.ByRegion)
	}
	if !stats.CostIsEstimated {
		t.Error("CostIsEstimated should propagate from any live instance")
	}
}
