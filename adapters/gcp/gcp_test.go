package gcp

import (
	"testing"
	"time"

	"cloud.google.com/go/compute/apiv1/computepb"
	"google.golang.org/api/googleapi"
	"google.golang.org/protobuf/proto"

	"github.com/veldt-io/cirrus/adapters"
	"github.com/veldt-io/cirrus/types"
)

func TestMapStatus(t *testing.T) {
	tests := []struct {
		native string
		want   types.InstanceStatus
	}{
		{"RUNNING", types.StatusRunning},
		{"PROVISIONING", types.StatusStarting},
		{"STAGING", types.StatusStarting},
		{"STOPPING", types.StatusStopping},
		{"TERMINATED", types.StatusStopped},
		{"SUSPENDED", types.StatusStopped},
		{"REPAIRING", types.StatusUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.native, func(t *testing.T) {
			if got := mapStatus(tt.native); got != tt.want {
				t.Errorf("mapStatus(%q) = %v, want %v", tt.native, got, tt.want)
			}
		})
	}
}

func TestParseMachineType(t *testing.T) {
	tests := []struct {
		machineType string
		vcpus       int
		memoryMB    int
	}{
		{"e2-micro", 2, 1024},
		{"e2-medium", 2, 4096},
		{"e2-standard-4", 4, 16384},
		{"n2-highmem-8", 8, 65536},
		{"n2-highcpu-16", 16, 16384},
		{"custom-4-8192", 4, 8192},
		{"n2-custom-2-4096", 2, 4096},
		{"a2-megagpu-16g", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.machineType, func(t *testing.T) {
			vcpus, memoryMB := parseMachineType(tt.machineType)
			if vcpus != tt.vcpus || memoryMB != tt.memoryMB {
				t.Errorf("parseMachineType(%q) = (%d, %d), want (%d, %d)",
					tt.machineType, vcpus, memoryMB, tt.vcpus, tt.memoryMB)
			}
		})
	}
}

func TestZoneRegion(t *testing.T) {
	if got := zoneRegion("us-central1-a"); got != "us-central1" {
		t.Errorf("zoneRegion = %q, want us-central1", got)
	}
}

func TestConvertInstance(t *testing.T) {
	instance := &computepb.Instance{
		Name:              proto.String("api-0"),
		Status:            proto.String("RUNNING"),
		MachineType:       proto.String("https://www.googleapis.com/compute/v1/projects/p/zones/us-central1-a/machineTypes/e2-standard-2"),
		CreationTimestamp: proto.String("2026-01-15T09:30:00Z"),
		Labels:            map[string]string{"team": "api"},
		NetworkInterfaces: []*computepb.NetworkInterface{{
			NetworkIP: proto.String("10.128.0.3"),
			AccessConfigs: []*computepb.AccessConfig{{
				NatIP: proto.String("34.1.2.3"),
			}},
		}},
	}

	raw := convertInstance(instance, "us-central1-a")

	if raw.NativeID != "us-central1-a/api-0" {
		t.Errorf("NativeID = %q", raw.NativeID)
	}
	if raw.InstanceType != "e2-standard-2" {
		t.Errorf("InstanceType = %q", raw.InstanceType)
	}
	if raw.Region != "us-central1" {
		t.Errorf("Region = %q", raw.Region)
	}
	if raw.VCPUs != 2 || raw.MemoryMB != 8192 {
		t.Errorf("VCPUs/MemoryMB = %d/%d", raw.VCPUs, raw.MemoryMB)
	}
	if raw.PrivateIP != "10.128.0.3" || raw.PublicIP != "34.1.2.3" {
		t.Errorf("IPs = %q/%q", raw.PrivateIP, raw.PublicIP)
	}
	want := time.Date(2026, 1, 15, 9, 30, 0, 0, time.UTC)
	if !raw.LaunchedAt.Equal(want) {
		t.Errorf("LaunchedAt = %v", raw.LaunchedAt)
	}
}

func TestNormalize(t *testing.T) {
	a := &Adapter{}
	raw := adapters.RawInstance{
		NativeID:     "us-central1-a/api-0",
		Name:         "api-0",
		NativeStatus: "TERMINATED",
		InstanceType: "e2-standard-2",
		Region:       "us-central1",
	}

	inst := a.Normalize(raw, "gcp-prod")

	if inst.ID != "gcp-prod/us-central1-a/api-0" {
		t.Errorf("ID = %q", inst.ID)
	}
	if inst.Status != types.StatusStopped {
		t.Errorf("Status = %v, TERMINATED must map to stopped", inst.Status)
	}
	if inst.MonthlyCostUSD != 49.04 {
		t.Errorf("MonthlyCostUSD = %v, want catalog price for e2-standard-2", inst.MonthlyCostUSD)
	}
	if !inst.CostEstimated {
		t.Error("catalog price must be flagged as estimated")
	}
}

func TestSplitNativeID(t *testing.T) {
	zone, name, err := splitNativeID("us-central1-a/api-0")
	if err != nil || zone != "us-central1-a" || name != "api-0" {
		t.Errorf("splitNativeID = (%q, %q, %v)", zone, name, err)
	}

	if _, _, err := splitNativeID("garbage"); !adapters.IsNotFound(err) {
		t.Errorf("splitNativeID(garbage) should return NotFoundError, got %v", err)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		code  int
		check func(error) bool
	}{
		{"unauthorized", 401, adapters.IsAuth},
		{"forbidden", 403, adapters.IsAuth},
		{"not found", 404, adapters.IsNotFound},
		{"quota", 429, adapters.Retryable},
		{"backend error", 503, adapters.Retryable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(&googleapi.Error{Code: tt.code})
			if !tt.check(got) {
				t.Errorf("classify(%d) = %T, wrong taxonomy", tt.code, got)
			}
		})
	}
}
