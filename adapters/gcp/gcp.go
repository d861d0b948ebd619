// Package gcp adapts Compute Engine and Cloud Monitoring to the cirrus
// adapter contract.
package gcp

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	compute "cloud.google.com/go/compute/apiv1"
	"cloud.google.com/go/compute/apiv1/computepb"
	gax "github.com/googleapis/gax-go/v2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"

	"github.com/veldt-io/cirrus/adapters"
	"github.com/veldt-io/cirrus/pricing"
	"github.com/veldt-io/cirrus/types"
)

func init() {
	adapters.Register(types.ProviderGCP, New)
}

// Adapter talks to one GCP project. Instance names are unique per zone
// only, so the native id is "<zone>/<name>".
type Adapter struct {
	instances instancesAPI
	metrics   metricsAPI
	project   string
	regions   []string
}

// instancesAPI is the slice of the Compute instances client we use.
type instancesAPI interface {
	AggregatedList(ctx context.Context, req *computepb.AggregatedListInstancesRequest, opts ...gax.CallOption) *compute.InstancesScopedListPairIterator
	Get(ctx context.Context, req *computepb.GetInstanceRequest, opts ...gax.CallOption) (*computepb.Instance, error)
	Start(ctx context.Context, req *computepb.StartInstanceRequest, opts ...gax.CallOption) (*compute.Operation, error)
	Stop(ctx context.Context, req *computepb.StopInstanceRequest, opts ...gax.CallOption) (*compute.Operation, error)
	SetMachineType(ctx context.Context, req *computepb.SetMachineTypeInstanceRequest, opts ...gax.CallOption) (*compute.Operation, error)
}

// New builds a GCP adapter from the opaque credential blob. Required keys:
// project_id, service_account_json.
func New(ctx context.Context, creds adapters.Credentials, regions []string) (adapters.CloudAdapter, error) {
	project := creds["project_id"]
	saJSON := creds["service_account_json"]
	if project == "" || saJSON == "" {
		return nil, &adapters.AuthError{
			Provider: "gcp",
			Err:      errors.New("project_id and service_account_json are required"),
		}
	}

	instances, err := compute.NewInstancesRESTClient(ctx, option.WithCredentialsJSON([]byte(saJSON)))
	if err != nil {
		return nil, &adapters.AuthError{Provider: "gcp", Err: err}
	}

	metrics, err := newMetricsClient(ctx, saJSON)
	if err != nil {
		return nil, fmt.Errorf("failed to create monitoring client: %w", err)
	}

	return &Adapter{instances: instances, metrics: metrics, project: project, regions: regions}, nil
}

// Name returns the provider type.
func (a *Adapter) Name() types.ProviderType {
	return types.ProviderGCP
}

// TestConnection validates the service account with an aggregated list call.
func (a *Adapter) TestConnection(ctx context.Context) error {
	it := a.instances.AggregatedList(ctx, &computepb.AggregatedListInstancesRequest{
		Project:    a.project,
		MaxResults: proto.Uint32(1),
	})
	if _, err := it.Next(); err != nil && !errors.Is(err, iterator.Done) {
		return classify(err)
	}
	return nil
}

// ListInstances drains the project-wide aggregated instance list. The
// aggregated call spans all zones; the region filter applies per zone.
func (a *Adapter) ListInstances(ctx context.Context, regions []string) ([]adapters.RawInstance, error) {
	targets := regions
	if len(targets) == 0 {
		targets = a.regions
	}

	it := a.instances.AggregatedList(ctx, &computepb.AggregatedListInstancesRequest{
		Project: a.project,
	})

	var all []adapters.RawInstance
	for {
		pair, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, classify(err)
		}

		zone := strings.TrimPrefix(pair.Key, "zones/")
		if len(targets) > 0 && !regionMatches(zoneRegion(zone), targets) {
			continue
		}
		if pair.Value == nil {
			continue
		}
		for _, instance := range pair.Value.Instances {
			all = append(all, convertInstance(instance, zone))
		}
	}
	return all, nil
}

// GetInstance fetches one instance by "<zone>/<name>".
func (a *Adapter) GetInstance(ctx context.Context, nativeID string) (*adapters.RawInstance, error) {
	zone, name, err := splitNativeID(nativeID)
	if err != nil {
		return nil, err
	}

	instance, err := a.instances.Get(ctx, &computepb.GetInstanceRequest{
		Project:  a.project,
		Zone:     zone,
		Instance: name,
	})
	if err != nil {
		return nil, classify(err)
	}
	raw := convertInstance(instance, zone)
	return &raw, nil
}

// StartInstance requests a start. The operation handle is dropped:
// fire-and-confirm.
func (a *Adapter) StartInstance(ctx context.Context, nativeID string) error {
	zone, name, err := splitNativeID(nativeID)
	if err != nil {
		return err
	}
	if _, err := a.instances.Start(ctx, &computepb.StartInstanceRequest{
		Project:  a.project,
		Zone:     zone,
		Instance: name,
	}); err != nil {
		return classify(err)
	}
	return nil
}

// StopInstance requests a stop.
func (a *Adapter) StopInstance(ctx context.Context, nativeID string) error {
	zone, name, err := splitNativeID(nativeID)
	if err != nil {
		return err
	}
	if _, err := a.instances.Stop(ctx, &computepb.StopInstanceRequest{
		Project:  a.project,
		Zone:     zone,
		Instance: name,
	}); err != nil {
		return classify(err)
	}
	return nil
}

// ResizeInstance sets a new machine type. Compute Engine requires the
// instance stopped; a running instance fails at the API and the error
// surfaces as-is.
func (a *Adapter) ResizeInstance(ctx context.Context, nativeID, newType string) error {
	zone, name, err := splitNativeID(nativeID)
	if err != nil {
		return err
	}

	machineType := fmt.Sprintf("zones/%s/machineTypes/%s", zone, newType)
	if _, err := a.instances.SetMachineType(ctx, &computepb.SetMachineTypeInstanceRequest{
		Project:  a.project,
		Zone:     zone,
		Instance: name,
		InstancesSetMachineTypeRequestResource: &computepb.InstancesSetMachineTypeRequest{
			MachineType: proto.String(machineType),
		},
	}); err != nil {
		return classify(err)
	}
	return nil
}

// Normalize converts a raw Compute Engine snapshot to the canonical instance.
func (a *Adapter) Normalize(raw adapters.RawInstance, providerID string) types.Instance {
	cost, _ := pricing.Estimate(types.ProviderGCP, raw.InstanceType)
	return types.Instance{
		ID:             types.CanonicalInstanceID(providerID, raw.NativeID),
		ProviderID:     providerID,
		NativeID:       raw.NativeID,
		Name:           raw.Name,
		Status:         mapStatus(raw.NativeStatus),
		InstanceType:   raw.InstanceType,
		Region:         raw.Region,
		Zone:           raw.Zone,
		VCPUs:          raw.VCPUs,
		MemoryMB:       raw.MemoryMB,
		PrivateIP:      raw.PrivateIP,
		PublicIP:       raw.PublicIP,
		LaunchedAt:     raw.LaunchedAt,
		Tags:           raw.Tags,
		MonthlyCostUSD: cost,
		CostEstimated:  true,
	}
}

func convertInstance(instance *computepb.Instance, zone string) adapters.RawInstance {
	name := instance.GetName()
	machineType := lastSegment(instance.GetMachineType())
	vcpus, memoryMB := parseMachineType(machineType)

	raw := adapters.RawInstance{
		NativeID:     zone + "/" + name,
		Name:         name,
		NativeStatus: instance.GetStatus(),
		InstanceType: machineType,
		Region:       zoneRegion(zone),
		Zone:         zone,
		VCPUs:        vcpus,
		MemoryMB:     memoryMB,
		Tags:         instance.GetLabels(),
	}

	if created, err := time.Parse(time.RFC3339, instance.GetCreationTimestamp()); err == nil {
		raw.LaunchedAt = created
	}

	if nics := instance.GetNetworkInterfaces(); len(nics) > 0 {
		raw.PrivateIP = nics[0].GetNetworkIP()
		if acs := nics[0].GetAccessConfigs(); len(acs) > 0 {
			raw.PublicIP = acs[0].GetNatIP()
		}
	}
	return raw
}

// parseMachineType derives vCPU and memory from the machine type name.
// Compute Engine encodes both in the name for the standard families;
// anything unrecognized stays zero rather than guessing.
func parseMachineType(machineType string) (vcpus, memoryMB int) {
	switch machineType {
	case "e2-micro", "f1-micro":
		return 2, 1024
	case "e2-small", "g1-small":
		return 2, 2048
	case "e2-medium":
		return 2, 4096
	}

	parts := strings.Split(machineType, "-")
	if len(parts) < 3 {
		return 0, 0
	}

	// custom-<vcpus>-<memoryMB>
	if parts[0] == "custom" || (len(parts) == 4 && parts[1] == "custom") {
		n, err1 := strconv.Atoi(parts[len(parts)-2])
		mb, err2 := strconv.Atoi(parts[len(parts)-1])
		if err1 == nil && err2 == nil {
			return n, mb
		}
		return 0, 0
	}

	n, err := strconv.Atoi(parts[len(parts)-1])
	if err != nil {
		return 0, 0
	}
	switch parts[1] {
	case "standard":
		return n, n * 4096
	case "highmem":
		return n, n * 8192
	case "highcpu":
		return n, n * 1024
	}
	return n, 0
}

// zoneRegion strips the zone letter: us-central1-a -> us-central1.
func zoneRegion(zone string) string {
	if i := strings.LastIndex(zone, "-"); i > 0 {
		return zone[:i]
	}
	return zone
}

func lastSegment(url string) string {
	if i := strings.LastIndex(url, "/"); i >= 0 {
		return url[i+1:]
	}
	return url
}

func splitNativeID(nativeID string) (zone, name string, err error) {
	zone, name, ok := strings.Cut(nativeID, "/")
	if !ok || zone == "" || name == "" {
		return "", "", &adapters.NotFoundError{NativeID: nativeID}
	}
	return zone, name, nil
}

func regionMatches(region string, targets []string) bool {
	for _, t := range targets {
		if region == t {
			return true
		}
	}
	return false
}

// mapStatus maps a Compute Engine status to the canonical status.
// TERMINATED is GCP's word for stopped, not deleted.
func mapStatus(native string) types.InstanceStatus {
	switch native {
	case "RUNNING":
		return types.StatusRunning
	case "PROVISIONING", "STAGING":
		return types.StatusStarting
	case "STOPPING", "SUSPENDING":
		return types.StatusStopping
	case "TERMINATED", "STOPPED", "SUSPENDED":
		return types.StatusStopped
	}
	return types.StatusUnknown
}

// classify maps a Google API error into the adapter error taxonomy. REST
// clients surface googleapi.Error, gRPC clients surface status errors.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == 401 || apiErr.Code == 403:
			return &adapters.AuthError{Provider: "gcp", Err: err}
		case apiErr.Code == 404:
			return &adapters.NotFoundError{NativeID: apiErr.Message}
		case apiErr.Code == 429:
			return &adapters.RateLimitError{Err: err}
		case apiErr.Code >= 500:
			return &adapters.TransientError{Err: err}
		}
		return err
	}

	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.Unauthenticated, codes.PermissionDenied:
			return &adapters.AuthError{Provider: "gcp", Err: err}
		case codes.NotFound:
			return &adapters.NotFoundError{NativeID: st.Message()}
		case codes.ResourceExhausted:
			return &adapters.RateLimitError{Err: err}
		case codes.Unavailable, codes.DeadlineExceeded, codes.Aborted:
			return &adapters.TransientError{Err: err}
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &adapters.TransientError{Err: err}
	}
	return err
}
