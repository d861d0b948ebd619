// Package azure adapts Azure Resource Manager compute and monitor APIs to
// the cirrus adapter contract.
package azure

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/arm"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/compute/armcompute/v6"

	"github.com/veldt-io/cirrus/adapters"
	"github.com/veldt-io/cirrus/pricing"
	"github.com/veldt-io/cirrus/types"
)

func init() {
	adapters.Register(types.ProviderAzure, New)
}

// Adapter talks to one Azure subscription via a service principal. The
// native instance id is the full ARM resource id: it is the only identifier
// that is both unique and sufficient to address the VM again.
type Adapter struct {
	vms     *armcompute.VirtualMachinesClient
	metrics metricsLister
	regions []string
}

// New builds an Azure adapter from the opaque credential blob. Required
// keys: tenant_id, client_id, client_secret, subscription_id.
func New(_ context.Context, creds adapters.Credentials, regions []string) (adapters.CloudAdapter, error) {
	for _, key := range []string{"tenant_id", "client_id", "client_secret", "subscription_id"} {
		if creds[key] == "" {
			return nil, &adapters.AuthError{
				Provider: "azure",
				Err:      fmt.Errorf("%s is required", key),
			}
		}
	}

	cred, err := azidentity.NewClientSecretCredential(
		creds["tenant_id"], creds["client_id"], creds["client_secret"], nil)
	if err != nil {
		return nil, &adapters.AuthError{Provider: "azure", Err: err}
	}

	vms, err := armcompute.NewVirtualMachinesClient(creds["subscription_id"], cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create compute client: %w", err)
	}

	metrics, err := newMetricsClient(cred)
	if err != nil {
		return nil, fmt.Errorf("failed to create monitor client: %w", err)
	}

	return &Adapter{vms: vms, metrics: metrics, regions: regions}, nil
}

// Name returns the provider type.
func (a *Adapter) Name() types.ProviderType {
	return types.ProviderAzure
}

// TestConnection validates the service principal by pulling one VM page.
func (a *Adapter) TestConnection(ctx context.Context) error {
	pager := a.vms.NewListAllPager(nil)
	if pager.More() {
		if _, err := pager.NextPage(ctx); err != nil {
			return classify(err)
		}
	}
	return nil
}

// ListInstances drains the subscription-wide VM list with the instance view
// expanded for power states. ARM has no server-side location filter on
// ListAll, so the region filter applies client-side.
func (a *Adapter) ListInstances(ctx context.Context, regions []string) ([]adapters.RawInstance, error) {
	targets := regions
	if len(targets) == 0 {
		targets = a.regions
	}

	expand := armcompute.ExpandTypesForListVMsInstanceView
	pager := a.vms.NewListAllPager(&armcompute.VirtualMachinesClientListAllOptions{
		Expand: &expand,
	})

	var all []adapters.RawInstance
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, classify(err)
		}
		for _, vm := range page.Value {
			if vm == nil {
				continue
			}
			if len(targets) > 0 && !regionMatches(deref(vm.Location), targets) {
				continue
			}
			all = append(all, convertVM(vm))
		}
	}
	return all, nil
}

// GetInstance fetches one VM by its ARM resource id.
func (a *Adapter) GetInstance(ctx context.Context, nativeID string) (*adapters.RawInstance, error) {
	id, err := parseVMID(nativeID)
	if err != nil {
		return nil, err
	}

	view := armcompute.InstanceViewTypesInstanceView
	resp, err := a.vms.Get(ctx, id.ResourceGroupName, id.Name, &armcompute.VirtualMachinesClientGetOptions{
		Expand: &view,
	})
	if err != nil {
		return nil, classify(err)
	}
	raw := convertVM(&resp.VirtualMachine)
	return &raw, nil
}

// StartInstance requests a start. The poller is dropped: fire-and-confirm.
func (a *Adapter) StartInstance(ctx context.Context, nativeID string) error {
	id, err := parseVMID(nativeID)
	if err != nil {
		return err
	}
	if _, err := a.vms.BeginStart(ctx, id.ResourceGroupName, id.Name, nil); err != nil {
		return classify(err)
	}
	return nil
}

// StopInstance deallocates the VM so compute charges stop, not just the OS.
func (a *Adapter) StopInstance(ctx context.Context, nativeID string) error {
	id, err := parseVMID(nativeID)
	if err != nil {
		return err
	}
	if _, err := a.vms.BeginDeallocate(ctx, id.ResourceGroupName, id.Name, nil); err != nil {
		return classify(err)
	}
	return nil
}

// ResizeInstance patches the hardware profile to the new size.
func (a *Adapter) ResizeInstance(ctx context.Context, nativeID, newType string) error {
	id, err := parseVMID(nativeID)
	if err != nil {
		return err
	}

	size := armcompute.VirtualMachineSizeTypes(newType)
	update := armcompute.VirtualMachineUpdate{
		Properties: &armcompute.VirtualMachineProperties{
			HardwareProfile: &armcompute.HardwareProfile{VMSize: &size},
		},
	}
	if _, err := a.vms.BeginUpdate(ctx, id.ResourceGroupName, id.Name, update, nil); err != nil {
		return classify(err)
	}
	return nil
}

// Normalize converts a raw VM snapshot to the canonical instance.
func (a *Adapter) Normalize(raw adapters.RawInstance, providerID string) types.Instance {
	cost, _ := pricing.Estimate(types.ProviderAzure, raw.InstanceType)
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

func convertVM(vm *armcompute.VirtualMachine) adapters.RawInstance {
	raw := adapters.RawInstance{
		NativeID: deref(vm.ID),
		Name:     deref(vm.Name),
		Region:   deref(vm.Location),
	}

	if len(vm.Zones) > 0 {
		raw.Zone = deref(vm.Zones[0])
	}

	if len(vm.Tags) > 0 {
		raw.Tags = make(map[string]string, len(vm.Tags))
		for k, v := range vm.Tags {
			raw.Tags[k] = deref(v)
		}
	}

	if props := vm.Properties; props != nil {
		if props.HardwareProfile != nil && props.HardwareProfile.VMSize != nil {
			raw.InstanceType = string(*props.HardwareProfile.VMSize)
		}
		if props.TimeCreated != nil {
			raw.LaunchedAt = *props.TimeCreated
		}
		raw.NativeStatus = powerState(props.InstanceView)
	}
	return raw
}

// powerState extracts the PowerState/* status code from the instance view.
func powerState(view *armcompute.VirtualMachineInstanceView) string {
	if view == nil {
		return ""
	}
	for _, status := range view.Statuses {
		if status == nil || status.Code == nil {
			continue
		}
		if state, ok := strings.CutPrefix(*status.Code, "PowerState/"); ok {
			return state
		}
	}
	return ""
}

// mapStatus maps an Azure power state to the canonical status.
func mapStatus(native string) types.InstanceStatus {
	switch native {
	case "running":
		return types.StatusRunning
	case "starting":
		return types.StatusStarting
	case "stopping", "deallocating":
		return types.StatusStopping
	case "stopped", "deallocated":
		return types.StatusStopped
	}
	return types.StatusUnknown
}

func parseVMID(nativeID string) (*arm.ResourceID, error) {
	id, err := arm.ParseResourceID(nativeID)
	if err != nil {
		return nil, &adapters.NotFoundError{NativeID: nativeID}
	}
	return id, nil
}

func regionMatches(location string, targets []string) bool {
	for _, t := range targets {
		if strings.EqualFold(location, t) {
			return true
		}
	}
	return false
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// classify maps an ARM error into the adapter error taxonomy.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		switch {
		case respErr.StatusCode == 401 || respErr.StatusCode == 403:
			return &adapters.AuthError{Provider: "azure", Err: err}
		case respErr.StatusCode == 404:
			return &adapters.NotFoundError{NativeID: respErr.ErrorCode}
		case respErr.StatusCode == 429:
			return &adapters.RateLimitError{RetryAfter: retryAfter(respErr), Err: err}
		case respErr.StatusCode >= 500:
			return &adapters.TransientError{Err: err}
		}
		return err
	}

	var authErr *azidentity.AuthenticationFailedError
	if errors.As(err, &authErr) {
		return &adapters.AuthError{Provider: "azure", Err: err}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &adapters.TransientError{Err: err}
	}
	return err
}

func retryAfter(respErr *azcore.ResponseError) time.Duration {
	if respErr.RawResponse == nil {
		return 0
	}
	if v := respErr.RawResponse.Header.Get("Retry-After"); v != "" {
		if d, err := time.ParseDuration(v + "s"); err == nil {
			return d
		}
	}
	return 0
}
