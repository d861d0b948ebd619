// Package openstack adapts Nova to the cirrus adapter contract via
// gophercloud.
package openstack

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gophercloud/gophercloud/v2"
	gopheros "github.com/gophercloud/gophercloud/v2/openstack"
	"github.com/gophercloud/gophercloud/v2/openstack/compute/v2/servers"

	"github.com/veldt-io/cirrus/adapters"
	"github.com/veldt-io/cirrus/pricing"
	"github.com/veldt-io/cirrus/types"
)

func init() {
	adapters.Register(types.ProviderOpenStack, New)
}

// Adapter talks to one OpenStack cloud through a Keystone-authenticated
// provider client. Compute clients are built per region.
type Adapter struct {
	client  *gophercloud.ProviderClient
	regions []string
}

// New authenticates against Keystone. Required keys: auth_url, username,
// password; optional: project_name, project_id, domain_name, region_name.
func New(ctx context.Context, creds adapters.Credentials, regions []string) (adapters.CloudAdapter, error) {
	if creds["auth_url"] == "" || creds["username"] == "" || creds["password"] == "" {
		return nil, &adapters.AuthError{
			Provider: "openstack",
			Err:      errors.New("auth_url, username and password are required"),
		}
	}

	domain := creds["domain_name"]
	if domain == "" {
		domain = "Default"
	}

	opts := gophercloud.AuthOptions{
		IdentityEndpoint: creds["auth_url"],
		Username:         creds["username"],
		Password:         creds["password"],
		DomainName:       domain,
		TenantName:       creds["project_name"],
		TenantID:         creds["project_id"],
		AllowReauth:      true,
	}

	client, err := gopheros.AuthenticatedClient(ctx, opts)
	if err != nil {
		return nil, classify(err)
	}

	if len(regions) == 0 && creds["region_name"] != "" {
		regions = []string{creds["region_name"]}
	}

	return &Adapter{client: client, regions: regions}, nil
}

// Name returns the provider type.
func (a *Adapter) Name() types.ProviderType {
	return types.ProviderOpenStack
}

func (a *Adapter) computeClient(region string) (*gophercloud.ServiceClient, error) {
	client, err := gopheros.NewComputeV2(a.client, gophercloud.EndpointOpts{Region: region})
	if err != nil {
		return nil, classify(err)
	}
	return client, nil
}

func (a *Adapter) targetRegions(regions []string) []string {
	if len(regions) > 0 {
		return regions
	}
	if len(a.regions) > 0 {
		return a.regions
	}
	// Empty region selects the catalog's sole/default compute endpoint.
	return []string{""}
}

// TestConnection validates the token against one compute endpoint.
func (a *Adapter) TestConnection(ctx context.Context) error {
	client, err := a.computeClient(a.targetRegions(nil)[0])
	if err != nil {
		return err
	}
	if _, err := servers.List(client, servers.ListOpts{Limit: 1}).AllPages(ctx); err != nil {
		return classify(err)
	}
	return nil
}

// ListInstances drains the Nova server list for every target region.
func (a *Adapter) ListInstances(ctx context.Context, regions []string) ([]adapters.RawInstance, error) {
	var all []adapters.RawInstance
	for _, region := range a.targetRegions(regions) {
		client, err := a.computeClient(region)
		if err != nil {
			return nil, err
		}

		pages, err := servers.List(client, servers.ListOpts{}).AllPages(ctx)
		if err != nil {
			return nil, classify(err)
		}
		list, err := servers.ExtractServers(pages)
		if err != nil {
			return nil, fmt.Errorf("extracting servers: %w", err)
		}

		for i := range list {
			all = append(all, convertServer(&list[i], region))
		}
	}
	return all, nil
}

// GetInstance fetches one server by id, searching the target regions.
func (a *Adapter) GetInstance(ctx context.Context, nativeID string) (*adapters.RawInstance, error) {
	for _, region := range a.targetRegions(nil) {
		client, err := a.computeClient(region)
		if err != nil {
			return nil, err
		}
		server, err := servers.Get(ctx, client, nativeID).Extract()
		if err != nil {
			classified := classify(err)
			if adapters.IsNotFound(classified) {
				continue
			}
			return nil, classified
		}
		raw := convertServer(server, region)
		return &raw, nil
	}
	return nil, &adapters.NotFoundError{NativeID: nativeID}
}

// StartInstance requests os-start on the server.
func (a *Adapter) StartInstance(ctx context.Context, nativeID string) error {
	return a.action(ctx, nativeID, func(client *gophercloud.ServiceClient) error {
		return servers.Start(ctx, client, nativeID).ExtractErr()
	})
}

// StopInstance requests os-stop on the server.
func (a *Adapter) StopInstance(ctx context.Context, nativeID string) error {
	return a.action(ctx, nativeID, func(client *gophercloud.ServiceClient) error {
		return servers.Stop(ctx, client, nativeID).ExtractErr()
	})
}

// ResizeInstance requests a resize to the named flavor. Nova leaves the
// server in VERIFY_RESIZE until confirmed; confirmation is the operator's
// call, not ours.
func (a *Adapter) ResizeInstance(ctx context.Context, nativeID, newType string) error {
	return a.action(ctx, nativeID, func(client *gophercloud.ServiceClient) error {
		return servers.Resize(ctx, client, nativeID, servers.ResizeOpts{FlavorRef: newType}).ExtractErr()
	})
}

func (a *Adapter) action(ctx context.Context, nativeID string, op func(*gophercloud.ServiceClient) error) error {
	for _, region := range a.targetRegions(nil) {
		client, err := a.computeClient(region)
		if err != nil {
			return err
		}
		err = op(client)
		if err == nil {
			return nil
		}
		classified := classify(err)
		if adapters.IsNotFound(classified) {
			continue
		}
		return classified
	}
	return &adapters.NotFoundError{NativeID: nativeID}
}

// GetMetrics is unsupported: Nova exposes no usage metrics without a
// telemetry service deployment, which most clouds we mirror lack.
func (a *Adapter) GetMetrics(_ context.Context, _ string, metricType types.MetricType, _ adapters.MetricWindow) ([]adapters.RawMetric, error) {
	return nil, &adapters.UnsupportedError{Provider: "openstack", Op: string(metricType) + " metrics"}
}

// Normalize converts a raw Nova snapshot to the canonical instance.
func (a *Adapter) Normalize(raw adapters.RawInstance, providerID string) types.Instance {
	cost, _ := pricing.Estimate(types.ProviderOpenStack, raw.InstanceType)
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

func convertServer(server *servers.Server, region string) adapters.RawInstance {
	raw := adapters.RawInstance{
		NativeID:     server.ID,
		Name:         server.Name,
		NativeStatus: server.Status,
		Region:       region,
		Zone:         server.AvailabilityZone,
		LaunchedAt:   server.Created,
		Tags:         server.Metadata,
	}
	raw.InstanceType, raw.VCPUs, raw.MemoryMB = flavorInfo(server.Flavor)
	raw.PrivateIP, raw.PublicIP = extractAddresses(server.Addresses)
	return raw
}

// flavorInfo reads the embedded flavor block. Microversion 2.47 and later
// embeds original_name, vcpus and ram; older clouds only give the id.
func flavorInfo(flavor map[string]any) (name string, vcpus, memoryMB int) {
	if v, ok := flavor["original_name"].(string); ok {
		name = v
	} else if v, ok := flavor["id"].(string); ok {
		name = v
	}
	if v, ok := flavor["vcpus"].(float64); ok {
		vcpus = int(v)
	}
	if v, ok := flavor["ram"].(float64); ok {
		memoryMB = int(v)
	}
	return name, vcpus, memoryMB
}

// extractAddresses picks the first fixed and floating IP across networks.
func extractAddresses(addresses map[string]any) (privateIP, publicIP string) {
	for _, network := range addresses {
		entries, ok := network.([]any)
		if !ok {
			continue
		}
		for _, entry := range entries {
			attrs, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			addr, _ := attrs["addr"].(string)
			if addr == "" {
				continue
			}
			ipType, _ := attrs["OS-EXT-IPS:type"].(string)
			switch ipType {
			case "floating":
				if publicIP == "" {
					publicIP = addr
				}
			default:
				if privateIP == "" {
					privateIP = addr
				}
			}
		}
	}
	return privateIP, publicIP
}

// mapStatus maps a Nova server status to the canonical status.
func mapStatus(native string) types.InstanceStatus {
	switch native {
	case "ACTIVE":
		return types.StatusRunning
	case "BUILD", "REBOOT", "HARD_REBOOT", "REBUILD", "RESIZE",
		"VERIFY_RESIZE", "REVERT_RESIZE":
		return types.StatusStarting
	case "SHUTOFF", "PAUSED", "SUSPENDED", "SHELVED", "SHELVED_OFFLOADED":
		return types.StatusStopped
	case "DELETED", "SOFT_DELETED":
		return types.StatusTerminated
	}
	return types.StatusUnknown
}

// classify maps a gophercloud error into the adapter error taxonomy.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var respErr gophercloud.ErrUnexpectedResponseCode
	if errors.As(err, &respErr) {
		switch {
		case respErr.Actual == 401 || respErr.Actual == 403:
			return &adapters.AuthError{Provider: "openstack", Err: err}
		case respErr.Actual == 404:
			return &adapters.NotFoundError{NativeID: respErr.URL}
		case respErr.Actual == 429:
			return &adapters.RateLimitError{RetryAfter: retryAfter(&respErr), Err: err}
		case respErr.Actual >= 500:
			return &adapters.TransientError{Err: err}
		}
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &adapters.TransientError{Err: err}
	}
	return err
}

func retryAfter(respErr *gophercloud.ErrUnexpectedResponseCode) time.Duration {
	if v := respErr.ResponseHeader.Get("Retry-After"); v != "" {
		if d, err := time.ParseDuration(v + "s"); err == nil {
			return d
		}
	}
	return 0
}
