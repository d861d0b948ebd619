// Package aws adapts EC2 and CloudWatch to the cirrus adapter contract.
package aws

import (
	"context"
	"errors"
	"fmt"
	"sync"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/smithy-go"
	"golang.org/x/sync/errgroup"

	"github.com/veldt-io/cirrus/adapters"
	"github.com/veldt-io/cirrus/pricing"
	"github.com/veldt-io/cirrus/types"
)

// Concurrent region fan-out cap for ListInstances.
const maxRegionConcurrency = 4

func init() {
	adapters.Register(types.ProviderAWS, New)
}

// Adapter talks to one AWS account via static credentials.
type Adapter struct {
	cfg     awssdk.Config
	regions []string
}

// New builds an AWS adapter from the opaque credential blob. Required keys:
// access_key_id, secret_access_key; optional: session_token, region.
func New(_ context.Context, creds adapters.Credentials, regions []string) (adapters.CloudAdapter, error) {
	accessKey := creds["access_key_id"]
	secretKey := creds["secret_access_key"]
	if accessKey == "" || secretKey == "" {
		return nil, &adapters.AuthError{
			Provider: "aws",
			Err:      errors.New("access_key_id and secret_access_key are required"),
		}
	}

	defaultRegion := creds["region"]
	if defaultRegion == "" {
		defaultRegion = "us-east-1"
	}

	cfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(defaultRegion),
		awsconfig.WithCredentialsProvider(
			awscreds.NewStaticCredentialsProvider(accessKey, secretKey, creds["session_token"]),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &Adapter{cfg: cfg, regions: regions}, nil
}

// Name returns the provider type.
func (a *Adapter) Name() types.ProviderType {
	return types.ProviderAWS
}

func (a *Adapter) ec2Client(region string) *ec2.Client {
	return ec2.NewFromConfig(a.cfg, func(o *ec2.Options) {
		if region != "" {
			o.Region = region
		}
	})
}

func (a *Adapter) cloudwatchClient() *cloudwatch.Client {
	return cloudwatch.NewFromConfig(a.cfg)
}

// TestConnection validates the credential with a DescribeRegions call.
func (a *Adapter) TestConnection(ctx context.Context) error {
	_, err := a.ec2Client("").DescribeRegions(ctx, &ec2.DescribeRegionsInput{})
	if err != nil {
		return classify(err)
	}
	return nil
}

// ListInstances enumerates EC2 instances across every target region,
// draining pagination in each. Regions run concurrently; the first region
// failure aborts the whole enumeration.
func (a *Adapter) ListInstances(ctx context.Context, regions []string) ([]adapters.RawInstance, error) {
	targets := regions
	if len(targets) == 0 {
		targets = a.regions
	}
	if len(targets) == 0 {
		discovered, err := a.discoverRegions(ctx)
		if err != nil {
			return nil, err
		}
		targets = discovered
	}

	var mu sync.Mutex
	var all []adapters.RawInstance

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxRegionConcurrency)
	for _, region := range targets {
		g.Go(func() error {
			raw, err := a.listRegion(ctx, region)
			if err != nil {
				return fmt.Errorf("region %s: %w", region, err)
			}
			mu.Lock()
			all = append(all, raw...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return all, nil
}

func (a *Adapter) discoverRegions(ctx context.Context) ([]string, error) {
	out, err := a.ec2Client("").DescribeRegions(ctx, &ec2.DescribeRegionsInput{})
	if err != nil {
		return nil, classify(err)
	}
	regions := make([]string, 0, len(out.Regions))
	for _, r := range out.Regions {
		regions = append(regions, awssdk.ToString(r.RegionName))
	}
	return regions, nil
}

func (a *Adapter) listRegion(ctx context.Context, region string) ([]adapters.RawInstance, error) {
	client := a.ec2Client(region)
	paginator := ec2.NewDescribeInstancesPaginator(client, &ec2.DescribeInstancesInput{})

	var raw []adapters.RawInstance
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, classify(err)
		}
		for _, reservation := range page.Reservations {
			for _, instance := range reservation.Instances {
				raw = append(raw, convertInstance(instance, region))
			}
		}
	}
	return raw, nil
}

// GetInstance fetches one instance by native id, searching the target regions.
func (a *Adapter) GetInstance(ctx context.Context, nativeID string) (*adapters.RawInstance, error) {
	targets := a.regions
	if len(targets) == 0 {
		discovered, err := a.discoverRegions(ctx)
		if err != nil {
			return nil, err
		}
		targets = discovered
	}

	for _, region := range targets {
		out, err := a.ec2Client(region).DescribeInstances(ctx, &ec2.DescribeInstancesInput{
			InstanceIds: []string{nativeID},
		})
		if err != nil {
			if adapters.IsNotFound(classify(err)) {
				continue
			}
			return nil, classify(err)
		}
		for _, reservation := range out.Reservations {
			for _, instance := range reservation.Instances {
				raw := convertInstance(instance, region)
				return &raw, nil
			}
		}
	}
	return nil, &adapters.NotFoundError{NativeID: nativeID}
}

// StartInstance requests a start. Returns once EC2 accepts the request.
func (a *Adapter) StartInstance(ctx context.Context, nativeID string) error {
	return a.forEachRegionUntilFound(ctx, nativeID, func(client *ec2.Client) error {
		_, err := client.StartInstances(ctx, &ec2.StartInstancesInput{
			InstanceIds: []string{nativeID},
		})
		return err
	})
}

// StopInstance requests a stop.
func (a *Adapter) StopInstance(ctx context.Context, nativeID string) error {
	return a.forEachRegionUntilFound(ctx, nativeID, func(client *ec2.Client) error {
		_, err := client.StopInstances(ctx, &ec2.StopInstancesInput{
			InstanceIds: []string{nativeID},
		})
		return err
	})
}

// ResizeInstance changes the instance type. EC2 requires the instance
// stopped; the API rejects the call otherwise and the error surfaces as-is.
func (a *Adapter) ResizeInstance(ctx context.Context, nativeID, newType string) error {
	return a.forEachRegionUntilFound(ctx, nativeID, func(client *ec2.Client) error {
		_, err := client.ModifyInstanceAttribute(ctx, &ec2.ModifyInstanceAttributeInput{
			InstanceId:   awssdk.String(nativeID),
			InstanceType: &ec2types.AttributeValue{Value: awssdk.String(newType)},
		})
		return err
	})
}

// forEachRegionUntilFound runs op against each target region until one
// succeeds or fails with a non-NotFound error.
func (a *Adapter) forEachRegionUntilFound(ctx context.Context, nativeID string, op func(*ec2.Client) error) error {
	targets := a.regions
	if len(targets) == 0 {
		discovered, err := a.discoverRegions(ctx)
		if err != nil {
			return err
		}
		targets = discovered
	}

	for _, region := range targets {
		err := op(a.ec2Client(region))
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

// Normalize converts a raw EC2 snapshot to the canonical instance.
func (a *Adapter) Normalize(raw adapters.RawInstance, providerID string) types.Instance {
	// Catalog prices are approximations, never billing data.
	cost, _ := pricing.Estimate(types.ProviderAWS, raw.InstanceType)
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

func convertInstance(instance ec2types.Instance, region string) adapters.RawInstance {
	tags := make(map[string]string, len(instance.Tags))
	name := ""
	for _, tag := range instance.Tags {
		k, v := awssdk.ToString(tag.Key), awssdk.ToString(tag.Value)
		tags[k] = v
		if k == "Name" {
			name = v
		}
	}

	vcpus := 0
	if instance.CpuOptions != nil {
		vcpus = int(awssdk.ToInt32(instance.CpuOptions.CoreCount) * awssdk.ToInt32(instance.CpuOptions.ThreadsPerCore))
	}

	zone := ""
	if instance.Placement != nil {
		zone = awssdk.ToString(instance.Placement.AvailabilityZone)
	}

	raw := adapters.RawInstance{
		NativeID:     awssdk.ToString(instance.InstanceId),
		Name:         name,
		InstanceType: string(instance.InstanceType),
		Region:       region,
		Zone:         zone,
		VCPUs:        vcpus,
		PrivateIP:    awssdk.ToString(instance.PrivateIpAddress),
		PublicIP:     awssdk.ToString(instance.PublicIpAddress),
		LaunchedAt:   awssdk.ToTime(instance.LaunchTime),
		Tags:         tags,
	}
	if instance.State != nil {
		raw.NativeStatus = string(instance.State.Name)
	}
	return raw
}

// mapStatus maps an EC2 instance state to the canonical status.
func mapStatus(native string) types.InstanceStatus {
	switch native {
	case "pending":
		return types.StatusStarting
	case "running":
		return types.StatusRunning
	case "stopping", "shutting-down":
		return types.StatusStopping
	case "stopped":
		return types.StatusStopped
	case "terminated":
		return types.StatusTerminated
	}
	return types.StatusUnknown
}

// classify maps an AWS SDK error into the adapter error taxonomy.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "AuthFailure", "UnauthorizedOperation", "InvalidClientTokenId",
			"SignatureDoesNotMatch", "ExpiredToken":
			return &adapters.AuthError{Provider: "aws", Err: err}
		case "Throttling", "ThrottlingException", "RequestLimitExceeded":
			return &adapters.RateLimitError{Err: err}
		case "InvalidInstanceID.NotFound", "InvalidInstanceID.Malformed":
			return &adapters.NotFoundError{NativeID: apiErr.ErrorMessage()}
		case "RequestExpired", "ServiceUnavailable", "InternalError":
			return &adapters.TransientError{Err: err}
		}
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &adapters.TransientError{Err: err}
	}
	return err
}
