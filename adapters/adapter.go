// Package adapters defines the capability contract every cloud adapter
// implements, plus the type-tagged factory registry that binds a
// types.ProviderType to its one concrete adapter.
package adapters

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/veldt-io/cirrus/types"
)

// Credentials is the opaque credential blob resolved for a provider.
// Adapters pull the keys they need; nothing else ever logs or stores it.
type Credentials map[string]string

// RawInstance is a provider-native instance snapshot flattened into
// neutral fields, before canonical normalization.
type RawInstance struct {
	NativeID     string
	Name         string
	NativeStatus string
	InstanceType string
	Region       string
	Zone         string
	VCPUs        int
	MemoryMB     int
	PrivateIP    string
	PublicIP     string
	LaunchedAt   time.Time
	Tags         map[string]string
}

// RawMetric is a single provider-native metric data point.
type RawMetric struct {
	Timestamp time.Time
	Value     float64
	Unit      string
}

// MetricWindow bounds a metric query.
type MetricWindow struct {
	Start  time.Time
	End    time.Time
	Period time.Duration
}

// CloudAdapter is the uniform contract over heterogeneous provider APIs.
//
// ListInstances must drain pagination completely across every region/zone
// the credential can see (or the explicit region filter); a partial page is
// an error, never a silently short result. Start/Stop/Resize are
// fire-and-confirm: they return once the provider accepts the request, and
// the next sync observes the terminal state. Normalize is pure.
type CloudAdapter interface {
	Name() types.ProviderType

	TestConnection(ctx context.Context) error
	ListInstances(ctx context.Context, regions []string) ([]RawInstance, error)
	GetInstance(ctx context.Context, nativeID string) (*RawInstance, error)

	StartInstance(ctx context.Context, nativeID string) error
	StopInstance(ctx context.Context, nativeID string) error
	ResizeInstance(ctx context.Context, nativeID, newType string) error

	GetMetrics(ctx context.Context, nativeID string, metricType types.MetricType, window MetricWindow) ([]RawMetric, error)

	Normalize(raw RawInstance, providerID string) types.Instance
}

// Factory opens a connected adapter for the given credentials. The
// handshake must be idempotent and must not mutate provider state; bad
// credentials surface as AuthError.
type Factory func(ctx context.Context, creds Credentials, regions []string) (CloudAdapter, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[types.ProviderType]Factory)
)

// Register binds a provider type to its adapter factory. Exactly one
// factory per type; later registrations replace earlier ones.
func Register(pt types.ProviderType, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[pt] = factory
}

// Open connects the adapter registered for the provider type.
func Open(ctx context.Context, pt types.ProviderType, creds Credentials, regions []string) (CloudAdapter, error) {
	registryMu.RLock()
	factory, ok := registry[pt]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no adapter registered for provider type %q", pt)
	}
	return factory(ctx, creds, regions)
}

// Registered returns the provider types with a registered adapter, sorted.
func Registered() []types.ProviderType {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]types.ProviderType, 0, len(registry))
	for pt := range registry {
		names = append(names, pt)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}
