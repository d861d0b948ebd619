// Package credentials resolves a provider's opaque credential blob from a
// local YAML file keyed by credential ref. Blobs pass through to adapters
// untouched; nothing here interprets, logs, or persists their contents.
package credentials

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/veldt-io/cirrus/adapters"
	"github.com/veldt-io/cirrus/types"
)

// File is a loaded credential file: credential ref -> key/value blob.
type File struct {
	refs map[string]adapters.Credentials
}

type fileFormat struct {
	Credentials map[string]map[string]string `yaml:"credentials"`
}

// LoadFile reads and parses a credential file.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is intentional user input
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials file: %w", err)
	}

	var raw fileFormat
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse credentials file: %w", err)
	}

	refs := make(map[string]adapters.Credentials, len(raw.Credentials))
	for ref, blob := range raw.Credentials {
		refs[ref] = adapters.Credentials(blob)
	}
	return &File{refs: refs}, nil
}

// Lookup returns the blob for a credential ref.
func (f *File) Lookup(ref string) (adapters.Credentials, error) {
	blob, ok := f.refs[ref]
	if !ok {
		return nil, fmt.Errorf("credential ref %q not found", ref)
	}
	return blob, nil
}

// ProviderGetter is the slice of the store the resolver needs.
type ProviderGetter interface {
	GetProvider(ctx context.Context, id string) (*types.Provider, error)
}

// Resolver maps a provider id to its credential blob via the provider's
// credential ref.
type Resolver struct {
	providers ProviderGetter
	file      *File
}

// NewResolver creates a resolver backed by the given provider source and
// credential file.
func NewResolver(providers ProviderGetter, file *File) *Resolver {
	return &Resolver{providers: providers, file: file}
}

// Resolve returns the credential blob for the provider.
func (r *Resolver) Resolve(ctx context.Context, providerID string) (adapters.Credentials, error) {
	provider, err := r.providers.GetProvider(ctx, providerID)
	if err != nil {
		return nil, err
	}
	if provider.CredentialRef == "" {
		return nil, fmt.Errorf("provider %s has no credential ref", providerID)
	}
	return r.file.Lookup(provider.CredentialRef)
}
