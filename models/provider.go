package models

import (
	"errors"
	"fmt"
)

// ProviderCategory represents the backend family of a provider
type ProviderCategory string

const (
	CategoryCommercialAPI ProviderCategory = "commercial_api"
	CategoryLocalServer   ProviderCategory = "local_server"
	CategoryAggregator    ProviderCategory = "aggregator"
	CategoryCustom        ProviderCategory = "custom"
)

// ProviderIdentity identifies an external LLM backend.
// It is an immutable value object; equality is by name.
type ProviderIdentity struct {
	Name     string
	Category ProviderCategory
	Region   string
	Version  string
}

// NewProviderIdentity creates a validated ProviderIdentity
func NewProviderIdentity(name string, category ProviderCategory, opts ...ProviderIdentityOption) (ProviderIdentity, error) {
	if name == "" {
		return ProviderIdentity{}, errors.New("provider name cannot be empty")
	}

	switch category {
	case CategoryCommercialAPI, CategoryLocalServer, CategoryAggregator, CategoryCustom:
	default:
		return ProviderIdentity{}, fmt.Errorf("unknown provider category: %q", category)
	}

	p := ProviderIdentity{
		Name:     name,
		Category: category,
	}
	for _, opt := range opts {
		opt(&p)
	}

	return p, nil
}

// ProviderIdentityOption configures optional ProviderIdentity fields
type ProviderIdentityOption func(*ProviderIdentity)

// WithRegion sets the provider region
func WithRegion(region string) ProviderIdentityOption {
	return func(p *ProviderIdentity) { p.Region = region }
}

// WithVersion sets the provider API version
func WithVersion(version string) ProviderIdentityOption {
	return func(p *ProviderIdentity) { p.Version = version }
}

// Equal reports whether two identities refer to the same provider
func (p ProviderIdentity) Equal(other ProviderIdentity) bool {
	return p.Name == other.Name
}

// String returns a human-readable representation
func (p ProviderIdentity) String() string {
	if p.Region != "" {
		return fmt.Sprintf("%s (%s, %s)", p.Name, p.Category, p.Region)
	}
	return fmt.Sprintf("%s (%s)", p.Name, p.Category)
}
