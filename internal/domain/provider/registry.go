package provider

import (
	"context"
	"fmt"
	"slices"
)

// Descriptor is the registry's public view of a provider, annotated for
// one specific user region.
type Descriptor struct {
	ID                string   `json:"id"`
	Name              string   `json:"name"`
	Logo              string   `json:"logo"`
	Regions           []string `json:"regions"`
	SupportedInRegion bool     `json:"supportedInRegion"`
	Features          []string `json:"features"`
}

// Registry holds the compiled set of provider implementations. It is
// constructed once at process start and passed in explicitly so tests can
// substitute fake providers.
type Registry struct {
	providers map[string]Provider
	order     []string
}

// NewRegistry builds a registry from the given providers, preserving
// registration order for listing.
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		if _, dup := r.providers[p.ID()]; dup {
			continue
		}
		r.providers[p.ID()] = p
		r.order = append(r.order, p.ID())
	}
	return r
}

// Get returns the provider registered under id.
func (r *Registry) Get(id string) (Provider, error) {
	p, ok := r.providers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, id)
	}
	return p, nil
}

// ListForRegion returns every available provider annotated with whether it
// operates in the user's region. Unsupported-in-region providers are still
// listed so the caller can show them as "coming soon".
func (r *Registry) ListForRegion(region string) []Descriptor {
	descriptors := make([]Descriptor, 0, len(r.order))
	for _, id := range r.order {
		p := r.providers[id]
		if !p.IsAvailable() {
			continue
		}
		descriptors = append(descriptors, Descriptor{
			ID:                id,
			Name:              p.Name(),
			Logo:              p.Logo(),
			Regions:           p.Regions(),
			SupportedInRegion: region == "" || slices.Contains(p.Regions(), region),
			Features:          p.Features(),
		})
	}
	return descriptors
}

// LinkInitiationFor enforces availability and region gating before
// delegating to the provider. Unsupported-region providers fail with
// ErrUnsupportedRegion without any network call.
func (r *Registry) LinkInitiationFor(ctx context.Context, id, userID, region, redirectTarget string) (*LinkInitiation, error) {
	p, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	if !p.IsAvailable() {
		return nil, fmt.Errorf("%w: %s", ErrProviderUnavailable, id)
	}
	if region != "" && !slices.Contains(p.Regions(), region) {
		return nil, fmt.Errorf("%w: %s is not offered in %s", ErrUnsupportedRegion, p.Name(), region)
	}
	return p.CreateLinkInitiation(ctx, userID, redirectTarget)
}
