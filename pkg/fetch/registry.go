// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

package fetch

import "ipsetkeeper/pkg/model"

// Registry maps a FetcherKind to the Fetcher implementing it. Populated at
// configuration load time so an unknown kind fails at load, not at run
// (spec.md §9's "string-keyed dispatch" re-architecture note).
type Registry struct {
	byKind map[model.FetcherKind]Fetcher
}

// NewRegistry builds the default registry: HTTP conditional GET, local
// copy, and composite reuse. composite's Fetched map is shared with the
// orchestrator so it can be populated as each feed's primary fetch lands.
func NewRegistry(fetched map[string]Result) *Registry {
	return &Registry{byKind: map[model.FetcherKind]Fetcher{
		model.FetcherHTTP:      &HTTPFetcher{},
		model.FetcherLocal:     LocalFetcher{},
		model.FetcherComposite: CompositeFetcher{Fetched: fetched},
	}}
}

// Register adds or overrides the Fetcher for kind, for tests or deployments
// that supply a custom adapter.
func (r *Registry) Register(kind model.FetcherKind, f Fetcher) {
	r.byKind[kind] = f
}

// Lookup returns the Fetcher for kind, or ErrUnknownFetcher.
func (r *Registry) Lookup(kind model.FetcherKind) (Fetcher, error) {
	f, ok := r.byKind[kind]
	if !ok {
		return nil, ErrUnknownFetcher
	}
	return f, nil
}
