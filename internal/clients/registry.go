// Pulsarr-sub009 - Plex watchlist to Sonarr/Radarr acquisition bridge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package clients caches one downstream API client per configured
// instance. A client is replaced atomically when the instance's base URL
// or API key changes; a key-only change also builds a new client rather
// than reusing the cached one. Each instance gets
// its own rate-limit family ("sonarr:<id>" / "radarr:<id>") so one slow
// manager cannot starve the others.
package clients

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/jamcalli/Pulsarr-sub009/internal/arr"
	"github.com/jamcalli/Pulsarr-sub009/internal/labels"
	"github.com/jamcalli/Pulsarr-sub009/internal/models"
	"github.com/jamcalli/Pulsarr-sub009/internal/ratelimit"
	"github.com/jamcalli/Pulsarr-sub009/internal/reconcile"
	"github.com/jamcalli/Pulsarr-sub009/internal/submit"
)

// Registry builds and caches per-instance clients. It satisfies the
// client-resolution interfaces of the submit, reconcile, and labels
// packages.
type Registry struct {
	governor *ratelimit.Governor
	retry    ratelimit.RetryConfig
	family   ratelimit.FamilyConfig

	mu      sync.Mutex
	sonarrs map[int]*sonarrEntry
	radarrs map[int]*radarrEntry
}

type sonarrEntry struct {
	baseURL string
	apiKey  string
	client  *arr.SonarrClient
}

type radarrEntry struct {
	baseURL string
	apiKey  string
	client  *arr.RadarrClient
}

// NewRegistry constructs a Registry over the shared governor.
func NewRegistry(governor *ratelimit.Governor, retry ratelimit.RetryConfig, family ratelimit.FamilyConfig) *Registry {
	return &Registry{
		governor: governor,
		retry:    retry,
		family:   family,
		sonarrs:  make(map[int]*sonarrEntry),
		radarrs:  make(map[int]*radarrEntry),
	}
}

func (r *Registry) rlClient(familyName string) *ratelimit.Client {
	r.governor.Configure(familyName, r.family)
	return ratelimit.NewClient(r.governor, familyName, &http.Client{}, r.retry)
}

func (r *Registry) sonarr(inst *models.DownstreamInstance) *arr.SonarrClient {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.sonarrs[inst.ID]
	if ok && entry.baseURL == inst.BaseURL && entry.apiKey == inst.APIKey {
		return entry.client
	}
	// A base URL or key change builds a new client; rlClient re-runs
	// Configure for the instance's family, which replaces its limiter and
	// clears any active cooldown.
	client := arr.NewSonarr(inst.BaseURL, inst.APIKey, r.rlClient(fmt.Sprintf("sonarr:%d", inst.ID)))
	r.sonarrs[inst.ID] = &sonarrEntry{baseURL: inst.BaseURL, apiKey: inst.APIKey, client: client}
	return client
}

func (r *Registry) radarr(inst *models.DownstreamInstance) *arr.RadarrClient {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.radarrs[inst.ID]
	if ok && entry.baseURL == inst.BaseURL && entry.apiKey == inst.APIKey {
		return entry.client
	}
	client := arr.NewRadarr(inst.BaseURL, inst.APIKey, r.rlClient(fmt.Sprintf("radarr:%d", inst.ID)))
	r.radarrs[inst.ID] = &radarrEntry{baseURL: inst.BaseURL, apiKey: inst.APIKey, client: client}
	return client
}

// Sonarr resolves the submit-facing Sonarr surface.
func (r *Registry) Sonarr(inst *models.DownstreamInstance) submit.SonarrAPI { return r.sonarr(inst) }

// Radarr resolves the submit-facing Radarr surface.
func (r *Registry) Radarr(inst *models.DownstreamInstance) submit.RadarrAPI { return r.radarr(inst) }

// SonarrReader resolves the reconciler-facing Sonarr surface.
func (r *Registry) SonarrReader(inst *models.DownstreamInstance) reconcile.SonarrAPI {
	return r.sonarr(inst)
}

// RadarrReader resolves the reconciler-facing Radarr surface.
func (r *Registry) RadarrReader(inst *models.DownstreamInstance) reconcile.RadarrAPI {
	return r.radarr(inst)
}

// SonarrExpander resolves the rolling-monitoring Sonarr surface.
func (r *Registry) SonarrExpander(inst *models.DownstreamInstance) reconcile.SonarrExpander {
	return r.sonarr(inst)
}

// SonarrTagger resolves the tag-mirroring Sonarr surface.
func (r *Registry) SonarrTagger(inst *models.DownstreamInstance) labels.SonarrTagAPI {
	return r.sonarr(inst)
}

// RadarrTagger resolves the tag-mirroring Radarr surface.
func (r *Registry) RadarrTagger(inst *models.DownstreamInstance) labels.RadarrTagAPI {
	return r.radarr(inst)
}
