// Pulsarr-sub009 - Plex watchlist to Sonarr/Radarr acquisition bridge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package submit performs the batched fan-out of one routing decision to
// its primary and synced downstream instances. Per-instance calls run in
// parallel under a bounded errgroup; a per-instance failure is isolated
// and reported without aborting the rest of the batch. Rolling
// monitoring values are translated to their concrete form here and a
// tracking record is created for later expansion.
package submit

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jamcalli/Pulsarr-sub009/internal/arr"
	"github.com/jamcalli/Pulsarr-sub009/internal/logging"
	"github.com/jamcalli/Pulsarr-sub009/internal/models"
	"github.com/jamcalli/Pulsarr-sub009/internal/progress"
)

// SonarrAPI is the Sonarr-like surface the submitter needs, satisfied by
// *arr.SonarrClient.
type SonarrAPI interface {
	EnsureTags(ctx context.Context, labels []string) ([]int, error)
	AddSeries(ctx context.Context, req arr.AddSeriesRequest) (*arr.Series, error)
}

// RadarrAPI is the Radarr-like surface, satisfied by *arr.RadarrClient.
type RadarrAPI interface {
	EnsureTags(ctx context.Context, labels []string) ([]int, error)
	AddMovie(ctx context.Context, req arr.AddMovieRequest) (*arr.Movie, error)
}

// Clients resolves the API client for one configured instance. The
// concrete implementation caches clients and swaps them atomically when
// an instance's base URL changes.
type Clients interface {
	Sonarr(inst *models.DownstreamInstance) SonarrAPI
	Radarr(inst *models.DownstreamInstance) RadarrAPI
}

// Store is the persistence the submitter needs: instance resolution and
// rolling-show tracking.
type Store interface {
	Instance(ctx context.Context, id int) (*models.DownstreamInstance, error)
	CreateRollingShow(ctx context.Context, r *models.RollingShow) error
}

// InstanceResult is the outcome of one per-instance submission.
type InstanceResult struct {
	InstanceID int
	Err        error
}

// Result bundles the per-instance outcomes of one fan-out.
type Result struct {
	Primary InstanceResult
	Synced  []InstanceResult
}

// Succeeded reports whether the primary submission went through. Synced
// failures are isolated and do not fail the decision.
func (r Result) Succeeded() bool { return r.Primary.Err == nil }

// Submitter fans one decision out to its instances.
type Submitter struct {
	store       Store
	clients     Clients
	bus         *progress.Bus
	concurrency int
}

// New constructs a Submitter with the given fan-out concurrency bound.
func New(store Store, clients Clients, bus *progress.Bus, concurrency int) *Submitter {
	if concurrency < 1 {
		concurrency = 4
	}
	return &Submitter{store: store, clients: clients, bus: bus, concurrency: concurrency}
}

// Submit applies decision for item: the primary instance with the
// decision's overrides, each synced instance with its own defaults.
func (s *Submitter) Submit(ctx context.Context, item *models.WatchlistItem, decision models.RouterDecision) (Result, error) {
	opID := fmt.Sprintf("submit-%d-%d", item.ID, time.Now().UnixNano())
	targets := 1 + len(decision.SyncedInstanceIDs)
	s.publish(ctx, opID, "start", 0, fmt.Sprintf("submitting %q to %d instance(s)", item.Title, targets))

	result := Result{Primary: InstanceResult{InstanceID: decision.PrimaryInstanceID}}
	result.Synced = make([]InstanceResult, len(decision.SyncedInstanceIDs))
	for i, id := range decision.SyncedInstanceIDs {
		result.Synced[i] = InstanceResult{InstanceID: id}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	g.Go(func() error {
		result.Primary.Err = s.submitOne(gctx, item, decision.PrimaryInstanceID, &decision)
		return nil
	})
	for i := range result.Synced {
		g.Go(func() error {
			result.Synced[i].Err = s.submitOne(gctx, item, result.Synced[i].InstanceID, nil)
			return nil
		})
	}
	_ = g.Wait()

	done := 0
	for _, r := range append([]InstanceResult{result.Primary}, result.Synced...) {
		if r.Err == nil {
			done++
		} else {
			logging.Warn().Err(r.Err).Str("component", "submitter").
				Int("instance_id", r.InstanceID).Str("title", item.Title).
				Msg("instance submission failed")
		}
	}
	s.publish(ctx, opID, "done", 100, fmt.Sprintf("%d/%d instances accepted %q", done, targets, item.Title))

	if result.Primary.Err != nil {
		return result, result.Primary.Err
	}
	return result, nil
}

// submitOne adds item to one instance. overrides is non-nil only for the
// primary; synced instances use their own defaults.
func (s *Submitter) submitOne(ctx context.Context, item *models.WatchlistItem, instanceID int, overrides *models.RouterDecision) error {
	inst, err := s.store.Instance(ctx, instanceID)
	if err != nil {
		return err
	}
	if inst == nil {
		return fmt.Errorf("submit: instance %d is not configured", instanceID)
	}

	spec := specFor(inst, overrides)
	if inst.TargetType == models.TargetSonarr {
		return s.submitSeries(ctx, item, inst, spec)
	}
	return s.submitMovie(ctx, item, inst, spec)
}

// resolvedSpec is the per-instance submission parameters after the
// overrides-vs-defaults merge.
type resolvedSpec struct {
	RootFolder          string
	QualityProfile      string
	Tags                []string
	SearchOnAdd         bool
	SeasonMonitoring    string
	Monitor             string
	SeriesType          string
	MinimumAvailability string
}

func specFor(inst *models.DownstreamInstance, overrides *models.RouterDecision) resolvedSpec {
	d := inst.Defaults
	spec := resolvedSpec{
		RootFolder:          d.RootFolder,
		QualityProfile:      d.QualityProfile,
		Tags:                d.Tags,
		SearchOnAdd:         d.SearchOnAdd,
		SeasonMonitoring:    d.SeasonMonitoring,
		Monitor:             d.Monitor,
		SeriesType:          d.SeriesType,
		MinimumAvailability: d.MinimumAvailability,
	}
	if overrides == nil {
		return spec
	}
	if overrides.RootFolder != "" {
		spec.RootFolder = overrides.RootFolder
	}
	if overrides.QualityProfile != "" {
		spec.QualityProfile = overrides.QualityProfile
	}
	if len(overrides.Tags) > 0 {
		spec.Tags = overrides.Tags
	}
	spec.SearchOnAdd = spec.SearchOnAdd || overrides.SearchOnAdd
	if overrides.SeasonMonitoring != "" {
		spec.SeasonMonitoring = overrides.SeasonMonitoring
	}
	if overrides.Monitor != "" {
		spec.Monitor = overrides.Monitor
	}
	if overrides.SeriesType != "" {
		spec.SeriesType = overrides.SeriesType
	}
	if overrides.MinimumAvailability != "" {
		spec.MinimumAvailability = overrides.MinimumAvailability
	}
	return spec
}

func (s *Submitter) submitSeries(ctx context.Context, item *models.WatchlistItem, inst *models.DownstreamInstance, spec resolvedSpec) error {
	tvdbID := guidInt(item.GUIDs, "tvdb")
	if tvdbID == 0 {
		return fmt.Errorf("submit: %q carries no tvdb guid", item.Title)
	}

	api := s.clients.Sonarr(inst)
	tagIDs, err := api.EnsureTags(ctx, spec.Tags)
	if err != nil {
		return err
	}

	monitoring, rolling := models.ConcreteMonitoring(spec.SeasonMonitoring)
	if _, err := api.AddSeries(ctx, arr.AddSeriesRequest{
		TVDBID:           tvdbID,
		Title:            item.Title,
		RootFolder:       spec.RootFolder,
		QualityProfileID: atoiSafe(spec.QualityProfile),
		Tags:             tagIDs,
		SearchOnAdd:      spec.SearchOnAdd,
		SeasonMonitoring: monitoring,
		SeriesType:       spec.SeriesType,
	}); err != nil {
		return err
	}

	if rolling {
		startSeason := 1
		if err := s.store.CreateRollingShow(ctx, &models.RollingShow{
			WatchlistItemID:    item.ID,
			SonarrInstanceID:   inst.ID,
			MonitoredSeason:    startSeason,
			StartingMonitoring: spec.SeasonMonitoring,
		}); err != nil {
			logging.Warn().Err(err).Str("component", "submitter").
				Str("title", item.Title).Msg("rolling tracking record creation failed")
		}
	}
	return nil
}

func (s *Submitter) submitMovie(ctx context.Context, item *models.WatchlistItem, inst *models.DownstreamInstance, spec resolvedSpec) error {
	tmdbID := guidInt(item.GUIDs, "tmdb")
	if tmdbID == 0 {
		return fmt.Errorf("submit: %q carries no tmdb guid", item.Title)
	}

	api := s.clients.Radarr(inst)
	tagIDs, err := api.EnsureTags(ctx, spec.Tags)
	if err != nil {
		return err
	}

	_, err = api.AddMovie(ctx, arr.AddMovieRequest{
		TMDBID:              tmdbID,
		Title:               item.Title,
		RootFolder:          spec.RootFolder,
		QualityProfileID:    atoiSafe(spec.QualityProfile),
		Tags:                tagIDs,
		SearchOnAdd:         spec.SearchOnAdd,
		Monitor:             spec.Monitor,
		MinimumAvailability: spec.MinimumAvailability,
	})
	return err
}

func (s *Submitter) publish(ctx context.Context, opID, phase string, pct int, msg string) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(ctx, progress.Event{
		OperationID: opID, Type: progress.TypeSync, Phase: phase, Progress: pct, Message: msg,
	})
}

func guidInt(guids []string, source string) int {
	prefix := source + ":"
	for _, g := range guids {
		if strings.HasPrefix(g, prefix) {
			n, err := strconv.Atoi(strings.TrimPrefix(g, prefix))
			if err == nil {
				return n
			}
		}
	}
	return 0
}

func atoiSafe(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 1
	}
	return n
}
