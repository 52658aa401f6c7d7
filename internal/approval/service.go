// Pulsarr-sub009 - Plex watchlist to Sonarr/Radarr acquisition bridge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package approval is the gate between a routing decision and its
// submission: it resolves whether a decision needs a person's sign-off
// (flagged user, rule-required, or quota exceeded without bypass),
// manages the request lifecycle, and on approval replays the stored
// routing snapshot, records quota usage, and auto-approves other users'
// pending requests for the same content.
package approval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jamcalli/Pulsarr-sub009/internal/errs"
	"github.com/jamcalli/Pulsarr-sub009/internal/logging"
	"github.com/jamcalli/Pulsarr-sub009/internal/models"
	"github.com/jamcalli/Pulsarr-sub009/internal/progress"
	"github.com/jamcalli/Pulsarr-sub009/internal/quota"
	"github.com/jamcalli/Pulsarr-sub009/internal/routing"
	"github.com/jamcalli/Pulsarr-sub009/internal/store"
	"github.com/jamcalli/Pulsarr-sub009/internal/submit"
)

// crossUserNote is the approval note recorded on requests fulfilled by
// another user's approval.
const crossUserNote = "content already available"

// Store is the persistence surface the service needs.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	CreateApprovalRequest(ctx context.Context, req *models.ApprovalRequest) error
	GetApproval(ctx context.Context, id int) (*models.ApprovalRequest, error)
	ListPendingApprovals(ctx context.Context) ([]models.ApprovalRequest, error)
	SetApprovalStatus(ctx context.Context, id int, status models.ApprovalStatus, approvedBy *int, notes *string) error
	ExpireApprovalsBefore(ctx context.Context, now time.Time) (int, error)
	PurgeTerminalApprovalsBefore(ctx context.Context, cutoff time.Time) (int, error)
	GetWatchlistItem(ctx context.Context, userID int, key string) (*models.WatchlistItem, error)
	BulkUpdateWatchlistItems(ctx context.Context, updates []store.WatchlistUpdate) error
}

// Submitter fans an approved decision out, satisfied by *submit.Submitter.
type Submitter interface {
	Submit(ctx context.Context, item *models.WatchlistItem, decision models.RouterDecision) (submit.Result, error)
}

// QuotaChecker evaluates and records usage, satisfied by *quota.Checker.
type QuotaChecker interface {
	Check(ctx context.Context, userID int, contentType models.ContentType) (quota.Status, error)
	RecordUsage(ctx context.Context, userID int, contentType models.ContentType) error
}

// Config bounds request lifetimes.
type Config struct {
	// Expiry is how long a pending request lives before maintenance
	// marks it expired; zero disables expiry.
	Expiry time.Duration

	// Retention is how long terminal requests are kept before purge.
	Retention time.Duration
}

// Service implements the approval workflow.
type Service struct {
	store     Store
	submitter Submitter
	quota     QuotaChecker
	bus       *progress.Bus
	cfg       Config
}

// New constructs a Service. bus may be nil in tests.
func New(st Store, submitter Submitter, q QuotaChecker, bus *progress.Bus, cfg Config) *Service {
	if cfg.Retention <= 0 {
		cfg.Retention = 30 * 24 * time.Hour
	}
	return &Service{store: st, submitter: submitter, quota: q, bus: bus, cfg: cfg}
}

// Outcome is the verdict of Gate: proceed immediately, or wait on the
// created (or already pending) approval request.
type Outcome struct {
	Proceed bool
	Request *models.ApprovalRequest
}

// Gate resolves whether the routed decision for item may submit now. An
// approval is required when the user is flagged, when the router itself
// required one, or when the user's quota is exceeded without bypass.
func (s *Service) Gate(ctx context.Context, user *models.User, item *models.WatchlistItem, decision routing.RoutingDecision) (Outcome, error) {
	if decision.Action == routing.ActionSkip {
		return Outcome{}, nil
	}

	if decision.Action == routing.ActionRequireApproval {
		reason := decision.Approval.Reason
		if reason == "" {
			reason = "routing rule requires approval"
		}
		req, err := s.createRequest(ctx, user, item,
			routing.Snapshot(decision.Approval.Proposed, decision.MatchedRuleID),
			decision.Approval.TriggeredBy, reason)
		return Outcome{Request: req}, err
	}

	snapshot := routing.Snapshot(*decision.Route, decision.MatchedRuleID)

	if user.RequiresApproval {
		req, err := s.createRequest(ctx, user, item, snapshot,
			models.TriggerUserRequiresApproval, "user requires approval")
		return Outcome{Request: req}, err
	}

	status, err := s.quota.Check(ctx, user.ID, item.Type)
	if err != nil {
		return Outcome{}, err
	}
	if status.Limited && status.Exceeded && !status.BypassApproval {
		req, err := s.createRequest(ctx, user, item, snapshot,
			models.TriggerQuotaExceeded, status.Reason())
		return Outcome{Request: req}, err
	}

	return Outcome{Proceed: true}, nil
}

func (s *Service) createRequest(ctx context.Context, user *models.User, item *models.WatchlistItem, snapshot models.RouterDecision, trigger models.ApprovalTrigger, reason string) (*models.ApprovalRequest, error) {
	req := &models.ApprovalRequest{
		UserID:           user.ID,
		ContentType:      item.Type,
		ContentTitle:     item.Title,
		ContentKey:       item.Key,
		ContentGUIDs:     item.GUIDs,
		ProposedDecision: snapshot,
		TriggeredBy:      trigger,
		ApprovalReason:   &reason,
	}
	if s.cfg.Expiry > 0 {
		expires := time.Now().UTC().Add(s.cfg.Expiry)
		req.ExpiresAt = &expires
	}
	if err := s.store.CreateApprovalRequest(ctx, req); err != nil {
		if errors.Is(err, errs.ErrDuplicatePendingApproval) {
			// Already waiting on a person; nothing new to create.
			logging.Debug().Str("component", "approval").Int("user_id", user.ID).
				Str("key", item.Key).Msg("pending request already exists")
			return nil, nil
		}
		return nil, err
	}

	s.publish(ctx, req, "created", fmt.Sprintf("approval required for %q: %s", item.Title, reason))
	logging.Ctx(ctx).Info().Str("component", "approval").Int("request_id", req.ID).
		Str("trigger", string(trigger)).Str("title", item.Title).Msg("approval request created")
	return req, nil
}

// Approve transitions one pending request to approved, submits its stored
// routing snapshot, records quota usage, and fulfills intersecting
// pending requests from other users.
func (s *Service) Approve(ctx context.Context, id int, approvedBy int, notes *string) error {
	ctx = logging.ContextWithOperationID(ctx, fmt.Sprintf("approval-%d", id))

	req, err := s.store.GetApproval(ctx, id)
	if err != nil {
		return err
	}

	if err := s.store.SetApprovalStatus(ctx, id, models.ApprovalApproved, &approvedBy, notes); err != nil {
		return err
	}

	item, err := s.store.GetWatchlistItem(ctx, req.UserID, req.ContentKey)
	if err != nil {
		return fmt.Errorf("approval: watchlist item for request %d: %w", id, err)
	}

	if _, err := s.submitter.Submit(ctx, item, req.ProposedDecision); err != nil {
		return fmt.Errorf("approval: submission for request %d: %w", id, err)
	}

	s.afterSubmit(ctx, req, item)
	s.publish(ctx, req, "approved", fmt.Sprintf("%q approved and submitted", req.ContentTitle))
	return nil
}

// afterSubmit records usage, advances the item, and runs cross-user
// fulfillment. Failures here are logged and swallowed so they cannot
// undo the already-completed submission.
func (s *Service) afterSubmit(ctx context.Context, req *models.ApprovalRequest, item *models.WatchlistItem) {
	if err := s.quota.RecordUsage(ctx, req.UserID, req.ContentType); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("component", "approval").Int("request_id", req.ID).Msg("usage record failed")
	}

	requested := models.StatusRequested
	if err := s.store.BulkUpdateWatchlistItems(ctx, []store.WatchlistUpdate{
		{UserID: item.UserID, Key: item.Key, Status: &requested},
	}); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("component", "approval").Int("request_id", req.ID).Msg("status advance failed")
	}

	s.fulfillIntersecting(ctx, req)
}

// fulfillIntersecting auto-approves other users' pending requests whose
// GUID sets intersect the satisfied request's; the content is already on
// its way, so no second submission happens.
func (s *Service) fulfillIntersecting(ctx context.Context, satisfied *models.ApprovalRequest) {
	log := logging.CtxWith(ctx).Str("component", "approval").Logger()

	pending, err := s.store.ListPendingApprovals(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("cross-user fulfillment listing failed")
		return
	}

	note := crossUserNote
	for i := range pending {
		p := &pending[i]
		if p.ID == satisfied.ID || p.UserID == satisfied.UserID {
			continue
		}
		if !models.GUIDsIntersect(p.ContentGUIDs, satisfied.ContentGUIDs) {
			continue
		}
		if err := s.store.SetApprovalStatus(ctx, p.ID, models.ApprovalApproved, nil, &note); err != nil {
			log.Warn().Err(err).Int("request_id", p.ID).Msg("cross-user fulfillment failed")
			continue
		}

		requested := models.StatusRequested
		if err := s.store.BulkUpdateWatchlistItems(ctx, []store.WatchlistUpdate{
			{UserID: p.UserID, Key: p.ContentKey, Status: &requested},
		}); err != nil {
			log.Warn().Err(err).Int("request_id", p.ID).Msg("cross-user status advance failed")
		}
		if err := s.quota.RecordUsage(ctx, p.UserID, p.ContentType); err != nil {
			log.Warn().Err(err).Int("request_id", p.ID).Msg("cross-user usage record failed")
		}

		log.Info().Int("request_id", p.ID).
			Int("satisfied_by", satisfied.ID).Msg("pending request fulfilled by another user's approval")
	}
}

// Reject transitions one pending request to rejected. Already-submitted
// routings are never undone.
func (s *Service) Reject(ctx context.Context, id int, rejectedBy int, notes *string) error {
	ctx = logging.ContextWithOperationID(ctx, fmt.Sprintf("approval-%d", id))
	if err := s.store.SetApprovalStatus(ctx, id, models.ApprovalRejected, &rejectedBy, notes); err != nil {
		return err
	}
	if req, err := s.store.GetApproval(ctx, id); err == nil {
		s.publish(ctx, req, "rejected", fmt.Sprintf("%q rejected", req.ContentTitle))
	}
	return nil
}

// Maintain expires overdue pending requests and purges terminal records
// past retention. Wired as the quota-maintenance scheduled job.
func (s *Service) Maintain(ctx context.Context) error {
	now := time.Now().UTC()
	expired, err := s.store.ExpireApprovalsBefore(ctx, now)
	if err != nil {
		return err
	}
	purged, err := s.store.PurgeTerminalApprovalsBefore(ctx, now.Add(-s.cfg.Retention))
	if err != nil {
		return err
	}
	if expired > 0 || purged > 0 {
		logging.Info().Str("component", "approval").Int("expired", expired).Int("purged", purged).Msg("approval maintenance")
	}
	return nil
}

func (s *Service) publish(ctx context.Context, req *models.ApprovalRequest, phase, msg string) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(ctx, progress.Event{
		OperationID: fmt.Sprintf("approval-%d", req.ID),
		Type:        progress.TypeApproval,
		Phase:       phase,
		Progress:    100,
		Message:     msg,
	})
}
