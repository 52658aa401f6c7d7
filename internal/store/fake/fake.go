// Pulsarr-sub009 - Plex watchlist to Sonarr/Radarr acquisition bridge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package fake provides an in-memory implementation of the persistence
// facade's method set for tests. It preserves the facade's semantics --
// status DAG enforcement, expired-duplicate reuse, system-user
// immutability -- without a database, so consumer packages can exercise
// their store interfaces deterministically.
package fake

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jamcalli/Pulsarr-sub009/internal/errs"
	"github.com/jamcalli/Pulsarr-sub009/internal/models"
	"github.com/jamcalli/Pulsarr-sub009/internal/store"
)

// Store is the in-memory double. The zero value is not usable; call New.
type Store struct {
	mu        sync.Mutex
	itemLocks sync.Map

	users         map[int]*models.User
	items         map[int]*models.WatchlistItem
	itemsByUK     map[string]int // "userID|key" -> item id
	history       []models.StatusHistoryEntry
	rules         map[int]*models.RouterRule
	instances     map[int]*models.DownstreamInstance
	approvals     map[int]*models.ApprovalRequest
	quotas        map[string]models.QuotaRecord // "userID|contentType"
	usage         []models.UsageEvent
	jobs          map[string]*models.ScheduledJob
	labels        map[string]models.LabelTracking // "itemID|ratingKey|label"
	notifications []*models.NotificationRecord
	rolling       map[int]*models.RollingShow // by id

	nextID int
}

// New returns an empty Store with the System user pre-created.
func New() *Store {
	s := &Store{
		users:     map[int]*models.User{},
		items:     map[int]*models.WatchlistItem{},
		itemsByUK: map[string]int{},
		rules:     map[int]*models.RouterRule{},
		instances: map[int]*models.DownstreamInstance{},
		approvals: map[int]*models.ApprovalRequest{},
		quotas:    map[string]models.QuotaRecord{},
		jobs:      map[string]*models.ScheduledJob{},
		labels:    map[string]models.LabelTracking{},
		rolling:   map[int]*models.RollingShow{},
		nextID:    1,
	}
	now := time.Now().UTC()
	s.users[models.SystemUserID] = &models.User{
		ID: models.SystemUserID, Name: "System", CreatedAt: now, UpdatedAt: now,
	}
	return s
}

func (s *Store) id() int {
	v := s.nextID
	s.nextID++
	return v
}

func ukKey(userID int, key string) string { return fmt.Sprintf("%d|%s", userID, key) }

// WithTx runs fn directly; the fake has no transactional isolation, which
// is fine for the single-goroutine tests it serves.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// LockItem acquires the per-(user, key) logical lock.
func (s *Store) LockItem(userID int, key string) func() {
	k := fmt.Sprintf("lock|%d|%s", userID, key)
	muAny, _ := s.itemLocks.LoadOrStore(k, &sync.Mutex{})
	mu := muAny.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// --- users ---

func (s *Store) CreateUser(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	u.ID = s.id()
	u.CreatedAt = now
	u.UpdatedAt = now
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *Store) GetUser(_ context.Context, id int) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *Store) GetUserByPlexUUID(_ context.Context, uuid string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.PlexUUID != nil && *u.PlexUUID == uuid {
			cp := *u
			return &cp, nil
		}
	}
	return nil, errs.ErrNotFound
}

func (s *Store) ListUsers(_ context.Context) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) UpdateUser(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.ID]; !ok {
		return errs.ErrNotFound
	}
	u.UpdatedAt = time.Now().UTC()
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *Store) DeleteUser(_ context.Context, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id == models.SystemUserID {
		return errs.ErrImmutableSystemUser
	}
	if _, ok := s.users[id]; !ok {
		return errs.ErrNotFound
	}
	delete(s.users, id)
	for itemID, item := range s.items {
		if item.UserID == id {
			for k, lt := range s.labels {
				if lt.WatchlistItemID == itemID {
					delete(s.labels, k)
				}
			}
			delete(s.itemsByUK, ukKey(item.UserID, item.Key))
			delete(s.items, itemID)
		}
	}
	return nil
}

func (s *Store) PrimaryTokenUser(_ context.Context) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.IsPrimaryToken {
			cp := *u
			return &cp, nil
		}
	}
	return nil, errs.ErrNotFound
}

// --- watchlist ---

func (s *Store) CreateWatchlistItem(_ context.Context, item *models.WatchlistItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	item.ID = s.id()
	item.CreatedAt = now
	item.UpdatedAt = now
	if item.Status == "" {
		item.Status = models.StatusPending
	}
	item.GUIDs = models.NormalizeGUIDs(item.GUIDs)
	cp := *item
	s.items[item.ID] = &cp
	s.itemsByUK[ukKey(item.UserID, item.Key)] = item.ID
	return nil
}

func (s *Store) GetWatchlistItem(_ context.Context, userID int, key string) (*models.WatchlistItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getItemLocked(userID, key)
}

func (s *Store) getItemLocked(userID int, key string) (*models.WatchlistItem, error) {
	id, ok := s.itemsByUK[ukKey(userID, key)]
	if !ok {
		return nil, errs.ErrNotFound
	}
	cp := *s.items[id]
	return &cp, nil
}

func (s *Store) GetWatchlistItemByID(_ context.Context, id int) (*models.WatchlistItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	cp := *item
	return &cp, nil
}

func (s *Store) ListWatchlistItems(_ context.Context, userID int) ([]models.WatchlistItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.WatchlistItem
	for _, item := range s.items {
		if item.UserID == userID {
			out = append(out, *item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) ListAllWatchlistItems(_ context.Context) ([]models.WatchlistItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.WatchlistItem, 0, len(s.items))
	for _, item := range s.items {
		out = append(out, *item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) FindItemsByKeyAnyUser(_ context.Context, key string) ([]models.WatchlistItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.WatchlistItem
	for _, item := range s.items {
		if item.Key == key {
			out = append(out, *item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) BulkUpdateWatchlistItems(_ context.Context, updates []store.WatchlistUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Validate the whole batch first so a downgrade rejects everything,
	// matching the real facade's transaction rollback.
	for i := range updates {
		u := &updates[i]
		if u.IsEmpty() {
			continue
		}
		id, ok := s.itemsByUK[ukKey(u.UserID, u.Key)]
		if !ok {
			return errs.ErrNotFound
		}
		if u.Status != nil && !s.items[id].Status.IsForwardTransition(*u.Status) {
			return fmt.Errorf("%w: %s -> %s", errs.ErrStatusDowngrade, s.items[id].Status, *u.Status)
		}
	}
	for i := range updates {
		u := &updates[i]
		if u.IsEmpty() {
			continue
		}
		item := s.items[s.itemsByUK[ukKey(u.UserID, u.Key)]]
		if u.Status != nil {
			item.Status = *u.Status
		}
		if u.Added != nil {
			item.Added = u.Added
		}
		if u.SeriesStatus != nil {
			item.SeriesStatus = u.SeriesStatus
		}
		if u.MovieStatus != nil {
			item.MovieStatus = u.MovieStatus
		}
		if u.SonarrInstanceID != nil {
			item.SonarrInstanceID = u.SonarrInstanceID
		}
		if u.RadarrInstanceID != nil {
			item.RadarrInstanceID = u.RadarrInstanceID
		}
		if u.LastNotifiedAt != nil {
			item.LastNotifiedAt = u.LastNotifiedAt
		}
		item.UpdatedAt = time.Now().UTC()
	}
	return nil
}

func (s *Store) UpdateWatchlistMetadata(_ context.Context, item *models.WatchlistItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.itemsByUK[ukKey(item.UserID, item.Key)]
	if !ok {
		return errs.ErrNotFound
	}
	cur := s.items[id]
	cur.Title = item.Title
	cur.Thumb = item.Thumb
	cur.GUIDs = models.NormalizeGUIDs(item.GUIDs)
	cur.Genres = item.Genres
	cur.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) ResetWatchlistStatus(_ context.Context, id int, to models.WatchlistStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return errs.ErrNotFound
	}
	item.Status = to
	item.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) DeleteWatchlistItems(_ context.Context, userID int, keys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		id, ok := s.itemsByUK[ukKey(userID, key)]
		if !ok {
			continue
		}
		for k, lt := range s.labels {
			if lt.WatchlistItemID == id {
				delete(s.labels, k)
			}
		}
		delete(s.items, id)
		delete(s.itemsByUK, ukKey(userID, key))
	}
	return nil
}

func (s *Store) AppendStatusHistory(_ context.Context, entry models.StatusHistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, entry)
	return nil
}

func (s *Store) StatusHistory(_ context.Context, itemID int) ([]models.StatusHistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.StatusHistoryEntry
	for _, e := range s.history {
		if e.WatchlistItemID == itemID {
			out = append(out, e)
		}
	}
	return out, nil
}

// --- rules ---

func (s *Store) CreateRouterRule(_ context.Context, rule *models.RouterRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rule.ID = s.id()
	cp := *rule
	s.rules[rule.ID] = &cp
	return nil
}

func (s *Store) GetRouterRule(_ context.Context, id int) (*models.RouterRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rules[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *Store) RulesForTargetType(_ context.Context, targetType models.TargetType) ([]models.RouterRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.RouterRule
	for _, r := range s.rules {
		if r.TargetType == targetType && r.Enabled {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order > out[j].Order
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) DeleteRouterRule(_ context.Context, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rules[id]; !ok {
		return errs.ErrNotFound
	}
	delete(s.rules, id)
	return nil
}

// --- instances ---

func (s *Store) CreateInstance(_ context.Context, inst *models.DownstreamInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !inst.IsDefault && len(inst.SyncedInstances) > 0 {
		return errs.ErrInvalidInstanceDefaults
	}
	if inst.IsDefault {
		for _, other := range s.instances {
			if other.TargetType == inst.TargetType && other.IsDefault {
				return errs.ErrInvalidInstanceDefaults
			}
		}
	}
	inst.ID = s.id()
	cp := *inst
	s.instances[inst.ID] = &cp
	return nil
}

func (s *Store) Instance(_ context.Context, id int) (*models.DownstreamInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst, ok := s.instances[id]
	if !ok {
		return nil, nil
	}
	cp := *inst
	return &cp, nil
}

func (s *Store) DefaultInstance(_ context.Context, targetType models.TargetType) (*models.DownstreamInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, inst := range s.instances {
		if inst.TargetType == targetType && inst.IsDefault {
			cp := *inst
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *Store) ListInstances(_ context.Context, targetType models.TargetType) ([]models.DownstreamInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.DownstreamInstance
	for _, inst := range s.instances {
		if inst.TargetType == targetType {
			out = append(out, *inst)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// --- approvals ---

func (s *Store) CreateApprovalRequest(_ context.Context, req *models.ApprovalRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	req.ContentGUIDs = models.NormalizeGUIDs(req.ContentGUIDs)
	for _, existing := range s.approvals {
		if existing.UserID != req.UserID || existing.ContentKey != req.ContentKey {
			continue
		}
		switch existing.Status {
		case models.ApprovalPending:
			return errs.ErrDuplicatePendingApproval
		case models.ApprovalExpired:
			req.ID = existing.ID
			req.Status = models.ApprovalPending
			req.CreatedAt = existing.CreatedAt
			req.UpdatedAt = now
			req.ApprovedBy = nil
			req.ApprovalNotes = nil
			cp := *req
			s.approvals[req.ID] = &cp
			return nil
		}
	}
	req.ID = s.id()
	if req.Status == "" {
		req.Status = models.ApprovalPending
	}
	req.CreatedAt = now
	req.UpdatedAt = now
	cp := *req
	s.approvals[req.ID] = &cp
	return nil
}

func (s *Store) GetApproval(_ context.Context, id int) (*models.ApprovalRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.approvals[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	cp := *req
	return &cp, nil
}

func (s *Store) ListPendingApprovals(_ context.Context) ([]models.ApprovalRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ApprovalRequest
	for _, req := range s.approvals {
		if req.Status == models.ApprovalPending {
			out = append(out, *req)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) SetApprovalStatus(_ context.Context, id int, status models.ApprovalStatus, approvedBy *int, notes *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.approvals[id]
	if !ok {
		return errs.ErrNotFound
	}
	if req.Status.IsTerminal() {
		return errs.ErrTerminalApproval
	}
	req.Status = status
	req.ApprovedBy = approvedBy
	req.ApprovalNotes = notes
	req.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) ExpireApprovalsBefore(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, req := range s.approvals {
		if req.Status == models.ApprovalPending && req.ExpiresAt != nil && !req.ExpiresAt.After(now) {
			req.Status = models.ApprovalExpired
			req.UpdatedAt = now.UTC()
			n++
		}
	}
	return n, nil
}

func (s *Store) PurgeTerminalApprovalsBefore(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, req := range s.approvals {
		if req.Status.IsTerminal() && req.UpdatedAt.Before(cutoff) {
			delete(s.approvals, id)
			n++
		}
	}
	return n, nil
}

// --- quotas ---

func quotaKey(userID int, ct models.ContentType) string {
	return fmt.Sprintf("%d|%s", userID, ct)
}

func (s *Store) SetQuota(_ context.Context, q models.QuotaRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotas[quotaKey(q.UserID, q.ContentType)] = q
	return nil
}

func (s *Store) GetQuota(_ context.Context, userID int, contentType models.ContentType) (*models.QuotaRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.quotas[quotaKey(userID, contentType)]
	if !ok {
		return nil, errs.ErrNotFound
	}
	cp := q
	return &cp, nil
}

func (s *Store) RecordUsage(_ context.Context, userID int, contentType models.ContentType, ts time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usage = append(s.usage, models.UsageEvent{
		ID: s.id(), UserID: userID, ContentType: contentType, Timestamp: ts.UTC(),
	})
	return nil
}

func (s *Store) UsageSince(_ context.Context, userID int, contentType models.ContentType, since time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.usage {
		if e.UserID == userID && e.ContentType == contentType && !e.Timestamp.Before(since) {
			n++
		}
	}
	return n, nil
}

// --- scheduled jobs ---

func (s *Store) UpsertScheduledJob(_ context.Context, job *models.ScheduledJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.jobs[job.Name]; ok {
		job.ID = existing.ID
		job.LastRun = existing.LastRun
		job.NextRun = existing.NextRun
	} else {
		job.ID = s.id()
	}
	cp := *job
	s.jobs[job.Name] = &cp
	return nil
}

func (s *Store) GetScheduledJobByName(_ context.Context, name string) (*models.ScheduledJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[name]
	if !ok {
		return nil, errs.ErrNotFound
	}
	cp := *job
	return &cp, nil
}

func (s *Store) ListScheduledJobs(_ context.Context) ([]models.ScheduledJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ScheduledJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, *job)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) SetJobEnabled(_ context.Context, name string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[name]
	if !ok {
		return errs.ErrNotFound
	}
	job.Enabled = enabled
	return nil
}

func (s *Store) SetJobRunState(_ context.Context, name string, last, next models.RunInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[name]
	if !ok {
		return errs.ErrNotFound
	}
	job.LastRun = last
	job.NextRun = next
	return nil
}

// --- labels ---

func labelKey(t models.LabelTracking) string {
	return fmt.Sprintf("%d|%s|%s", t.WatchlistItemID, t.PlexRatingKey, t.LabelApplied)
}

func (s *Store) UpsertLabelTracking(_ context.Context, t models.LabelTracking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.labels[labelKey(t)] = t
	return nil
}

func (s *Store) DeleteLabelTracking(_ context.Context, t models.LabelTracking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.labels, labelKey(t))
	return nil
}

func (s *Store) ListLabelTracking(_ context.Context, ratingKey string) ([]models.LabelTracking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.LabelTracking
	for _, t := range s.labels {
		if ratingKey == "" || t.PlexRatingKey == ratingKey {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PlexRatingKey != out[j].PlexRatingKey {
			return out[i].PlexRatingKey < out[j].PlexRatingKey
		}
		return out[i].LabelApplied < out[j].LabelApplied
	})
	return out, nil
}

func (s *Store) DeleteOrphanedLabelTracking(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, t := range s.labels {
		if _, ok := s.items[t.WatchlistItemID]; !ok {
			delete(s.labels, k)
			n++
		}
	}
	return n, nil
}

// --- notifications ---

func (s *Store) FindNotification(_ context.Context, key models.NotificationKey) (*models.NotificationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.notifications) - 1; i >= 0; i-- {
		rec := s.notifications[i]
		rk := rec.Key()
		if rk.UserID == key.UserID && rk.Type == key.Type && rk.Title == key.Title &&
			intPtrEqual(rk.Season, key.Season) && intPtrEqual(rk.Episode, key.Episode) {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, errs.ErrNotFound
}

func intPtrEqual(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func (s *Store) CreateNotification(_ context.Context, rec *models.NotificationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.ID = s.id()
	rec.CreatedAt = time.Now().UTC()
	cp := *rec
	s.notifications = append(s.notifications, &cp)
	return nil
}

// --- rolling shows ---

func (s *Store) CreateRollingShow(_ context.Context, r *models.RollingShow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.rolling {
		if existing.WatchlistItemID == r.WatchlistItemID {
			*r = *existing
			return nil
		}
	}
	now := time.Now().UTC()
	r.ID = s.id()
	r.CreatedAt = now
	r.UpdatedAt = now
	cp := *r
	s.rolling[r.ID] = &cp
	return nil
}

func (s *Store) RollingShowForItem(_ context.Context, itemID int) (*models.RollingShow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rolling {
		if r.WatchlistItemID == itemID {
			cp := *r
			return &cp, nil
		}
	}
	return nil, errs.ErrNotFound
}

func (s *Store) ListRollingShows(_ context.Context) ([]models.RollingShow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.RollingShow, 0, len(s.rolling))
	for _, r := range s.rolling {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) UpdateRollingShow(_ context.Context, r *models.RollingShow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rolling[r.ID]; !ok {
		return errs.ErrNotFound
	}
	r.UpdatedAt = time.Now().UTC()
	cp := *r
	s.rolling[r.ID] = &cp
	return nil
}

func (s *Store) DeleteRollingShow(_ context.Context, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rolling[id]; !ok {
		return errs.ErrNotFound
	}
	delete(s.rolling, id)
	return nil
}
