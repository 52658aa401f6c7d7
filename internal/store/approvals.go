// Pulsarr-sub009 - Plex watchlist to Sonarr/Radarr acquisition bridge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jamcalli/Pulsarr-sub009/internal/errs"
	"github.com/jamcalli/Pulsarr-sub009/internal/models"
)

const approvalColumns = `id, user_id, content_type, content_title, content_key,
	content_guids, proposed_router_decision, triggered_by, approval_reason, status,
	approved_by, approval_notes, expires_at, created_at, updated_at`

// CreateApprovalRequest inserts req, enforcing at most one pending request
// per (user, content_key). When the existing duplicate is expired, its row
// is converted back to a fresh pending in place (same id) inside the same
// transaction; a live pending duplicate returns
// errs.ErrDuplicatePendingApproval.
func (db *DB) CreateApprovalRequest(ctx context.Context, req *models.ApprovalRequest) error {
	return db.WithTx(ctx, func(ctx context.Context) error {
		existing, err := db.pendingOrExpiredFor(ctx, req.UserID, req.ContentKey)
		if err != nil && !errors.Is(err, errs.ErrNotFound) {
			return err
		}

		if existing != nil {
			if existing.Status == models.ApprovalPending {
				return fmt.Errorf("%w: user %d, key %s",
					errs.ErrDuplicatePendingApproval, req.UserID, req.ContentKey)
			}
			// Expired duplicate: revive in place.
			return db.reviveExpired(ctx, existing.ID, req)
		}

		return db.insertApproval(ctx, req)
	})
}

func (db *DB) pendingOrExpiredFor(ctx context.Context, userID int, key string) (*models.ApprovalRequest, error) {
	row := db.q(ctx).QueryRowContext(ctx, `
		SELECT `+approvalColumns+` FROM approval_requests
		WHERE user_id = ? AND content_key = ? AND status IN ('pending', 'expired')
		ORDER BY CASE status WHEN 'pending' THEN 0 ELSE 1 END
		LIMIT 1`, userID, key)
	return scanApproval(row)
}

func (db *DB) insertApproval(ctx context.Context, req *models.ApprovalRequest) error {
	now := time.Now().UTC()
	req.CreatedAt = now
	req.UpdatedAt = now
	if req.Status == "" {
		req.Status = models.ApprovalPending
	}
	req.ContentGUIDs = models.NormalizeGUIDs(req.ContentGUIDs)

	guids, err := marshalJSON(req.ContentGUIDs)
	if err != nil {
		return err
	}
	decision, err := req.MarshalDecision()
	if err != nil {
		return fmt.Errorf("store: marshal router decision: %w", err)
	}

	row := db.q(ctx).QueryRowContext(ctx, `
		INSERT INTO approval_requests (user_id, content_type, content_title, content_key,
			content_guids, proposed_router_decision, triggered_by, approval_reason, status,
			approved_by, approval_notes, expires_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		req.UserID, string(req.ContentType), req.ContentTitle, req.ContentKey,
		guids, string(decision), string(req.TriggeredBy), nullStr(req.ApprovalReason),
		string(req.Status), nullInt(req.ApprovedBy), nullStr(req.ApprovalNotes),
		nullTime(req.ExpiresAt), now, now)
	if err := row.Scan(&req.ID); err != nil {
		return fmt.Errorf("store: create approval: %w", err)
	}
	return nil
}

func (db *DB) reviveExpired(ctx context.Context, id int, req *models.ApprovalRequest) error {
	now := time.Now().UTC()
	req.ID = id
	req.Status = models.ApprovalPending
	req.UpdatedAt = now
	req.ContentGUIDs = models.NormalizeGUIDs(req.ContentGUIDs)

	guids, err := marshalJSON(req.ContentGUIDs)
	if err != nil {
		return err
	}
	decision, err := req.MarshalDecision()
	if err != nil {
		return fmt.Errorf("store: marshal router decision: %w", err)
	}

	_, err = db.q(ctx).ExecContext(ctx, `
		UPDATE approval_requests SET content_type = ?, content_title = ?, content_guids = ?,
			proposed_router_decision = ?, triggered_by = ?, approval_reason = ?,
			status = 'pending', approved_by = NULL, approval_notes = NULL,
			expires_at = ?, updated_at = ?
		WHERE id = ?`,
		string(req.ContentType), req.ContentTitle, guids, string(decision),
		string(req.TriggeredBy), nullStr(req.ApprovalReason),
		nullTime(req.ExpiresAt), now, id)
	if err != nil {
		return fmt.Errorf("store: revive expired approval: %w", err)
	}
	return nil
}

// GetApproval returns one request by id.
func (db *DB) GetApproval(ctx context.Context, id int) (*models.ApprovalRequest, error) {
	row := db.q(ctx).QueryRowContext(ctx,
		`SELECT `+approvalColumns+` FROM approval_requests WHERE id = ?`, id)
	return scanApproval(row)
}

// ListPendingApprovals returns every pending request ordered by creation.
func (db *DB) ListPendingApprovals(ctx context.Context) ([]models.ApprovalRequest, error) {
	return db.queryApprovals(ctx, `
		SELECT `+approvalColumns+` FROM approval_requests
		WHERE status = 'pending' ORDER BY created_at, id`)
}

// SetApprovalStatus transitions one request. Terminal rows are immutable
// and return errs.ErrTerminalApproval.
func (db *DB) SetApprovalStatus(ctx context.Context, id int, status models.ApprovalStatus, approvedBy *int, notes *string) error {
	return db.WithTx(ctx, func(ctx context.Context) error {
		cur, err := db.GetApproval(ctx, id)
		if err != nil {
			return err
		}
		if cur.Status.IsTerminal() {
			return fmt.Errorf("%w: request %d is %s", errs.ErrTerminalApproval, id, cur.Status)
		}
		_, err = db.q(ctx).ExecContext(ctx, `
			UPDATE approval_requests SET status = ?, approved_by = ?, approval_notes = ?, updated_at = ?
			WHERE id = ?`,
			string(status), nullInt(approvedBy), nullStr(notes), time.Now().UTC(), id)
		if err != nil {
			return fmt.Errorf("store: set approval status: %w", err)
		}
		return nil
	})
}

// ExpireApprovalsBefore marks every pending request whose expires_at has
// passed as expired, returning how many rows changed.
func (db *DB) ExpireApprovalsBefore(ctx context.Context, now time.Time) (int, error) {
	res, err := db.q(ctx).ExecContext(ctx, `
		UPDATE approval_requests SET status = 'expired', updated_at = ?
		WHERE status = 'pending' AND expires_at IS NOT NULL AND expires_at <= ?`,
		now.UTC(), now.UTC())
	if err != nil {
		return 0, fmt.Errorf("store: expire approvals: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// PurgeTerminalApprovalsBefore deletes terminal requests older than the
// retention cutoff, returning how many rows were removed.
func (db *DB) PurgeTerminalApprovalsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := db.q(ctx).ExecContext(ctx, `
		DELETE FROM approval_requests
		WHERE status IN ('approved', 'rejected', 'expired') AND updated_at < ?`,
		cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("store: purge approvals: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (db *DB) queryApprovals(ctx context.Context, query string, args ...any) ([]models.ApprovalRequest, error) {
	rows, err := db.q(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query approvals: %w", err)
	}
	defer rows.Close()

	var out []models.ApprovalRequest
	for rows.Next() {
		req, err := scanApprovalFields(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *req)
	}
	return out, rows.Err()
}

func scanApprovalFields(s rowScanner) (*models.ApprovalRequest, error) {
	var req models.ApprovalRequest
	var contentType, triggeredBy, status string
	var guids, decision, reason, notes sql.NullString
	var approvedBy sql.NullInt64
	var expiresAt sql.NullTime

	err := s.Scan(&req.ID, &req.UserID, &contentType, &req.ContentTitle, &req.ContentKey,
		&guids, &decision, &triggeredBy, &reason, &status, &approvedBy, &notes,
		&expiresAt, &req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, fmt.Errorf("store: scan approval: %w", err)
	}

	req.ContentType = models.ContentType(contentType)
	req.TriggeredBy = models.ApprovalTrigger(triggeredBy)
	req.Status = models.ApprovalStatus(status)
	req.ApprovalReason = strPtr(reason)
	req.ApprovalNotes = strPtr(notes)
	req.ApprovedBy = intPtr(approvedBy)
	req.ExpiresAt = timePtr(expiresAt)
	if err := unmarshalJSON(guids, &req.ContentGUIDs); err != nil {
		return nil, err
	}
	if decision.Valid && decision.String != "" {
		if err := json.Unmarshal([]byte(decision.String), &req.ProposedDecision); err != nil {
			return nil, fmt.Errorf("store: unmarshal router decision: %w", err)
		}
	}
	return &req, nil
}

func scanApproval(row *sql.Row) (*models.ApprovalRequest, error) {
	return scanApprovalFields(row)
}
