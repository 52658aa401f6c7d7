// Pulsarr-sub009 - Plex watchlist to Sonarr/Radarr acquisition bridge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jamcalli/Pulsarr-sub009/internal/errs"
	"github.com/jamcalli/Pulsarr-sub009/internal/models"
)

const ruleColumns = `id, name, type, criteria, condition, target_type, target_instance_id,
	root_folder, quality_profile, tags, "order", enabled, search_on_add,
	season_monitoring, series_type, minimum_availability, monitor, metadata`

// ruleUpdateWhitelist is the exact set of columns UpdateRouterRule will
// touch. Anything else returns errs.ErrUnknownColumn, so a caller typo or
// schema drift cannot silently write to the wrong place.
var ruleUpdateWhitelist = map[string]struct{}{
	"name":                 {},
	"type":                 {},
	"criteria":             {},
	"condition":            {},
	"target_type":          {},
	"target_instance_id":   {},
	"root_folder":          {},
	"quality_profile":      {},
	"tags":                 {},
	"order":                {},
	"enabled":              {},
	"search_on_add":        {},
	"season_monitoring":    {},
	"series_type":          {},
	"minimum_availability": {},
	"monitor":              {},
	"metadata":             {},
}

// CreateRouterRule inserts rule and assigns its id.
func (db *DB) CreateRouterRule(ctx context.Context, rule *models.RouterRule) error {
	if err := validateStruct(rule); err != nil {
		return err
	}
	now := time.Now().UTC()
	criteria, err := marshalJSON(rule.Criteria)
	if err != nil {
		return err
	}
	condition, err := marshalJSON(rule.Condition)
	if err != nil {
		return err
	}
	tags, err := marshalJSON(rule.Tags)
	if err != nil {
		return err
	}
	metadata, err := marshalJSON(rule.Metadata)
	if err != nil {
		return err
	}

	row := db.q(ctx).QueryRowContext(ctx, `
		INSERT INTO router_rules (name, type, criteria, condition, target_type,
			target_instance_id, root_folder, quality_profile, tags, "order", enabled,
			search_on_add, season_monitoring, series_type, minimum_availability, monitor,
			metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		rule.Name, rule.Type, criteria, condition, string(rule.TargetType),
		rule.TargetInstanceID, nullStr(rule.RootFolder), nullStr(rule.QualityProfile),
		tags, rule.Order, rule.Enabled, boolVal(rule.SearchOnAdd),
		nullStr(rule.SeasonMonitoring), nullStr(rule.SeriesType),
		nullStr(rule.MinimumAvailability), nullStr(rule.Monitor), metadata, now, now)
	if err := row.Scan(&rule.ID); err != nil {
		return fmt.Errorf("store: create router rule: %w", err)
	}
	return nil
}

// GetRouterRule returns one rule by id.
func (db *DB) GetRouterRule(ctx context.Context, id int) (*models.RouterRule, error) {
	row := db.q(ctx).QueryRowContext(ctx,
		`SELECT `+ruleColumns+` FROM router_rules WHERE id = ?`, id)
	return scanRule(row)
}

// ListRouterRules returns every rule ordered by ("order" desc, id).
func (db *DB) ListRouterRules(ctx context.Context) ([]models.RouterRule, error) {
	return db.queryRules(ctx,
		`SELECT `+ruleColumns+` FROM router_rules ORDER BY "order" DESC, id`)
}

// RulesForTargetType returns the enabled rules for one target type, the
// query the routing engine runs per decision.
func (db *DB) RulesForTargetType(ctx context.Context, targetType models.TargetType) ([]models.RouterRule, error) {
	return db.queryRules(ctx, `
		SELECT `+ruleColumns+` FROM router_rules
		WHERE target_type = ? AND enabled ORDER BY "order" DESC, id`, string(targetType))
}

// UpdateRouterRule applies a column->value change set to one rule. Columns
// outside the whitelist return errs.ErrUnknownColumn without writing
// anything. JSON-typed columns accept any JSON-marshalable value.
func (db *DB) UpdateRouterRule(ctx context.Context, id int, changes map[string]any) error {
	if len(changes) == 0 {
		return nil
	}

	setClauses := make([]string, 0, len(changes)+1)
	args := make([]any, 0, len(changes)+2)
	for col, val := range changes {
		if _, ok := ruleUpdateWhitelist[col]; !ok {
			return fmt.Errorf("%w: %q", errs.ErrUnknownColumn, col)
		}
		switch col {
		case "criteria", "condition", "tags", "metadata":
			jsonVal, err := marshalJSON(val)
			if err != nil {
				return err
			}
			val = jsonVal
		}
		setClauses = append(setClauses, fmt.Sprintf("%q = ?", col))
		args = append(args, val)
	}
	setClauses = append(setClauses, `updated_at = ?`)
	args = append(args, time.Now().UTC(), id)

	res, err := db.q(ctx).ExecContext(ctx,
		`UPDATE router_rules SET `+strings.Join(setClauses, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("store: update router rule: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// DeleteRouterRule removes one rule.
func (db *DB) DeleteRouterRule(ctx context.Context, id int) error {
	res, err := db.q(ctx).ExecContext(ctx, `DELETE FROM router_rules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete router rule: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func (db *DB) queryRules(ctx context.Context, query string, args ...any) ([]models.RouterRule, error) {
	rows, err := db.q(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query router rules: %w", err)
	}
	defer rows.Close()

	var out []models.RouterRule
	for rows.Next() {
		rule, err := scanRuleFields(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rule)
	}
	return out, rows.Err()
}

func scanRuleFields(s rowScanner) (*models.RouterRule, error) {
	var rule models.RouterRule
	var targetType string
	var criteria, condition, rootFolder, qualityProfile, tags sql.NullString
	var seasonMonitoring, seriesType, minAvail, monitor, metadata sql.NullString
	var searchOnAdd sql.NullBool

	err := s.Scan(&rule.ID, &rule.Name, &rule.Type, &criteria, &condition, &targetType,
		&rule.TargetInstanceID, &rootFolder, &qualityProfile, &tags, &rule.Order,
		&rule.Enabled, &searchOnAdd, &seasonMonitoring, &seriesType, &minAvail,
		&monitor, &metadata)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, fmt.Errorf("store: scan router rule: %w", err)
	}

	rule.TargetType = models.TargetType(targetType)
	rule.RootFolder = strPtr(rootFolder)
	rule.QualityProfile = strPtr(qualityProfile)
	rule.SeasonMonitoring = strPtr(seasonMonitoring)
	rule.SeriesType = strPtr(seriesType)
	rule.MinimumAvailability = strPtr(minAvail)
	rule.Monitor = strPtr(monitor)
	if searchOnAdd.Valid {
		v := searchOnAdd.Bool
		rule.SearchOnAdd = &v
	}
	if criteria.Valid {
		rule.Criteria = json.RawMessage(criteria.String)
	}
	if metadata.Valid {
		rule.Metadata = json.RawMessage(metadata.String)
	}
	if condition.Valid {
		var c models.Condition
		if err := json.Unmarshal([]byte(condition.String), &c); err != nil {
			return nil, fmt.Errorf("store: unmarshal rule condition: %w", err)
		}
		rule.Condition = &c
	}
	if err := unmarshalJSON(tags, &rule.Tags); err != nil {
		return nil, err
	}
	return &rule, nil
}

func scanRule(row *sql.Row) (*models.RouterRule, error) { return scanRuleFields(row) }

func boolVal(b *bool) any {
	if b == nil {
		return nil
	}
	return *b
}
