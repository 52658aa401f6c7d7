// Pulsarr-sub009 - Plex watchlist to Sonarr/Radarr acquisition bridge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// validate checks the struct tags on inbound entities before they hit
// the database, so a malformed rule or instance is rejected at the
// boundary rather than surfacing as a constraint error later.
var validate = validator.New(validator.WithRequiredStructEnabled())

func validateStruct(v any) error {
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("store: validation failed: %w", err)
	}
	return nil
}
