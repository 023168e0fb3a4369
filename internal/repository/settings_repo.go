package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"tasmota_mqtt/internal/models"
	"tasmota_mqtt/internal/settings"
)

type SettingsSQLite struct {
	db *sql.DB
}

func NewSettingsSQLite(db *sql.DB) *SettingsSQLite {
	return &SettingsSQLite{db: db}
}

const (
	settingsRowID = 1

	upsertSettingsSQL = `
		INSERT INTO plugin_settings (id, version, data, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			version=excluded.version,
			data=excluded.data,
			updated_at=excluded.updated_at
	`

	selectSettingsSQL = `
		SELECT version, data FROM plugin_settings WHERE id=?
	`
)

// Save writes the document at the current schema version.
func (r *SettingsSQLite) Save(ctx context.Context, s models.Settings) error {
	data, err := settings.Encode(s)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, upsertSettingsSQL,
		settingsRowID,
		models.SettingsVersion,
		string(data),
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

// Load returns the stored document migrated to the current version, or the defaults
// when nothing has been saved yet. Migration happens in memory; the next Save writes
// the upgraded document.
func (r *SettingsSQLite) Load(ctx context.Context) (models.Settings, error) {
	var (
		version int
		data    string
	)
	err := r.db.QueryRowContext(ctx, selectSettingsSQL, settingsRowID).Scan(&version, &data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.DefaultSettings(), nil
		}
		return models.Settings{}, fmt.Errorf("load settings: %w", err)
	}
	return settings.Decode([]byte(data), version)
}
