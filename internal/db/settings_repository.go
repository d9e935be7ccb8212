package db

import (
	"context"
	"database/sql"
	"errors"

	apperrors "github.com/24ep/studio-sub000/pkg/errors"
)

const SettingWebhookURL = "webhook_url"

type SettingsRepository interface {
	// GetSetting returns "" when the key is absent.
	GetSetting(ctx context.Context, key string) (string, error)
	PutSetting(ctx context.Context, key, value string) error
}

type settingsRepository struct {
	db *DB
}

func NewSettingsRepository(db *DB) SettingsRepository {
	return &settingsRepository{db: db}
}

func (r *settingsRepository) GetSetting(ctx context.Context, key string) (string, error) {
	var value sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT value FROM settings WHERE setting_key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", apperrors.NewPersistenceError("get setting", err)
	}
	return value.String, nil
}

func (r *settingsRepository) PutSetting(ctx context.Context, key, value string) error {
	return r.db.WithTx(ctx, "put setting", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE settings SET value = ?, updated_at = ? WHERE setting_key = ?`, value, nowUTC(), key)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			return nil
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO settings (setting_key, value, updated_at) VALUES (?, ?, ?)`, key, value, nowUTC())
		return err
	})
}
