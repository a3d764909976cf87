package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dukerupert/civicpoints/internal/model"
)

// ErrSettingNotFound is returned by Get when the member has no value for key.
var ErrSettingNotFound = errors.New("setting not found")

// preferencesKey holds the member's serialized model.Settings document.
const preferencesKey = "preferences"

type SettingsStore struct {
	db *sql.DB
}

func NewSettingsStore(db *sql.DB) *SettingsStore {
	return &SettingsStore{db: db}
}

func (s *SettingsStore) Get(ctx context.Context, memberID int64, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM settings WHERE member_id = ? AND key = ?`,
		memberID, key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("setting %q: %w", key, ErrSettingNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("get setting %q: %w", key, err)
	}
	return value, nil
}

func (s *SettingsStore) Set(ctx context.Context, memberID int64, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (member_id, key, value, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(member_id, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		memberID, key, value, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("set setting %q: %w", key, err)
	}
	return nil
}

// GetSettings returns the member's preferences merged over the defaults.
func (s *SettingsStore) GetSettings(ctx context.Context, memberID int64) (model.Settings, error) {
	raw, err := s.Get(ctx, memberID, preferencesKey)
	if errors.Is(err, ErrSettingNotFound) {
		return model.DefaultSettings(), nil
	}
	if err != nil {
		return model.Settings{}, err
	}
	settings, err := model.DecodeSettings([]byte(raw))
	if err != nil {
		return model.Settings{}, fmt.Errorf("decode settings: %w", err)
	}
	return settings, nil
}

func (s *SettingsStore) SaveSettings(ctx context.Context, memberID int64, settings model.Settings) error {
	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	return s.Set(ctx, memberID, preferencesKey, string(data))
}
