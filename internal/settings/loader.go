package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/libernet/sofia-billing/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GetRaw returns the raw JSON value for a settings key, or false when the
// key is absent.
func GetRaw(conn *gorm.DB, key string) (json.RawMessage, bool, error) {
	key = strings.TrimSpace(key)
	if conn == nil || key == "" {
		return nil, false, nil
	}
	var row models.Setting
	errFind := conn.Where("key = ?", key).First(&row).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("settings: read %s: %w", key, errFind)
	}
	return json.RawMessage(row.Value), true, nil
}

// SetRaw upserts the raw JSON value for a settings key.
func SetRaw(conn *gorm.DB, key string, value json.RawMessage) error {
	key = strings.TrimSpace(key)
	if conn == nil || key == "" {
		return fmt.Errorf("settings: empty key")
	}
	row := models.Setting{
		Key:       key,
		Value:     datatypes.JSON(value),
		UpdatedAt: time.Now().UTC(),
	}
	if errUpsert := conn.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&row).Error; errUpsert != nil {
		return fmt.Errorf("settings: write %s: %w", key, errUpsert)
	}
	return nil
}

// GetFloat reads a float settings value, returning ok=false when absent or
// malformed.
func GetFloat(conn *gorm.DB, key string) (float64, bool, error) {
	raw, ok, err := GetRaw(conn, key)
	if err != nil || !ok {
		return 0, false, err
	}
	var value float64
	if errUnmarshal := json.Unmarshal(raw, &value); errUnmarshal != nil {
		return 0, false, nil
	}
	return value, true, nil
}

// SetFloat writes a float settings value.
func SetFloat(conn *gorm.DB, key string, value float64) error {
	raw, errMarshal := json.Marshal(value)
	if errMarshal != nil {
		return fmt.Errorf("settings: marshal %s: %w", key, errMarshal)
	}
	return SetRaw(conn, key, raw)
}

// GetTime reads an RFC3339 timestamp settings value.
func GetTime(conn *gorm.DB, key string) (time.Time, bool, error) {
	raw, ok, err := GetRaw(conn, key)
	if err != nil || !ok {
		return time.Time{}, false, err
	}
	var value time.Time
	if errUnmarshal := json.Unmarshal(raw, &value); errUnmarshal != nil {
		return time.Time{}, false, nil
	}
	return value, true, nil
}

// SetTime writes an RFC3339 timestamp settings value.
func SetTime(conn *gorm.DB, key string, value time.Time) error {
	raw, errMarshal := json.Marshal(value.UTC())
	if errMarshal != nil {
		return fmt.Errorf("settings: marshal %s: %w", key, errMarshal)
	}
	return SetRaw(conn, key, raw)
}
