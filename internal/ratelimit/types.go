// Package ratelimit enforces per-user fixed-window request limits, in
// memory by default and via Redis when a shared backend is configured.
package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// Result describes the outcome of a rate limit check.
type Result struct {
	Allowed   bool
	Remaining int
	Reset     time.Time
}

// Limiter provides rate limit checks.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, now time.Time) (Result, error)
}

// UserKey builds the limiter key for a user.
func UserKey(userID uint64) string {
	if userID == 0 {
		return ""
	}
	return fmt.Sprintf("u:%d", userID)
}
