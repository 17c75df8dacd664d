package session

import "time"

// Session is one authenticated device binding.
type Session struct {
	ID        string
	UserID    string
	UserAgent string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the session is no longer usable at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Rotation is the outcome of [Store.RotateIfNearExpiry].
type Rotation struct {
	Extended  bool
	ExpiresAt time.Time
}
