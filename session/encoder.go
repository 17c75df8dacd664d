package session

import (
	"errors"
	"strconv"
	"time"
)

const (
	fieldUserID    = "user_id"
	fieldUserAgent = "user_agent"
	fieldCreatedAt = "created_at"
	fieldExpiresAt = "expires_at"
)

// ErrSessionCorrupt is returned when a stored record is missing fields.
var ErrSessionCorrupt = errors.New("session record corrupt")

func encode(s *Session) map[string]interface{} {
	return map[string]interface{}{
		fieldUserID:    s.UserID,
		fieldUserAgent: s.UserAgent,
		fieldCreatedAt: formatMillis(s.CreatedAt),
		fieldExpiresAt: formatMillis(s.ExpiresAt),
	}
}

func decode(id string, fields map[string]string) (*Session, error) {
	userID := fields[fieldUserID]
	if userID == "" {
		return nil, ErrSessionCorrupt
	}

	createdAt, err := parseMillis(fields[fieldCreatedAt])
	if err != nil {
		return nil, err
	}
	expiresAt, err := parseMillis(fields[fieldExpiresAt])
	if err != nil {
		return nil, err
	}

	return &Session{
		ID:        id,
		UserID:    userID,
		UserAgent: fields[fieldUserAgent],
		CreatedAt: createdAt,
		ExpiresAt: expiresAt,
	}, nil
}

func formatMillis(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func parseMillis(raw string) (time.Time, error) {
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, ErrSessionCorrupt
	}
	return time.UnixMilli(ms), nil
}
