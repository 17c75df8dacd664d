package sessionauth

import (
	"context"
	"errors"

	"github.com/MrEthical07/sessionauth/session"
	"go.uber.org/zap"
)

// ListSessions returns the live sessions of userID, newest first. The entry
// matching currentSessionID is flagged Current.
func (e *Engine) ListSessions(ctx context.Context, userID, currentSessionID string) ([]SessionInfo, error) {
	list, err := e.sessions.ListForUser(ctx, userID)
	if err != nil {
		e.log(ctx).Error("session list failed", zap.String("user_id", userID), zap.Error(err))
		return nil, internalErr(err)
	}

	out := make([]SessionInfo, 0, len(list))
	for _, s := range list {
		info := sessionInfo(s)
		info.Current = s.ID == currentSessionID
		out = append(out, info)
	}
	return out, nil
}

// GetSession returns sessionID and the profile of its owner.
func (e *Engine) GetSession(ctx context.Context, sessionID string) (*SessionInfo, *UserProfile, error) {
	sess, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) || errors.Is(err, session.ErrSessionExpired) {
			return nil, nil, ErrSessionNotFound
		}
		return nil, nil, internalErr(err)
	}

	user, err := e.loadUser(ctx, sess.UserID)
	if err != nil {
		return nil, nil, err
	}

	info := sessionInfo(sess)
	info.Current = true
	profile := user.Profile()
	return &info, &profile, nil
}

// DeleteSession removes one of userID's other sessions. The current session
// is refused with ErrCannotDeleteCurrentSession; sessions that do not exist
// or belong to someone else fail with ErrSessionNotFound.
func (e *Engine) DeleteSession(ctx context.Context, userID, sessionID, currentSessionID string) error {
	if sessionID == "" {
		return fieldError("id", "Session id is required")
	}
	if sessionID == currentSessionID {
		return ErrCannotDeleteCurrentSession
	}

	sess, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) || errors.Is(err, session.ErrSessionExpired) {
			return ErrSessionNotFound
		}
		return internalErr(err)
	}
	if sess.UserID != userID {
		return ErrSessionNotFound
	}

	if err := e.sessions.Delete(ctx, sessionID); err != nil {
		return internalErr(err)
	}
	return nil
}

func sessionInfo(s *session.Session) SessionInfo {
	return SessionInfo{
		ID:        s.ID,
		UserID:    s.UserID,
		UserAgent: s.UserAgent,
		CreatedAt: s.CreatedAt,
		ExpiresAt: s.ExpiresAt,
	}
}
