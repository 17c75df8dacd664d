package userstore

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrEthical07/sessionauth"
)

// Memory is an in-process sessionauth.UserProvider. Returned users are
// copies; mutating them does not affect the store.
type Memory struct {
	mu    sync.RWMutex
	users map[string]*sessionauth.User
	now   func() time.Time
}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{
		users: make(map[string]*sessionauth.User),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (m *Memory) CreateUser(_ context.Context, in sessionauth.NewUser) (*sessionauth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if field := clash(u, in.Email, in.Username, in.Phone); field != "" {
			return nil, &sessionauth.DuplicateError{Field: field}
		}
	}

	now := m.now()
	u := &sessionauth.User{
		ID:           uuid.NewString(),
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Username:     in.Username,
		Email:        strings.ToLower(in.Email),
		Phone:        in.Phone,
		PasswordHash: in.PasswordHash,
		Role:         in.Role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if u.Role == "" {
		u.Role = sessionauth.DefaultRole
	}
	m.users[u.ID] = u

	c := *u
	return &c, nil
}

func (m *Memory) GetByID(_ context.Context, userID string) (*sessionauth.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if u, ok := m.users[userID]; ok {
		c := *u
		return &c, nil
	}
	return nil, sessionauth.ErrUserNotFound
}

func (m *Memory) FindByEmail(_ context.Context, email string) (*sessionauth.User, error) {
	return m.find(func(u *sessionauth.User) bool {
		return strings.EqualFold(u.Email, email)
	})
}

// FindByIdentifier prefers an email match, then username, then phone.
func (m *Memory) FindByIdentifier(_ context.Context, identifier string) (*sessionauth.User, error) {
	if identifier == "" {
		return nil, sessionauth.ErrUserNotFound
	}
	matchers := []func(*sessionauth.User) bool{
		func(u *sessionauth.User) bool { return strings.EqualFold(u.Email, identifier) },
		func(u *sessionauth.User) bool { return u.Username == identifier },
		func(u *sessionauth.User) bool { return u.Phone == identifier },
	}
	for _, match := range matchers {
		if u, err := m.find(match); err == nil {
			return u, nil
		}
	}
	return nil, sessionauth.ErrUserNotFound
}

func (m *Memory) FindByAny(_ context.Context, email, username, phone string) ([]*sessionauth.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*sessionauth.User
	for _, u := range m.users {
		if clash(u, email, username, phone) != "" {
			c := *u
			out = append(out, &c)
		}
	}
	return out, nil
}

func (m *Memory) MarkEmailVerified(_ context.Context, userID string) (*sessionauth.User, error) {
	return m.update(userID, func(u *sessionauth.User) { u.EmailVerified = true })
}

func (m *Memory) UpdatePasswordHash(_ context.Context, userID, hash string) (*sessionauth.User, error) {
	return m.update(userID, func(u *sessionauth.User) { u.PasswordHash = hash })
}

func (m *Memory) UpdateMFA(_ context.Context, userID string, prefs sessionauth.MFAPreferences) (*sessionauth.User, error) {
	return m.update(userID, func(u *sessionauth.User) { u.MFA = prefs })
}

func (m *Memory) find(match func(*sessionauth.User) bool) (*sessionauth.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, u := range m.users {
		if match(u) {
			c := *u
			return &c, nil
		}
	}
	return nil, sessionauth.ErrUserNotFound
}

func (m *Memory) update(userID string, fn func(*sessionauth.User)) (*sessionauth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[userID]
	if !ok {
		return nil, sessionauth.ErrUserNotFound
	}
	fn(u)
	u.UpdatedAt = m.now()

	c := *u
	return &c, nil
}

// clash names the first unique field of u matching one of the non-empty
// values, or "" when none does.
func clash(u *sessionauth.User, email, username, phone string) string {
	switch {
	case email != "" && strings.EqualFold(u.Email, email):
		return "email"
	case username != "" && u.Username == username:
		return "username"
	case phone != "" && u.Phone == phone:
		return "phone"
	default:
		return ""
	}
}
