package sessionauth

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type mockUserProvider struct {
	mu     sync.Mutex
	users  map[string]*User
	nextID int
	now    func() time.Time

	// failWith, when set, is returned by every call.
	failWith error
}

func newMockUserProvider(now func() time.Time) *mockUserProvider {
	return &mockUserProvider{users: make(map[string]*User), now: now}
}

func (m *mockUserProvider) CreateUser(_ context.Context, in NewUser) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	for _, u := range m.users {
		switch {
		case strings.EqualFold(u.Email, in.Email):
			return nil, &DuplicateError{Field: "email"}
		case u.Username == in.Username:
			return nil, &DuplicateError{Field: "username"}
		case u.Phone == in.Phone:
			return nil, &DuplicateError{Field: "phone"}
		}
	}
	m.nextID++
	now := m.now()
	u := &User{
		ID:           "user-" + strconv.Itoa(m.nextID),
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Username:     in.Username,
		Email:        in.Email,
		Phone:        in.Phone,
		PasswordHash: in.PasswordHash,
		Role:         in.Role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	m.users[u.ID] = u
	return copyUser(u), nil
}

func (m *mockUserProvider) GetByID(_ context.Context, userID string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	u, ok := m.users[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	return copyUser(u), nil
}

func (m *mockUserProvider) FindByEmail(_ context.Context, email string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			return copyUser(u), nil
		}
	}
	return nil, ErrUserNotFound
}

func (m *mockUserProvider) FindByIdentifier(_ context.Context, identifier string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	for _, u := range m.users {
		if strings.EqualFold(u.Email, identifier) || u.Username == identifier || u.Phone == identifier {
			return copyUser(u), nil
		}
	}
	return nil, ErrUserNotFound
}

func (m *mockUserProvider) FindByAny(_ context.Context, email, username, phone string) ([]*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	var out []*User
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) || u.Username == username || u.Phone == phone {
			out = append(out, copyUser(u))
		}
	}
	return out, nil
}

func (m *mockUserProvider) MarkEmailVerified(_ context.Context, userID string) (*User, error) {
	return m.update(userID, func(u *User) { u.EmailVerified = true })
}

func (m *mockUserProvider) UpdatePasswordHash(_ context.Context, userID, hash string) (*User, error) {
	return m.update(userID, func(u *User) { u.PasswordHash = hash })
}

func (m *mockUserProvider) UpdateMFA(_ context.Context, userID string, prefs MFAPreferences) (*User, error) {
	return m.update(userID, func(u *User) { u.MFA = prefs })
}

func (m *mockUserProvider) update(userID string, fn func(*User)) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	u, ok := m.users[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	fn(u)
	u.UpdatedAt = m.now()
	return copyUser(u), nil
}

func (m *mockUserProvider) get(t *testing.T, userID string) *User {
	t.Helper()
	u, err := m.GetByID(context.Background(), userID)
	if err != nil {
		t.Fatalf("get user %s: %v", userID, err)
	}
	return u
}

func copyUser(u *User) *User {
	c := *u
	return &c
}

type recordingNotifier struct {
	mu       sync.Mutex
	messages []Message
	failWith error
}

func (n *recordingNotifier) Send(_ context.Context, msg Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failWith != nil {
		return n.failWith
	}
	n.messages = append(n.messages, msg)
	return nil
}

func (n *recordingNotifier) last(t *testing.T) Message {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.messages) == 0 {
		t.Fatal("no notification sent")
	}
	return n.messages[len(n.messages)-1]
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.messages)
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type testEnv struct {
	engine   *Engine
	mr       *miniredis.Miniredis
	rdb      *redis.Client
	clock    *testClock
	users    *mockUserProvider
	notifier *recordingNotifier
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.AppOrigin = "https://app.example.com"
	cfg.JWT.AccessSecret = "access-secret-for-tests-0123456789"
	cfg.JWT.RefreshSecret = "refresh-secret-for-tests-0123456789"
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	return cfg
}

func newTestEnv(t *testing.T, mutate ...func(*Config)) *testEnv {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})

	cfg := testConfig()
	for _, fn := range mutate {
		fn(&cfg)
	}

	clock := &testClock{now: time.UnixMilli(1_700_000_000_000)}
	users := newMockUserProvider(clock.Now)
	notifier := &recordingNotifier{}

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserProvider(users).
		WithNotifier(notifier).
		WithClock(clock.Now).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	return &testEnv{engine: engine, mr: mr, rdb: rdb, clock: clock, users: users, notifier: notifier}
}

var alice = RegisterInput{
	FirstName: "Alice",
	LastName:  "Liddell",
	Username:  "alice",
	Email:     "alice@x.com",
	Phone:     "+15551234567",
	Password:  "secret1",
}

func (env *testEnv) register(t *testing.T, in RegisterInput) *UserProfile {
	t.Helper()
	p, err := env.engine.Register(context.Background(), in)
	if err != nil {
		t.Fatalf("Register(%s): %v", in.Username, err)
	}
	return p
}

func (env *testEnv) login(t *testing.T, identifier, plaintext string) *LoginResult {
	t.Helper()
	res, err := env.engine.Login(context.Background(), identifier, plaintext, "test-agent")
	if err != nil {
		t.Fatalf("Login(%s): %v", identifier, err)
	}
	return res
}

// codeFromMessage pulls the code out of a verification or reset link.
func codeFromMessage(t *testing.T, msg Message) string {
	t.Helper()
	link := msg.Data["url"]
	u, err := url.Parse(link)
	if err != nil {
		t.Fatalf("parse link %q: %v", link, err)
	}
	if code := u.Query().Get("code"); code != "" {
		return code
	}
	idx := strings.LastIndex(u.Path, "/")
	if idx < 0 || idx == len(u.Path)-1 {
		t.Fatalf("no code in link %q", link)
	}
	return u.Path[idx+1:]
}

func assertIs(t *testing.T, err, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("expected %v, got %v", target, err)
	}
}
