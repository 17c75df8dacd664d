package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable is returned when a Redis command fails.
var ErrRedisUnavailable = errors.New("redis unavailable")

// ErrSessionNotFound is returned when no record exists for the session ID.
var ErrSessionNotFound = errors.New("session not found")

// ErrSessionExpired is returned when the record exists but its expiry has passed.
var ErrSessionExpired = errors.New("session expired")

const (
	rotateStatusNotFound int64 = 0
	rotateStatusExpired  int64 = 1
	rotateStatusFresh    int64 = 2
	rotateStatusRotated  int64 = 3
)

const deleteSessionScript = `
local user_id = redis.call("HGET", KEYS[1], "user_id")
if not user_id then
  return 0
end
redis.call("DEL", KEYS[1])
redis.call("SREM", ARGV[1] .. user_id, ARGV[2])
return 1
`

var deleteSessionLua = redis.NewScript(deleteSessionScript)

// KEYS[1] session hash
// ARGV[1] now ms, ARGV[2] rotation window ms, ARGV[3] next expiry ms,
// ARGV[4] next ttl ms, ARGV[5] user index prefix, ARGV[6] session id
const rotateSessionScript = `
local raw = redis.call("HGET", KEYS[1], "expires_at")
if not raw then
  return {0}
end

local expires_at = tonumber(raw)
local now = tonumber(ARGV[1])
if not expires_at then
  return {0}
end

if expires_at <= now then
  local user_id = redis.call("HGET", KEYS[1], "user_id")
  redis.call("DEL", KEYS[1])
  if user_id then
    redis.call("SREM", ARGV[5] .. user_id, ARGV[6])
  end
  return {1}
end

if expires_at - now > tonumber(ARGV[2]) or tonumber(ARGV[3]) <= expires_at then
  return {2, raw}
end

redis.call("HSET", KEYS[1], "expires_at", ARGV[3])
redis.call("PEXPIRE", KEYS[1], ARGV[4])
return {3, ARGV[3]}
`

var rotateSessionLua = redis.NewScript(rotateSessionScript)

// Config tunes a [Store].
type Config struct {
	// Prefix namespaces session keys. Defaults to "as".
	Prefix string
	// Lifetime is the expiry given to new and rotated sessions. It matches the
	// refresh-token lifetime.
	Lifetime time.Duration
	// RotationWindow is how close to expiry a session must be before
	// RotateIfNearExpiry extends it.
	RotationWindow time.Duration
	Now            func() time.Time
}

// Store is a Redis-backed session store.
type Store struct {
	redis          redis.UniversalClient
	prefix         string
	lifetime       time.Duration
	rotationWindow time.Duration
	now            func() time.Time
}

// NewStore creates a session [Store] backed by the given Redis client.
func NewStore(rdb redis.UniversalClient, cfg Config) (*Store, error) {
	if rdb == nil {
		return nil, errors.New("redis client is required")
	}
	if cfg.Lifetime <= 0 {
		return nil, errors.New("session lifetime must be positive")
	}
	if cfg.RotationWindow <= 0 || cfg.RotationWindow >= cfg.Lifetime {
		return nil, errors.New("rotation window must be positive and shorter than the lifetime")
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "as"
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Store{
		redis:          rdb,
		prefix:         cfg.Prefix,
		lifetime:       cfg.Lifetime,
		rotationWindow: cfg.RotationWindow,
		now:            cfg.Now,
	}, nil
}

func (s *Store) key(sessionID string) string {
	return s.prefix + ":" + sessionID
}

// userIndexPrefix namespaces the per-user index under the store prefix.
// Session IDs are UUIDs, so "<prefix>:u:" never collides with a session key.
func (s *Store) userIndexPrefix() string {
	return s.prefix + ":u:"
}

func (s *Store) userKey(userID string) string {
	return s.userIndexPrefix() + userID
}

// Create persists a new session for userID expiring one lifetime from now.
//
//	Performance: 1 MULTI/EXEC (HSET + PEXPIRE + SADD).
func (s *Store) Create(ctx context.Context, userID, userAgent string) (*Session, error) {
	if userID == "" {
		return nil, errors.New("user id is required")
	}

	now := s.now()
	sess := &Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		UserAgent: userAgent,
		CreatedAt: now,
		ExpiresAt: now.Add(s.lifetime),
	}

	key := s.key(sess.ID)
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, encode(sess))
		pipe.PExpire(ctx, key, s.lifetime)
		pipe.SAdd(ctx, s.userKey(userID), sess.ID)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return sess, nil
}

// Get loads a session. It returns [ErrSessionNotFound] when no record exists
// and [ErrSessionExpired] when the stored expiry has passed; an expired record
// is removed on the way out.
func (s *Store) Get(ctx context.Context, sessionID string) (*Session, error) {
	if sessionID == "" {
		return nil, ErrSessionNotFound
	}

	fields, err := s.redis.HGetAll(ctx, s.key(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, ErrSessionNotFound
	}

	sess, err := decode(sessionID, fields)
	if err != nil {
		return nil, err
	}

	if sess.Expired(s.now()) {
		if err := s.Delete(ctx, sessionID); err != nil {
			return nil, err
		}
		return nil, ErrSessionExpired
	}

	return sess, nil
}

// RotateIfNearExpiry extends the session to now+lifetime when its remaining
// lifetime is at most the rotation window. Otherwise it changes nothing.
//
//	Performance: 1 EVALSHA.
func (s *Store) RotateIfNearExpiry(ctx context.Context, sessionID string, now time.Time) (Rotation, error) {
	next := now.Add(s.lifetime)

	res, err := rotateSessionLua.Run(
		ctx,
		s.redis,
		[]string{s.key(sessionID)},
		now.UnixMilli(),
		s.rotationWindow.Milliseconds(),
		strconv.FormatInt(next.UnixMilli(), 10),
		s.lifetime.Milliseconds(),
		s.userIndexPrefix(),
		sessionID,
	).Slice()
	if err != nil {
		return Rotation{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(res) == 0 {
		return Rotation{}, ErrSessionCorrupt
	}

	status, ok := res[0].(int64)
	if !ok {
		return Rotation{}, ErrSessionCorrupt
	}

	switch status {
	case rotateStatusNotFound:
		return Rotation{}, ErrSessionNotFound
	case rotateStatusExpired:
		return Rotation{}, ErrSessionExpired
	case rotateStatusFresh, rotateStatusRotated:
		if len(res) < 2 {
			return Rotation{}, ErrSessionCorrupt
		}
		raw, _ := res[1].(string)
		expiresAt, err := parseMillis(raw)
		if err != nil {
			return Rotation{}, err
		}
		return Rotation{Extended: status == rotateStatusRotated, ExpiresAt: expiresAt}, nil
	default:
		return Rotation{}, ErrSessionCorrupt
	}
}

// Delete removes a session and its index entry. Deleting a missing session
// is not an error.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}

	err := deleteSessionLua.Run(ctx, s.redis, []string{s.key(sessionID)}, s.userIndexPrefix(), sessionID).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// DeleteAllForUser removes every session indexed for userID and returns how
// many records were deleted.
//
// A session created between the SMEMBERS read and the delete is not covered;
// it survives until its own expiry or the next call.
func (s *Store) DeleteAllForUser(ctx context.Context, userID string) (int, error) {
	userKey := s.userKey(userID)

	sessionIDs, err := s.redis.SMembers(ctx, userKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(sessionIDs) == 0 {
		return 0, nil
	}

	keys := make([]string, 0, len(sessionIDs))
	for _, id := range sessionIDs {
		keys = append(keys, s.key(id))
	}

	var deleted *redis.IntCmd
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		deleted = pipe.Del(ctx, keys...)
		pipe.SRem(ctx, userKey, toAny(sessionIDs)...)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return int(deleted.Val()), nil
}

// ListForUser returns the user's live sessions, newest first. Index entries
// pointing at missing or expired records are pruned.
func (s *Store) ListForUser(ctx context.Context, userID string) ([]*Session, error) {
	userKey := s.userKey(userID)

	sessionIDs, err := s.redis.SMembers(ctx, userKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(sessionIDs) == 0 {
		return nil, nil
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(sessionIDs))
	for i, id := range sessionIDs {
		cmds[i] = pipe.HGetAll(ctx, s.key(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	now := s.now()
	live := make([]*Session, 0, len(sessionIDs))
	var stale []interface{}
	for i, cmd := range cmds {
		fields, err := cmd.Result()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		if len(fields) == 0 {
			stale = append(stale, sessionIDs[i])
			continue
		}
		sess, err := decode(sessionIDs[i], fields)
		if err != nil || sess.UserID != userID || sess.Expired(now) {
			stale = append(stale, sessionIDs[i])
			continue
		}
		live = append(live, sess)
	}

	if len(stale) > 0 {
		if err := s.redis.SRem(ctx, userKey, stale...).Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	sort.Slice(live, func(i, j int) bool {
		return live[i].CreatedAt.After(live[j].CreatedAt)
	})
	return live, nil
}

func toAny(values []string) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
