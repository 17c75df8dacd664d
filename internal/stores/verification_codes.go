package stores

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/MrEthical07/sessionauth/internal"
	"github.com/redis/go-redis/v9"
)

const (
	codeRecordVersionV1 = 1
	maxIssueAttempts    = 4
	maxConsumeRetries   = 4
)

var (
	// ErrCodeInvalid covers every rejection: unknown code, wrong purpose and expiry.
	ErrCodeInvalid = errors.New("verification code invalid")
	// ErrCodeRedisUnavailable is returned when a Redis command fails.
	ErrCodeRedisUnavailable = errors.New("verification code redis unavailable")
)

// Purpose tags what a code may be used for.
type Purpose string

const (
	PurposeEmailVerification Purpose = "EMAIL_VERIFICATION"
	PurposePasswordReset     Purpose = "PASSWORD_RESET"
)

func (p Purpose) valid() bool {
	return p == PurposeEmailVerification || p == PurposePasswordReset
}

func (p Purpose) tag() byte {
	switch p {
	case PurposeEmailVerification:
		return 1
	case PurposePasswordReset:
		return 2
	default:
		return 0
	}
}

// VerificationCode is the stored form of an issued code. The code string
// itself is only returned from Issue.
type VerificationCode struct {
	UserID    string
	Purpose   Purpose
	CreatedAt time.Time
	ExpiresAt time.Time
}

// VerificationCodeStore issues and consumes single-use codes.
type VerificationCodeStore struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewVerificationCodeStore builds a store. now defaults to time.Now.
func NewVerificationCodeStore(redisClient redis.UniversalClient, prefix string, now func() time.Time) *VerificationCodeStore {
	if prefix == "" {
		prefix = "avc"
	}
	if now == nil {
		now = time.Now
	}
	return &VerificationCodeStore{
		redis:  redisClient,
		prefix: prefix,
		now:    now,
	}
}

func (s *VerificationCodeStore) key(code string) string {
	return s.prefix + ":" + internal.HashCode(code)
}

func (s *VerificationCodeStore) issuedKey(userID string, purpose Purpose) string {
	return s.prefix + "i:" + string(purpose) + ":" + userID
}

// KEYS[1] issue log
// ARGV[1] now ms, ARGV[2] window start (exclusive), ARGV[3] limit,
// ARGV[4] member, ARGV[5] window ms
const reserveIssueScript = `
redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", ARGV[2])
if redis.call("ZCARD", KEYS[1]) >= tonumber(ARGV[3]) then
  return 0
end
redis.call("ZADD", KEYS[1], ARGV[1], ARGV[4])
redis.call("PEXPIRE", KEYS[1], ARGV[5])
return 1
`

var reserveIssueLua = redis.NewScript(reserveIssueScript)

// Issue generates a fresh code for userID and purpose valid for ttl.
func (s *VerificationCodeStore) Issue(ctx context.Context, userID string, purpose Purpose, ttl time.Duration) (string, error) {
	if userID == "" {
		return "", errors.New("user id is required")
	}
	if !purpose.valid() {
		return "", fmt.Errorf("unknown code purpose %q", purpose)
	}
	if ttl <= 0 {
		return "", errors.New("code ttl must be positive")
	}

	now := s.now()
	record := &VerificationCode{
		UserID:    userID,
		Purpose:   purpose,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	encoded, err := encodeCodeRecord(record)
	if err != nil {
		return "", err
	}

	for i := 0; i < maxIssueAttempts; i++ {
		code, err := internal.NewCode()
		if err != nil {
			return "", err
		}

		ok, err := s.redis.SetNX(ctx, s.key(code), encoded, ttl).Result()
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrCodeRedisUnavailable, err)
		}
		if !ok {
			continue
		}

		return code, nil
	}

	return "", errors.New("could not allocate a unique verification code")
}

// Consume deletes the code and returns its owner when the code exists, has
// the given purpose and has not expired. Every other outcome is ErrCodeInvalid.
// A code with the wrong purpose is left in place.
func (s *VerificationCodeStore) Consume(ctx context.Context, code string, purpose Purpose) (string, error) {
	if code == "" || !purpose.valid() {
		return "", ErrCodeInvalid
	}
	key := s.key(code)

	for i := 0; i < maxConsumeRetries; i++ {
		var userID string

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			record, err := decodeCodeRecord(data)
			if err != nil {
				return ErrCodeInvalid
			}
			if record.Purpose != purpose {
				return ErrCodeInvalid
			}

			expired := !s.now().Before(record.ExpiresAt)
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key)
				return nil
			})
			if err != nil {
				return err
			}
			if expired {
				return ErrCodeInvalid
			}

			userID = record.UserID
			return nil
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			switch {
			case errors.Is(err, redis.Nil), errors.Is(err, ErrCodeInvalid):
				return "", ErrCodeInvalid
			default:
				return "", fmt.Errorf("%w: %v", ErrCodeRedisUnavailable, err)
			}
		}

		return userID, nil
	}

	return "", ErrCodeInvalid
}

// Reserve claims one of limit issue slots for userID and purpose in the
// rolling window ending at now. It reports false when every slot is taken.
// A claimed slot stays counted even if the caller never issues the code.
//
//	Performance: 1 EVALSHA.
func (s *VerificationCodeStore) Reserve(ctx context.Context, userID string, purpose Purpose, now time.Time, window time.Duration, limit int) (bool, error) {
	if userID == "" || !purpose.valid() {
		return false, errors.New("user id and purpose are required")
	}
	if limit <= 0 || window <= 0 {
		return false, errors.New("reservation limit and window must be positive")
	}

	member, err := internal.NewCode()
	if err != nil {
		return false, err
	}

	ok, err := reserveIssueLua.Run(
		ctx,
		s.redis,
		[]string{s.issuedKey(userID, purpose)},
		now.UnixMilli(),
		"("+strconv.FormatInt(now.Add(-window).UnixMilli(), 10),
		limit,
		member,
		window.Milliseconds(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrCodeRedisUnavailable, err)
	}
	return ok == 1, nil
}

func encodeCodeRecord(record *VerificationCode) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(codeRecordVersionV1)
	buf.WriteByte(record.Purpose.tag())

	if err := binary.Write(&buf, binary.BigEndian, record.CreatedAt.UnixMilli()); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt.UnixMilli()); err != nil {
		return nil, err
	}

	if len(record.UserID) > 65535 {
		return nil, errors.New("code record user id too long")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.UserID))); err != nil {
		return nil, err
	}
	buf.WriteString(record.UserID)

	return buf.Bytes(), nil
}

func decodeCodeRecord(data []byte) (*VerificationCode, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != codeRecordVersionV1 {
		return nil, errors.New("invalid code record version")
	}

	tag, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}

	record := &VerificationCode{}
	switch tag {
	case 1:
		record.Purpose = PurposeEmailVerification
	case 2:
		record.Purpose = PurposePasswordReset
	default:
		return nil, errors.New("invalid code record purpose")
	}

	var createdAt, expiresAt int64
	if err := binary.Read(reader, binary.BigEndian, &createdAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &expiresAt); err != nil {
		return nil, err
	}
	record.CreatedAt = time.UnixMilli(createdAt)
	record.ExpiresAt = time.UnixMilli(expiresAt)

	var userIDLen uint16
	if err := binary.Read(reader, binary.BigEndian, &userIDLen); err != nil {
		return nil, err
	}
	userID := make([]byte, userIDLen)
	if _, err := io.ReadFull(reader, userID); err != nil {
		return nil, err
	}
	record.UserID = string(userID)

	return record, nil
}
