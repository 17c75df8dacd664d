package userstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/MrEthical07/sessionauth"
)

const usersTable = "auth_users"

const pgUniqueViolation = "23505"

var userColumns = []string{
	"id",
	"first_name",
	"last_name",
	"username",
	"email",
	"phone",
	"password_hash",
	"role",
	"email_verified",
	"mfa_enabled",
	"mfa_secret",
	"created_at",
	"updated_at",
}

// constraintFields maps unique constraints to the field they protect.
var constraintFields = map[string]string{
	"auth_users_email_key":    "email",
	"auth_users_username_key": "username",
	"auth_users_phone_key":    "phone",
}

// Executor is the subset of pgxpool.Pool and pgx.Tx the store needs.
type Executor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres is a PostgreSQL-backed sessionauth.UserProvider.
type Postgres struct {
	exec    Executor
	builder squirrel.StatementBuilderType
	now     func() time.Time
}

// NewPostgres wires a store over exec, usually a *pgxpool.Pool.
func NewPostgres(exec Executor) *Postgres {
	return &Postgres{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// CreateUser inserts a new user row.
func (p *Postgres) CreateUser(ctx context.Context, in sessionauth.NewUser) (*sessionauth.User, error) {
	now := p.now()
	user := &sessionauth.User{
		ID:           uuid.NewString(),
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
	if user.Role == "" {
		user.Role = sessionauth.DefaultRole
	}

	stmt, args, err := p.builder.Insert(usersTable).
		Columns(userColumns...).
		Values(
			user.ID,
			user.FirstName,
			user.LastName,
			nullable(user.Username),
			user.Email,
			nullable(user.Phone),
			user.PasswordHash,
			user.Role,
			false,
			false,
			nil,
			user.CreatedAt,
			user.UpdatedAt,
		).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build insert user sql: %w", err)
	}

	if _, err := p.exec.Exec(ctx, stmt, args...); err != nil {
		if dup := duplicateFrom(err); dup != nil {
			return nil, dup
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}

	return user, nil
}

// GetByID retrieves a user by id.
func (p *Postgres) GetByID(ctx context.Context, userID string) (*sessionauth.User, error) {
	return p.selectOne(ctx, squirrel.Eq{"id": userID})
}

// FindByEmail retrieves a user by email.
func (p *Postgres) FindByEmail(ctx context.Context, email string) (*sessionauth.User, error) {
	return p.selectOne(ctx, squirrel.Eq{"email": strings.ToLower(email)})
}

// FindByIdentifier retrieves a user by email, username or phone.
func (p *Postgres) FindByIdentifier(ctx context.Context, identifier string) (*sessionauth.User, error) {
	email := strings.ToLower(identifier)
	return p.selectOne(ctx,
		squirrel.Or{
			squirrel.Eq{"email": email},
			squirrel.Eq{"username": identifier},
			squirrel.Eq{"phone": identifier},
		},
		// email beats username beats phone when rows disagree
		squirrel.Expr("CASE WHEN email = ? THEN 0 WHEN username = ? THEN 1 ELSE 2 END", email, identifier),
	)
}

// FindByAny returns every user holding one of the non-empty values.
func (p *Postgres) FindByAny(ctx context.Context, email, username, phone string) ([]*sessionauth.User, error) {
	var or squirrel.Or
	if email != "" {
		or = append(or, squirrel.Eq{"email": strings.ToLower(email)})
	}
	if username != "" {
		or = append(or, squirrel.Eq{"username": username})
	}
	if phone != "" {
		or = append(or, squirrel.Eq{"phone": phone})
	}
	if len(or) == 0 {
		return nil, nil
	}

	stmt, args, err := p.builder.Select(userColumns...).From(usersTable).Where(or).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select users sql: %w", err)
	}

	rows, err := p.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var out []*sessionauth.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return out, nil
}

// MarkEmailVerified sets email_verified.
func (p *Postgres) MarkEmailVerified(ctx context.Context, userID string) (*sessionauth.User, error) {
	return p.update(ctx, userID, map[string]any{"email_verified": true})
}

// UpdatePasswordHash replaces the stored password hash.
func (p *Postgres) UpdatePasswordHash(ctx context.Context, userID, hash string) (*sessionauth.User, error) {
	return p.update(ctx, userID, map[string]any{"password_hash": hash})
}

// UpdateMFA replaces the MFA flag and secret.
func (p *Postgres) UpdateMFA(ctx context.Context, userID string, prefs sessionauth.MFAPreferences) (*sessionauth.User, error) {
	return p.update(ctx, userID, map[string]any{
		"mfa_enabled": prefs.Enabled,
		"mfa_secret":  nullable(prefs.Secret),
	})
}

func (p *Postgres) selectOne(ctx context.Context, where squirrel.Sqlizer, orderBy ...squirrel.Sqlizer) (*sessionauth.User, error) {
	query := p.builder.Select(userColumns...).
		From(usersTable).
		Where(where)
	for _, o := range orderBy {
		query = query.OrderByClause(o)
	}
	stmt, args, err := query.Limit(1).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select user sql: %w", err)
	}

	user, err := scanUser(p.exec.QueryRow(ctx, stmt, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, sessionauth.ErrUserNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return user, nil
}

func (p *Postgres) update(ctx context.Context, userID string, set map[string]any) (*sessionauth.User, error) {
	set["updated_at"] = p.now()

	stmt, args, err := p.builder.Update(usersTable).
		SetMap(set).
		Where(squirrel.Eq{"id": userID}).
		Suffix("RETURNING " + strings.Join(userColumns, ", ")).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build update user sql: %w", err)
	}

	user, err := scanUser(p.exec.QueryRow(ctx, stmt, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, sessionauth.ErrUserNotFound
		}
		if dup := duplicateFrom(err); dup != nil {
			return nil, dup
		}
		return nil, fmt.Errorf("update user: %w", err)
	}
	return user, nil
}

func scanUser(row pgx.Row) (*sessionauth.User, error) {
	var (
		user      sessionauth.User
		username  sql.NullString
		phone     sql.NullString
		mfaSecret sql.NullString
	)
	if err := row.Scan(
		&user.ID,
		&user.FirstName,
		&user.LastName,
		&username,
		&user.Email,
		&phone,
		&user.PasswordHash,
		&user.Role,
		&user.EmailVerified,
		&user.MFA.Enabled,
		&mfaSecret,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		return nil, err
	}
	user.Username = username.String
	user.Phone = phone.String
	user.MFA.Secret = mfaSecret.String
	return &user, nil
}

// nullable stores empty optional columns as NULL so they stay outside the
// unique constraints.
func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func duplicateFrom(err error) *sessionauth.DuplicateError {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgUniqueViolation {
		return nil
	}
	field, ok := constraintFields[pgErr.ConstraintName]
	if !ok {
		field = "email"
	}
	return &sessionauth.DuplicateError{Field: field}
}
