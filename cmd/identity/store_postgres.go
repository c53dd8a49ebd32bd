package identity

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"chatline/cmd/identity/ids"
)

// PostgresStore implements identity persistence over PostgreSQL.
//
// Design notes:
//   - The pgx pool is owned by the caller; this store must NOT close it.
//   - Schema/table identifiers are safely quoted to avoid SQL injection via
//     identifiers.
//   - Errors are mapped to identity sentinel kinds where appropriate.
//
// Expected schema (managed externally):
//
//	CREATE TABLE chatline.users (
//	    id          text PRIMARY KEY,
//	    full_name   text NOT NULL,
//	    email       text NOT NULL,
//	    email_norm  text NOT NULL UNIQUE,
//	    password    text NOT NULL,
//	    bio         text NOT NULL DEFAULT '',
//	    profile_pic text NOT NULL DEFAULT '',
//	    created_at  timestamptz NOT NULL,
//	    updated_at  timestamptz NOT NULL
//	);
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the Postgres schema used by the identity store (default "chatline").
// The schema name is validated to be a legal PostgreSQL identifier.
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return fmt.Errorf("identity: empty schema")
		}
		if !pgIdentRe.MatchString(schema) {
			return fmt.Errorf("identity: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: "chatline",
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, fmt.Errorf("identity: nil pool")
	}
	return st, nil
}

// Close is a no-op: the pool lifecycle belongs to the app.
func (s *PostgresStore) Close(_ context.Context) error { return nil }

func (s *PostgresStore) usersTable() string {
	return pgQuoteIdent(s.schema) + "." + pgQuoteIdent("users")
}

const pgUserColumns = `id, full_name, email, password, bio, profile_pic, created_at, updated_at`

func scanPGUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(
		&u.ID, &u.FullName, &u.Email, &u.PasswordHash,
		&u.Bio, &u.ProfilePic, &u.CreatedAt, &u.UpdatedAt,
	)
	return u, err
}

// CreateUser registers a new user, enforcing email uniqueness.
func (s *PostgresStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	const op = "identity.CreateUser"

	if s == nil || s.pool == nil {
		return User{}, invalid(op, "nil store")
	}
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	fullName := strings.TrimSpace(in.FullName)
	email := strings.TrimSpace(in.Email)
	if fullName == "" || email == "" || in.PasswordHash == "" {
		return User{}, invalid(op, "fullName, email and password hash are required")
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	id, err := ids.NewULID(now)
	if err != nil {
		return User{}, err
	}

	row := s.pool.QueryRow(ctx,
		`INSERT INTO `+s.usersTable()+` (
		     id, full_name, email, email_norm, password, bio, profile_pic, created_at, updated_at
		   ) VALUES ($1, $2, $3, $4, $5, $6, '', $7, $7)
		   RETURNING `+pgUserColumns,
		id, fullName, email, NormalizeEmail(email), in.PasswordHash, strings.TrimSpace(in.Bio), now,
	)

	u, err := scanPGUser(row)
	if err != nil {
		if isPGUniqueViolation(err) {
			return User{}, ConflictError{Op: op, Field: "email"}
		}
		return User{}, err
	}
	return u, nil
}

// GetUserByID returns the user with the given identity key.
func (s *PostgresStore) GetUserByID(ctx context.Context, id string) (User, error) {
	const op = "identity.GetUserByID"

	if s == nil || s.pool == nil {
		return User{}, invalid(op, "nil store")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return User{}, invalid(op, "empty id")
	}

	row := s.pool.QueryRow(ctx,
		`SELECT `+pgUserColumns+` FROM `+s.usersTable()+` WHERE id = $1`, id)

	u, err := scanPGUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, NotFoundError{Op: op, Resource: "user"}
	}
	if err != nil {
		return User{}, err
	}
	return u, nil
}

// GetUserByEmail returns the user registered under email (case-insensitive).
func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	const op = "identity.GetUserByEmail"

	if s == nil || s.pool == nil {
		return User{}, invalid(op, "nil store")
	}
	norm := NormalizeEmail(email)
	if norm == "" {
		return User{}, invalid(op, "empty email")
	}

	row := s.pool.QueryRow(ctx,
		`SELECT `+pgUserColumns+` FROM `+s.usersTable()+` WHERE email_norm = $1`, norm)

	u, err := scanPGUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, NotFoundError{Op: op, Resource: "user"}
	}
	if err != nil {
		return User{}, err
	}
	return u, nil
}

// UpdateProfile mutates fullName/bio and, when non-empty, profilePic.
func (s *PostgresStore) UpdateProfile(ctx context.Context, in UpdateProfileInput) (User, error) {
	const op = "identity.UpdateProfile"

	if s == nil || s.pool == nil {
		return User{}, invalid(op, "nil store")
	}

	userID := strings.TrimSpace(in.UserID)
	fullName := strings.TrimSpace(in.FullName)
	bio := strings.TrimSpace(in.Bio)
	if userID == "" {
		return User{}, invalid(op, "empty user id")
	}
	if fullName == "" || bio == "" {
		return User{}, invalid(op, "fullName and bio are required")
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	// COALESCE(NULLIF($4,''), profile_pic) keeps the stored picture when the
	// caller sends no replacement.
	row := s.pool.QueryRow(ctx,
		`UPDATE `+s.usersTable()+`
		    SET full_name = $2,
		        bio = $3,
		        profile_pic = COALESCE(NULLIF($4, ''), profile_pic),
		        updated_at = $5
		  WHERE id = $1
		  RETURNING `+pgUserColumns,
		userID, fullName, bio, strings.TrimSpace(in.ProfilePic), now,
	)

	u, err := scanPGUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, NotFoundError{Op: op, Resource: "user"}
	}
	if err != nil {
		return User{}, err
	}
	return u, nil
}

// ---- pg helpers ----

func pgQuoteIdent(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func isPGUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	// 23505 = unique_violation
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
