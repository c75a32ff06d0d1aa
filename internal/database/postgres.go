// internal/database/postgres.go
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"chit-chat/internal/models"
	"chit-chat/internal/utils"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// PostgresDB represents a PostgreSQL database connection
type PostgresDB struct {
	DB *sqlx.DB
}

// NewPostgresDB creates a new PostgreSQL database connection
func NewPostgresDB(connectionString string) (*PostgresDB, error) {
	db, err := sqlx.Connect("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %v", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping PostgreSQL: %v", err)
	}

	log.Println("Successfully connected to PostgreSQL!")

	return &PostgresDB{
		DB: db,
	}, nil
}

// Close closes the database connection
func (p *PostgresDB) Close(ctx context.Context) error {
	log.Println("Closing PostgreSQL connection...")
	return p.DB.Close()
}

var schema = []struct {
	name string
	ddl  string
}{
	{"users", `
		CREATE TABLE IF NOT EXISTS users (
			id UUID PRIMARY KEY,
			name VARCHAR(100) NOT NULL,
			email VARCHAR(254) UNIQUE NOT NULL,
			password_hash VARCHAR(100) NOT NULL,
			role VARCHAR(10) NOT NULL DEFAULT 'USER',
			followers UUID[] NOT NULL DEFAULT '{}',
			following UUID[] NOT NULL DEFAULT '{}',
			last_login_ip VARCHAR(64) NOT NULL DEFAULT '',
			last_active_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)`},
	{"conversations", `
		CREATE TABLE IF NOT EXISTS conversations (
			id UUID PRIMARY KEY,
			user_ids UUID[] NOT NULL,
			type VARCHAR(20) NOT NULL DEFAULT 'NORMAL_CHAT',
			status VARCHAR(20) NOT NULL DEFAULT 'NORMAL',
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)`},
	{"conversations user_ids index", `
		CREATE INDEX IF NOT EXISTS conversations_user_ids_idx ON conversations USING GIN (user_ids)`},
	{"messages", `
		CREATE TABLE IF NOT EXISTS messages (
			id UUID PRIMARY KEY,
			conversation_id UUID NOT NULL REFERENCES conversations(id),
			sender_id UUID NOT NULL REFERENCES users(id),
			message TEXT NOT NULL,
			seen_ids UUID[] NOT NULL DEFAULT '{}',
			delete_for UUID[] NOT NULL DEFAULT '{}',
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)`},
	{"messages conversation index", `
		CREATE INDEX IF NOT EXISTS messages_conversation_id_idx ON messages (conversation_id, created_at)`},
	{"session_tokens", `
		CREATE TABLE IF NOT EXISTS session_tokens (
			token_hash VARCHAR(64) PRIMARY KEY,
			user_id UUID NOT NULL REFERENCES users(id),
			expires_at TIMESTAMP WITH TIME ZONE,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)`},
}

// InitializeTables creates all necessary tables if they don't exist
func (p *PostgresDB) InitializeTables(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := p.DB.ExecContext(ctx, stmt.ddl); err != nil {
			return fmt.Errorf("failed to create %s: %v", stmt.name, err)
		}
	}
	return nil
}

// userRow mirrors the users table; UUID[] columns scan through pq.StringArray.
type userRow struct {
	ID           uuid.UUID      `db:"id"`
	Name         string         `db:"name"`
	Email        string         `db:"email"`
	PasswordHash string         `db:"password_hash"`
	Role         string         `db:"role"`
	Followers    pq.StringArray `db:"followers"`
	Following    pq.StringArray `db:"following"`
	LastLoginIP  string         `db:"last_login_ip"`
	LastActiveAt time.Time      `db:"last_active_at"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
}

const userColumns = `id, name, email, password_hash, role, followers, following, last_login_ip, last_active_at, created_at, updated_at`

func (r *userRow) toModel() (*models.User, error) {
	followers, err := parseUUIDs(r.Followers)
	if err != nil {
		return nil, err
	}
	following, err := parseUUIDs(r.Following)
	if err != nil {
		return nil, err
	}
	return &models.User{
		ID:           r.ID,
		Name:         r.Name,
		Email:        r.Email,
		PasswordHash: r.PasswordHash,
		Role:         models.Role(r.Role),
		Followers:    followers,
		Following:    following,
		LastLoginIP:  r.LastLoginIP,
		LastActiveAt: r.LastActiveAt,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}, nil
}

// CreateUser inserts a new user into the database.
func (p *PostgresDB) CreateUser(ctx context.Context, user *models.User) error {
	stampUser(user)

	query := `
		INSERT INTO users (id, name, email, password_hash, role, followers, following, last_login_ip, last_active_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6::uuid[], $7::uuid[], $8, $9, $10, $11)
	`
	_, err := p.DB.ExecContext(ctx, query,
		user.ID,
		user.Name,
		user.Email,
		user.PasswordHash,
		string(user.Role),
		uuidArray(user.Followers),
		uuidArray(user.Following),
		user.LastLoginIP,
		user.LastActiveAt,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return utils.NewAppError(utils.ErrUserAlreadyExists, "User with this email already exists", err)
		}
		return utils.NewDatabaseError("failed to save user", err)
	}
	return nil
}

// GetUser fetches a user by their ID.
func (p *PostgresDB) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var row userRow
	err := p.DB.GetContext(ctx, &row, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, utils.NewUserNotFoundError(id.String())
		}
		return nil, utils.NewDatabaseError("failed to query user by id", err)
	}
	return row.toModel()
}

// GetUserByEmail fetches a user by their email address.
func (p *PostgresDB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var row userRow
	err := p.DB.GetContext(ctx, &row, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, utils.NewAppError(utils.ErrUserNotFound, "User not found", err)
		}
		return nil, utils.NewDatabaseError("failed to query user by email", err)
	}
	return row.toModel()
}

func (p *PostgresDB) GetUsersByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.User, error) {
	if len(ids) == 0 {
		return []*models.User{}, nil
	}
	var rows []userRow
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ANY($1::uuid[]) ORDER BY created_at`
	if err := p.DB.SelectContext(ctx, &rows, query, uuidArray(ids)); err != nil {
		return nil, utils.NewDatabaseError("failed to query users by ids", err)
	}
	return userRowsToModels(rows)
}

// ListUsersExcept returns every user other than id, oldest first.
func (p *PostgresDB) ListUsersExcept(ctx context.Context, id uuid.UUID) ([]*models.User, error) {
	var rows []userRow
	query := `SELECT ` + userColumns + ` FROM users WHERE id <> $1 ORDER BY created_at`
	if err := p.DB.SelectContext(ctx, &rows, query, id); err != nil {
		return nil, utils.NewDatabaseError("failed to query users", err)
	}
	return userRowsToModels(rows)
}

func (p *PostgresDB) UpdateUserName(ctx context.Context, id uuid.UUID, name string) error {
	return p.execUserUpdate(ctx, id, "failed to update user name",
		`UPDATE users SET name = $2, updated_at = NOW() WHERE id = $1`, name)
}

func (p *PostgresDB) UpdateUserLogin(ctx context.Context, id uuid.UUID, ip string) error {
	return p.execUserUpdate(ctx, id, "failed to record user login",
		`UPDATE users SET last_login_ip = $2, last_active_at = NOW(), updated_at = NOW() WHERE id = $1`, ip)
}

// UpdateUserActivity updates the user's last active time.
func (p *PostgresDB) UpdateUserActivity(ctx context.Context, id uuid.UUID, at time.Time) error {
	return p.execUserUpdate(ctx, id, "failed to update user activity",
		`UPDATE users SET last_active_at = $2 WHERE id = $1`, at)
}

func (p *PostgresDB) execUserUpdate(ctx context.Context, id uuid.UUID, failure, query string, arg interface{}) error {
	result, err := p.DB.ExecContext(ctx, query, id, arg)
	if err != nil {
		return utils.NewDatabaseError(failure, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return utils.NewDatabaseError("failed to get rows affected after update", err)
	}
	if rowsAffected == 0 {
		return utils.NewUserNotFoundError(id.String())
	}
	return nil
}

// --- Follow Graph ---

// AddFollow records followerID following targetID on both rows in one transaction.
func (p *PostgresDB) AddFollow(ctx context.Context, targetID, followerID uuid.UUID) error {
	return p.updateFollowEdge(ctx, targetID, followerID,
		`UPDATE users SET followers = CASE WHEN $2::uuid = ANY(followers) THEN followers ELSE array_append(followers, $2::uuid) END, updated_at = NOW() WHERE id = $1`,
		`UPDATE users SET following = CASE WHEN $2::uuid = ANY(following) THEN following ELSE array_append(following, $2::uuid) END, updated_at = NOW() WHERE id = $1`,
	)
}

// RemoveFollow removes the edge from both rows in one transaction.
func (p *PostgresDB) RemoveFollow(ctx context.Context, targetID, followerID uuid.UUID) error {
	return p.updateFollowEdge(ctx, targetID, followerID,
		`UPDATE users SET followers = array_remove(followers, $2::uuid), updated_at = NOW() WHERE id = $1`,
		`UPDATE users SET following = array_remove(following, $2::uuid), updated_at = NOW() WHERE id = $1`,
	)
}

func (p *PostgresDB) updateFollowEdge(ctx context.Context, targetID, followerID uuid.UUID, targetQuery, followerQuery string) error {
	if targetID == followerID {
		return utils.NewInvalidInputError("a user cannot follow themselves")
	}

	tx, err := p.DB.BeginTxx(ctx, nil)
	if err != nil {
		return utils.NewDatabaseError("failed to begin follow transaction", err)
	}
	defer tx.Rollback() // Rollback is ignored if tx is committed.

	// Lock both rows in id order so concurrent follows between the same pair cannot deadlock.
	var locked []uuid.UUID
	err = tx.SelectContext(ctx, &locked,
		`SELECT id FROM users WHERE id = ANY($1::uuid[]) ORDER BY id FOR UPDATE`,
		uuidArray([]uuid.UUID{targetID, followerID}))
	if err != nil {
		return utils.NewDatabaseError("failed to lock users for follow", err)
	}
	if !models.ContainsID(locked, targetID) {
		return utils.NewUserNotFoundError(targetID.String())
	}
	if !models.ContainsID(locked, followerID) {
		return utils.NewUserNotFoundError(followerID.String())
	}

	if _, err := tx.ExecContext(ctx, targetQuery, targetID, followerID); err != nil {
		return utils.NewDatabaseError("failed to update followers", err)
	}
	if _, err := tx.ExecContext(ctx, followerQuery, followerID, targetID); err != nil {
		return utils.NewDatabaseError("failed to update following", err)
	}

	if err := tx.Commit(); err != nil {
		return utils.NewDatabaseError("failed to commit follow transaction", err)
	}
	return nil
}

// --- Session Methods ---

func (p *PostgresDB) CreateSession(ctx context.Context, session *models.Session) error {
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}
	_, err := p.DB.NamedExecContext(ctx, `
		INSERT INTO session_tokens (token_hash, user_id, expires_at, created_at)
		VALUES (:token_hash, :user_id, :expires_at, :created_at)
	`, session)
	if err != nil {
		return utils.NewDatabaseError("failed to save session", err)
	}
	return nil
}

func (p *PostgresDB) GetSession(ctx context.Context, tokenHash string) (*models.Session, error) {
	var session models.Session
	err := p.DB.GetContext(ctx, &session,
		`SELECT token_hash, user_id, expires_at, created_at FROM session_tokens WHERE token_hash = $1`, tokenHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, utils.NewAppError(utils.ErrNotFound, "session not found", err)
		}
		return nil, utils.NewDatabaseError("failed to query session", err)
	}
	return &session, nil
}

func (p *PostgresDB) DeleteSession(ctx context.Context, tokenHash string) error {
	if _, err := p.DB.ExecContext(ctx, `DELETE FROM session_tokens WHERE token_hash = $1`, tokenHash); err != nil {
		return utils.NewDatabaseError("failed to delete session", err)
	}
	return nil
}

// --- array helpers ---

func uuidArray(ids []uuid.UUID) pq.StringArray {
	out := make(pq.StringArray, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func parseUUIDs(values []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(values))
	for _, v := range values {
		id, err := uuid.Parse(v)
		if err != nil {
			return nil, fmt.Errorf("invalid uuid in database: %v", err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func userRowsToModels(rows []userRow) ([]*models.User, error) {
	users := make([]*models.User, 0, len(rows))
	for i := range rows {
		u, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, nil
}
