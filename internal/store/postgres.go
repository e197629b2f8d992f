package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	config "example.com/blogger/internal/init"
	"example.com/blogger/internal/models"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgUniqueViolation = "23505"

// pgxConn is the part of *pgxpool.Pool the store uses.
type pgxConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresStore is the Postgres-backed StoreInterface.
type PostgresStore struct {
	db pgxConn
}

// NewPostgresWithConn wraps an open pool or connection without migrating.
func NewPostgresWithConn(db pgxConn) *PostgresStore {
	return &PostgresStore{db: db}
}

// NewPostgres runs migrations and opens a pgx pool on cfg.DatabaseURL.
func NewPostgres(ctx context.Context, cfg *config.Config) (StoreInterface, error) {
	if err := runPostgresMigrations(cfg); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	poolCfg.MaxConns = 20
	poolCfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeCacheStatement
	poolCfg.ConnConfig.StatementCacheCapacity = 128

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	logg.Info("store", "Connected to Postgres (dsn anonymized)")
	return NewPostgresWithConn(pool), nil
}

func runPostgresMigrations(cfg *config.Config) error {
	sourceURL := "file://" + filepath.Join(cfg.MigrationsDir, "postgres")
	return applyMigrations(sourceURL, pgxMigrateURL(cfg.DatabaseURL))
}

// pgxMigrateURL rewrites a postgres:// DSN to the scheme registered by the
// migrate pgx/v5 driver.
func pgxMigrateURL(dsn string) string {
	for _, prefix := range []string{"postgresql://", "postgres://"} {
		if strings.HasPrefix(dsn, prefix) {
			return "pgx5://" + strings.TrimPrefix(dsn, prefix)
		}
	}
	return dsn
}

func (s *PostgresStore) Close() {
	if s.db != nil {
		s.db.Close()
		logg.Info("store", "Postgres pool closed")
	}
}

// --- User operations ---

func (s *PostgresStore) CreateUser(ctx context.Context, user models.User) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO users (id, username, password_hash, created_at)
		VALUES (@id, @username, @password_hash, @created_at)`,
		pgx.NamedArgs{
			"id":            user.ID,
			"username":      user.Username,
			"password_hash": user.PasswordHash,
			"created_at":    user.Created,
		})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return models.ErrUsernameTaken
		}
		logg.Error("store", "Failed to create user", err)
		return fmt.Errorf("db: create user: %w", err)
	}
	logg.Info("store", "User created successfully (username anonymized)")
	return nil
}

func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.getUser(ctx, `SELECT id, username, password_hash, created_at FROM users WHERE username = $1`, username)
}

func (s *PostgresStore) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return s.getUser(ctx, `SELECT id, username, password_hash, created_at FROM users WHERE id = $1`, id)
}

func (s *PostgresStore) getUser(ctx context.Context, q string, arg string) (*models.User, error) {
	var u models.User
	err := s.db.QueryRow(ctx, q, arg).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Created)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("db: get user: %w", err)
	}
	return &u, nil
}

func (s *PostgresStore) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := s.db.Query(ctx, `SELECT id, username, created_at FROM users ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("db: list users: %w", err)
	}
	defer rows.Close()

	var res []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Username, &u.Created); err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, rows.Err()
}

// --- Session operations ---

func (s *PostgresStore) CreateSession(ctx context.Context, sess models.Session) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO sessions (id, user_id, username, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)`,
		sess.ID, sess.UserID, sess.Username, sess.Created, sess.Expires)
	if err != nil {
		return fmt.Errorf("db: create session: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetSession(ctx context.Context, id string) (*models.Session, error) {
	sess := models.Session{ID: id}
	err := s.db.QueryRow(ctx, `
		SELECT user_id, username, created_at, expires_at FROM sessions
		WHERE id = $1 AND expires_at > $2`, id, time.Now().UTC(),
	).Scan(&sess.UserID, &sess.Username, &sess.Created, &sess.Expires)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("db: get session: %w", err)
	}
	return &sess, nil
}

func (s *PostgresStore) DeleteSession(ctx context.Context, id string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("db: delete session: %w", err)
	}
	return nil
}

// --- Post operations ---

func (s *PostgresStore) AddPost(ctx context.Context, post models.Post) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO posts (id, owner_id, owner_username, title, content, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		post.ID, post.OwnerID, post.OwnerUsername, post.Title, post.Content, post.Created)
	if err != nil {
		logg.Error("store", "Failed to add post", err)
		return fmt.Errorf("db: add post: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPost(ctx context.Context, id string) (*models.Post, error) {
	rows, err := s.db.Query(ctx, `SELECT `+postColumnsPG+` FROM posts WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("db: get post: %w", err)
	}
	posts, err := collectPosts(rows)
	if err != nil {
		return nil, err
	}
	return first(posts), nil
}

func (s *PostgresStore) RecentForOwner(ctx context.Context, ownerID string, limit int) ([]models.Post, bool, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+postColumnsPG+` FROM posts
		WHERE owner_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, ownerID, limit+1)
	if err != nil {
		return nil, false, fmt.Errorf("db: recent posts: %w", err)
	}
	posts, err := collectPosts(rows)
	if err != nil {
		return nil, false, err
	}
	if len(posts) > limit {
		return posts[:limit], true, nil
	}
	return posts, false, nil
}

func (s *PostgresStore) Neighbors(ctx context.Context, post models.Post) (*models.Post, *models.Post, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+postColumnsPG+` FROM posts
		WHERE owner_id = $1 AND (created_at, id) > ($2, $3)
		ORDER BY created_at ASC, id ASC
		LIMIT 1`, post.OwnerID, post.Created, post.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("db: next post: %w", err)
	}
	newer, err := collectPosts(rows)
	if err != nil {
		return nil, nil, err
	}

	rows, err = s.db.Query(ctx, `
		SELECT `+postColumnsPG+` FROM posts
		WHERE owner_id = $1 AND (created_at, id) < ($2, $3)
		ORDER BY created_at DESC, id DESC
		LIMIT 1`, post.OwnerID, post.Created, post.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("db: previous post: %w", err)
	}
	older, err := collectPosts(rows)
	if err != nil {
		return nil, nil, err
	}

	return first(newer), first(older), nil
}

const postColumnsPG = `id, owner_id, owner_username, title, content, created_at`

func collectPosts(rows pgx.Rows) ([]models.Post, error) {
	defer rows.Close()
	var posts []models.Post
	for rows.Next() {
		var p models.Post
		if err := rows.Scan(&p.ID, &p.OwnerID, &p.OwnerUsername, &p.Title, &p.Content, &p.Created); err != nil {
			return nil, err
		}
		p.Created = p.Created.UTC()
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

// --- Stats operations ---

func (s *PostgresStore) IncrementPostCount(ctx context.Context, ownerID string, delta int64) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO post_counts (owner_id, post_count) VALUES ($1, $2)
		ON CONFLICT (owner_id) DO UPDATE SET post_count = post_counts.post_count + EXCLUDED.post_count`,
		ownerID, delta)
	if err != nil {
		return fmt.Errorf("db: increment post count: %w", err)
	}
	return nil
}

func (s *PostgresStore) PostCounts(ctx context.Context) ([]models.PostCount, error) {
	rows, err := s.db.Query(ctx, `SELECT owner_id, post_count FROM post_counts ORDER BY post_count DESC, owner_id`)
	if err != nil {
		return nil, fmt.Errorf("db: post counts: %w", err)
	}
	defer rows.Close()

	var res []models.PostCount
	for rows.Next() {
		var c models.PostCount
		if err := rows.Scan(&c.OwnerID, &c.Count); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}
