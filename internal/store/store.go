package store

import (
	"context"
	"fmt"

	config "example.com/blogger/internal/init"
	"example.com/blogger/internal/logger"
	"example.com/blogger/internal/models"
)

var logg = logger.New()

// --- Interfaces ---

// UserStore persists accounts. Lookups return (nil, nil) when nothing matches.
type UserStore interface {
	// CreateUser inserts user atomically; it returns models.ErrUsernameTaken
	// when the username already exists and leaves the existing row untouched.
	CreateUser(ctx context.Context, user models.User) error
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
}

type SessionStore interface {
	CreateSession(ctx context.Context, s models.Session) error
	// GetSession returns (nil, nil) for unknown or expired sessions.
	GetSession(ctx context.Context, id string) (*models.Session, error)
	// DeleteSession is a no-op for unknown sessions.
	DeleteSession(ctx context.Context, id string) error
}

type PostStore interface {
	AddPost(ctx context.Context, post models.Post) error
	GetPost(ctx context.Context, id string) (*models.Post, error)
	// RecentForOwner returns up to limit posts newest first and whether
	// more than limit posts exist for the owner.
	RecentForOwner(ctx context.Context, ownerID string, limit int) ([]models.Post, bool, error)
	// Neighbors returns the owner's post immediately newer (next) and
	// immediately older (prev) than post.
	Neighbors(ctx context.Context, post models.Post) (next, prev *models.Post, err error)
}

type StatsStore interface {
	IncrementPostCount(ctx context.Context, ownerID string, delta int64) error
	PostCounts(ctx context.Context) ([]models.PostCount, error)
}

type StoreInterface interface {
	UserStore
	SessionStore
	PostStore
	StatsStore
	Close()
}

// New opens the store selected by cfg.StoreDriver and applies migrations.
func New(ctx context.Context, cfg *config.Config) (StoreInterface, error) {
	switch cfg.StoreDriver {
	case "cassandra", "":
		return NewCassandra(cfg)
	case "postgres":
		return NewPostgres(ctx, cfg)
	case "memory":
		logg.Info("store", "Using in-memory store, data is lost on restart")
		return NewMock(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}
