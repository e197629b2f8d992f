package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	appkafka "example.com/blogger/internal/broker"
	"example.com/blogger/internal/forms"
	"example.com/blogger/internal/logger"
	"example.com/blogger/internal/models"
	"example.com/blogger/internal/store"
	"github.com/google/uuid"
)

var logg = logger.New()

const usernameMaxLength = 150

// Service registers and authenticates users and manages their sessions.
type Service struct {
	users     store.UserStore
	sessions  store.SessionStore
	hasher    PasswordHasher
	tokens    *TokenProvider
	publisher appkafka.Publisher
	ttl       time.Duration
	now       func() time.Time
}

type Option func(*Service)

// WithHasher replaces the default argon2id hasher.
func WithHasher(h PasswordHasher) Option {
	return func(s *Service) { s.hasher = h }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(users store.UserStore, sessions store.SessionStore, tokens *TokenProvider, pub appkafka.Publisher, ttl time.Duration, opts ...Option) *Service {
	s := &Service{
		users:     users,
		sessions:  sessions,
		hasher:    NewArgon2Hasher(nil),
		tokens:    tokens,
		publisher: pub,
		ttl:       ttl,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.publisher == nil {
		s.publisher = appkafka.NopPublisher{}
	}
	return s
}

// SessionTTL is the lifetime of sessions started by this service.
func (s *Service) SessionTTL() time.Duration {
	return s.ttl
}

// Register creates the account and logs it in, returning the session token.
func (s *Service) Register(ctx context.Context, username, secret string) (string, error) {
	user, err := s.CreateUser(ctx, username, secret)
	if err != nil {
		return "", err
	}

	token, err := s.startSession(ctx, *user)
	if err != nil {
		return "", err
	}

	s.publish(ctx, appkafka.Event{Type: appkafka.UserRegistered, UserID: user.ID, Username: user.Username, At: user.Created})
	return token, nil
}

// CreateUser validates and persists a new account without starting a session.
func (s *Service) CreateUser(ctx context.Context, username, secret string) (*models.User, error) {
	username = strings.TrimSpace(username)
	if err := forms.Collect(
		forms.Required("username", username),
		forms.MaxLength("username", username, usernameMaxLength),
		forms.Required("password", secret),
	); err != nil {
		return nil, err
	}

	// The store insert is the real uniqueness guard; this only skips hashing for known names.
	existing, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if existing != nil {
		return nil, models.ErrUsernameTaken
	}

	hash, err := s.hasher.Hash(secret)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate user id: %w", err)
	}

	user := models.User{
		ID:           id.String(),
		Username:     username,
		PasswordHash: hash,
		Created:      s.now().UTC(),
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, models.ErrUsernameTaken) {
			return nil, err
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	logg.Info("account", "Registered user_id="+user.ID)
	return &user, nil
}

// Authenticate checks the credentials and starts a session.
func (s *Service) Authenticate(ctx context.Context, username, secret string) (string, error) {
	username = strings.TrimSpace(username)
	if username == "" || secret == "" {
		return "", models.ErrInvalidCredentials
	}

	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		return "", fmt.Errorf("lookup user: %w", err)
	}
	if user == nil {
		return "", models.ErrInvalidCredentials
	}
	if err := s.hasher.Compare(user.PasswordHash, secret); err != nil {
		return "", models.ErrInvalidCredentials
	}

	return s.startSession(ctx, *user)
}

// EndSession revokes the session behind token. Unknown, malformed and
// already revoked tokens are ignored.
func (s *Service) EndSession(ctx context.Context, token string) {
	if token == "" {
		return
	}
	claims, err := s.tokens.ParseIgnoringExpiry(token)
	if err != nil {
		return
	}
	if err := s.sessions.DeleteSession(ctx, claims.ID); err != nil {
		logg.Error("account", "Failed to revoke session", err)
		return
	}
	logg.Info("account", "Session ended for user_id="+claims.Subject)
}

// CurrentUser resolves token to the logged-in identity, or nil when the
// token does not name a live session.
func (s *Service) CurrentUser(ctx context.Context, token string) (*models.Identity, error) {
	if token == "" {
		return nil, nil
	}
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return nil, nil
	}

	sess, err := s.sessions.GetSession(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if sess == nil || sess.UserID != claims.Subject {
		return nil, nil
	}

	return &models.Identity{
		UserID:    sess.UserID,
		Username:  sess.Username,
		SessionID: sess.ID,
	}, nil
}

func (s *Service) startSession(ctx context.Context, user models.User) (string, error) {
	now := s.now().UTC()
	sess := models.Session{
		ID:       uuid.NewString(),
		UserID:   user.ID,
		Username: user.Username,
		Created:  now,
		Expires:  now.Add(s.ttl),
	}
	if err := s.sessions.CreateSession(ctx, sess); err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}

	token, err := s.tokens.Issue(sess)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return token, nil
}

func (s *Service) publish(ctx context.Context, ev appkafka.Event) {
	if err := s.publisher.Publish(ctx, ev); err != nil {
		logg.Error("account", "Failed to publish "+string(ev.Type)+" event", err)
	}
}
