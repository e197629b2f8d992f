package posts

import (
	"context"
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

// Service validates and stores posts and serves the owner listings.
type Service struct {
	store     store.PostStore
	publisher appkafka.Publisher
	now       func() time.Time
	maxWindow int
}

type Option func(*Service)

// WithClock replaces time.Now for post timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithMaxWindow caps the window size served by Recent. Non-positive
// values keep the default.
func WithMaxWindow(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxWindow = n
		}
	}
}

func NewService(st store.PostStore, pub appkafka.Publisher, opts ...Option) *Service {
	s := &Service{
		store:     st,
		publisher: pub,
		now:       time.Now,
		maxWindow: DefaultMaxWindow,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.publisher == nil {
		s.publisher = appkafka.NopPublisher{}
	}
	return s
}

// ValidateSubmission checks a new-post form: both fields are required and
// the title is limited to models.TitleMaxLength characters.
func ValidateSubmission(title, content string) error {
	return forms.Collect(
		forms.Required("title", title),
		forms.MaxLength("title", strings.TrimSpace(title), models.TitleMaxLength),
		forms.Required("content", content),
	)
}

// SubmitPost stores a new post owned by owner. The title is trimmed; the
// content is kept exactly as submitted.
func (s *Service) SubmitPost(ctx context.Context, owner models.Identity, title, content string) (*models.Post, error) {
	if err := ValidateSubmission(title, content); err != nil {
		return nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate post id: %w", err)
	}

	post := models.Post{
		ID:            id.String(),
		OwnerID:       owner.UserID,
		OwnerUsername: owner.Username,
		Title:         strings.TrimSpace(title),
		Content:       content,
		// millisecond precision survives every backend unchanged
		Created: s.now().UTC().Truncate(time.Millisecond),
	}
	if err := s.store.AddPost(ctx, post); err != nil {
		return nil, fmt.Errorf("add post: %w", err)
	}

	ev := appkafka.Event{Type: appkafka.PostCreated, UserID: post.OwnerID, PostID: post.ID, At: post.Created}
	if err := s.publisher.Publish(ctx, ev); err != nil {
		logg.Error("posts", "Failed to publish post_created event", err)
	}

	logg.Info("posts", "Post created by user_id="+owner.UserID)
	return &post, nil
}

// Get returns the post with id, or nil when none exists.
func (s *Service) Get(ctx context.Context, id string) (*models.Post, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}
	post, err := s.store.GetPost(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get post: %w", err)
	}
	return post, nil
}
