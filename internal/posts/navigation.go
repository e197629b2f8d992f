package posts

import (
	"context"
	"errors"
	"fmt"

	"example.com/blogger/internal/models"
)

const (
	// DefaultWindow is the listing size shown after a new post.
	DefaultWindow = 10
	// WindowStep is how much "View more" grows the listing.
	WindowStep = 10
	// DefaultMaxWindow is the largest window served unless WithMaxWindow
	// says otherwise.
	DefaultMaxWindow = 500
)

var (
	ErrInvalidWindow  = errors.New("window size must be a positive integer")
	ErrWindowTooLarge = errors.New("window size is above the maximum")
)

// Window is one page of an owner's posts, newest first.
type Window struct {
	Posts   []models.Post
	Limit   int
	HasMore bool
	// NextLimit is the window size to request for more posts. It is zero
	// when the listing is complete or the window is already at the maximum.
	NextLimit int
}

// Neighbors are the posts around one post in its owner's timeline.
type Neighbors struct {
	Next *models.Post // immediately newer
	Prev *models.Post // immediately older
}

// Recent returns up to n of owner's most recent posts. HasMore reports
// whether the owner has more than n posts; n above the configured maximum
// is rejected.
func (s *Service) Recent(ctx context.Context, ownerID string, n int) (*Window, error) {
	if n < 1 {
		return nil, ErrInvalidWindow
	}
	if n > s.maxWindow {
		return nil, ErrWindowTooLarge
	}

	posts, more, err := s.store.RecentForOwner(ctx, ownerID, n)
	if err != nil {
		return nil, fmt.Errorf("recent posts: %w", err)
	}

	w := &Window{Posts: posts, Limit: n, HasMore: more}
	if more {
		w.NextLimit = min(n+WindowStep, s.maxWindow)
		if w.NextLimit == n {
			w.NextLimit = 0
		}
	}
	return w, nil
}

// Neighbors finds the posts immediately newer and older than post among
// the same owner's posts.
func (s *Service) Neighbors(ctx context.Context, post models.Post) (*Neighbors, error) {
	next, prev, err := s.store.Neighbors(ctx, post)
	if err != nil {
		return nil, fmt.Errorf("neighbors: %w", err)
	}
	return &Neighbors{Next: next, Prev: prev}, nil
}
