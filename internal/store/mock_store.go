package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"example.com/blogger/internal/models"
)

// MockStore is an in-memory StoreInterface used by tests and the "memory" driver.
type MockStore struct {
	mu         sync.Mutex
	Users      map[string]models.User // keyed by username
	Sessions   map[string]models.Session
	Posts      map[string]models.Post
	Counts     map[string]int64
	ShouldFail bool // flag to simulate failures
}

// NewMock initializes a new mock store
func NewMock() *MockStore {
	return &MockStore{
		Users:    make(map[string]models.User),
		Sessions: make(map[string]models.Session),
		Posts:    make(map[string]models.Post),
		Counts:   make(map[string]int64),
	}
}

func (m *MockStore) Close() {}

// --- Users ---

func (m *MockStore) CreateUser(_ context.Context, user models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return errors.New("mock: create user failed")
	}
	if _, exists := m.Users[user.Username]; exists {
		return models.ErrUsernameTaken
	}
	m.Users[user.Username] = user
	return nil
}

func (m *MockStore) GetUserByUsername(_ context.Context, username string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return nil, errors.New("mock: get user failed")
	}
	u, ok := m.Users[username]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (m *MockStore) GetUserByID(_ context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return nil, errors.New("mock: get user failed")
	}
	for _, u := range m.Users {
		if u.ID == id {
			return &u, nil
		}
	}
	return nil, nil
}

func (m *MockStore) ListUsers(_ context.Context) ([]models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return nil, errors.New("mock: list users failed")
	}
	res := make([]models.User, 0, len(m.Users))
	for _, u := range m.Users {
		res = append(res, u)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Username < res[j].Username })
	return res, nil
}

// --- Sessions ---

func (m *MockStore) CreateSession(_ context.Context, s models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return errors.New("mock: create session failed")
	}
	m.Sessions[s.ID] = s
	return nil
}

func (m *MockStore) GetSession(_ context.Context, id string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return nil, errors.New("mock: get session failed")
	}
	s, ok := m.Sessions[id]
	if !ok || !s.Expires.After(time.Now()) {
		return nil, nil
	}
	return &s, nil
}

func (m *MockStore) DeleteSession(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return errors.New("mock: delete session failed")
	}
	delete(m.Sessions, id)
	return nil
}

// --- Posts ---

func (m *MockStore) AddPost(_ context.Context, post models.Post) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return errors.New("mock: add post failed")
	}
	m.Posts[post.ID] = post
	return nil
}

func (m *MockStore) GetPost(_ context.Context, id string) (*models.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return nil, errors.New("mock: get post failed")
	}
	p, ok := m.Posts[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *MockStore) RecentForOwner(_ context.Context, ownerID string, limit int) ([]models.Post, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return nil, false, errors.New("mock: recent posts failed")
	}
	posts := m.ownerPosts(ownerID)
	if len(posts) > limit {
		return posts[:limit], true, nil
	}
	return posts, false, nil
}

func (m *MockStore) Neighbors(_ context.Context, post models.Post) (*models.Post, *models.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return nil, nil, errors.New("mock: neighbors failed")
	}
	var next, prev *models.Post
	// posts are newest first: the last newer one is the closest, the first older one too
	for _, p := range m.ownerPosts(post.OwnerID) {
		p := p
		switch {
		case p.NewerThan(post):
			next = &p
		case post.NewerThan(p):
			if prev == nil {
				prev = &p
			}
		}
	}
	return next, prev, nil
}

// ownerPosts returns the owner's posts newest first. Caller holds m.mu.
func (m *MockStore) ownerPosts(ownerID string) []models.Post {
	var posts []models.Post
	for _, p := range m.Posts {
		if p.OwnerID == ownerID {
			posts = append(posts, p)
		}
	}
	sort.Slice(posts, func(i, j int) bool { return posts[i].NewerThan(posts[j]) })
	return posts
}

// --- Stats ---

func (m *MockStore) IncrementPostCount(_ context.Context, ownerID string, delta int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return errors.New("mock: increment post count failed")
	}
	m.Counts[ownerID] += delta
	return nil
}

func (m *MockStore) PostCounts(_ context.Context) ([]models.PostCount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return nil, errors.New("mock: post counts failed")
	}
	res := make([]models.PostCount, 0, len(m.Counts))
	for owner, n := range m.Counts {
		res = append(res, models.PostCount{OwnerID: owner, Count: n})
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].Count != res[j].Count {
			return res[i].Count > res[j].Count
		}
		return res[i].OwnerID < res[j].OwnerID
	})
	return res, nil
}

// ---------------------------------------------
// MockStoreFail always returns errors for negative tests
type MockStoreFail struct{}

var errMockFail = errors.New("mock store failure")

func (m *MockStoreFail) Close() {}

func (m *MockStoreFail) CreateUser(context.Context, models.User) error { return errMockFail }

func (m *MockStoreFail) GetUserByUsername(context.Context, string) (*models.User, error) {
	return nil, errMockFail
}

func (m *MockStoreFail) GetUserByID(context.Context, string) (*models.User, error) {
	return nil, errMockFail
}

func (m *MockStoreFail) ListUsers(context.Context) ([]models.User, error) { return nil, errMockFail }

func (m *MockStoreFail) CreateSession(context.Context, models.Session) error { return errMockFail }

func (m *MockStoreFail) GetSession(context.Context, string) (*models.Session, error) {
	return nil, errMockFail
}

func (m *MockStoreFail) DeleteSession(context.Context, string) error { return errMockFail }

func (m *MockStoreFail) AddPost(context.Context, models.Post) error { return errMockFail }

func (m *MockStoreFail) GetPost(context.Context, string) (*models.Post, error) {
	return nil, errMockFail
}

func (m *MockStoreFail) RecentForOwner(context.Context, string, int) ([]models.Post, bool, error) {
	return nil, false, errMockFail
}

func (m *MockStoreFail) Neighbors(context.Context, models.Post) (*models.Post, *models.Post, error) {
	return nil, nil, errMockFail
}

func (m *MockStoreFail) IncrementPostCount(context.Context, string, int64) error { return errMockFail }

func (m *MockStoreFail) PostCounts(context.Context) ([]models.PostCount, error) {
	return nil, errMockFail
}
