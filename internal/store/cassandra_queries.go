package store

import (
	"context"
	"time"

	"example.com/blogger/internal/models"
)

// --- User operations ---

// CreateUser claims the username with a lightweight transaction, then
// writes the main users row. A lost CAS means the name is taken. If the
// main row cannot be written the claim is released again, so the name
// does not stay reserved by a user that was never created.
func (s *Store) CreateUser(ctx context.Context, user models.User) error {
	applied, err := s.Session.ExecCAS(ctx, `
		INSERT INTO users_by_username (username, user_id, password_hash, created_at)
		VALUES (?, ?, ?, ?) IF NOT EXISTS`,
		user.Username, user.ID, user.PasswordHash, user.Created,
	)
	if err != nil {
		logg.Error("store", "Failed to claim username", err)
		return err
	}

	if !applied {
		logg.Info("store", "Username already claimed (username anonymized)")
		return models.ErrUsernameTaken
	}

	err = s.Session.Exec(ctx, `
		INSERT INTO users (user_id, username, password_hash, created_at)
		VALUES (?, ?, ?, ?)`,
		user.ID, user.Username, user.PasswordHash, user.Created,
	)
	if err != nil {
		logg.Error("store", "Failed to create user in main table", err)
		s.releaseUsername(context.WithoutCancel(ctx), user)
		return err
	}

	logg.Info("store", "User created successfully (username anonymized)")
	return nil
}

// releaseUsername drops a claim this user still owns. Failures are only
// logged; the caller already reports the original error.
func (s *Store) releaseUsername(ctx context.Context, user models.User) {
	_, err := s.Session.ExecCAS(ctx,
		`DELETE FROM users_by_username WHERE username = ? IF user_id = ?`,
		user.Username, user.ID,
	)
	if err != nil {
		logg.Error("store", "Failed to release username claim", err)
	}
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	u := models.User{Username: username}
	found, err := scanOne(s.Session.Iter(ctx,
		`SELECT user_id, password_hash, created_at FROM users_by_username WHERE username = ?`,
		username,
	), &u.ID, &u.PasswordHash, &u.Created)
	if err != nil {
		logg.Error("store", "Failed to query user by username", err)
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &u, nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	u := models.User{ID: id}
	found, err := scanOne(s.Session.Iter(ctx,
		`SELECT username, password_hash, created_at FROM users WHERE user_id = ?`,
		id,
	), &u.Username, &u.PasswordHash, &u.Created)
	if err != nil {
		logg.Error("store", "Failed to query user by id", err)
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &u, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]models.User, error) {
	iter := s.Session.Iter(ctx, `SELECT user_id, username, created_at FROM users`)

	var res []models.User
	var u models.User
	for iter.Scan(&u.ID, &u.Username, &u.Created) {
		res = append(res, u)
	}

	if err := iter.Close(); err != nil {
		logg.Error("store", "Failed to list users", err)
		return nil, err
	}
	return res, nil
}

// --- Session operations ---

func (s *Store) CreateSession(ctx context.Context, sess models.Session) error {
	ttl := int(time.Until(sess.Expires).Seconds())
	if ttl < 1 {
		ttl = 1
	}
	if err := s.Session.Exec(ctx, `
		INSERT INTO sessions (session_id, user_id, username, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?) USING TTL ?`,
		sess.ID, sess.UserID, sess.Username, sess.Created, sess.Expires, ttl,
	); err != nil {
		logg.Error("store", "Failed to create session", err)
		return err
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, id string) (*models.Session, error) {
	sess := models.Session{ID: id}
	found, err := scanOne(s.Session.Iter(ctx,
		`SELECT user_id, username, created_at, expires_at FROM sessions WHERE session_id = ?`,
		id,
	), &sess.UserID, &sess.Username, &sess.Created, &sess.Expires)
	if err != nil {
		logg.Error("store", "Failed to load session", err)
		return nil, err
	}
	if !found || !sess.Expires.After(time.Now()) {
		return nil, nil
	}
	return &sess, nil
}

func (s *Store) DeleteSession(ctx context.Context, id string) error {
	if err := s.Session.Exec(ctx, `DELETE FROM sessions WHERE session_id = ?`, id); err != nil {
		logg.Error("store", "Failed to delete session", err)
		return err
	}
	return nil
}

// --- Post operations ---

const postColumns = `post_id, owner_id, owner_username, title, content, created_at`

// AddPost writes the post to its lookup table and to the per-owner
// listing in one logged batch.
func (s *Store) AddPost(ctx context.Context, post models.Post) error {
	values := []interface{}{post.ID, post.OwnerID, post.OwnerUsername, post.Title, post.Content, post.Created}
	err := s.Session.ExecBatch(ctx, []Statement{
		{CQL: `INSERT INTO posts (` + postColumns + `) VALUES (?, ?, ?, ?, ?, ?)`, Values: values},
		{CQL: `INSERT INTO posts_by_owner (` + postColumns + `) VALUES (?, ?, ?, ?, ?, ?)`, Values: values},
	})
	if err != nil {
		logg.Error("store", "Failed to add post", err)
		return err
	}

	logg.Info("store", "Post added (post content anonymized)")
	return nil
}

func (s *Store) GetPost(ctx context.Context, id string) (*models.Post, error) {
	posts, err := scanPosts(s.Session.Iter(ctx,
		`SELECT `+postColumns+` FROM posts WHERE post_id = ?`, id,
	))
	if err != nil {
		logg.Error("store", "Failed to get post", err)
		return nil, err
	}
	return first(posts), nil
}

// RecentForOwner relies on the (created_at DESC, post_id DESC) clustering
// order of posts_by_owner; one extra row tells whether the window was cut.
func (s *Store) RecentForOwner(ctx context.Context, ownerID string, limit int) ([]models.Post, bool, error) {
	posts, err := scanPosts(s.Session.Iter(ctx,
		`SELECT `+postColumns+` FROM posts_by_owner WHERE owner_id = ? LIMIT ?`,
		ownerID, limit+1,
	))
	if err != nil {
		logg.Error("store", "Failed to retrieve recent posts", err)
		return nil, false, err
	}

	if len(posts) > limit {
		return posts[:limit], true, nil
	}
	return posts, false, nil
}

func (s *Store) Neighbors(ctx context.Context, post models.Post) (*models.Post, *models.Post, error) {
	newer, err := scanPosts(s.Session.Iter(ctx, `
		SELECT `+postColumns+` FROM posts_by_owner
		WHERE owner_id = ? AND (created_at, post_id) > (?, ?)
		ORDER BY created_at ASC, post_id ASC LIMIT 1`,
		post.OwnerID, post.Created, post.ID,
	))
	if err != nil {
		logg.Error("store", "Failed to look up next post", err)
		return nil, nil, err
	}

	older, err := scanPosts(s.Session.Iter(ctx, `
		SELECT `+postColumns+` FROM posts_by_owner
		WHERE owner_id = ? AND (created_at, post_id) < (?, ?)
		LIMIT 1`,
		post.OwnerID, post.Created, post.ID,
	))
	if err != nil {
		logg.Error("store", "Failed to look up previous post", err)
		return nil, nil, err
	}

	return first(newer), first(older), nil
}

func scanPosts(iter Scanner) ([]models.Post, error) {
	var res []models.Post
	var p models.Post
	for iter.Scan(&p.ID, &p.OwnerID, &p.OwnerUsername, &p.Title, &p.Content, &p.Created) {
		res = append(res, p)
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	return res, nil
}

// scanOne reads the first row into dest and reports whether there was one.
func scanOne(iter Scanner, dest ...interface{}) (bool, error) {
	found := iter.Scan(dest...)
	if err := iter.Close(); err != nil {
		return false, err
	}
	return found, nil
}

func first(posts []models.Post) *models.Post {
	if len(posts) == 0 {
		return nil
	}
	return &posts[0]
}

// --- Stats operations ---

func (s *Store) IncrementPostCount(ctx context.Context, ownerID string, delta int64) error {
	if err := s.Session.Exec(ctx,
		`UPDATE post_counts SET post_count = post_count + ? WHERE owner_id = ?`,
		delta, ownerID,
	); err != nil {
		logg.Error("store", "Failed to increment post count", err)
		return err
	}
	return nil
}

func (s *Store) PostCounts(ctx context.Context) ([]models.PostCount, error) {
	iter := s.Session.Iter(ctx, `SELECT owner_id, post_count FROM post_counts`)

	var res []models.PostCount
	var c models.PostCount
	for iter.Scan(&c.OwnerID, &c.Count) {
		res = append(res, c)
	}
	if err := iter.Close(); err != nil {
		logg.Error("store", "Failed to read post counts", err)
		return nil, err
	}
	return res, nil
}
