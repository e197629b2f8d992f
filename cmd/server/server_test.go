package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"example.com/blogger/internal/account"
	appkafka "example.com/blogger/internal/broker"
	"example.com/blogger/internal/models"
	"example.com/blogger/internal/posts"
	"example.com/blogger/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

//
// --- Setup test server ---
//

type testEnv struct {
	ts    *httptest.Server
	store *store.MockStore
	kafka *appkafka.MockKafka
	posts *posts.Service
}

// tickingClock gives every post its own second.
func tickingClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

func setupTestServer(t *testing.T) *testEnv {
	t.Helper()
	st := store.NewMock()
	mk := &appkafka.MockKafka{}
	pub := appkafka.NewPublisher(mk)

	fast := &account.Argon2Params{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}
	accounts := account.NewService(st, st, account.NewTokenProvider([]byte("test-secret")), pub, time.Hour,
		account.WithHasher(account.NewArgon2Hasher(fast)))
	postSvc := posts.NewService(st, pub, posts.WithClock(tickingClock()))

	s, err := New(accounts, postSvc, false)
	require.NoError(t, err)

	ts := httptest.NewServer(s.Routes())
	t.Cleanup(ts.Close)
	return &testEnv{ts: ts, store: st, kafka: mk, posts: postSvc}
}

//
// --- Helpers ---
//

// newClient keeps cookies between requests and never follows redirects.
func newClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

type page struct {
	status   int
	location string
	body     string
}

func (e *testEnv) get(t *testing.T, c *http.Client, path string) page {
	t.Helper()
	resp, err := c.Get(e.ts.URL + path)
	require.NoError(t, err)
	return readPage(t, resp)
}

func (e *testEnv) post(t *testing.T, c *http.Client, path string, form url.Values) page {
	t.Helper()
	resp, err := c.PostForm(e.ts.URL+path, form)
	require.NoError(t, err)
	return readPage(t, resp)
}

func readPage(t *testing.T, resp *http.Response) page {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return page{status: resp.StatusCode, location: resp.Header.Get("Location"), body: string(b)}
}

func creds(username, password string) url.Values {
	return url.Values{"username": {username}, "password": {password}}
}

// loggedIn returns a client with a fresh account named username.
func (e *testEnv) loggedIn(t *testing.T, username string) (*http.Client, models.User) {
	t.Helper()
	c := newClient(t)
	p := e.post(t, c, "/signup", creds(username, "password"))
	require.Equal(t, http.StatusSeeOther, p.status)
	u, err := e.store.GetUserByUsername(context.Background(), username)
	require.NoError(t, err)
	require.NotNil(t, u)
	return c, *u
}

func (e *testEnv) createPosts(t *testing.T, u models.User, n int) []*models.Post {
	t.Helper()
	who := models.Identity{UserID: u.ID, Username: u.Username}
	var out []*models.Post
	for i := 1; i <= n; i++ {
		p, err := e.posts.SubmitPost(context.Background(), who, fmt.Sprintf("Post %d", i), "Sample content!")
		require.NoError(t, err)
		out = append(out, p)
	}
	return out
}

//
// --- Tests ---
//

func TestAnonymousPages(t *testing.T) {
	env := setupTestServer(t)
	c := newClient(t)

	p := env.get(t, c, "/")
	assert.Equal(t, http.StatusOK, p.status)
	assert.Contains(t, p.body, "Login")
	assert.Contains(t, p.body, "Signup")

	p = env.get(t, c, "/signup")
	assert.Equal(t, http.StatusOK, p.status)

	for _, path := range []string{"/welcome", "/new", "/view/recent/10", "/view/0190f1c2-0000-7000-8000-000000000001"} {
		p := env.get(t, c, path)
		assert.Equal(t, http.StatusSeeOther, p.status, path)
		assert.Equal(t, "/", p.location, path)
	}

	p = env.post(t, c, "/new", url.Values{"title": {"t"}, "content": {"c"}})
	assert.Equal(t, http.StatusSeeOther, p.status)
	assert.Empty(t, env.store.Posts)
}

func TestLoggedInRedirectsAwayFromLoginAndSignup(t *testing.T) {
	env := setupTestServer(t)
	c, _ := env.loggedIn(t, "user")

	for _, path := range []string{"/", "/signup"} {
		p := env.get(t, c, path)
		assert.Equal(t, http.StatusSeeOther, p.status, path)
		assert.Equal(t, "/welcome", p.location, path)
	}
}

func TestSignup(t *testing.T) {
	env := setupTestServer(t)
	c := newClient(t)

	p := env.post(t, c, "/signup", creds("user2", "pw2"))
	assert.Equal(t, http.StatusSeeOther, p.status)
	assert.Equal(t, "/welcome", p.location)

	u, err := env.store.GetUserByUsername(context.Background(), "user2")
	require.NoError(t, err)
	require.NotNil(t, u)

	// the new account is logged in
	p = env.get(t, c, "/welcome")
	assert.Equal(t, http.StatusOK, p.status)
	assert.Contains(t, p.body, "Welcome, user2!")
}

func TestSignup_UsernameTaken(t *testing.T) {
	env := setupTestServer(t)
	env.loggedIn(t, "user1")
	before, _ := env.store.GetUserByUsername(context.Background(), "user1")

	c := newClient(t)
	p := env.post(t, c, "/signup", creds("user1", "pw2"))
	assert.Equal(t, http.StatusOK, p.status)
	assert.Contains(t, p.body, "That username is already taken.")

	after, _ := env.store.GetUserByUsername(context.Background(), "user1")
	assert.Equal(t, before.PasswordHash, after.PasswordHash)

	p = env.get(t, c, "/welcome")
	assert.Equal(t, http.StatusSeeOther, p.status)

	p = env.post(t, c, "/", creds("user1", "password"))
	assert.Equal(t, "/welcome", p.location)
}

func TestSignup_RequiredFields(t *testing.T) {
	env := setupTestServer(t)
	p := env.post(t, newClient(t), "/signup", creds("keepme", ""))
	assert.Equal(t, http.StatusOK, p.status)
	assert.Contains(t, p.body, "This field is required")
	assert.Contains(t, p.body, `value="keepme"`)
	assert.Empty(t, env.store.Users)
}

func TestLogin(t *testing.T) {
	env := setupTestServer(t)
	env.loggedIn(t, "user")

	c := newClient(t)
	p := env.post(t, c, "/", creds("user", "password"))
	assert.Equal(t, http.StatusSeeOther, p.status)
	assert.Equal(t, "/welcome", p.location)
	assert.Equal(t, http.StatusOK, env.get(t, c, "/welcome").status)
}

func TestLogin_BadCredentials(t *testing.T) {
	env := setupTestServer(t)
	env.loggedIn(t, "user")

	for _, cred := range []url.Values{creds("user", "badpassword"), creds("nobody", "password"), creds("", "")} {
		c := newClient(t)
		p := env.post(t, c, "/", cred)
		assert.Equal(t, http.StatusOK, p.status)
		assert.Contains(t, p.body, "That username or password does not exist")

		p = env.get(t, c, "/welcome")
		assert.Equal(t, http.StatusSeeOther, p.status)
	}
}

func TestLogout(t *testing.T) {
	env := setupTestServer(t)
	c, _ := env.loggedIn(t, "user")
	require.Len(t, env.store.Sessions, 1)

	p := env.get(t, c, "/logout")
	assert.Equal(t, http.StatusSeeOther, p.status)
	assert.Equal(t, "/", p.location)
	assert.Empty(t, env.store.Sessions)

	p = env.get(t, c, "/welcome")
	assert.Equal(t, http.StatusSeeOther, p.status)

	// a second logout is harmless
	p = env.get(t, c, "/logout")
	assert.Equal(t, "/", p.location)
}

func TestLoginReplacesExistingSession(t *testing.T) {
	env := setupTestServer(t)
	c, _ := env.loggedIn(t, "user")
	env.loggedIn(t, "other")
	require.Len(t, env.store.Sessions, 2)

	p := env.post(t, c, "/", creds("other", "password"))
	assert.Equal(t, http.StatusSeeOther, p.status)
	assert.Len(t, env.store.Sessions, 2)
	assert.Contains(t, env.get(t, c, "/welcome").body, "Welcome, other!")
}

func TestWelcome(t *testing.T) {
	env := setupTestServer(t)
	c, _ := env.loggedIn(t, "user")

	p := env.get(t, c, "/welcome")
	assert.Equal(t, http.StatusOK, p.status)
	assert.Contains(t, p.body, "Welcome, user!")
	for _, button := range []string{"Add a new post", "View recent posts", "Logout"} {
		assert.Contains(t, p.body, button)
	}
}

func TestNewPost(t *testing.T) {
	env := setupTestServer(t)
	c, u := env.loggedIn(t, "user")

	p := env.get(t, c, "/new")
	assert.Equal(t, http.StatusOK, p.status)
	assert.Contains(t, p.body, "title")
	assert.Contains(t, p.body, "content")
	assert.NotContains(t, p.body, "This field is required")

	p = env.post(t, c, "/new", url.Values{"title": {"First Test Post"}, "content": {"First test."}})
	assert.Equal(t, http.StatusSeeOther, p.status)
	assert.Equal(t, "/view/recent/10", p.location)

	recent, _, err := env.store.RecentForOwner(context.Background(), u.ID, 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "First Test Post", recent[0].Title)
	assert.Equal(t, u.ID, recent[0].OwnerID)
}

func TestNewPost_MissingContent(t *testing.T) {
	env := setupTestServer(t)
	c, _ := env.loggedIn(t, "user")

	p := env.post(t, c, "/new", url.Values{"title": {"I have no content"}, "content": {""}})
	assert.Equal(t, http.StatusOK, p.status)
	assert.Contains(t, p.body, "This field is required")
	assert.Contains(t, p.body, `value="I have no content"`)
	assert.Empty(t, env.store.Posts)
}

func TestViewRecent(t *testing.T) {
	env := setupTestServer(t)
	c, u := env.loggedIn(t, "user")
	env.createPosts(t, u, 25)

	title := func(i int) string { return fmt.Sprintf(">Post %d<", i) }

	p := env.get(t, c, "/view/recent/10")
	assert.Equal(t, http.StatusOK, p.status)
	for i := 25; i > 15; i-- {
		assert.Contains(t, p.body, title(i))
	}
	assert.NotContains(t, p.body, title(15))
	assert.Less(t, strings.Index(p.body, title(25)), strings.Index(p.body, title(16)))
	assert.Contains(t, p.body, "View more")
	assert.Contains(t, p.body, `href="/view/recent/20"`)

	p = env.get(t, c, "/view/recent/20")
	for i := 25; i > 5; i-- {
		assert.Contains(t, p.body, title(i))
	}
	assert.Contains(t, p.body, "View more")

	p = env.get(t, c, "/view/recent/30")
	for i := 1; i <= 25; i++ {
		assert.Contains(t, p.body, title(i))
	}
	assert.NotContains(t, p.body, "View more")
}

func TestViewRecent_OnlyOwnPosts(t *testing.T) {
	env := setupTestServer(t)
	c, _ := env.loggedIn(t, "user")
	_, other := env.loggedIn(t, "other")
	env.createPosts(t, other, 3)

	p := env.get(t, c, "/view/recent/10")
	assert.Equal(t, http.StatusOK, p.status)
	assert.NotContains(t, p.body, "Post 1")
	assert.NotContains(t, p.body, "View more")
}

func TestViewRecent_BadWindow(t *testing.T) {
	env := setupTestServer(t)
	c, _ := env.loggedIn(t, "user")

	for _, n := range []string{"abc", "0", "-1", "1.5", "+3", "501", "99999999999999999999999"} {
		p := env.get(t, c, "/view/recent/"+n)
		assert.Equal(t, http.StatusBadRequest, p.status, n)
	}
	assert.Equal(t, http.StatusOK, env.get(t, c, "/view/recent/500").status)
}

func TestViewRecent_NoViewMoreAtMaximum(t *testing.T) {
	env := setupTestServer(t)
	c, u := env.loggedIn(t, "user")
	env.createPosts(t, u, posts.DefaultMaxWindow+5)

	p := env.get(t, c, "/view/recent/495")
	assert.Contains(t, p.body, `href="/view/recent/500"`)

	p = env.get(t, c, "/view/recent/500")
	assert.Equal(t, http.StatusOK, p.status)
	assert.NotContains(t, p.body, "View more")
}

func TestViewPost_Neighbors(t *testing.T) {
	env := setupTestServer(t)
	c, u := env.loggedIn(t, "user")
	ps := env.createPosts(t, u, 3)

	link := func(p *models.Post) string { return `href="/view/` + p.ID + `"` }

	body := env.get(t, c, "/view/"+ps[0].ID).body
	assert.Contains(t, body, "Post 1")
	assert.Contains(t, body, "Next")
	assert.Contains(t, body, link(ps[1]))
	assert.NotContains(t, body, "Prev")

	body = env.get(t, c, "/view/"+ps[1].ID).body
	assert.Contains(t, body, "Next")
	assert.Contains(t, body, "Prev")
	assert.Contains(t, body, link(ps[2]))
	assert.Contains(t, body, link(ps[0]))

	body = env.get(t, c, "/view/"+ps[2].ID).body
	assert.NotContains(t, body, "Next")
	assert.Contains(t, body, "Prev")
	assert.Contains(t, body, link(ps[1]))
}

func TestViewPost_NotFound(t *testing.T) {
	env := setupTestServer(t)
	c, _ := env.loggedIn(t, "user")

	for _, id := range []string{"0190f1c2-0000-7000-8000-000000000001", "42", "recent"} {
		p := env.get(t, c, "/view/"+id)
		assert.Equal(t, http.StatusNotFound, p.status, id)
	}
}

func TestStoreFailureIsInternalError(t *testing.T) {
	env := setupTestServer(t)
	c, _ := env.loggedIn(t, "user")

	env.store.ShouldFail = true
	p := env.get(t, c, "/welcome")
	assert.Equal(t, http.StatusInternalServerError, p.status)
	assert.NotContains(t, p.body, "mock")
}

func TestEventsPublished(t *testing.T) {
	env := setupTestServer(t)
	c, _ := env.loggedIn(t, "user")
	env.post(t, c, "/new", url.Values{"title": {"t"}, "content": {"c"}})

	var types []appkafka.EventType
	for _, m := range env.kafka.Written() {
		ev, err := appkafka.DecodeEvent(m)
		require.NoError(t, err)
		types = append(types, ev.Type)
	}
	assert.Equal(t, []appkafka.EventType{appkafka.UserRegistered, appkafka.PostCreated}, types)
}

func TestHealthAndMetrics(t *testing.T) {
	env := setupTestServer(t)
	c := newClient(t)

	p := env.get(t, c, "/healthz")
	assert.Equal(t, http.StatusOK, p.status)
	assert.Equal(t, "ok", p.body)

	env.get(t, c, "/")
	p = env.get(t, c, "/metrics")
	assert.Equal(t, http.StatusOK, p.status)
	assert.Contains(t, p.body, "blogger_http_requests_total")
}

func TestParseWindow(t *testing.T) {
	n, ok := parseWindow("10")
	assert.True(t, ok)
	assert.Equal(t, 10, n)

	_, ok = parseWindow("")
	assert.False(t, ok)
	_, ok = parseWindow("1e3")
	assert.False(t, ok)
	_, ok = parseWindow("99999999999999999999999")
	assert.False(t, ok)
}
