package server

import (
	"bytes"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"example.com/blogger/internal/forms"
	"example.com/blogger/internal/metrics"
	"example.com/blogger/internal/middleware"
	"example.com/blogger/internal/models"
	"example.com/blogger/internal/posts"
	"github.com/gorilla/mux"
)

const (
	msgUsernameTaken      = "That username is already taken."
	msgInvalidCredentials = "That username or password does not exist"
)

type credentialsPage struct {
	Username string
	Error    string
	Errors   map[string]string
}

type welcomePage struct {
	Username string
	Window   int
}

type newPostPage struct {
	Title    string
	Content  string
	TitleMax int
	Errors   map[string]string
}

type postPage struct {
	Post models.Post
	Next *models.Post
	Prev *models.Post
}

// --- HTTP Handlers ---

// loginHandler serves the login form at "/" and starts a session on
// valid credentials.
func (s *Server) loginHandler(w http.ResponseWriter, r *http.Request, id *models.Identity) {
	if r.Method == http.MethodGet {
		if id != nil {
			http.Redirect(w, r, "/welcome", http.StatusSeeOther)
			return
		}
		s.render(w, http.StatusOK, "login", credentialsPage{})
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	username := r.PostForm.Get("username")

	token, err := s.accounts.Authenticate(r.Context(), username, r.PostForm.Get("password"))
	if errors.Is(err, models.ErrInvalidCredentials) {
		metrics.FailedLogins.Inc()
		logg.Info("http/login", "Rejected login attempt")
		s.render(w, http.StatusOK, "login", credentialsPage{Username: username, Error: msgInvalidCredentials})
		return
	}
	if err != nil {
		logg.Error("http/login", "Failed to authenticate", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	s.replaceSession(w, r, id, token)
	http.Redirect(w, r, "/welcome", http.StatusSeeOther)
}

// signupHandler creates an account and logs it in.
func (s *Server) signupHandler(w http.ResponseWriter, r *http.Request, id *models.Identity) {
	if r.Method == http.MethodGet {
		if id != nil {
			http.Redirect(w, r, "/welcome", http.StatusSeeOther)
			return
		}
		s.render(w, http.StatusOK, "signup", credentialsPage{})
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	username := r.PostForm.Get("username")

	token, err := s.accounts.Register(r.Context(), username, r.PostForm.Get("password"))
	switch {
	case errors.Is(err, models.ErrUsernameTaken):
		s.render(w, http.StatusOK, "signup", credentialsPage{Username: username, Error: msgUsernameTaken})
		return
	case forms.IsValidation(err):
		s.render(w, http.StatusOK, "signup", credentialsPage{Username: username, Errors: forms.Fields(err)})
		return
	case err != nil:
		logg.Error("http/signup", "Failed to register user", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	metrics.Signups.Inc()
	s.replaceSession(w, r, id, token)
	http.Redirect(w, r, "/welcome", http.StatusSeeOther)
}

// logoutHandler ends the caller's session, if any.
func (s *Server) logoutHandler(w http.ResponseWriter, r *http.Request) {
	s.accounts.EndSession(r.Context(), middleware.SessionToken(r))
	middleware.ClearSessionCookie(w, s.cookieSecure)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) welcomeHandler(w http.ResponseWriter, r *http.Request, id *models.Identity) {
	s.render(w, http.StatusOK, "welcome", welcomePage{Username: id.Username, Window: posts.DefaultWindow})
}

// newPostHandler shows the post form and publishes valid submissions.
func (s *Server) newPostHandler(w http.ResponseWriter, r *http.Request, id *models.Identity) {
	page := newPostPage{TitleMax: models.TitleMaxLength}
	if r.Method == http.MethodGet {
		s.render(w, http.StatusOK, "new_post", page)
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	page.Title = r.PostForm.Get("title")
	page.Content = r.PostForm.Get("content")

	post, err := s.posts.SubmitPost(r.Context(), *id, page.Title, page.Content)
	if forms.IsValidation(err) {
		page.Errors = forms.Fields(err)
		s.render(w, http.StatusOK, "new_post", page)
		return
	}
	if err != nil {
		logg.Error("http/new", "Failed to save post", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	metrics.PostsCreated.Inc()
	logg.Debug("http/new", "Post "+post.ID+" created by user_id="+id.UserID)
	http.Redirect(w, r, "/view/recent/"+strconv.Itoa(posts.DefaultWindow), http.StatusSeeOther)
}

// viewRecentHandler lists the caller's newest posts. The window size comes
// from the path; anything that is not a positive integer up to the
// configured maximum is rejected.
func (s *Server) viewRecentHandler(w http.ResponseWriter, r *http.Request, id *models.Identity) {
	n, ok := parseWindow(mux.Vars(r)["n"])
	if !ok {
		http.Error(w, posts.ErrInvalidWindow.Error(), http.StatusBadRequest)
		return
	}

	window, err := s.posts.Recent(r.Context(), id.UserID, n)
	if errors.Is(err, posts.ErrInvalidWindow) || errors.Is(err, posts.ErrWindowTooLarge) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		logg.Error("http/recent", "Failed to list posts for user_id="+id.UserID, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	s.render(w, http.StatusOK, "view_all", window)
}

// viewPostHandler shows one post with links to its chronological neighbors.
func (s *Server) viewPostHandler(w http.ResponseWriter, r *http.Request, id *models.Identity) {
	post, err := s.posts.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		logg.Error("http/view", "Failed to load post", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if post == nil {
		s.notFound(w, r)
		return
	}

	nb, err := s.posts.Neighbors(r.Context(), *post)
	if err != nil {
		logg.Error("http/view", "Failed to load neighbors of post "+post.ID, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	s.render(w, http.StatusOK, "view_one", postPage{Post: *post, Next: nb.Next, Prev: nb.Prev})
}

func (s *Server) notFound(w http.ResponseWriter, r *http.Request) {
	s.render(w, http.StatusNotFound, "not_found", nil)
}

// replaceSession ends the session the request came with, if any, before
// handing out the new token.
func (s *Server) replaceSession(w http.ResponseWriter, r *http.Request, prev *models.Identity, token string) {
	if prev != nil {
		s.accounts.EndSession(r.Context(), middleware.SessionToken(r))
	}
	middleware.SetSessionCookie(w, token, s.accounts.SessionTTL(), s.cookieSecure)
}

func (s *Server) render(w http.ResponseWriter, status int, page string, data any) {
	var buf bytes.Buffer
	if err := s.views[page].ExecuteTemplate(&buf, "base", data); err != nil {
		logg.Error("http/render", "Failed to render "+page, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

// parseWindow accepts decimal digits only.
func parseWindow(raw string) (int, bool) {
	if raw == "" || strings.TrimLeft(raw, "0123456789") != "" {
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return n, true
}
