package server

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"example.com/blogger/internal/account"
	"example.com/blogger/internal/logger"
	"example.com/blogger/internal/metrics"
	"example.com/blogger/internal/middleware"
	"example.com/blogger/internal/posts"
	"github.com/gorilla/mux"
)

//go:embed templates/*.html
var templateFS embed.FS

var pages = []string{"login", "signup", "welcome", "new_post", "view_all", "view_one", "not_found"}

type Server struct {
	accounts     *account.Service
	posts        *posts.Service
	views        map[string]*template.Template
	cookieSecure bool
}

var logg = logger.New()

// New builds a server around the account and post services.
func New(accounts *account.Service, postSvc *posts.Service, cookieSecure bool) (*Server, error) {
	views, err := loadViews()
	if err != nil {
		return nil, err
	}
	return &Server{
		accounts:     accounts,
		posts:        postSvc,
		views:        views,
		cookieSecure: cookieSecure,
	}, nil
}

func loadViews() (map[string]*template.Template, error) {
	base, err := template.ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("parse base template: %w", err)
	}
	views := make(map[string]*template.Template, len(pages))
	for _, name := range pages {
		t, err := base.Clone()
		if err != nil {
			return nil, err
		}
		if _, err := t.ParseFS(templateFS, "templates/"+name+".html"); err != nil {
			return nil, fmt.Errorf("parse %s template: %w", name, err)
		}
		views[name] = t
	}
	return views, nil
}

// Routes wires every page behind the session resolver. Pages that need a
// logged-in user redirect anonymous callers to the login page.
func (s *Server) Routes() http.Handler {
	r := mux.NewRouter()
	r.Use(metrics.Instrument)

	session := func(h middleware.IdentityHandler) http.Handler {
		return middleware.Session(s.accounts, h)
	}
	required := func(h middleware.IdentityHandler) http.Handler {
		return session(middleware.RequireLogin("/", h))
	}

	r.Handle("/", session(s.loginHandler)).Methods(http.MethodGet, http.MethodPost)
	r.Handle("/signup", session(s.signupHandler)).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/logout", s.logoutHandler).Methods(http.MethodGet, http.MethodPost)
	r.Handle("/welcome", required(s.welcomeHandler)).Methods(http.MethodGet)
	r.Handle("/new", required(s.newPostHandler)).Methods(http.MethodGet, http.MethodPost)
	r.Handle("/view/recent/{n}", required(s.viewRecentHandler)).Methods(http.MethodGet)
	r.Handle("/view/{id}", required(s.viewPostHandler)).Methods(http.MethodGet)

	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(s.notFound)
	return r
}

// Run serves handler on addr until ctx is cancelled, then shuts down
// gracefully. TLS is used when both certificate paths are set.
func Run(ctx context.Context, handler http.Handler, addr, certFile, keyFile string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  10 * time.Second, // prevent slowloris attacks
		WriteTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if certFile != "" && keyFile != "" {
			logg.Info("server", "Starting HTTPS server on "+addr)
			err = srv.ListenAndServeTLS(certFile, keyFile)
		} else {
			logg.Info("server", "Starting HTTP server on "+addr)
			err = srv.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			logg.Error("server", "Server stopped unexpectedly", err)
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logg.Info("server", "Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logg.Error("server", "Error during server shutdown", err)
		return err
	}
	logg.Info("server", "Server stopped gracefully")
	return nil
}
