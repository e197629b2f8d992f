package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"example.com/blogger/internal/models"
	"github.com/stretchr/testify/assert"
)

type stubResolver struct {
	ids map[string]*models.Identity
	err error
}

func (s stubResolver) CurrentUser(_ context.Context, token string) (*models.Identity, error) {
	return s.ids[token], s.err
}

func TestSession_PassesIdentityExplicitly(t *testing.T) {
	res := stubResolver{ids: map[string]*models.Identity{"tok": {UserID: "u1", Username: "ann"}}}

	var got *models.Identity
	h := Session(res, func(w http.ResponseWriter, r *http.Request, id *models.Identity) {
		got = id
	})

	req := httptest.NewRequest(http.MethodGet, "/welcome", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: "tok"})
	h.ServeHTTP(httptest.NewRecorder(), req)
	if assert.NotNil(t, got) {
		assert.Equal(t, "ann", got.Username)
	}

	got = &models.Identity{}
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/welcome", nil))
	assert.Nil(t, got)
}

func TestSession_ResolverError(t *testing.T) {
	called := false
	h := Session(stubResolver{err: errors.New("db down")}, func(http.ResponseWriter, *http.Request, *models.Identity) {
		called = true
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.False(t, called)
}

func TestRequireLogin(t *testing.T) {
	h := RequireLogin("/", func(w http.ResponseWriter, r *http.Request, id *models.Identity) {
		w.WriteHeader(http.StatusNoContent)
	})

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/new", nil), nil)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))

	rec = httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/new", nil), &models.Identity{UserID: "u"})
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestSessionCookies(t *testing.T) {
	rec := httptest.NewRecorder()
	SetSessionCookie(rec, "tok", 3600e9, true)
	c := rec.Result().Cookies()[0]
	assert.Equal(t, SessionCookie, c.Name)
	assert.Equal(t, "tok", c.Value)
	assert.Equal(t, 3600, c.MaxAge)
	assert.True(t, c.HttpOnly)
	assert.True(t, c.Secure)

	rec = httptest.NewRecorder()
	ClearSessionCookie(rec, false)
	c = rec.Result().Cookies()[0]
	assert.Equal(t, "", c.Value)
	assert.True(t, c.MaxAge < 0)
}
