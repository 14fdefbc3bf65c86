// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Taskweave Contributors

package web_test

import (
	"context"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskweave/taskweave/internal/auth"
	"github.com/taskweave/taskweave/internal/flash"
	"github.com/taskweave/taskweave/internal/session"
	"github.com/taskweave/taskweave/internal/web"
)

// memoryUserRepo is an in-memory auth.UserRepository that counts every
// call, so tests can assert the guard kept a request away from storage.
type memoryUserRepo struct {
	mu    sync.Mutex
	users map[string]*auth.User
	calls int
}

func newMemoryUserRepo() *memoryUserRepo {
	return &memoryUserRepo{users: make(map[string]*auth.User)}
}

func (r *memoryUserRepo) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func (r *memoryUserRepo) Create(_ context.Context, user *auth.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if _, exists := r.users[user.Email]; exists {
		return &auth.DuplicateFieldError{Field: "email"}
	}
	for _, u := range r.users {
		if u.Username == user.Username {
			return &auth.DuplicateFieldError{Field: "username"}
		}
	}
	r.users[user.Email] = user
	return nil
}

func (r *memoryUserRepo) GetByEmail(_ context.Context, email string) (*auth.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	user, ok := r.users[email]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return user, nil
}

func (r *memoryUserRepo) GetByID(_ context.Context, id uuid.UUID) (*auth.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	for _, u := range r.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, auth.ErrNotFound
}

// plainHasher is a fast stand-in for the argon2id pool.
type plainHasher struct{}

func (plainHasher) HashContext(_ context.Context, password string) (string, error) {
	return "hash-of-" + password, nil
}

func (plainHasher) VerifyContext(_ context.Context, password, hash string) (bool, error) {
	return hash == "hash-of-"+password, nil
}

// testApp is a running server plus a cookie-keeping client that never
// follows redirects on its own.
type testApp struct {
	t      *testing.T
	server *httptest.Server
	client *http.Client
	repo   *memoryUserRepo
	store  *session.MemoryStore
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	repo := newMemoryUserRepo()
	svc, err := auth.NewService(repo, plainHasher{}, nil)
	require.NoError(t, err)

	store := session.NewMemoryStore(time.Hour)
	key, err := flash.NewKey([]byte(strings.Repeat("k", 32)))
	require.NoError(t, err)

	srv, err := web.NewServer(web.Options{
		Addr:        ":0",
		AuthService: svc,
		Sessions:    store,
		FlashKey:    key,
	})
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	client := &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	return &testApp{t: t, server: ts, client: client, repo: repo, store: store}
}

func (a *testApp) get(path string) (*http.Response, string) {
	a.t.Helper()
	resp, err := a.client.Get(a.server.URL + path)
	require.NoError(a.t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(a.t, err)
	require.NoError(a.t, resp.Body.Close())
	return resp, string(body)
}

func (a *testApp) postForm(path string, form url.Values) (*http.Response, string) {
	a.t.Helper()
	resp, err := a.client.PostForm(a.server.URL+path, form)
	require.NoError(a.t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(a.t, err)
	require.NoError(a.t, resp.Body.Close())
	return resp, string(body)
}

func (a *testApp) register(username, email, password string) (*http.Response, string) {
	a.t.Helper()
	return a.postForm("/users/register", url.Values{
		"username": {username},
		"email":    {email},
		"password": {password},
	})
}

func (a *testApp) login(email, password string) (*http.Response, string) {
	a.t.Helper()
	return a.postForm("/users/login", url.Values{
		"email":    {email},
		"password": {password},
	})
}

// sessionCookie returns the session cookie the client currently holds, if any.
func (a *testApp) sessionCookie() *http.Cookie {
	serverURL, _ := url.Parse(a.server.URL)
	for _, c := range a.client.Jar.Cookies(serverURL) {
		if c.Name == web.SessionCookieName {
			return c
		}
	}
	return nil
}

func TestRegistration(t *testing.T) {
	t.Run("success redirects to the login page", func(t *testing.T) {
		app := newTestApp(t)

		resp, _ := app.register("alice", "alice@example.com", "password123")
		assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
		assert.Equal(t, "/users/login", resp.Header.Get("Location"))
	})

	t.Run("registration does not log the user in", func(t *testing.T) {
		app := newTestApp(t)
		app.register("alice", "alice@example.com", "password123")

		resp, _ := app.get("/todo")
		assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	})

	t.Run("duplicate email is a 422 naming the email field", func(t *testing.T) {
		app := newTestApp(t)
		app.register("alice", "alice@example.com", "password123")

		resp, body := app.register("different", "alice@example.com", "password123")
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
		assert.Contains(t, body, `"email"`)
		assert.Contains(t, body, "email is already taken")
		assert.NotContains(t, body, "username is already taken")
	})

	t.Run("duplicate username is a 422 naming the username field", func(t *testing.T) {
		app := newTestApp(t)
		app.register("alice", "alice@example.com", "password123")

		resp, body := app.register("alice", "other@example.com", "password123")
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
		assert.Contains(t, body, "username is already taken")
	})

	t.Run("invalid input is a 422 naming the field", func(t *testing.T) {
		app := newTestApp(t)

		tests := []struct {
			name      string
			username  string
			email     string
			password  string
			wantField string
		}{
			{"bad username", "x", "a@example.com", "password123", "username"},
			{"bad email", "alice", "not-an-email", "password123", "email"},
			{"empty password", "alice", "a@example.com", "", "password"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				resp, body := app.register(tt.username, tt.email, tt.password)
				assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
				assert.Contains(t, body, `"`+tt.wantField+`"`)
			})
		}
	})
}

func TestLogin(t *testing.T) {
	t.Run("correct credentials redirect to the protected area", func(t *testing.T) {
		app := newTestApp(t)
		app.register("alice", "alice@example.com", "password123")

		resp, _ := app.login("alice@example.com", "password123")
		assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
		assert.Equal(t, "/todo", resp.Header.Get("Location"))
		require.NotNil(t, app.sessionCookie())

		resp, body := app.get("/todo")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, body, "Welcome, alice")
	})

	t.Run("email matching is case-insensitive", func(t *testing.T) {
		app := newTestApp(t)
		app.register("alice", "alice@example.com", "password123")

		resp, _ := app.login("Alice@Example.COM", "password123")
		assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
		assert.Equal(t, "/todo", resp.Header.Get("Location"))
	})

	t.Run("wrong password shows the flash message exactly once", func(t *testing.T) {
		app := newTestApp(t)
		app.register("alice", "alice@example.com", "password123")

		resp, _ := app.login("alice@example.com", "wrongpassword")
		assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
		assert.Equal(t, "/users/login", resp.Header.Get("Location"))
		assert.Nil(t, app.sessionCookie(), "failed login must not establish a session")

		resp, body := app.get("/users/login")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, body, "Incorrect Credentials")

		// The flash is consumed: a refresh shows a clean page.
		resp, body = app.get("/users/login")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.NotContains(t, body, "Incorrect Credentials")
	})

	t.Run("unknown email reads exactly like a wrong password", func(t *testing.T) {
		app := newTestApp(t)
		app.register("alice", "alice@example.com", "password123")

		respUnknown, _ := app.login("ghost@example.com", "password123")
		_, bodyUnknown := app.get("/users/login")

		respWrong, _ := app.login("alice@example.com", "wrongpassword")
		_, bodyWrong := app.get("/users/login")

		assert.Equal(t, respUnknown.StatusCode, respWrong.StatusCode)
		assert.Equal(t, respUnknown.Header.Get("Location"), respWrong.Header.Get("Location"))
		assert.Contains(t, bodyUnknown, "Incorrect Credentials")
		assert.Contains(t, bodyWrong, "Incorrect Credentials")
	})

	t.Run("login rotates the session identifier", func(t *testing.T) {
		app := newTestApp(t)
		app.register("alice", "alice@example.com", "password123")

		// Arrange a pre-login session by priming a token the client holds.
		preLogin := app.sessionCookie()
		resp, _ := app.login("alice@example.com", "password123")
		require.Equal(t, http.StatusSeeOther, resp.StatusCode)

		postLogin := app.sessionCookie()
		require.NotNil(t, postLogin)
		if preLogin != nil {
			assert.NotEqual(t, preLogin.Value, postLogin.Value)
		}

		// A second login issues yet another identifier and the old one dies.
		firstToken := postLogin.Value
		resp, _ = app.login("alice@example.com", "password123")
		require.Equal(t, http.StatusSeeOther, resp.StatusCode)
		secondToken := app.sessionCookie().Value
		assert.NotEqual(t, firstToken, secondToken)

		_, ok, err := app.store.Get(context.Background(), session.HashToken(firstToken), session.PayloadKey)
		require.NoError(t, err)
		assert.False(t, ok, "pre-rotation identifier must be invalid")
	})
}

func TestAccessGuard(t *testing.T) {
	t.Run("unauthenticated requests are redirected before any work", func(t *testing.T) {
		app := newTestApp(t)

		resp, _ := app.get("/todo")
		assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
		assert.Equal(t, "/users/login", resp.Header.Get("Location"))
		assert.Zero(t, app.repo.callCount(), "guard must reject before touching storage")
	})

	t.Run("garbage session cookie is treated as unauthenticated", func(t *testing.T) {
		app := newTestApp(t)

		req, err := http.NewRequest(http.MethodGet, app.server.URL+"/todo", nil)
		require.NoError(t, err)
		req.AddCookie(&http.Cookie{Name: web.SessionCookieName, Value: "forged-token"})

		resp, err := app.client.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
		assert.Equal(t, "/users/login", resp.Header.Get("Location"))
	})

	t.Run("public pages need no session", func(t *testing.T) {
		app := newTestApp(t)

		for _, path := range []string{"/", "/users/login", "/users/register"} {
			resp, _ := app.get(path)
			assert.Equal(t, http.StatusOK, resp.StatusCode, "path %s", path)
		}
	})

	t.Run("logout requires a session", func(t *testing.T) {
		app := newTestApp(t)

		resp, _ := app.postForm("/users/logout", url.Values{})
		assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
		assert.Equal(t, "/users/login", resp.Header.Get("Location"))
	})
}

func TestLogout(t *testing.T) {
	app := newTestApp(t)
	app.register("alice", "alice@example.com", "password123")
	app.login("alice@example.com", "password123")
	token := app.sessionCookie().Value

	resp, _ := app.postForm("/users/logout", url.Values{})
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))

	// Server-side state is gone even if a copy of the cookie survives.
	_, ok, err := app.store.Get(context.Background(), session.HashToken(token), session.PayloadKey)
	require.NoError(t, err)
	assert.False(t, ok)

	resp, _ = app.get("/todo")
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
}

func TestRequestIDHeader(t *testing.T) {
	app := newTestApp(t)

	resp, _ := app.get("/")
	assert.NotEmpty(t, resp.Header.Get("Taskweave-Request-Id"))
}

func TestTamperedFlashIsNotShown(t *testing.T) {
	app := newTestApp(t)
	app.register("alice", "alice@example.com", "password123")
	app.login("alice@example.com", "wrongpassword")

	// Corrupt the flash cookie the client holds.
	serverURL, err := url.Parse(app.server.URL)
	require.NoError(t, err)
	app.client.Jar.SetCookies(serverURL, []*http.Cookie{{
		Name:  flash.CookieName,
		Value: url.QueryEscape(`{"message":{"level":"error","text":"forged"},"tag":"00"}`),
	}})

	resp, body := app.get("/users/login")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotContains(t, body, "forged")
	assert.NotContains(t, body, "Incorrect Credentials")

	// The tampered cookie was still cleared.
	for _, c := range app.client.Jar.Cookies(serverURL) {
		assert.NotEqual(t, flash.CookieName, c.Name)
	}
}

func TestNewServerValidation(t *testing.T) {
	repo := newMemoryUserRepo()
	svc, err := auth.NewService(repo, plainHasher{}, nil)
	require.NoError(t, err)
	store := session.NewMemoryStore(time.Hour)
	key, err := flash.NewKey([]byte(strings.Repeat("k", 32)))
	require.NoError(t, err)

	tests := []struct {
		name string
		opts web.Options
	}{
		{"missing addr", web.Options{AuthService: svc, Sessions: store, FlashKey: key}},
		{"missing auth service", web.Options{Addr: ":0", Sessions: store, FlashKey: key}},
		{"missing session store", web.Options{Addr: ":0", AuthService: svc, FlashKey: key}},
		{"missing flash key", web.Options{Addr: ":0", AuthService: svc, Sessions: store}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, err := web.NewServer(tt.opts)
			require.Error(t, err)
			assert.Nil(t, srv)
		})
	}
}
