package wordpress

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skekre98/contentagent/config"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// fakeSite serves the posts endpoints for user "editor" with password
// "secret", keeping created posts in memory.
type fakeSite struct {
	mu    sync.Mutex
	posts []Post
}

func (f *fakeSite) serve(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	auth := func(h http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if u, p, ok := r.BasicAuth(); !ok || u != "editor" || p != "secret" {
				http.Error(w, `{"code":"rest_not_logged_in"}`, http.StatusUnauthorized)
				return
			}
			h(w, r)
		}
	}
	mux.HandleFunc("POST /wp-json/wp/v2/posts", auth(func(w http.ResponseWriter, r *http.Request) {
		var p Post
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.posts = append(f.posts, p)
		id := len(f.posts)
		f.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{"id": id, "link": "https://blog.test/?p=" + strconv.Itoa(id), "status": p.Status, "slug": p.Slug})
	}))
	mux.HandleFunc("GET /wp-json/wp/v2/posts", auth(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "[]")
	}))
	mux.HandleFunc("GET /wp-json/wp/v2/posts/{id}", auth(func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "1" {
			http.Error(w, `{"code":"rest_post_invalid_id"}`, http.StatusNotFound)
			return
		}
		_, _ = io.WriteString(w, `{"id":1,"link":"https://blog.test/?p=1","status":"publish","title":{"rendered":"Email Tips"}}`)
	}))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newClient(url, password string) *Client {
	return NewClient(config.WordPressConfig{URL: url + "/", Username: "editor", AppPassword: password}, time.Second, discard())
}

func TestClient(t *testing.T) {
	site := &fakeSite{}
	srv := site.serve(t)
	c := newClient(srv.URL, "secret")
	ctx := context.Background()

	rp, err := c.Create(ctx, Post{Title: "Email Tips", Status: PostDraft, Slug: "email-tips"})
	require.NoError(t, err)
	assert.Equal(t, 1, rp.ID)
	assert.Equal(t, PostDraft, rp.Status)
	require.Len(t, site.posts, 1)
	assert.Equal(t, "email-tips", site.posts[0].Slug)

	got, err := c.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Email Tips", got.Title.Rendered)

	_, err = c.Get(ctx, 2)
	assert.ErrorIs(t, err, ErrPostNotFound)
	assert.NoError(t, c.Ping(ctx))
}

func TestClient_AuthFailure(t *testing.T) {
	srv := (&fakeSite{}).serve(t)
	c := newClient(srv.URL, "wrong")

	_, err := c.Create(context.Background(), Post{Title: "x"})
	require.ErrorIs(t, err, ErrPublish)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusUnauthorized, se.Code)
	assert.Contains(t, se.Body, "rest_not_logged_in")

	err = c.Ping(context.Background())
	assert.ErrorIs(t, err, ErrPublish)
	assert.NotErrorIs(t, err, ErrPostNotFound)
}

func TestClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	_, err := newClient(srv.URL, "secret").Create(context.Background(), Post{})
	assert.ErrorIs(t, err, ErrPublish)
}
