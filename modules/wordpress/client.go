package wordpress

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/skekre98/contentagent/config"
)

var (
	ErrPublish      = errors.New("wordpress request failed")
	ErrPostNotFound = errors.New("post not found")
)

const (
	userAgent    = "ContentAgent/1.0"
	apiPath      = "/wp-json/wp/v2"
	maxErrorBody = 512
)

// RemotePost is the subset of the posts endpoint response the module uses.
type RemotePost struct {
	ID     int    `json:"id"`
	Link   string `json:"link"`
	Status string `json:"status"`
	Date   string `json:"date"`
	Slug   string `json:"slug"`
	Title  struct {
		Rendered string `json:"rendered"`
	} `json:"title"`
}

// StatusError is an unexpected API response status.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%v: %s %s: HTTP %d: %s", ErrPublish, e.Method, e.Path, e.Code, e.Body)
}

func (e *StatusError) Unwrap() error { return ErrPublish }

// Client talks to the WordPress REST API with application-password auth.
type Client struct {
	base     string
	username string
	password string
	http     *http.Client
	logger   *slog.Logger
}

func NewClient(cfg config.WordPressConfig, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		base:     strings.TrimRight(cfg.URL, "/") + apiPath,
		username: cfg.Username,
		password: cfg.AppPassword,
		http:     &http.Client{Timeout: timeout},
		logger:   logger.With("component", "wordpress_client"),
	}
}

func (c *Client) do(ctx context.Context, method, path string, body any, want int, out any) error {
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.username != "" && c.password != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPublish, err)
	}
	defer resp.Body.Close()
	c.logger.Debug("wordpress request", "method", method, "path", path, "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode != want {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s response: %v", ErrPublish, path, err)
	}
	return nil
}

// Create publishes a post; WordPress answers 201.
func (c *Client) Create(ctx context.Context, p Post) (RemotePost, error) {
	var rp RemotePost
	err := c.do(ctx, http.MethodPost, "/posts", p, http.StatusCreated, &rp)
	return rp, err
}

func (c *Client) Get(ctx context.Context, id int) (RemotePost, error) {
	var rp RemotePost
	err := c.do(ctx, http.MethodGet, "/posts/"+strconv.Itoa(id), nil, http.StatusOK, &rp)
	var se *StatusError
	if errors.As(err, &se) && se.Code == http.StatusNotFound {
		return rp, fmt.Errorf("%w: %d", ErrPostNotFound, id)
	}
	return rp, err
}

// Ping lists one post to confirm the API answers and the credentials work.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/posts?per_page=1", nil, http.StatusOK, nil)
}
