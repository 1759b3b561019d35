package wordpress

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/skekre98/contentagent/metrics"
	"github.com/skekre98/contentagent/modules/contentgeneration"
)

var (
	ErrInvalidRequest  = errors.New("invalid publish request")
	ErrContentNotFound = errors.New("content not found")
)

// Publish outcomes, as counted in metrics.
const (
	OutcomeSuccess = "success"
	OutcomeDryRun  = "dry_run"
	OutcomeFailed  = "failed"

	maxRecords = 500
)

// Record is one publish attempt.
type Record struct {
	PostID      int       `json:"post_id,omitempty"`
	ContentID   string    `json:"content_id"`
	ScheduleID  string    `json:"schedule_id,omitempty"`
	Title       string    `json:"title"`
	Link        string    `json:"link,omitempty"`
	Status      string    `json:"status"`
	Outcome     string    `json:"outcome"`
	DryRun      bool      `json:"dry_run"`
	Error       string    `json:"error,omitempty"`
	PublishedAt time.Time `json:"published_at"`
}

// Publisher formats generated content and posts it to WordPress. Without a
// configured site it runs dry: posts are formatted and recorded but not
// sent.
type Publisher struct {
	client    *Client
	formatter *Formatter
	content   *contentgeneration.ContentService
	metrics   metrics.Registry
	validate  *validator.Validate
	logger    *slog.Logger
	siteURL   string

	mu      sync.Mutex
	records []Record
	nextDry int
}

func NewPublisher(client *Client, siteURL string, formatter *Formatter, content *contentgeneration.ContentService, reg metrics.Registry, logger *slog.Logger) *Publisher {
	return &Publisher{
		client:    client,
		formatter: formatter,
		content:   content,
		metrics:   reg,
		validate:  validator.New(),
		logger:    logger.With("service", PublisherServiceName),
		siteURL:   siteURL,
	}
}

func (p *Publisher) DryRun() bool { return p.client == nil }

// Preview formats content without publishing it.
func (p *Publisher) Preview(contentID string, opts FormatOptions) (Post, error) {
	c, err := p.lookup(contentID, opts)
	if err != nil {
		return Post{}, err
	}
	return p.formatter.Format(c, opts), nil
}

func (p *Publisher) lookup(contentID string, opts FormatOptions) (*contentgeneration.Content, error) {
	if contentID == "" {
		return nil, fmt.Errorf("%w: content_id is required", ErrInvalidRequest)
	}
	if err := p.validate.Struct(opts); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	c, err := p.content.Get(contentID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrContentNotFound, contentID)
	}
	return c, nil
}

// Publish posts the content and records the attempt. scheduleID, when set,
// ties the record to a scheduled publish.
func (p *Publisher) Publish(ctx context.Context, contentID, scheduleID string, opts FormatOptions) (Record, error) {
	c, err := p.lookup(contentID, opts)
	if err != nil {
		return Record{}, err
	}
	post := p.formatter.Format(c, opts)
	rec := Record{
		ContentID:   contentID,
		ScheduleID:  scheduleID,
		Title:       post.Title,
		Status:      post.Status,
		PublishedAt: time.Now().UTC(),
	}

	if p.DryRun() {
		p.mu.Lock()
		p.nextDry++
		rec.PostID = p.nextDry
		p.mu.Unlock()
		rec.Outcome, rec.DryRun = OutcomeDryRun, true
		rec.Link = fmt.Sprintf("dry-run://posts/%d", rec.PostID)
		p.logger.Info("dry-run publish", "content_id", contentID, "post_id", rec.PostID, "title", post.Title)
	} else {
		rp, err := p.client.Create(ctx, post)
		if err != nil {
			rec.Outcome, rec.Error = OutcomeFailed, err.Error()
			p.store(rec)
			p.logger.Error("publish failed", "content_id", contentID, "error", err)
			return rec, err
		}
		rec.PostID, rec.Link, rec.Outcome = rp.ID, rp.Link, OutcomeSuccess
		if rp.Status != "" {
			rec.Status = rp.Status
		}
		p.logger.Info("post published", "content_id", contentID, "post_id", rp.ID, "link", rp.Link)
	}
	p.store(rec)
	return rec, nil
}

func (p *Publisher) store(rec Record) {
	p.mu.Lock()
	p.records = append(p.records, rec)
	if over := len(p.records) - maxRecords; over > 0 {
		p.records = append([]Record(nil), p.records[over:]...)
	}
	p.mu.Unlock()
	p.metrics.IncPostsPublished(rec.Outcome)
}

// Records returns publish attempts, newest first. limit <= 0 returns all.
func (p *Publisher) Records(limit int) []Record {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(p.records)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Record, 0, n)
	for i := len(p.records) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, p.records[i])
	}
	return out
}

// Post fetches a post from the site, or from the dry-run records when no
// site is configured.
func (p *Publisher) Post(ctx context.Context, id int) (RemotePost, error) {
	if !p.DryRun() {
		return p.client.Get(ctx, id)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := len(p.records) - 1; i >= 0; i-- {
		if r := p.records[i]; r.PostID == id && r.Outcome == OutcomeDryRun {
			rp := RemotePost{ID: r.PostID, Link: r.Link, Status: r.Status, Slug: Slugify(r.Title), Date: r.PublishedAt.Format("2006-01-02T15:04:05")}
			rp.Title.Rendered = r.Title
			return rp, nil
		}
	}
	return RemotePost{}, fmt.Errorf("%w: %d", ErrPostNotFound, id)
}

// Counts reports attempts per outcome.
func (p *Publisher) Counts() map[string]int {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := map[string]int{OutcomeSuccess: 0, OutcomeDryRun: 0, OutcomeFailed: 0}
	for _, r := range p.records {
		out[r.Outcome]++
	}
	return out
}

// TestConnection pings the site. Dry-run mode reports not configured.
func (p *Publisher) TestConnection(ctx context.Context) map[string]any {
	out := map[string]any{"site_url": p.siteURL, "configured": !p.DryRun(), "connected": false}
	if p.DryRun() {
		return out
	}
	start := time.Now()
	if err := p.client.Ping(ctx); err != nil {
		out["error"] = err.Error()
		return out
	}
	out["connected"] = true
	out["latency_ms"] = time.Since(start).Milliseconds()
	return out
}
