package wordpress

import (
	"fmt"
	"html"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/skekre98/contentagent/modules/contentgeneration"
)

// WordPress post statuses.
const (
	PostPublish = "publish"
	PostDraft   = "draft"
	PostPending = "pending"
	PostPrivate = "private"
	PostFuture  = "future"

	excerptLen = 160
)

// Yoast SEO meta keys.
const (
	metaDescription = "_yoast_wpseo_metadesc"
	metaFocusKW     = "_yoast_wpseo_focuskw"
	metaTitle       = "_yoast_wpseo_title"
)

// Post is the body sent to the posts endpoint.
type Post struct {
	Title      string            `json:"title"`
	Content    string            `json:"content"`
	Status     string            `json:"status"`
	Excerpt    string            `json:"excerpt"`
	Slug       string            `json:"slug"`
	Format     string            `json:"format"`
	Date       string            `json:"date,omitempty"`
	Categories []int             `json:"categories,omitempty"`
	Tags       []int             `json:"tags,omitempty"`
	Meta       map[string]string `json:"meta,omitempty"`
}

type FormatOptions struct {
	Status      string     `json:"status" validate:"omitempty,oneof=publish draft pending private"`
	PublishAt   *time.Time `json:"publish_at"`
	Categories  []int      `json:"categories"`
	Tags        []int      `json:"tags"`
	ExcerptText string     `json:"excerpt"`
}

var postFormats = map[string]string{
	"social_media": "aside",
}

// Formatter turns generated markdown into a WordPress post, as Gutenberg
// blocks or plain HTML.
type Formatter struct {
	useBlocks bool
	now       func() time.Time
}

func NewFormatter(useBlocks bool) *Formatter {
	return &Formatter{useBlocks: useBlocks, now: time.Now}
}

func (f *Formatter) Format(c *contentgeneration.Content, opts FormatOptions) Post {
	status := opts.Status
	if status == "" {
		status = PostPublish
	}
	p := Post{
		Title:      c.Title,
		Content:    f.Render(c.Body),
		Status:     status,
		Excerpt:    opts.ExcerptText,
		Slug:       Slugify(c.Title),
		Format:     "standard",
		Categories: opts.Categories,
		Tags:       opts.Tags,
		Meta:       map[string]string{metaFocusKW: c.PrimaryKeyword},
	}
	if pf, ok := postFormats[c.ContentType]; ok {
		p.Format = pf
	}
	if p.Excerpt == "" {
		p.Excerpt = Excerpt(c.Body)
	}
	desc := c.MetaDescription
	if desc == "" {
		desc = truncate(p.Excerpt, excerptLen)
	}
	p.Meta[metaDescription] = desc
	if c.SEOTitle != "" {
		p.Meta[metaTitle] = c.SEOTitle
	}
	if opts.PublishAt != nil {
		p.Date = opts.PublishAt.UTC().Format("2006-01-02T15:04:05")
		if opts.PublishAt.After(f.now()) && status == PostPublish {
			p.Status = PostFuture
		}
	}
	return p
}

var (
	boldRe   = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	italicRe = regexp.MustCompile(`\*([^*]+)\*`)
	emphasis = strings.NewReplacer("**", "", "*", "")
)

// inline escapes text and applies bold and italic emphasis.
func inline(s string) string {
	s = html.EscapeString(s)
	s = boldRe.ReplaceAllString(s, "<strong>$1</strong>")
	return italicRe.ReplaceAllString(s, "<em>$1</em>")
}

// Render converts markdown headings, paragraphs and bullet lists. A leading
// level-one heading is dropped since WordPress renders the title itself.
func (f *Formatter) Render(md string) string {
	var blocks []string
	var para, list []string
	flush := func() {
		if len(para) > 0 {
			blocks = append(blocks, f.block("paragraph", "", "<p>"+inline(strings.Join(para, " "))+"</p>"))
			para = nil
		}
		if len(list) > 0 {
			var b strings.Builder
			b.WriteString("<ul>")
			for _, item := range list {
				b.WriteString("<li>" + inline(item) + "</li>")
			}
			b.WriteString("</ul>")
			blocks = append(blocks, f.block("list", "", b.String()))
			list = nil
		}
	}
	first := true
	for _, line := range strings.Split(md, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, "# "):
			flush()
			if !first {
				blocks = append(blocks, f.block("heading", `{"level":1}`, "<h1>"+inline(line[2:])+"</h1>"))
			}
		case strings.HasPrefix(line, "### "):
			flush()
			blocks = append(blocks, f.block("heading", `{"level":3}`, "<h3>"+inline(line[4:])+"</h3>"))
		case strings.HasPrefix(line, "## "):
			flush()
			blocks = append(blocks, f.block("heading", "", "<h2>"+inline(line[3:])+"</h2>"))
		case strings.HasPrefix(line, "- "), strings.HasPrefix(line, "* "):
			if len(para) > 0 {
				flush()
			}
			list = append(list, line[2:])
		default:
			if len(list) > 0 {
				flush()
			}
			para = append(para, line)
		}
		if line != "" {
			first = false
		}
	}
	flush()
	return strings.Join(blocks, "\n\n")
}

func (f *Formatter) block(name, attrs, inner string) string {
	if !f.useBlocks {
		return inner
	}
	open := "<!-- wp:" + name
	if attrs != "" {
		open += " " + attrs
	}
	return fmt.Sprintf("%s -->\n%s\n<!-- /wp:%s -->", open, inner, name)
}

// Excerpt takes the first sentence of the body text, adding the second when
// the first is short, capped at 160 characters.
func Excerpt(md string) string {
	var text []string
	for _, line := range strings.Split(md, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		text = append(text, emphasis.Replace(strings.TrimLeft(line, "-* ")))
	}
	sentences := strings.Split(strings.Join(text, " "), ". ")
	out := strings.TrimSpace(sentences[0])
	if len(out) < 50 && len(sentences) > 1 {
		out += ". " + strings.TrimSpace(sentences[1])
	}
	return truncate(strings.TrimSuffix(out, "."), excerptLen)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n-3])) + "..."
}

// Slugify lowercases s and joins its alphanumeric runs with hyphens.
func Slugify(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
