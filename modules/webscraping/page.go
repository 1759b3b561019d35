package webscraping

import (
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const (
	StatusSuccess = "success"
	StatusFailed  = "failed"

	wordsPerMinute = 200
)

type Heading struct {
	Level int    `json:"level"`
	Text  string `json:"text"`
}

// SEO is the on-page audit of a scraped document.
type SEO struct {
	TitleLength       int  `json:"title_length"`
	TitleFriendly     bool `json:"title_seo_friendly"`
	MetaLength        int  `json:"meta_description_length"`
	MetaFriendly      bool `json:"meta_description_seo_friendly"`
	H1Count           int  `json:"h1_count"`
	HasCanonical      bool `json:"has_canonical"`
	HasStructuredData bool `json:"has_structured_data"`
	Score             int  `json:"score"`
}

type Page struct {
	URL             string            `json:"url"`
	Status          string            `json:"status"`
	StatusCode      int               `json:"status_code,omitempty"`
	Title           string            `json:"title,omitempty"`
	MetaDescription string            `json:"meta_description,omitempty"`
	MetaKeywords    []string          `json:"meta_keywords,omitempty"`
	Canonical       string            `json:"canonical_url,omitempty"`
	OpenGraph       map[string]string `json:"open_graph,omitempty"`
	Headings        []Heading         `json:"headings,omitempty"`
	WordCount       int               `json:"word_count"`
	ReadingTime     int               `json:"reading_time_minutes"`
	Paragraphs      int               `json:"paragraphs_count"`
	Images          int               `json:"images_count"`
	InternalLinks   int               `json:"internal_links_count"`
	ExternalLinks   int               `json:"external_links_count"`
	SEO             SEO               `json:"seo"`
	Error           string            `json:"error,omitempty"`
	ScrapedAt       time.Time         `json:"scraped_at"`
	DurationMS      int64             `json:"duration_ms"`

	// text is the lowercased visible text.
	text string
}

// Mentions counts case-insensitive occurrences of phrase in the visible text.
func (p Page) Mentions(phrase string) int {
	phrase = strings.ToLower(strings.TrimSpace(phrase))
	if phrase == "" {
		return 0
	}
	return strings.Count(p.text, phrase)
}

var headingLevels = map[atom.Atom]int{
	atom.H1: 1, atom.H2: 2, atom.H3: 3, atom.H4: 4, atom.H5: 5, atom.H6: 6,
}

// parsePage extracts metadata, structure and link counts from an HTML
// document. base resolves relative links.
func parsePage(base *url.URL, r io.Reader) (Page, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return Page{}, fmt.Errorf("parse html: %w", err)
	}
	p := Page{OpenGraph: map[string]string{}}
	var text strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			text.WriteString(n.Data)
			text.WriteByte(' ')
			return
		}
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Script:
				if attr(n, "type") == "application/ld+json" {
					p.SEO.HasStructuredData = true
				}
				return
			case atom.Style, atom.Noscript, atom.Template:
				return
			case atom.Title:
				if p.Title == "" {
					p.Title = textOf(n)
				}
				return
			case atom.Meta:
				p.meta(n)
			case atom.Link:
				if strings.EqualFold(attr(n, "rel"), "canonical") {
					p.Canonical = resolve(base, attr(n, "href"))
				}
			case atom.P:
				p.Paragraphs++
			case atom.Img:
				p.Images++
			case atom.A:
				p.link(base, attr(n, "href"))
			}
			if level, ok := headingLevels[n.DataAtom]; ok {
				h := Heading{Level: level, Text: textOf(n)}
				if h.Text != "" {
					p.Headings = append(p.Headings, h)
				}
				if level == 1 {
					p.SEO.H1Count++
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	visible := text.String()
	p.text = strings.ToLower(strings.Join(strings.Fields(visible), " "))
	p.WordCount = len(strings.Fields(visible))
	if p.WordCount > 0 {
		p.ReadingTime = (p.WordCount + wordsPerMinute - 1) / wordsPerMinute
	}
	p.audit()
	return p, nil
}

func (p *Page) meta(n *html.Node) {
	content := strings.TrimSpace(attr(n, "content"))
	switch name := strings.ToLower(attr(n, "name")); name {
	case "description":
		p.MetaDescription = content
	case "keywords":
		for _, k := range strings.Split(content, ",") {
			if k = strings.TrimSpace(k); k != "" {
				p.MetaKeywords = append(p.MetaKeywords, k)
			}
		}
	}
	if prop := strings.ToLower(attr(n, "property")); strings.HasPrefix(prop, "og:") {
		p.OpenGraph[strings.TrimPrefix(prop, "og:")] = content
	}
}

func (p *Page) link(base *url.URL, href string) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return
	}
	u, err := base.Parse(href)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return
	}
	if strings.EqualFold(u.Hostname(), base.Hostname()) {
		p.InternalLinks++
	} else {
		p.ExternalLinks++
	}
}

// audit scores on-page SEO out of 100.
func (p *Page) audit() {
	s := &p.SEO
	s.TitleLength = utf8.RuneCountInString(p.Title)
	s.TitleFriendly = s.TitleLength >= 30 && s.TitleLength <= 60
	s.MetaLength = utf8.RuneCountInString(p.MetaDescription)
	s.MetaFriendly = s.MetaLength >= 120 && s.MetaLength <= 160
	s.HasCanonical = p.Canonical != ""

	s.Score = 0
	if s.TitleFriendly {
		s.Score += 25
	} else if s.TitleLength > 0 {
		s.Score += 10
	}
	if s.MetaFriendly {
		s.Score += 25
	} else if s.MetaLength > 0 {
		s.Score += 10
	}
	if s.H1Count == 1 {
		s.Score += 20
	}
	if s.HasCanonical {
		s.Score += 10
	}
	if s.HasStructuredData {
		s.Score += 10
	}
	if p.WordCount >= 300 {
		s.Score += 10
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

func textOf(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(b.String()), " ")
}

func resolve(base *url.URL, href string) string {
	u, err := base.Parse(strings.TrimSpace(href))
	if err != nil {
		return href
	}
	return u.String()
}
