package contentgeneration

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"text/template"
)

var ErrUnknownTemplate = errors.New("unknown template")

type Section struct {
	Name      string `json:"section" validate:"required"`
	WordCount int    `json:"word_count" validate:"min=1"`
	Purpose   string `json:"purpose"`
}

// Template is a content structure; its key doubles as the content type.
type Template struct {
	Key         string    `json:"key" validate:"required"`
	Name        string    `json:"name" validate:"required"`
	Description string    `json:"description"`
	Structure   []Section `json:"structure" validate:"required,min=1,dive"`
}

func (t Template) WordCount() int {
	n := 0
	for _, s := range t.Structure {
		n += s.WordCount
	}
	return n
}

var builtinTemplates = []Template{
	{
		Key:         "blog_post",
		Name:        "Blog Post",
		Description: "Long-form article with SEO structure",
		Structure: []Section{
			{Name: "introduction", WordCount: 150, Purpose: "hook the reader and state the problem"},
			{Name: "main_content", WordCount: 1200, Purpose: "explain the topic in depth"},
			{Name: "examples", WordCount: 300, Purpose: "show the topic applied"},
			{Name: "conclusion", WordCount: 150, Purpose: "summarize and call to action"},
		},
	},
	{
		Key:         "social_media",
		Name:        "Social Media Post",
		Description: "Short post for social platforms",
		Structure: []Section{
			{Name: "hook", WordCount: 20, Purpose: "stop the scroll"},
			{Name: "value", WordCount: 60, Purpose: "deliver one insight"},
			{Name: "call_to_action", WordCount: 20, Purpose: "drive engagement"},
		},
	},
	{
		Key:         "website_copy",
		Name:        "Website Copy",
		Description: "Landing page copy",
		Structure: []Section{
			{Name: "headline", WordCount: 20, Purpose: "state the value proposition"},
			{Name: "benefits", WordCount: 200, Purpose: "list the key benefits"},
			{Name: "features", WordCount: 200, Purpose: "describe what is offered"},
			{Name: "call_to_action", WordCount: 50, Purpose: "convert the visitor"},
		},
	},
	{
		Key:         "product_description",
		Name:        "Product Description",
		Description: "E-commerce product copy",
		Structure: []Section{
			{Name: "overview", WordCount: 80, Purpose: "introduce the product"},
			{Name: "features", WordCount: 120, Purpose: "describe features and specs"},
			{Name: "benefits", WordCount: 100, Purpose: "explain why it matters"},
		},
	},
	{
		Key:         "email_newsletter",
		Name:        "Email Newsletter",
		Description: "Newsletter issue",
		Structure: []Section{
			{Name: "greeting", WordCount: 40, Purpose: "open personally"},
			{Name: "main_story", WordCount: 300, Purpose: "tell the lead story"},
			{Name: "highlights", WordCount: 150, Purpose: "round up other news"},
			{Name: "sign_off", WordCount: 30, Purpose: "close and invite replies"},
		},
	},
}

// Phase prompt names.
const (
	PromptResearch = "research"
	PromptOutline  = "outline"
	PromptSection  = "section"
	PromptSEO      = "seo"
	PromptReview   = "review"
)

// Every prompt carries "Topic:" and "Words:" lines; the mock generator
// reads them.
const promptText = `
{{define "research"}}Research the topic for a {{.TemplateName}} aimed at {{.Audience}}.
{{- if .Related}}
Related keywords: {{join .Related ", "}}{{end}}
Topic: {{.Keyword}}
Words: 60{{end}}

{{define "outline"}}Outline a {{.TemplateName}} with these sections: {{join .Sections ", "}}.
Topic: {{.Keyword}}
Words: 40{{end}}

{{define "section"}}Write the {{.Section.Name}} section of a {{.TemplateName}} to {{.Section.Purpose}}.
Tone: {{.Tone}}. Audience: {{.Audience}}.
{{- with .Instructions}}
Instructions: {{.}}{{end}}
{{- with .Company}}
Company: {{.}}{{end}}
Topic: {{.Keyword}}
Words: {{.Words}}{{end}}

{{define "seo"}}Write an SEO title and meta description for a {{.TemplateName}}.
Topic: {{.Keyword}}
Words: 30{{end}}

{{define "review"}}Review the draft for clarity and a {{.Tone}} tone.
Topic: {{.Keyword}}
Words: 30{{end}}
`

// PromptData feeds the prompt templates.
type PromptData struct {
	Keyword      string
	Related      []string
	TemplateName string
	Sections     []string
	Section      Section
	Words        int
	Tone         string
	Audience     string
	Instructions string
	Company      string
}

// TemplateService holds content templates and renders phase prompts.
type TemplateService struct {
	prompts *template.Template

	mu        sync.RWMutex
	templates map[string]Template
}

func NewTemplateService() *TemplateService {
	s := &TemplateService{
		prompts: template.Must(template.New("prompts").
			Funcs(template.FuncMap{"join": strings.Join}).
			Parse(promptText)),
		templates: make(map[string]Template, len(builtinTemplates)),
	}
	for _, t := range builtinTemplates {
		s.templates[t.Key] = t
	}
	return s
}

// List returns templates sorted by key.
func (s *TemplateService) List() []Template {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Template, 0, len(s.templates))
	for _, t := range s.templates {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func (s *TemplateService) Get(key string) (Template, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.templates[key]
	return t, ok
}

// Add registers or replaces a template. The caller validates it.
func (s *TemplateService) Add(t Template) {
	s.mu.Lock()
	s.templates[t.Key] = t
	s.mu.Unlock()
}

func (s *TemplateService) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.templates)
}

// Prompt renders the named phase prompt.
func (s *TemplateService) Prompt(name string, data PromptData) (string, error) {
	var b strings.Builder
	if err := s.prompts.ExecuteTemplate(&b, name, data); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", name, err)
	}
	return b.String(), nil
}
