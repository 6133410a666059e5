// Package chat answers conversational questions grounded in retrieved
// chunks: it searches for context, frames it into a system prompt, and
// streams the model's response token by token.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"

	"docmirror/internal/retrieval"
)

// ErrorMarker is emitted on the stream when generation fails, so consumers
// see a terminal marker instead of a silently truncated answer.
const ErrorMarker = "\n[Error: Could not get response from the model]"

// Roles accepted in incoming messages.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is one turn of the incoming conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Retriever fetches grounding context for a query. *retrieval.Engine
// satisfies it via SearchWithNavigation.
type Retriever interface {
	SearchWithNavigation(ctx context.Context, query string, limit int, threshold float32) ([]retrieval.Result, error)
}

// Config controls context framing.
type Config struct {
	BaseSiteURL string

	// SnippetLimit truncates each context block's content, in characters.
	// Zero means the default.
	SnippetLimit int

	SiteName      string
	AssistantName string
}

const defaultSnippetLimit = 500

// Orchestrator runs retrieval-grounded streaming chat.
type Orchestrator struct {
	retriever Retriever
	model     llms.Model
	cfg       Config
	logger    *slog.Logger
}

// New creates an Orchestrator.
func New(retriever Retriever, model llms.Model, cfg Config, logger *slog.Logger) *Orchestrator {
	if cfg.SnippetLimit <= 0 {
		cfg.SnippetLimit = defaultSnippetLimit
	}
	if cfg.AssistantName == "" {
		cfg.AssistantName = "the site assistant"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		retriever: retriever,
		model:     model,
		cfg:       cfg,
		logger:    logger,
	}
}

// Stream retrieves context for the latest user message and streams the
// model's grounded answer. The returned channel is closed when generation
// finishes; on failure the error marker is the final element. Retrieval
// failure degrades to an uncontexted answer rather than failing the chat.
func (o *Orchestrator) Stream(ctx context.Context, messages []Message, limit int, threshold float32) (<-chan string, error) {
	query := latestUserMessage(messages)
	if query == "" {
		return nil, fmt.Errorf("no user message to answer")
	}

	contextText := "No relevant context available."
	results, err := o.retriever.SearchWithNavigation(ctx, query, limit, threshold)
	if err != nil {
		o.logger.Warn("context retrieval failed, answering without context", "error", err)
	} else if len(results) > 0 {
		contextText = o.formatContext(results)
	}

	content := make([]llms.MessageContent, 0, len(messages)+1)
	content = append(content, llms.TextParts(llms.ChatMessageTypeSystem, o.systemPrompt(contextText)))
	for _, m := range messages {
		content = append(content, llms.TextParts(roleType(m.Role), m.Content))
	}

	out := make(chan string)
	go func() {
		defer close(out)

		_, err := o.model.GenerateContent(ctx, content,
			llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
				select {
				case out <- string(chunk):
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			}),
		)
		if err != nil {
			o.logger.Error("chat generation failed", "error", err)
			select {
			case out <- ErrorMarker:
			case <-ctx.Done():
			}
		}
	}()

	return out, nil
}

func latestUserMessage(messages []Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleUser {
			return strings.TrimSpace(messages[i].Content)
		}
	}
	return ""
}

func roleType(role string) llms.ChatMessageType {
	switch role {
	case RoleAssistant:
		return llms.ChatMessageTypeAI
	case RoleSystem:
		return llms.ChatMessageTypeSystem
	default:
		return llms.ChatMessageTypeHuman
	}
}

// formatContext renders retrieval results as delimited blocks the model can
// cite from, including a resolvable URL where one exists.
func (o *Orchestrator) formatContext(results []retrieval.Result) string {
	var b strings.Builder
	for _, r := range results {
		fmt.Fprintf(&b, "Title: %s\n", r.Title)
		if summary, ok := r.Metadata["summary"].(string); ok && summary != "" {
			fmt.Fprintf(&b, "Summary: %s\n", summary)
		}
		if tags := tagList(r.Metadata["tags"]); len(tags) > 0 {
			fmt.Fprintf(&b, "Tags: %s\n", strings.Join(tags, ", "))
		}
		source, _ := r.Metadata["source"].(string)
		if source != "" {
			fmt.Fprintf(&b, "Source: %s\n", source)
		}
		if created, ok := r.Metadata["created_at"].(string); ok && created != "" {
			fmt.Fprintf(&b, "Created: %s\n", created)
		}
		if updated, ok := r.Metadata["updated_at"].(string); ok && updated != "" {
			fmt.Fprintf(&b, "Updated: %s\n", updated)
		}
		fmt.Fprintf(&b, "URL: %s\n", o.resultURL(source, r.Slug))
		fmt.Fprintf(&b, "Content: %s\n", truncate(r.Content, o.cfg.SnippetLimit))
		b.WriteString("-----\n")
	}
	return b.String()
}

// resultURL maps a result back to its public page. Blog posts live under
// the site root by slug; portfolio and navigation slugs are already site
// paths.
func (o *Orchestrator) resultURL(source, slug string) string {
	if o.cfg.BaseSiteURL == "" || slug == "" {
		return "N/A"
	}
	base := strings.TrimSuffix(o.cfg.BaseSiteURL, "/")
	switch source {
	case "blog":
		return base + "/" + slug
	case "portfolio", "navigation":
		if strings.HasPrefix(slug, "/") {
			return base + slug
		}
		return base + "/" + slug
	default:
		return "N/A"
	}
}

func (o *Orchestrator) systemPrompt(contextText string) string {
	site := o.cfg.SiteName
	if site == "" {
		site = "this site"
	}
	return fmt.Sprintf(`You are %s, answering visitor questions about %s.
The current year is %d.

Answer using ONLY the context below. If the context does not contain the
answer, say you do not know rather than guessing. When a context block has a
URL other than N/A, include it when referring to that content.

Context:
%s`, o.cfg.AssistantName, site, time.Now().Year(), contextText)
}

func tagList(v any) []string {
	switch tags := v.(type) {
	case []string:
		return tags
	case []any:
		out := make([]string, 0, len(tags))
		for _, t := range tags {
			if s, ok := t.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
