package claude

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/selfagency/beans-vscode-sub002/internal/bean"
)

// BeanSummary is the minimal bean info sent to Claude.
type BeanSummary struct {
	ID     string      `json:"id"`
	Title  string      `json:"title"`
	Type   bean.Type   `json:"type"`
	Status bean.Status `json:"status"`
	Body   string      `json:"body,omitempty"`
	Tags   []string    `json:"tags,omitempty"`
}

// Suggestion is Claude's answer. An empty Parent means the bean should stay
// at the top level.
type Suggestion struct {
	Parent string `json:"parent"`
	Reason string `json:"reason"`
}

// Messenger sends one prompt and returns the text reply.
type Messenger interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// Client wraps the Anthropic SDK for Claude API calls.
type Client struct {
	inner anthropic.Client
	model anthropic.Model
}

// NewClient creates a Claude client. apiKey defaults to ANTHROPIC_API_KEY env.
// model defaults to Claude Sonnet.
func NewClient(apiKey, model string) (*Client, error) {
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY not set")
	}

	inner := anthropic.NewClient(
		option.WithAPIKey(apiKey),
	)

	m := anthropic.ModelClaudeSonnet4_6
	if model != "" {
		m = anthropic.Model(model)
	}

	return &Client{inner: inner, model: m}, nil
}

// Complete implements Messenger.
func (c *Client) Complete(ctx context.Context, system, prompt string) (string, error) {
	resp, err := c.inner.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: int64(1024),
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("claude API call: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return text.String(), nil
}

const suggestParentPrompt = `You are an expert software project manager organising an issue tracker.
Issues form a parent/child hierarchy: milestones contain epics, epics contain features,
and features contain tasks and bugs. You will be given one issue and a list of candidate
parents that the type rules already allow.

Rules:
- Pick the single candidate whose scope best contains the issue.
- Only use an id from the candidate list.
- If no candidate is a good fit, answer with an empty parent.

Return your answer as JSON with this exact structure:
{"parent": "<candidate id or empty string>", "reason": "<one sentence explanation>"}

Return ONLY the JSON object. No markdown fences, no commentary outside the JSON.`

// Candidates returns the beans that b may be moved under by type, skipping b
// itself, its descendants and closed work.
func Candidates(b bean.Bean, all []bean.Bean) []bean.Bean {
	parents := make(map[string]string, len(all))
	for _, x := range all {
		parents[x.ID] = x.Parent
	}

	var out []bean.Bean
	for _, x := range all {
		if x.ID == b.ID || !bean.CanParent(b.Type, x.Type) {
			continue
		}
		if x.Status == bean.StatusCompleted || x.Status == bean.StatusScrapped {
			continue
		}
		if descends(parents, x.ID, b.ID) {
			continue
		}
		out = append(out, x)
	}
	return out
}

// descends reports whether id sits below ancestor. Walks at most len(parents)
// hops so malformed cycles terminate.
func descends(parents map[string]string, id, ancestor string) bool {
	cur := parents[id]
	for range len(parents) {
		if cur == "" {
			return false
		}
		if cur == ancestor {
			return true
		}
		cur = parents[cur]
	}
	return false
}

// maxBodyBytes bounds how much of a bean body goes into the prompt.
const maxBodyBytes = 1000

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func summarise(b bean.Bean) BeanSummary {
	body := truncate(b.Body, maxBodyBytes)
	return BeanSummary{ID: b.ID, Title: b.Title, Type: b.Type, Status: b.Status, Body: body, Tags: b.Tags}
}

// buildPrompt constructs the user message for a parent suggestion.
func buildPrompt(b bean.Bean, candidates []bean.Bean) (string, error) {
	issue, err := json.MarshalIndent(summarise(b), "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal bean: %w", err)
	}
	list := make([]BeanSummary, len(candidates))
	for i, c := range candidates {
		list[i] = summarise(c)
		list[i].Body = ""
	}
	cands, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal candidates: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("## Issue\n\n")
	sb.Write(issue)
	sb.WriteString("\n\n## Candidate parents\n\n")
	sb.Write(cands)
	sb.WriteString("\n")
	return sb.String(), nil
}

// parseSuggestion decodes the reply and checks the parent is a candidate.
func parseSuggestion(text string, candidates []bean.Bean) (*Suggestion, error) {
	text = stripJSONFences(text)

	var s Suggestion
	if err := json.Unmarshal([]byte(text), &s); err != nil {
		return nil, fmt.Errorf("parse claude response: %w\nraw: %s", err, text)
	}
	s.Parent = strings.TrimSpace(s.Parent)
	if s.Parent == "" {
		return &s, nil
	}
	for _, c := range candidates {
		if c.ID == s.Parent {
			return &s, nil
		}
	}
	return nil, fmt.Errorf("claude suggested %q, which is not a candidate parent", s.Parent)
}

// SuggestParent asks m for the best parent of b among all.
func SuggestParent(ctx context.Context, m Messenger, b bean.Bean, all []bean.Bean) (*Suggestion, error) {
	candidates := Candidates(b, all)
	if len(candidates) == 0 {
		return &Suggestion{Reason: fmt.Sprintf("no open bean can contain a %s", b.Type)}, nil
	}

	prompt, err := buildPrompt(b, candidates)
	if err != nil {
		return nil, err
	}
	text, err := m.Complete(ctx, suggestParentPrompt, prompt)
	if err != nil {
		return nil, err
	}
	return parseSuggestion(text, candidates)
}

// stripJSONFences removes markdown code fences that Claude sometimes adds.
func stripJSONFences(s string) string {
	s = strings.TrimSpace(s)
	// Remove ```json ... ``` or ``` ... ```
	if strings.HasPrefix(s, "```") {
		// Strip opening fence line
		if idx := strings.Index(s, "\n"); idx >= 0 {
			s = s[idx+1:]
		}
		// Strip closing fence
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}
	return s
}
