// Package translate is the translation provider collaborator: given
// source text and a language pair it produces a draft translation. The
// draft is always subject to caller review and approval before it enters
// a document set.
package translate

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// Client wraps the Anthropic API for legal document translation.
type Client struct {
	api   *anthropic.Client
	model anthropic.Model
}

// NewClient creates a translation client with the given API key and model.
func NewClient(apiKey, model string) *Client {
	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	client := anthropic.NewClient(opts...)
	return &Client{
		api:   &client,
		model: anthropic.Model(model),
	}
}

func buildPrompt(text, sourceLang, targetLang string) (system string, user string) {
	system = fmt.Sprintf(`You translate court filing documents from %s to %s. Return ONLY the translated text, preserving paragraph structure, annexure labels (e.g. "Annexure P-4"), statute citations, and party names exactly as written.

Rules:
- Keep formal court register throughout
- Never summarize, annotate, or omit content
- Leave labels, case numbers, dates, and amounts untranslated
- Return plain text only, no markdown fencing or commentary`, languageName(sourceLang), languageName(targetLang))

	var sb strings.Builder
	sb.WriteString("Translate this document text:\n\n")
	sb.WriteString(text)
	user = sb.String()
	return
}

// Translate sends the text to the LLM and returns the draft translation.
// May take seconds; respects ctx cancellation.
func (c *Client) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	systemPrompt, userPrompt := buildPrompt(text, sourceLang, targetLang)

	msg, err := c.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: 8192,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic API call: %w", err)
	}

	var out string
	for _, block := range msg.Content {
		if block.Type == "text" {
			out = block.Text
			break
		}
	}
	if out == "" {
		return "", fmt.Errorf("no text content in API response")
	}

	// Strip markdown fencing if the model ignored the instruction
	out = strings.TrimSpace(out)
	if strings.HasPrefix(out, "```") {
		lines := strings.SplitN(out, "\n", 2)
		if len(lines) > 1 {
			out = lines[1]
		}
		if idx := strings.LastIndex(out, "```"); idx >= 0 {
			out = out[:idx]
		}
		out = strings.TrimSpace(out)
	}

	return out, nil
}

func languageName(code string) string {
	switch strings.ToLower(code) {
	case "en":
		return "English"
	case "hi":
		return "Hindi"
	case "mr":
		return "Marathi"
	case "ta":
		return "Tamil"
	case "":
		return "the source language"
	default:
		return code
	}
}
