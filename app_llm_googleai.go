package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"google.golang.org/genai"
)

// GoogleAIProvider adapts the Gemini API (google.golang.org/genai) to llms.Model.
type GoogleAIProvider struct {
	client *genai.Client
	model  string
}

// NewGoogleAIProvider creates a new GoogleAIProvider instance
func NewGoogleAIProvider(ctx context.Context, model string, apiKey string) (*GoogleAIProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GOOGLEAI_API_KEY environment variable is not set")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create googleai client: %w", err)
	}

	return &GoogleAIProvider{client: client, model: model}, nil
}

// generationConfig maps langchaingo call options onto a Gemini request config.
func generationConfig(opts llms.CallOptions) *genai.GenerateContentConfig {
	var cfg *genai.GenerateContentConfig
	if opts.MaxTokens > 0 {
		cfg = &genai.GenerateContentConfig{MaxOutputTokens: int32(opts.MaxTokens)}
	}
	if opts.JSONMode {
		if cfg == nil {
			cfg = &genai.GenerateContentConfig{}
		}
		cfg.ResponseMIMEType = "application/json"
	}
	return cfg
}

// promptText joins the text parts of all messages.
func promptText(messages []llms.MessageContent) (string, error) {
	var parts []string
	for _, m := range messages {
		for _, p := range m.Parts {
			text, ok := p.(llms.TextContent)
			if !ok {
				return "", fmt.Errorf("unsupported message part %T", p)
			}
			parts = append(parts, text.Text)
		}
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("no prompt provided")
	}
	return strings.Join(parts, "\n"), nil
}

// GenerateContent implements the llms.Model interface for GoogleAIProvider.
func (p *GoogleAIProvider) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	if p.client == nil {
		return nil, fmt.Errorf("googleai client not initialized")
	}
	prompt, err := promptText(messages)
	if err != nil {
		return nil, err
	}

	var opts llms.CallOptions
	for _, o := range options {
		o(&opts)
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.model, genai.Text(prompt), generationConfig(opts))
	if err != nil {
		return nil, fmt.Errorf("googleai GenerateContent API error: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("googleai GenerateContent API returned empty response")
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return nil, fmt.Errorf("googleai GenerateContent API returned a candidate with no content parts")
	}

	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		if part != nil {
			text.WriteString(part.Text)
		}
	}

	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{
			{
				Content:    text.String(),
				StopReason: string(candidate.FinishReason),
			},
		},
	}, nil
}

// Call implements the llms.Model interface for compatibility with langchaingo.
func (p *GoogleAIProvider) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, p, prompt, options...)
}
