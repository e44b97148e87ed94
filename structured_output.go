package main

import (
	"context"

	"github.com/tmc/langchaingo/llms"
)

// callLLMWithStructuredOutput makes a text-only LLM call. JSON mode is only
// requested when the provider supports it.
func (app *App) callLLMWithStructuredOutput(ctx context.Context, prompt string, useStructured bool) (*llms.ContentResponse, error) {
	messages := []llms.MessageContent{
		{
			Parts: []llms.ContentPart{
				llms.TextContent{
					Text: prompt,
				},
			},
			Role: llms.ChatMessageTypeHuman,
		},
	}

	options := []llms.CallOption{llms.WithMaxTokens(app.Config.LLMMaxTokens)}
	if useStructured {
		options = append(options, llms.WithJSONMode())
	}

	return generateWithOptions(ctx, app.LLM, messages, options...)
}
