package main

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/tmc/langchaingo/llms"
)

// getAvailableTokensForContent renders the template without the document text
// and returns how many tokens are left for it. -1 means no limit.
func getAvailableTokensForContent(tmpl *template.Template, data map[string]interface{}) (int, error) {
	if tokenLimit <= 0 {
		return -1, nil
	}

	templateData := make(map[string]interface{}, len(data)+1)
	for k, v := range data {
		templateData[k] = v
	}
	templateData["Content"] = ""

	var promptBuffer bytes.Buffer
	if err := tmpl.Execute(&promptBuffer, templateData); err != nil {
		return 0, fmt.Errorf("error executing template: %w", err)
	}

	promptTokens := getTokenCount(promptBuffer.String())
	log.Debugf("Prompt template uses %d tokens", promptTokens)

	// Safety margin for the prompt.
	promptTokens += 10

	availableTokens := tokenLimit - promptTokens
	if availableTokens < 0 {
		return 0, fmt.Errorf("prompt template exceeds token limit")
	}
	return availableTokens, nil
}

func getTokenCount(content string) int {
	return llms.CountTokens(llmModel, content)
}

// truncateContentByTokens returns the longest rune prefix of content whose
// token count fits availableTokens. A negative budget disables truncation.
func truncateContentByTokens(content string, availableTokens int) (string, error) {
	if availableTokens < 0 || tokenLimit <= 0 {
		return content, nil
	}
	if getTokenCount(content) <= availableTokens {
		return content, nil
	}

	runes := []rune(content)
	low, high := 0, len(runes)
	validCut := 0
	for low <= high {
		mid := (low + high) / 2
		if getTokenCount(string(runes[:mid])) <= availableTokens {
			validCut = mid
			low = mid + 1
		} else {
			high = mid - 1
		}
	}

	truncated := string(runes[:validCut])
	if getTokenCount(truncated) > availableTokens {
		return "", fmt.Errorf("truncated content still exceeds the available token limit")
	}
	log.WithField("runes_dropped", len(runes)-validCut).Warn("Document text truncated to fit the token limit")
	return truncated, nil
}
