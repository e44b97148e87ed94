package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/sirupsen/logrus"
	"github.com/tmc/langchaingo/llms"

	"pdf-order-extractor/orders"
)

var (
	// ErrEmptyText is returned before any model call when there is no text to send.
	ErrEmptyText = errors.New("no text provided")
	// ErrUpstream wraps failures of the model call itself.
	ErrUpstream = errors.New("model request failed")
	// ErrUnexpectedResponse is returned when the model answer carries no text.
	ErrUnexpectedResponse = errors.New("unexpected response type from model")
)

const extractionPromptFile = "extraction_prompt.tmpl"

var defaultExtractionTemplate = `Please extract data from the following PDF text and return it in JSON format. The data should include these fields:
- orderId (Order ID)
- remarks (Remarks)
- customerCode (Customer Code)
- customerName (Customer Name - the company receiving the delivery)
- deliveryDate (Delivery Date - format as {{.DateFormat}}, e.g., "13/02/25")
- name (Customer Company Name - same as customerName, the company receiving the delivery, NOT the supplier)
- deliveryAddress1 (Delivery Address #1)
- deliveryAddress2 (Delivery Address #2)
- postalCode (Postal Code)
- productCode (Product Code)
- productName (Product Name)
- quantity (Quantity - extract only the numeric value)
- uom (Unit of Measure - MUST be one of: {{.UOMCodes | join ", "}})
- unitPrice (Unit Price - extract only the numeric value)

IMPORTANT INSTRUCTIONS:
1. For deliveryDate: Convert any date format to {{.DateFormat}} (e.g., "13-Feb-2025" becomes "13/02/25", "February 13, 2025" becomes "13/02/25")
2. For name field: Extract the CUSTOMER'S company name (the one receiving the delivery), NEVER use the supplier's name
3. For UOM (Unit of Measure): Look for terms like "ORDER CTN", "PKT", "PCS", etc. and map them to the standardized values: {{.UOMCodes | join ", "}}
4. For Quantity: Extract only the numeric value (e.g., if you see "20 CTN", extract "20" for quantity and "CTN" for uom)
5. For Unit Price: Extract only the numeric value including decimals
6. If multiple products exist for one order, create separate entries for each product with the same order details, or nest them in a "products" array
7. If a field is not found, use an empty string
8. Be smart about variations: "CARTON" = "CTN", "PACKET" = "PKT", "PIECES" = "PCS", "KILOGRAM" = "KG", "GRAM" = "GM", "LITER" = "LTR", "MILLILITER" = "ML", "BOTTLE" = "BTL"

PDF Text:
{{.Content}}

Please return ONLY valid JSON without any markdown formatting or explanations. Structure it as an array of objects with products nested if needed, or flatten it into separate rows for each product.
`

func parsePromptTemplate(name, content string) (*template.Template, error) {
	return template.New(name).Funcs(sprig.FuncMap()).Parse(content)
}

// loadTemplates loads the extraction prompt from dir, writing the built-in
// default there first when it is missing.
func loadTemplates(dir string) error {
	templateMutex.Lock()
	defer templateMutex.Unlock()

	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return fmt.Errorf("failed to create prompts directory: %w", err)
	}

	path := filepath.Join(dir, extractionPromptFile)
	content, err := os.ReadFile(path)
	if err != nil {
		log.Warnf("Could not read %s, using default template: %v", path, err)
		content = []byte(defaultExtractionTemplate)
		if err := os.WriteFile(path, content, 0644); err != nil {
			return fmt.Errorf("failed to write default extraction template to disk: %w", err)
		}
	}

	tmpl, err := parsePromptTemplate("extraction", string(content))
	if err != nil {
		return fmt.Errorf("failed to parse extraction template: %w", err)
	}
	extractionTemplate = tmpl
	return nil
}

func extractionPromptData(content string) map[string]interface{} {
	return map[string]interface{}{
		"Content":    content,
		"UOMCodes":   orders.UOMCodes,
		"Fields":     orders.FieldNames,
		"DateFormat": "DD/MM/YY",
	}
}

// buildExtractionPrompt renders the extraction prompt around text, truncating
// text to the token budget when one is configured.
func buildExtractionPrompt(text string) (string, error) {
	templateMutex.RLock()
	defer templateMutex.RUnlock()

	if extractionTemplate == nil {
		return "", fmt.Errorf("extraction template not loaded")
	}

	data := extractionPromptData("")
	availableTokens, err := getAvailableTokensForContent(extractionTemplate, data)
	if err != nil {
		return "", fmt.Errorf("error calculating available tokens: %w", err)
	}
	truncated, err := truncateContentByTokens(text, availableTokens)
	if err != nil {
		return "", fmt.Errorf("error truncating content: %w", err)
	}
	data["Content"] = truncated

	var promptBuffer bytes.Buffer
	if err := extractionTemplate.Execute(&promptBuffer, data); err != nil {
		return "", fmt.Errorf("error executing extraction template: %w", err)
	}
	return promptBuffer.String(), nil
}

// extractOrderFields sends the document text to the model in a single request
// and returns the model's raw answer.
func (app *App) extractOrderFields(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyText
	}

	prompt, err := buildExtractionPrompt(text)
	if err != nil {
		return "", err
	}

	logger := log.WithFields(logrus.Fields{
		"provider":    app.Config.LLMProvider,
		"model":       app.Config.LLMModel,
		"text_length": len(text),
	})
	logger.Debugf("Extraction prompt: %s", prompt)

	completion, err := app.callLLMWithStructuredOutput(ctx, prompt, app.Config.structuredOutputEnabled())
	if err != nil {
		logger.WithError(err).Error("Model request failed")
		return "", fmt.Errorf("%w: %w", ErrUpstream, err)
	}

	if completion == nil || len(completion.Choices) == 0 || completion.Choices[0] == nil {
		return "", ErrUnexpectedResponse
	}
	content := completion.Choices[0].Content
	if strings.TrimSpace(content) == "" {
		return "", ErrUnexpectedResponse
	}

	logger.WithField("response_length", len(content)).Info("Model returned extraction")
	return content, nil
}

// extractRecords runs the model on text and normalizes its answer.
func (app *App) extractRecords(ctx context.Context, text string) ([]orders.FlatRecord, string, error) {
	raw, err := app.extractOrderFields(ctx, text)
	if err != nil {
		return nil, "", err
	}
	records, err := orders.Normalize(raw)
	if err != nil {
		return nil, raw, err
	}
	return records, raw, nil
}

// generateWithOptions is the single place model calls go through.
func generateWithOptions(ctx context.Context, model llms.Model, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	if model == nil {
		return nil, fmt.Errorf("LLM is not configured")
	}
	return model.GenerateContent(ctx, messages, options...)
}
