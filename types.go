package main

import (
	"pdf-order-extractor/orders"
	"pdf-order-extractor/pdftext"
)

// AuthRequest is the request payload for /api/auth.
type AuthRequest struct {
	Passcode string `json:"passcode"`
}

// AuthResponse is the response payload for /api/auth and /api/logout.
type AuthResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ExtractTextResponse is the response payload for /api/extract-text.
type ExtractTextResponse struct {
	Success    bool               `json:"success"`
	Filename   string             `json:"filename"`
	TotalPages int                `json:"total_pages"`
	TotalWords int                `json:"total_words"`
	Content    []pdftext.PageText `json:"content"`
	Library    string             `json:"library"`
}

func newExtractTextResponse(r *pdftext.Result) ExtractTextResponse {
	content := r.Pages
	if content == nil {
		content = []pdftext.PageText{}
	}
	return ExtractTextResponse{
		Success:    true,
		Filename:   r.Filename,
		TotalPages: r.TotalPages,
		TotalWords: r.TotalWords,
		Content:    content,
		Library:    r.Library,
	}
}

// ExtractDataRequest is the request payload for /api/extract-data.
type ExtractDataRequest struct {
	Text string `json:"text"`
}

// ExtractDataResponse is the response payload for /api/extract-data.
type ExtractDataResponse struct {
	Success     bool                `json:"success"`
	Data        []orders.FlatRecord `json:"data"`
	RawResponse string              `json:"rawResponse"`
}

// ErrorResponse carries a failure message and, for upstream failures, the
// underlying cause.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// UpdateRecordRequest is the request payload for a single field edit.
type UpdateRecordRequest struct {
	Field string  `json:"field" binding:"required"`
	Value *string `json:"value" binding:"required"`
}

// ProcessAllResponse is returned when a batch job is queued.
type ProcessAllResponse struct {
	JobID string `json:"job_id"`
}
