package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"pdf-order-extractor/export"
	"pdf-order-extractor/internal/constants"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

const (
	msgNoFile       = "No file provided"
	msgNotPDF       = "Only PDF files are allowed"
	msgFileTooLarge = "File size too large. Maximum size is 16MB."
	msgPDFParse     = "Failed to parse PDF. Please ensure the file is a valid PDF."
)

// validateUpload checks the declared content type and the size of an upload.
// It returns the client-facing message, or "" when the upload is acceptable.
func validateUpload(fh *multipart.FileHeader) string {
	mediaType, _, err := mime.ParseMediaType(fh.Header.Get("Content-Type"))
	if err != nil || mediaType != constants.PDFContentType {
		return msgNotPDF
	}
	if fh.Size > constants.MaxUploadSize {
		return msgFileTooLarge
	}
	return ""
}

func readUpload(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, constants.MaxUploadSize+1))
}

// extractTextHandler handles the POST /api/extract-text endpoint
func (app *App) extractTextHandler(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: msgNoFile})
		return
	}
	if msg := validateUpload(fh); msg != "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
		return
	}

	data, err := readUpload(fh)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: fmt.Sprintf("Failed to read upload: %v", err)})
		log.Errorf("Failed to read upload %s: %v", fh.Filename, err)
		return
	}

	result, err := app.Extractor.Extract(c.Request.Context(), fh.Filename, data)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: msgPDFParse, Details: err.Error()})
		log.Errorf("Error extracting text from %s: %v", fh.Filename, err)
		return
	}

	c.JSON(http.StatusOK, newExtractTextResponse(result))
}

// extractDataHandler handles the POST /api/extract-data endpoint
func (app *App) extractDataHandler(c *gin.Context) {
	var req ExtractDataRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Text) == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "No text provided"})
		return
	}

	// In-flight model calls are not cancelled when the client goes away.
	ctx := context.WithoutCancel(c.Request.Context())
	records, raw, err := app.extractRecords(ctx, req.Text)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to extract data", Details: err.Error()})
		log.Errorf("Error extracting data: %v", err)
		return
	}

	c.JSON(http.StatusOK, ExtractDataResponse{Success: true, Data: records, RawResponse: raw})
}

// uploadDocumentsHandler handles the POST /api/documents endpoint. Either
// every file is accepted or none is.
func (app *App) uploadDocumentsHandler(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil || len(form.File["files"]) == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: msgNoFile})
		return
	}
	files := form.File["files"]

	contents := make([][]byte, len(files))
	for i, fh := range files {
		if msg := validateUpload(fh); msg != "" {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: fmt.Sprintf("%s: %s", fh.Filename, msg)})
			return
		}
		data, err := readUpload(fh)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: fmt.Sprintf("%s: failed to read upload: %v", fh.Filename, err)})
			return
		}
		contents[i] = data
	}

	owner := app.Access.owner(c)
	created := make([]ProcessedDocument, 0, len(files))
	for i, fh := range files {
		created = append(created, app.Documents.Add(owner, fh.Filename, contents[i]))
	}
	c.JSON(http.StatusCreated, created)
}

// documentsHandler handles the GET /api/documents endpoint
func (app *App) documentsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, app.Documents.List(app.Access.owner(c)))
}

// getDocumentHandler handles the GET /api/documents/:id endpoint
func (app *App) getDocumentHandler(c *gin.Context) {
	doc, err := app.Documents.Get(app.Access.owner(c), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Document not found"})
		return
	}
	c.JSON(http.StatusOK, doc)
}

// deleteDocumentHandler handles the DELETE /api/documents/:id endpoint
func (app *App) deleteDocumentHandler(c *gin.Context) {
	if err := app.Documents.Remove(app.Access.owner(c), c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Document not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

// processDocumentHandler handles the POST /api/documents/:id/process endpoint
func (app *App) processDocumentHandler(c *gin.Context) {
	id := c.Param("id")
	doc, err := app.processDocument(c.Request.Context(), app.Access.owner(c), id)
	switch {
	case errors.Is(err, ErrDocumentNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Document not found"})
	case errors.Is(err, ErrAlreadyProcessing):
		c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error()})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":    "Failed to process document",
			"details":  err.Error(),
			"document": doc,
		})
		log.Errorf("Error processing document %s: %v", id, err)
	default:
		c.JSON(http.StatusOK, doc)
	}
}

// processAllHandler handles the POST /api/documents/process-all endpoint
func (app *App) processAllHandler(c *gin.Context) {
	job, err := app.enqueueProcessAll(app.Access.owner(c))
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: err.Error()})
		log.Errorf("Failed to queue batch job: %v", err)
		return
	}
	c.JSON(http.StatusAccepted, ProcessAllResponse{JobID: job.ID})
}

func (app *App) getJobStatusHandler(c *gin.Context) {
	job, exists := app.Jobs.getJob(app.Access.owner(c), c.Param("job_id"))
	if !exists {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Job not found"})
		return
	}
	c.JSON(http.StatusOK, job)
}

func (app *App) getAllJobsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, app.Jobs.GetAllJobs(app.Access.owner(c)))
}

// updateRecordHandler handles the PATCH /api/documents/:id/records/:index endpoint
func (app *App) updateRecordHandler(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid record index"})
		return
	}

	var req UpdateRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: fmt.Sprintf("Invalid request payload: %v", err)})
		return
	}

	owner := app.Access.owner(c)
	id := c.Param("id")
	previous, err := app.Documents.UpdateField(owner, id, index, req.Field, *req.Value)
	switch {
	case errors.Is(err, ErrUnknownField):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: fmt.Sprintf("Unknown field: %s", req.Field)})
		return
	case errors.Is(err, ErrDocumentNotFound), errors.Is(err, ErrRecordOutOfRange):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	modification := &ModificationHistory{
		Owner:         owner,
		DocumentID:    id,
		RecordIndex:   index,
		ModField:      req.Field,
		PreviousValue: previous,
		NewValue:      *req.Value,
	}
	if err := InsertModification(app.Database, modification); err != nil {
		// The edit itself is applied; only its history entry is missing.
		log.Errorf("Failed to record modification: %v", err)
	}

	doc, _ := app.Documents.Get(owner, id)
	c.JSON(http.StatusOK, doc)
}

// exportHandler handles the GET /api/export endpoint
func (app *App) exportHandler(c *gin.Context) {
	records := app.Documents.Records(app.Access.owner(c))

	var buf bytes.Buffer
	if err := export.WriteXLSX(&buf, records); err != nil {
		if errors.Is(err, export.ErrNoRecords) {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "No data to export"})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to build export", Details: err.Error()})
		log.Errorf("Failed to build export: %v", err)
		return
	}

	filename := export.Filename(time.Now())
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

// Section for local-db actions

func (app *App) getModificationHistoryHandler(c *gin.Context) {
	modifications, err := GetModifications(app.Database, app.Access.owner(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to retrieve modification history"})
		log.Errorf("Failed to retrieve modification history: %v", err)
		return
	}
	c.JSON(http.StatusOK, modifications)
}

func (app *App) undoModificationHandler(c *gin.Context) {
	id := c.Param("id")
	modID, err := strconv.ParseUint(id, 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid modification ID"})
		log.Errorf("Invalid modification ID: %v", err)
		return
	}

	owner := app.Access.owner(c)
	modification, err := GetModification(app.Database, owner, uint(modID))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Modification not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to retrieve modification"})
		log.Errorf("Failed to retrieve modification: %v", err)
		return
	}

	if modification.Undone {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Modification has already been undone"})
		return
	}

	err = app.Documents.RevertField(owner, modification.DocumentID, modification.RecordIndex,
		modification.ModField, modification.NewValue, modification.PreviousValue)
	if errors.Is(err, ErrFieldChanged) {
		c.JSON(http.StatusConflict, ErrorResponse{Error: "Record changed since this modification", Details: err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusConflict, ErrorResponse{Error: "Record no longer exists", Details: err.Error()})
		log.Errorf("Failed to undo modification %d: %v", modification.ID, err)
		return
	}

	if err := SetModificationUndone(app.Database, modification); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to mark modification as undone"})
		return
	}

	c.Status(http.StatusOK)
}
