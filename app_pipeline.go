package main

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"pdf-order-extractor/orders"
	"pdf-order-extractor/pdftext"
)

// TextExtractor turns uploaded PDF bytes into page text.
type TextExtractor interface {
	Extract(ctx context.Context, filename string, data []byte) (*pdftext.Result, error)
}

// processDocument runs extraction, the model call and normalization for one
// stored document. Concurrent callers for the same document share one run.
func (app *App) processDocument(ctx context.Context, owner, id string) (ProcessedDocument, error) {
	key := owner + "/" + id
	v, err, shared := app.inflight.Do(key, func() (interface{}, error) {
		// The run outlives the caller that started it.
		return app.runPipeline(context.WithoutCancel(ctx), owner, id)
	})
	if shared {
		log.WithField("document_id", id).Debug("Joined in-flight processing run")
	}
	doc, _ := v.(ProcessedDocument)
	return doc, err
}

func (app *App) runPipeline(ctx context.Context, owner, id string) (ProcessedDocument, error) {
	filename, data, err := app.Documents.begin(owner, id)
	if err != nil {
		return ProcessedDocument{}, err
	}
	logger := log.WithFields(logrus.Fields{"document_id": id, "filename": filename})
	logger.Info("Processing document")

	result, records, raw, err := app.extractDocument(ctx, filename, data)
	if err != nil {
		logger.WithError(err).Error("Processing failed")
		app.Documents.fail(owner, id, result, raw, err)
	} else {
		logger.WithField("records", len(records)).Info("Processing completed")
		app.Documents.complete(owner, id, result, raw, records)
	}

	doc, getErr := app.Documents.Get(owner, id)
	if getErr != nil && err == nil {
		err = getErr
	}
	return doc, err
}

func (app *App) extractDocument(ctx context.Context, filename string, data []byte) (*pdftext.Result, []orders.FlatRecord, string, error) {
	result, err := app.Extractor.Extract(ctx, filename, data)
	if err != nil {
		return nil, nil, "", fmt.Errorf("text extraction failed: %w", err)
	}

	records, raw, err := app.extractRecords(ctx, result.Text())
	if err != nil {
		return result, nil, raw, err
	}
	return result, records, raw, nil
}
