package main

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"pdf-order-extractor/orders"
	"pdf-order-extractor/pdftext"
)

var (
	ErrDocumentNotFound  = errors.New("document not found")
	ErrRecordOutOfRange  = errors.New("record index out of range")
	ErrUnknownField      = errors.New("unknown record field")
	ErrAlreadyProcessing = errors.New("document is already being processed")
	ErrFieldChanged      = errors.New("field changed since the modification")
)

// DocumentState is the processing state of an uploaded document.
type DocumentState string

const (
	StateIdle       DocumentState = "idle"
	StateProcessing DocumentState = "processing"
	StateDone       DocumentState = "done"
	StateFailed     DocumentState = "failed"
)

// ProcessedDocument is one uploaded PDF and everything derived from it.
type ProcessedDocument struct {
	ID          string              `json:"id"`
	Owner       string              `json:"-"`
	Filename    string              `json:"filename"`
	Size        int                 `json:"size"`
	State       DocumentState       `json:"state"`
	Error       string              `json:"error,omitempty"`
	Result      *pdftext.Result     `json:"result,omitempty"`
	Records     []orders.FlatRecord `json:"records"`
	RawResponse string              `json:"raw_response,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`

	data []byte
}

// snapshot copies the document so callers never share the stored slices.
func (d *ProcessedDocument) snapshot() ProcessedDocument {
	cp := *d
	cp.data = nil
	cp.Records = append([]orders.FlatRecord{}, d.Records...)
	return cp
}

// DocumentStore keeps uploaded documents in memory, partitioned by owner.
type DocumentStore struct {
	mu    sync.RWMutex
	docs  map[string]*ProcessedDocument
	order []string
}

func NewDocumentStore() *DocumentStore {
	return &DocumentStore{docs: make(map[string]*ProcessedDocument)}
}

// Add stores a new idle document.
func (s *DocumentStore) Add(owner, filename string, data []byte) ProcessedDocument {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	doc := &ProcessedDocument{
		ID:        uuid.New().String(),
		Owner:     owner,
		Filename:  filename,
		Size:      len(data),
		State:     StateIdle,
		Records:   []orders.FlatRecord{},
		CreatedAt: now,
		UpdatedAt: now,
		data:      data,
	}
	s.docs[doc.ID] = doc
	s.order = append(s.order, doc.ID)
	log.WithField("document_id", doc.ID).Infof("Document added: %s (%d bytes)", filename, len(data))
	return doc.snapshot()
}

// lookup must be called with the lock held.
func (s *DocumentStore) lookup(owner, id string) (*ProcessedDocument, error) {
	doc, ok := s.docs[id]
	if !ok || doc.Owner != owner {
		return nil, ErrDocumentNotFound
	}
	return doc, nil
}

func (s *DocumentStore) Get(owner, id string) (ProcessedDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, err := s.lookup(owner, id)
	if err != nil {
		return ProcessedDocument{}, err
	}
	return doc.snapshot(), nil
}

// List returns the owner's documents in upload order.
func (s *DocumentStore) List(owner string) []ProcessedDocument {
	s.mu.RLock()
	defer s.mu.RUnlock()
	docs := make([]ProcessedDocument, 0)
	for _, id := range s.order {
		if doc := s.docs[id]; doc.Owner == owner {
			docs = append(docs, doc.snapshot())
		}
	}
	return docs
}

func (s *DocumentStore) Remove(owner, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.lookup(owner, id); err != nil {
		return err
	}
	delete(s.docs, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	log.WithField("document_id", id).Info("Document removed")
	return nil
}

// begin marks the document as processing and hands out its bytes.
func (s *DocumentStore) begin(owner, id string) (filename string, data []byte, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.lookup(owner, id)
	if err != nil {
		return "", nil, err
	}
	if doc.State == StateProcessing {
		return "", nil, ErrAlreadyProcessing
	}
	doc.State = StateProcessing
	doc.Error = ""
	doc.UpdatedAt = time.Now()
	return doc.Filename, doc.data, nil
}

// complete stores the outcome of a successful run. The document may have been
// removed in the meantime, in which case the outcome is dropped.
func (s *DocumentStore) complete(owner, id string, result *pdftext.Result, raw string, records []orders.FlatRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.lookup(owner, id)
	if err != nil {
		return
	}
	if records == nil {
		records = []orders.FlatRecord{}
	}
	doc.State = StateDone
	doc.Error = ""
	doc.Result = result
	doc.RawResponse = raw
	doc.Records = records
	doc.UpdatedAt = time.Now()
}

// fail records a failed run. Rows from an earlier run are discarded.
func (s *DocumentStore) fail(owner, id string, result *pdftext.Result, raw string, cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.lookup(owner, id)
	if err != nil {
		return
	}
	doc.State = StateFailed
	doc.Error = cause.Error()
	doc.Result = result
	doc.RawResponse = raw
	doc.Records = []orders.FlatRecord{}
	doc.UpdatedAt = time.Now()
}

// UpdateField replaces one field of one row and returns its previous value.
func (s *DocumentStore) UpdateField(owner, id string, index int, field, value string) (string, error) {
	if !orders.IsField(field) {
		return "", ErrUnknownField
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.lookup(owner, id)
	if err != nil {
		return "", err
	}
	if index < 0 || index >= len(doc.Records) {
		return "", ErrRecordOutOfRange
	}

	record := &doc.Records[index]
	previous, _ := record.Field(field)
	record.SetField(field, value)
	doc.UpdatedAt = time.Now()
	return previous, nil
}

// RevertField sets field back to value only while it still holds expected.
func (s *DocumentStore) RevertField(owner, id string, index int, field, expected, value string) error {
	if !orders.IsField(field) {
		return ErrUnknownField
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.lookup(owner, id)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(doc.Records) {
		return ErrRecordOutOfRange
	}

	record := &doc.Records[index]
	if current, _ := record.Field(field); current != expected {
		return fmt.Errorf("%w: %s is %q, expected %q", ErrFieldChanged, field, current, expected)
	}
	record.SetField(field, value)
	doc.UpdatedAt = time.Now()
	return nil
}

// Records returns copies of all rows of the owner's documents in upload order.
func (s *DocumentStore) Records(owner string) []orders.FlatRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var records []orders.FlatRecord
	for _, id := range s.order {
		if doc := s.docs[id]; doc.Owner == owner {
			records = append(records, doc.Records...)
		}
	}
	return records
}
