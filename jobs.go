package main

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ErrQueueFull is returned when no more batch jobs can be queued.
var ErrQueueFull = errors.New("job queue is full")

const jobQueueSize = 100

// Job is a "process all" batch for one owner.
type Job struct {
	ID            string    `json:"job_id"`
	Owner         string    `json:"-"`
	DocumentIDs   []string  `json:"document_ids"`
	Status        string    `json:"status"` // "pending", "in_progress", "completed", "failed"
	DocumentsDone int       `json:"documents_done"`
	Processed     int       `json:"processed"`
	Skipped       int       `json:"skipped"`
	Failed        int       `json:"failed"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// JobStore manages jobs and their statuses
type JobStore struct {
	sync.RWMutex
	jobs map[string]*Job
}

func newJobStore() *JobStore {
	return &JobStore{jobs: make(map[string]*Job)}
}

func generateJobID() string {
	return uuid.New().String()
}

func (store *JobStore) addJob(job *Job) {
	store.Lock()
	defer store.Unlock()
	store.jobs[job.ID] = job
	log.WithFields(logrus.Fields{"job_id": job.ID, "documents": len(job.DocumentIDs)}).Info("Job added")
}

func (store *JobStore) removeJob(jobID string) {
	store.Lock()
	defer store.Unlock()
	delete(store.jobs, jobID)
}

// getJob returns a copy of the owner's job.
func (store *JobStore) getJob(owner, jobID string) (Job, bool) {
	store.RLock()
	defer store.RUnlock()
	job, exists := store.jobs[jobID]
	if !exists || job.Owner != owner {
		return Job{}, false
	}
	return *job, true
}

// GetAllJobs returns copies of the owner's jobs, newest first.
func (store *JobStore) GetAllJobs(owner string) []Job {
	store.RLock()
	defer store.RUnlock()

	jobs := make([]Job, 0, len(store.jobs))
	for _, job := range store.jobs {
		if job.Owner == owner {
			jobs = append(jobs, *job)
		}
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	return jobs
}

func (store *JobStore) updateJobStatus(jobID, status string) {
	store.Lock()
	defer store.Unlock()
	if job, exists := store.jobs[jobID]; exists {
		job.Status = status
		job.UpdatedAt = time.Now()
		log.WithFields(logrus.Fields{"job_id": jobID, "status": status}).Info("Job status updated")
	}
}

type jobOutcome int

const (
	outcomeProcessed jobOutcome = iota
	outcomeSkipped
	outcomeFailed
)

func (store *JobStore) recordOutcome(jobID string, outcome jobOutcome) {
	store.Lock()
	defer store.Unlock()
	job, exists := store.jobs[jobID]
	if !exists {
		return
	}
	switch outcome {
	case outcomeProcessed:
		job.Processed++
	case outcomeSkipped:
		job.Skipped++
	case outcomeFailed:
		job.Failed++
	}
	job.DocumentsDone++
	job.UpdatedAt = time.Now()
}

// enqueueProcessAll creates and queues a batch job over the owner's documents.
func (app *App) enqueueProcessAll(owner string) (Job, error) {
	docs := app.Documents.List(owner)
	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		ids = append(ids, doc.ID)
	}

	now := time.Now()
	job := &Job{
		ID:          generateJobID(),
		Owner:       owner,
		DocumentIDs: ids,
		Status:      "pending",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	app.Jobs.addJob(job)

	select {
	case app.jobQueue <- job:
	default:
		app.Jobs.removeJob(job.ID)
		return Job{}, ErrQueueFull
	}

	queued, _ := app.Jobs.getJob(owner, job.ID)
	return queued, nil
}

// startWorker drains the job queue with a single worker so documents are
// processed one at a time. It returns when ctx is done.
func (app *App) startWorker(ctx context.Context) {
	go func() {
		log.Info("Batch worker started")
		for {
			select {
			case <-ctx.Done():
				log.Info("Batch worker stopped")
				return
			case job := <-app.jobQueue:
				app.processJob(job)
			}
		}
	}()
}

func (app *App) processJob(job *Job) {
	logger := log.WithField("job_id", job.ID)
	logger.Info("Processing batch job")
	app.Jobs.updateJobStatus(job.ID, "in_progress")

	attempted, failed := 0, 0
	for _, id := range job.DocumentIDs {
		doc, err := app.Documents.Get(job.Owner, id)
		if err != nil || doc.State == StateDone || doc.State == StateProcessing {
			app.Jobs.recordOutcome(job.ID, outcomeSkipped)
			continue
		}

		attempted++
		if _, err := app.processDocument(context.Background(), job.Owner, id); err != nil {
			failed++
			logger.WithError(err).WithField("document_id", id).Warn("Document failed in batch")
			app.Jobs.recordOutcome(job.ID, outcomeFailed)
			continue
		}
		app.Jobs.recordOutcome(job.ID, outcomeProcessed)
	}

	if attempted > 0 && failed == attempted {
		app.Jobs.updateJobStatus(job.ID, "failed")
		return
	}
	app.Jobs.updateJobStatus(job.ID, "completed")
}
