package server

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/egoscan/egoscan/internal/report"
)

// SearchRequest is the body of a POST /process call.
type SearchRequest struct {
	CompanyName string `json:"company_name"`
	CompanySite string `json:"company_site,omitempty"`
	Email       string `json:"email,omitempty"`
}

// ParseFunc runs one scan and returns the collected cards. The queue worker
// turns its result into the report's terminal status.
type ParseFunc func(ctx context.Context, req SearchRequest) ([]report.CompanyCard, error)

const queueCapacity = 64

// TaskQueue tracks reports through pending, processing and a terminal state.
// It is handed to the server explicitly; there is no package-level instance.
type TaskQueue struct {
	parse ParseFunc
	log   logrus.FieldLogger

	queue chan queuedTask

	mu      sync.Mutex
	reports map[uuid.UUID]*report.Report
}

type queuedTask struct {
	id      uuid.UUID
	request SearchRequest
}

func NewTaskQueue(parse ParseFunc, log logrus.FieldLogger) *TaskQueue {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &TaskQueue{
		parse:   parse,
		log:     log.WithField("component", "queue"),
		queue:   make(chan queuedTask, queueCapacity),
		reports: make(map[uuid.UUID]*report.Report),
	}
}

// Enqueue registers a pending report and queues the scan. It fails when the
// queue is full rather than blocking the API handler.
func (q *TaskQueue) Enqueue(req SearchRequest) (uuid.UUID, error) {
	r := report.New(req.CompanyName)

	q.mu.Lock()
	q.reports[r.ReportID] = r
	q.mu.Unlock()

	select {
	case q.queue <- queuedTask{id: r.ReportID, request: req}:
	default:
		q.mu.Lock()
		delete(q.reports, r.ReportID)
		q.mu.Unlock()
		return uuid.Nil, fmt.Errorf("task queue is full")
	}

	q.log.WithFields(logrus.Fields{
		"report_id": r.ReportID,
		"company":   req.CompanyName,
	}).Info("task queued")
	return r.ReportID, nil
}

// Report returns a snapshot of the report with the given id.
func (q *TaskQueue) Report(id uuid.UUID) (report.Report, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	r, ok := q.reports[id]
	if !ok {
		return report.Report{}, false
	}
	return *r, true
}

// Run consumes the queue until the context is cancelled. Each task moves its
// report to processing, runs the parser and lands on completed or error.
func (q *TaskQueue) Run(ctx context.Context) {
	q.log.Info("task worker started")
	for {
		select {
		case <-ctx.Done():
			q.log.Info("task worker stopped")
			return
		case task := <-q.queue:
			q.process(ctx, task)
		}
	}
}

func (q *TaskQueue) process(ctx context.Context, task queuedTask) {
	log := q.log.WithFields(logrus.Fields{
		"report_id": task.id,
		"company":   task.request.CompanyName,
	})
	log.Info("task processing")
	q.setStatus(task.id, report.StatusProcessing)

	cards, err := q.parse(ctx, task.request)

	q.mu.Lock()
	defer q.mu.Unlock()
	r, ok := q.reports[task.id]
	if !ok {
		return
	}
	if err != nil {
		log.WithError(err).Error("task failed")
		r.Fail(err.Error())
		return
	}
	r.Complete(cards)
	log.WithField("cards", len(cards)).Info("task completed")
}

func (q *TaskQueue) setStatus(id uuid.UUID, status report.Status) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if r, ok := q.reports[id]; ok {
		r.Status = status
	}
}
