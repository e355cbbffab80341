package services

import (
	"context"
	"net/url"
	"strings"
	"sync"

	"tuitionflow/models"

	log "github.com/sirupsen/logrus"
)

// QueueState is the reminder queue's position in its draft/confirm cycle
type QueueState string

const (
	QueueIdle     QueueState = "IDLE"
	QueueDrafting QueueState = "DRAFTING"
	QueuePreview  QueueState = "PREVIEW"
)

// DraftFunc produces the message for the student at the head of the queue.
type DraftFunc func(ctx context.Context, s models.Student) (*models.GeneratedMessage, error)

// DraftFailure reports one student dropped from the queue because drafting failed
type DraftFailure struct {
	StudentID   string `json:"studentId"`
	StudentName string `json:"studentName"`
	Error       string `json:"error"`
}

// QueueSnapshot is the externally visible queue state
type QueueSnapshot struct {
	State     QueueState               `json:"state"`
	Batch     bool                     `json:"batch"`
	Remaining int                      `json:"remaining"`
	NextName  string                   `json:"nextName,omitempty"`
	Draft     *models.GeneratedMessage `json:"draft,omitempty"`
}

// QueueResult is what a queue operation leaves behind: the new draft (if any)
// plus every student that had to be dropped on the way.
type QueueResult struct {
	Draft     *models.GeneratedMessage `json:"draft,omitempty"`
	Failures  []DraftFailure           `json:"failures,omitempty"`
	Discarded bool                     `json:"discarded,omitempty"`
	Queue     QueueSnapshot            `json:"queue"`
}

// ReminderQueue holds the students still to be messaged, head first.
// The mutex is never held while the draft function runs; the state stays
// DRAFTING from the moment Start, Send or Skip takes the lock until run
// leaves a draft or an empty queue.
type ReminderQueue struct {
	mu         sync.Mutex
	draft      DraftFunc
	state      QueueState
	batch      bool
	pending    []models.Student
	current    *models.GeneratedMessage
	generation uint64
}

func NewReminderQueue(draft DraftFunc) *ReminderQueue {
	return &ReminderQueue{draft: draft, state: QueueIdle}
}

// Start replaces the queue with students and drafts the first message.
// An empty list leaves the queue idle.
func (q *ReminderQueue) Start(ctx context.Context, students []models.Student, batch bool) (*QueueResult, error) {
	q.mu.Lock()
	if q.state == QueueDrafting {
		q.mu.Unlock()
		return nil, ErrQueueBusy
	}
	q.pending = append([]models.Student(nil), students...)
	q.batch = batch
	q.current = nil
	q.state = QueueDrafting
	q.mu.Unlock()

	return q.run(ctx), nil
}

// Send confirms the current draft, removes its student and drafts the next one.
func (q *ReminderQueue) Send(ctx context.Context) (*models.GeneratedMessage, *QueueResult, error) {
	sent, err := q.pop()
	if err != nil {
		return nil, nil, err
	}
	return sent, q.run(ctx), nil
}

// Skip drops the current draft without sending and drafts the next one.
func (q *ReminderQueue) Skip(ctx context.Context) (*QueueResult, error) {
	if _, err := q.pop(); err != nil {
		return nil, err
	}
	return q.run(ctx), nil
}

// Cancel empties the queue. A draft still in flight is discarded when it returns.
func (q *ReminderQueue) Cancel() QueueSnapshot {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = nil
	q.current = nil
	q.batch = false
	q.state = QueueIdle
	q.generation++
	return q.snapshotLocked()
}

// Busy reports whether a draft is in flight.
func (q *ReminderQueue) Busy() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state == QueueDrafting
}

func (q *ReminderQueue) Snapshot() QueueSnapshot {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.snapshotLocked()
}

func (q *ReminderQueue) snapshotLocked() QueueSnapshot {
	snap := QueueSnapshot{
		State:     q.state,
		Batch:     q.batch,
		Remaining: len(q.pending),
		Draft:     q.current,
	}
	if len(q.pending) > 1 {
		snap.NextName = q.pending[1].Name
	}
	return snap
}

func (q *ReminderQueue) pop() (*models.GeneratedMessage, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	switch q.state {
	case QueueDrafting:
		return nil, ErrQueueBusy
	case QueueIdle:
		return nil, ErrNoDraft
	}
	sent := q.current
	q.current = nil
	if len(q.pending) > 0 {
		q.pending = q.pending[1:]
	}
	// held until run settles the next draft
	q.state = QueueDrafting
	return sent, nil
}

// run drafts the head of the queue, dropping students whose draft fails,
// until a draft is ready or the queue is empty.
func (q *ReminderQueue) run(ctx context.Context) *QueueResult {
	res := &QueueResult{}
	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			q.state = QueueIdle
			q.current = nil
			q.batch = false
			res.Queue = q.snapshotLocked()
			q.mu.Unlock()
			return res
		}
		head := q.pending[0]
		q.generation++
		gen := q.generation
		q.state = QueueDrafting
		q.mu.Unlock()

		msg, err := q.draft(ctx, head)

		q.mu.Lock()
		if gen != q.generation {
			// cancelled or replaced while drafting
			res.Discarded = true
			res.Queue = q.snapshotLocked()
			q.mu.Unlock()
			return res
		}
		if err != nil {
			log.WithFields(log.Fields{
				"student_id": head.ID,
				"student":    head.Name,
				"error":      err.Error(),
			}).Warn("Drafting failed, dropping student from queue")
			res.Failures = append(res.Failures, DraftFailure{StudentID: head.ID, StudentName: head.Name, Error: err.Error()})
			q.pending = q.pending[1:]
			q.mu.Unlock()
			continue
		}
		q.current = msg
		q.state = QueuePreview
		res.Draft = msg
		res.Queue = q.snapshotLocked()
		q.mu.Unlock()
		return res
	}
}

// WhatsAppLink builds the wa.me deep link for a drafted message.
func WhatsAppLink(phone, text string) string {
	// QueryEscape encodes spaces as "+", which wa.me shows literally
	return "https://wa.me/" + phone + "?text=" + strings.ReplaceAll(url.QueryEscape(text), "+", "%20")
}
