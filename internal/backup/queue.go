package backup

import "time"

// pendingBackup is one start request waiting for a free job slot. A job id
// is allocated only at dequeue time; until then the request is known to
// callers solely by its ticket.
type pendingBackup struct {
	ticket      string
	storageType string
	options     *BackupOptions
	enqueuedAt  time.Time
}

// backupQueue is the FIFO overflow queue for start requests arriving at the
// concurrency ceiling, plus the ticket table mapping dispatched tickets to
// their job ids. It is not safe for concurrent use; the orchestrator
// serializes every access under its own mutex.
type backupQueue struct {
	pending []*pendingBackup
	// resolved maps a ticket to the job id allocated when its request was
	// dequeued. Entries appear only after dispatch.
	resolved map[string]string
	draining bool
}

func newBackupQueue() *backupQueue {
	return &backupQueue{
		resolved: make(map[string]string),
	}
}

// Enqueue appends a request and returns its ticket
func (q *backupQueue) Enqueue(storageType string, options *BackupOptions) string {
	ticket := GenerateTicketID()
	q.pending = append(q.pending, &pendingBackup{
		ticket:      ticket,
		storageType: storageType,
		options:     options,
		enqueuedAt:  time.Now().UTC(),
	})
	return ticket
}

// Dequeue removes and returns the oldest request
func (q *backupQueue) Dequeue() (*pendingBackup, bool) {
	if len(q.pending) == 0 {
		return nil, false
	}
	req := q.pending[0]
	q.pending[0] = nil
	q.pending = q.pending[1:]
	return req, true
}

// Bind records the job id allocated for a dequeued ticket
func (q *backupQueue) Bind(ticket, jobID string) {
	q.resolved[ticket] = jobID
}

// Resolve returns the job id a ticket was bound to at dequeue. ok is false
// while the request is still pending or the ticket is unknown.
func (q *backupQueue) Resolve(ticket string) (string, bool) {
	jobID, ok := q.resolved[ticket]
	return jobID, ok
}

// Remove drops a still-pending request by ticket, reporting whether it was
// found. Dispatched tickets are not removable.
func (q *backupQueue) Remove(ticket string) bool {
	for i, req := range q.pending {
		if req.ticket == ticket {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			return true
		}
	}
	return false
}

// Pending reports whether a ticket is still waiting in the queue
func (q *backupQueue) Pending(ticket string) bool {
	_, ok := q.Find(ticket)
	return ok
}

// Find returns the still-pending request identified by a ticket
func (q *backupQueue) Find(ticket string) (*pendingBackup, bool) {
	for _, req := range q.pending {
		if req.ticket == ticket {
			return req, true
		}
	}
	return nil, false
}

func (q *backupQueue) Len() int {
	return len(q.pending)
}

// BeginDrain claims the drain flag. Only one drain pass runs at a time;
// callers that get false must not drain and can rely on the active pass to
// pick up any requests they enqueued.
func (q *backupQueue) BeginDrain() bool {
	if q.draining {
		return false
	}
	q.draining = true
	return true
}

func (q *backupQueue) EndDrain() {
	q.draining = false
}
