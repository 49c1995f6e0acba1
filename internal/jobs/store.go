package jobs

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("job not found")

// Store is the job registry. Each job carries its own lock so concurrent
// pipelines never serialize on unrelated jobs; only the id lookup shares a
// lock. Reads return snapshots, never live pointers.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

type entry struct {
	mu      sync.Mutex
	job     *Job
	subs    map[uint64]func(Job)
	nextSub uint64
}

func NewStore() *Store {
	return &Store{entries: make(map[string]*entry)}
}

// Create registers a new pending job and returns its snapshot.
func (s *Store) Create(source Source, destination Destination, schema []SchemaField, callerID string) *Job {
	now := time.Now()
	job := &Job{
		ID:          uuid.NewString(),
		CallerID:    callerID,
		Status:      StatusPending,
		Progress:    ProgressAccepted,
		Source:      source,
		Destination: destination,
		Schema:      slices.Clone(schema),
		Logs:        make([]LogEntry, 0, 8),
		StartTime:   now,
		UpdatedAt:   now,
	}

	s.mu.Lock()
	s.entries[job.ID] = &entry{job: job, subs: make(map[uint64]func(Job))}
	s.mu.Unlock()

	return cloneJob(job)
}

func (s *Store) Get(id string) (*Job, bool) {
	e, ok := s.lookup(id)
	if !ok {
		return nil, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return cloneJob(e.job), true
}

// List returns all jobs, newest first by start time.
func (s *Store) List() []*Job {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	ret := make([]*Job, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		ret = append(ret, cloneJob(e.job))
		e.mu.Unlock()
	}
	sort.Slice(ret, func(i, j int) bool {
		return ret[i].StartTime.After(ret[j].StartTime)
	})
	return ret
}

// Delete removes the job and its logs. Deleting an unknown id is a no-op.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	delete(s.entries, id)
	s.mu.Unlock()
}

// AppendLog appends one log entry and notifies subscribers.
func (s *Store) AppendLog(id string, level LogLevel, message string) {
	e, ok := s.lookup(id)
	if !ok {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.job.Logs = append(e.job.Logs, LogEntry{Timestamp: time.Now(), Level: level, Message: message})
	e.job.UpdatedAt = time.Now()
	e.notifyLocked()
}

// SetStatus advances the job along the state machine. Transitions out of a
// terminal state are rejected; progress only ever moves forward.
func (s *Store) SetStatus(id string, status Status, progress int) error {
	e, ok := s.lookup(id)
	if !ok {
		return ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	job := e.job
	if job.Status != status && !validTransition(job.Status, status) {
		return fmt.Errorf("invalid status transition %s -> %s for job %s", job.Status, status, id)
	}
	job.Status = status
	if progress > job.Progress {
		job.Progress = progress
	}
	now := time.Now()
	job.UpdatedAt = now
	if status.Terminal() && job.EndTime == nil {
		job.EndTime = &now
	}
	job.Logs = append(job.Logs, LogEntry{
		Timestamp: now,
		Level:     LogInfo,
		Message:   fmt.Sprintf("Status updated: %s (%d%%)", status, job.Progress),
	})
	e.notifyLocked()
	return nil
}

// Fail finalizes the job with an error message. The error is set exactly
// once: failing an already terminal job is a no-op.
func (s *Store) Fail(id, message string) {
	e, ok := s.lookup(id)
	if !ok {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	job := e.job
	if job.Status.Terminal() {
		return
	}
	now := time.Now()
	job.Status = StatusFailed
	job.Error = message
	job.UpdatedAt = now
	job.EndTime = &now
	job.Logs = append(job.Logs, LogEntry{Timestamp: now, Level: LogError, Message: message})
	e.notifyLocked()
}

func (s *Store) SetSchema(id string, schema []SchemaField) {
	e, ok := s.lookup(id)
	if !ok {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.job.Schema = slices.Clone(schema)
	e.job.UpdatedAt = time.Now()
	e.notifyLocked()
}

func (s *Store) SetTables(id string, tables []string) {
	e, ok := s.lookup(id)
	if !ok {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.job.Tables = slices.Clone(tables)
	e.job.UpdatedAt = time.Now()
	e.notifyLocked()
}

func (s *Store) SetExternalJobRef(id, ref string) {
	e, ok := s.lookup(id)
	if !ok {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.job.ExternalJobRef = ref
	e.job.UpdatedAt = time.Now()
	e.notifyLocked()
}

// Subscribe registers fn for every subsequent mutation of the job. Delivery
// order matches mutation order. The returned function unsubscribes; once it
// returns, no further deliveries happen.
//
// fn runs while the job's entry lock is held, so it must not call back into
// the store for the same job id; work on the snapshot it receives instead.
func (s *Store) Subscribe(id string, fn func(Job)) (func(), bool) {
	e, ok := s.lookup(id)
	if !ok {
		return nil, false
	}
	e.mu.Lock()
	token := e.nextSub
	e.nextSub++
	e.subs[token] = fn
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		delete(e.subs, token)
		e.mu.Unlock()
	}, true
}

func (s *Store) lookup(id string) (*entry, bool) {
	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()
	return e, ok
}

// notifyLocked delivers the current snapshot to every subscriber. Callers
// hold e.mu, which is what guarantees delivery order matches mutation order.
func (e *entry) notifyLocked() {
	if len(e.subs) == 0 {
		return
	}
	snapshot := cloneJob(e.job)
	for _, fn := range e.subs {
		fn(*snapshot)
	}
}

var transitions = map[Status][]Status{
	StatusPending:    {StatusConverting, StatusFailed},
	StatusConverting: {StatusLoading, StatusFailed},
	StatusLoading:    {StatusMonitoring, StatusCompleted, StatusFailed},
	StatusMonitoring: {StatusCompleted, StatusFailed},
}

func validTransition(from, to Status) bool {
	return slices.Contains(transitions[from], to)
}

func cloneJob(job *Job) *Job {
	c := *job
	c.Schema = slices.Clone(job.Schema)
	c.Logs = slices.Clone(job.Logs)
	c.Tables = slices.Clone(job.Tables)
	if job.Destination.BigQuery != nil {
		t := *job.Destination.BigQuery
		c.Destination.BigQuery = &t
	}
	if job.Destination.Postgres != nil {
		t := *job.Destination.Postgres
		c.Destination.Postgres = &t
	}
	if job.EndTime != nil {
		t := *job.EndTime
		c.EndTime = &t
	}
	return &c
}
