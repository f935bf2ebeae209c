package importer

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/joaoarmando-ctrl/pretorian-nfse1/internal/document"
	"github.com/joaoarmando-ctrl/pretorian-nfse1/internal/limiter"
	"github.com/joaoarmando-ctrl/pretorian-nfse1/internal/nfse"
)

// Extractor acquires page texts from a document
type Extractor interface {
	Extract(ctx context.Context, name string, data []byte, progress func(int)) (*document.Result, error)
}

// Recognizer turns page texts into candidate records
type Recognizer interface {
	Recognize(pages []string, origin nfse.Origin, fileID string) []*nfse.Record
}

// Validator annotates records with violations of the active schema
type Validator interface {
	Validate(rec *nfse.Record, schema nfse.Schema) []string
}

// Orchestrator drives queued jobs through extraction, recognition and
// validation. Jobs fan out up to the limiter's capacity; the job table and
// the record set are guarded by mu.
type Orchestrator struct {
	storage    Storage
	extractor  Extractor
	recognizer Recognizer
	validator  Validator
	limiter    *limiter.Limiter
	config     *Config
	ids        IDGenerator
	clock      TimeSource
	reporter   EventReporter

	mu      sync.Mutex
	jobs    []*Job
	records map[string][]*nfse.Record // by job ID
	running bool
}

// NewOrchestrator creates an Orchestrator with UUID job IDs and the wall clock
func NewOrchestrator(storage Storage, extractor Extractor, recognizer Recognizer, validator Validator, lim *limiter.Limiter, config *Config) *Orchestrator {
	return NewOrchestratorWithDeps(storage, extractor, recognizer, validator, lim, config, &uuidGenerator{}, &defaultTimeSource{})
}

// NewOrchestratorWithDeps creates an Orchestrator with custom dependencies for testing
func NewOrchestratorWithDeps(storage Storage, extractor Extractor, recognizer Recognizer, validator Validator, lim *limiter.Limiter, config *Config, ids IDGenerator, clock TimeSource) *Orchestrator {
	if lim == nil {
		lim = limiter.New(limiter.DefaultCapacity)
	}
	return &Orchestrator{
		storage:    storage,
		extractor:  extractor,
		recognizer: recognizer,
		validator:  validator,
		limiter:    lim,
		config:     config,
		ids:        ids,
		clock:      clock,
		records:    make(map[string][]*nfse.Record),
	}
}

// SetReporter installs a callback for job events. Call before the first run.
func (o *Orchestrator) SetReporter(r EventReporter) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.reporter = r
}

// Submit stores the uploads and queues one PENDING job per upload. Uploads
// that do not fit under MaxJobs are refused together with a *LimitError; the
// ones that fit are still queued and returned.
func (o *Orchestrator) Submit(uploads []Upload) ([]Job, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	room := MaxJobs - len(o.jobs)
	if room < 0 {
		room = 0
	}
	accepted := uploads
	var limitErr error
	if len(uploads) > room {
		accepted = uploads[:room]
		limitErr = &LimitError{Limit: MaxJobs, Rejected: len(uploads) - room}
	}

	jobs := make([]Job, 0, len(accepted))
	for _, up := range accepted {
		id := o.ids.Generate()
		path, err := o.storage.Save(fmt.Sprintf("%s_%s", id, sanitizeFilename(up.Filename)), up.Data)
		if err != nil {
			return jobs, fmt.Errorf("saving %s: %w", up.Filename, err)
		}
		now := o.clock.Now()
		job := &Job{
			ID:        id,
			Filename:  up.Filename,
			Path:      path,
			Status:    StatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		}
		o.jobs = append(o.jobs, job)
		jobs = append(jobs, *job)
	}

	if limitErr != nil {
		slog.Warn("Rejected uploads over the job limit", "limit", MaxJobs, "rejected", len(uploads)-len(accepted))
	}
	return jobs, limitErr
}

// Run processes every PENDING job in submission order. Jobs that are not
// PENDING when the run starts are reported SKIPPED and left as they are.
// Cancelling ctx stops new jobs from starting; jobs already started finish.
func (o *Orchestrator) Run(ctx context.Context) (*RunSummary, error) {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return nil, ErrRunInProgress
	}
	o.running = true
	queue := append([]*Job(nil), o.jobs...)
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.running = false
		o.mu.Unlock()
	}()

	schema := o.config.Schema()
	work := context.WithoutCancel(ctx)
	summary := &RunSummary{}
	started := make([]*Job, 0, len(queue))

	var wg sync.WaitGroup
	for i, job := range queue {
		if ctx.Err() != nil {
			summary.Cancelled = true
			summary.Remaining = o.countPending(queue[i:])
			slog.Info("Run cancelled", "remaining", summary.Remaining)
			break
		}

		if !o.begin(job) {
			summary.Skipped++
			continue
		}
		started = append(started, job)

		if err := o.limiter.Acquire(work); err != nil {
			o.fail(job, fmt.Errorf("waiting for a processing slot: %w", err))
			continue
		}

		wg.Add(1)
		go func(job *Job) {
			defer wg.Done()
			o.process(work, job, schema)
		}(job)
	}
	wg.Wait()

	o.mu.Lock()
	for _, job := range started {
		summary.Processed++
		switch job.Status {
		case StatusOK:
			summary.OK++
			summary.Records += job.RecordCount
		case StatusError:
			summary.Failed++
		}
	}
	o.mu.Unlock()

	slog.Info("Run finished",
		"processed", summary.Processed,
		"ok", summary.OK,
		"failed", summary.Failed,
		"skipped", summary.Skipped,
		"records", summary.Records,
	)
	return summary, nil
}

// begin moves a PENDING job to PROCESSING, or reports it SKIPPED
func (o *Orchestrator) begin(job *Job) bool {
	o.mu.Lock()
	if job.Status != StatusPending {
		ev := eventFor(job)
		ev.Status = StatusSkipped
		o.mu.Unlock()
		o.emit(ev)
		return false
	}
	job.Status = StatusProcessing
	job.Progress = 1
	job.UpdatedAt = o.clock.Now()
	ev := eventFor(job)
	o.mu.Unlock()
	o.emit(ev)
	return true
}

// process runs one job while holding a limiter slot. The slot is released
// once extraction ends, on every path.
func (o *Orchestrator) process(ctx context.Context, job *Job, schema nfse.Schema) {
	var once sync.Once
	release := func() { once.Do(o.limiter.Release) }
	defer release()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Job panicked", "job", job.ID, "file", job.Filename, "panic", r, "stack", string(debug.Stack()))
			o.fail(job, fmt.Errorf("internal error: %v", r))
		}
	}()

	data, err := o.storage.Get(job.Path)
	if err != nil {
		o.fail(job, fmt.Errorf("loading document: %w", err))
		return
	}

	res, err := o.extractor.Extract(ctx, job.Filename, data, func(p int) { o.advance(job, p) })
	release()
	if err != nil {
		o.fail(job, fmt.Errorf("extracting text: %w", err))
		return
	}

	records := o.recognizer.Recognize(res.Texts(), nfse.Origin{File: job.Filename}, job.ID)
	for _, rec := range records {
		rec.Warnings = append(rec.Warnings, res.Warnings...)
		o.validator.Validate(rec, schema)
	}

	o.complete(job, records)
}

// advance raises job progress towards, but never to, completion
func (o *Orchestrator) advance(job *Job, p int) {
	if p > 99 {
		p = 99
	}
	o.mu.Lock()
	if job.Status != StatusProcessing || p <= job.Progress {
		o.mu.Unlock()
		return
	}
	job.Progress = p
	job.UpdatedAt = o.clock.Now()
	ev := eventFor(job)
	o.mu.Unlock()
	o.emit(ev)
}

func (o *Orchestrator) complete(job *Job, records []*nfse.Record) {
	o.mu.Lock()
	o.records[job.ID] = records
	job.Status = StatusOK
	job.Progress = 100
	job.RecordCount = len(records)
	job.Error = ""
	job.UpdatedAt = o.clock.Now()
	ev := eventFor(job)
	o.mu.Unlock()

	slog.Info("Processed document", "file", job.Filename, "records", len(records))
	o.emit(ev)
}

func (o *Orchestrator) fail(job *Job, err error) {
	o.mu.Lock()
	if job.Status.Terminal() {
		o.mu.Unlock()
		return
	}
	job.Status = StatusError
	job.Progress = 100
	job.Error = err.Error()
	job.UpdatedAt = o.clock.Now()
	ev := eventFor(job)
	o.mu.Unlock()

	slog.Error("Failed to process document", "file", job.Filename, "error", err)
	o.emit(ev)
}

func (o *Orchestrator) emit(ev Event) {
	o.mu.Lock()
	r := o.reporter
	o.mu.Unlock()
	if r != nil {
		r(ev)
	}
}

func (o *Orchestrator) countPending(jobs []*Job) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, j := range jobs {
		if j.Status == StatusPending {
			n++
		}
	}
	return n
}

// Running reports whether a run is in progress
func (o *Orchestrator) Running() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

// Jobs returns a snapshot of the job table in submission order
func (o *Orchestrator) Jobs() []Job {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Job, len(o.jobs))
	for i, j := range o.jobs {
		out[i] = *j
	}
	return out
}

// Records returns the accumulated records in job submission order
func (o *Orchestrator) Records() []*nfse.Record {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]*nfse.Record, 0)
	for _, j := range o.jobs {
		out = append(out, o.records[j.ID]...)
	}
	return out
}

// Reset forgets every job and record and deletes the stored documents
func (o *Orchestrator) Reset() error {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return ErrRunInProgress
	}
	jobs := o.jobs
	o.jobs = nil
	o.records = make(map[string][]*nfse.Record)
	o.mu.Unlock()

	for _, j := range jobs {
		if err := o.storage.Delete(j.Path); err != nil {
			slog.Warn("Failed to delete file", "filename", j.Path, "error", err)
		}
	}
	return nil
}

func eventFor(j *Job) Event {
	return Event{
		JobID:       j.ID,
		Filename:    j.Filename,
		Status:      j.Status,
		Progress:    j.Progress,
		Error:       j.Error,
		RecordCount: j.RecordCount,
	}
}
