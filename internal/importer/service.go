package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joaoarmando-ctrl/pretorian-nfse1/internal/nfse"
)

// ErrNoRecords is returned when an export is requested before any record exists
var ErrNoRecords = errors.New("no records to export")

// IDGenerator generates unique IDs for jobs
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type uuidGenerator struct{}

func (g *uuidGenerator) Generate() string {
	return uuid.NewString()
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Artifact is one rendered export file
type Artifact struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Export holds both renderings of the same record set
type Export struct {
	TXT  Artifact
	XLSX Artifact
}

const (
	contentTypeTXT  = "text/plain; charset=utf-8"
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Service is the entry point used by the HTTP server and the batch command
type Service struct {
	orchestrator *Orchestrator
	config       *Config
	storage      Storage
	timeSource   TimeSource

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	last   *RunSummary
}

// NewService creates a new Service with the wall clock
func NewService(orchestrator *Orchestrator, config *Config, storage Storage) *Service {
	return NewServiceWithDeps(orchestrator, config, storage, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with a custom time source for testing
func NewServiceWithDeps(orchestrator *Orchestrator, config *Config, storage Storage, timeSrc TimeSource) *Service {
	return &Service{
		orchestrator: orchestrator,
		config:       config,
		storage:      storage,
		timeSource:   timeSrc,
	}
}

// Submit queues uploaded documents
func (s *Service) Submit(uploads []Upload) ([]Job, error) {
	return s.orchestrator.Submit(uploads)
}

// Run processes pending jobs and blocks until the run ends
func (s *Service) Run(ctx context.Context) (*RunSummary, error) {
	summary, err := s.orchestrator.Run(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.last = summary
	s.mu.Unlock()
	return summary, nil
}

// StartRun processes pending jobs in the background. The run is detached
// from ctx and only stops through CancelRun.
func (s *Service) StartRun(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil || s.orchestrator.Running() {
		return ErrRunInProgress
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done

	go func() {
		defer close(done)
		defer func() {
			s.mu.Lock()
			s.cancel = nil
			s.done = nil
			s.mu.Unlock()
			cancel()
		}()
		if _, err := s.Run(runCtx); err != nil {
			slog.Error("Failed to run jobs", "error", err)
		}
	}()
	return nil
}

// CancelRun stops a background run from starting further jobs and waits
// for the jobs in flight. It reports whether a run was cancelled.
func (s *Service) CancelRun() bool {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()
	if cancel == nil {
		return false
	}
	cancel()
	<-done
	return true
}

// Running reports whether a run is in progress, including a background run
// that is still storing its summary. Once it reports false StartRun succeeds.
func (s *Service) Running() bool {
	s.mu.Lock()
	background := s.done != nil
	s.mu.Unlock()
	return background || s.orchestrator.Running()
}

// LastRun returns the summary of the last finished run, if any
func (s *Service) LastRun() *RunSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Jobs returns the job table
func (s *Service) Jobs() []Job {
	return s.orchestrator.Jobs()
}

// Records returns the accumulated records
func (s *Service) Records() []*nfse.Record {
	return s.orchestrator.Records()
}

// Reset clears jobs and records
func (s *Service) Reset() error {
	return s.orchestrator.Reset()
}

// Settings returns the active settings
func (s *Service) Settings() Settings {
	return s.config.Settings()
}

// FieldMove moves one schema field to a new position
type FieldMove struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// SettingsUpdate carries optional settings changes; nil members are left unchanged
type SettingsUpdate struct {
	Schema  []string   `json:"schema,omitempty"`
	Decimal *string    `json:"decimal,omitempty"`
	Move    *FieldMove `json:"move,omitempty"`
}

// UpdateSettings applies and persists the requested changes in order: schema, move, decimal
func (s *Service) UpdateSettings(u SettingsUpdate) (Settings, error) {
	if u.Schema != nil {
		if err := s.config.SetSchema(u.Schema); err != nil {
			return s.config.Settings(), fmt.Errorf("updating schema: %w", err)
		}
	}
	if u.Move != nil {
		if err := s.config.MoveField(u.Move.From, u.Move.To); err != nil {
			return s.config.Settings(), fmt.Errorf("moving field: %w", err)
		}
	}
	if u.Decimal != nil {
		if err := s.config.SetDecimal(*u.Decimal); err != nil {
			return s.config.Settings(), fmt.Errorf("updating decimal: %w", err)
		}
	}
	return s.config.Settings(), nil
}

// Export renders the current records with the active settings
func (s *Service) Export(ctx context.Context) (*Export, error) {
	records := s.orchestrator.Records()
	if len(records) == 0 {
		return nil, ErrNoRecords
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	settings := s.config.Settings()
	now := s.timeSource.Now()

	xlsx, err := nfse.BuildXLSX(records)
	if err != nil {
		return nil, fmt.Errorf("building report: %w", err)
	}

	return &Export{
		TXT: Artifact{
			Filename:    nfse.TXTFilename(now),
			ContentType: contentTypeTXT,
			Data:        []byte(nfse.BuildTXT(records, settings.Schema, settings.Decimal)),
		},
		XLSX: Artifact{
			Filename:    nfse.XLSXFilename(now),
			ContentType: contentTypeXLSX,
			Data:        xlsx,
		},
	}, nil
}

// SaveExport renders both artifacts and writes them to storage, returning the stored names
func (s *Service) SaveExport(ctx context.Context) ([]string, error) {
	export, err := s.Export(ctx)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, 2)
	for _, a := range []Artifact{export.TXT, export.XLSX} {
		name, err := s.storage.Save(a.Filename, a.Data)
		if err != nil {
			return names, fmt.Errorf("saving %s: %w", a.Filename, err)
		}
		slog.Info("Exported file", "filename", name, "size", len(a.Data))
		names = append(names, name)
	}
	return names, nil
}
