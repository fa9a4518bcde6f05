package ingestion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rpattn/rollcall/internal/domain"
	"github.com/rpattn/rollcall/internal/extract"
	"github.com/rpattn/rollcall/internal/fetch"
	"github.com/rpattn/rollcall/internal/repository"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrInvalidRequest is returned for ranges or years that cannot be processed.
var ErrInvalidRequest = errors.New("invalid ingestion request")

const defaultWorkers = 4

// ExtractFunc turns a fetched document into a roll call.
type ExtractFunc func(doc []byte) (domain.RollCall, error)

// Service ingests a range of roll calls into the vote store.
type Service struct {
	fetcher fetch.Fetcher
	extract ExtractFunc
	votes   repository.RollCallRepository
	logRepo repository.IngestionLogRepository
	logger  *zap.Logger
	metrics *Metrics
	workers int
}

type Option func(*Service)

// WithWorkers bounds how many roll calls are fetched concurrently.
func WithWorkers(workers int) Option {
	return func(s *Service) {
		if workers > 0 {
			s.workers = workers
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(metrics *Metrics) Option {
	return func(s *Service) {
		if metrics != nil {
			s.metrics = metrics
		}
	}
}

func WithExtractor(fn ExtractFunc) Option {
	return func(s *Service) {
		if fn != nil {
			s.extract = fn
		}
	}
}

// NewService creates a new ingestion service.
func NewService(
	fetcher fetch.Fetcher,
	votes repository.RollCallRepository,
	logRepo repository.IngestionLogRepository,
	opts ...Option,
) *Service {
	service := &Service{
		fetcher: fetcher,
		extract: extract.Extract,
		votes:   votes,
		logRepo: logRepo,
		logger:  zap.NewNop(),
		metrics: NewMetrics(nil),
		workers: defaultWorkers,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

// Request describes an inclusive range of roll calls within one year.
type Request struct {
	Start int `json:"start"`
	End   int `json:"end"`
	Year  int `json:"year"`
}

// Validate rejects non-positive starts and years. End < Start is an empty range.
func (r Request) Validate() error {
	if r.Start < 1 {
		return fmt.Errorf("%w: start must be a positive roll call number, got %d", ErrInvalidRequest, r.Start)
	}
	if r.Year < 1 {
		return fmt.Errorf("%w: year must be positive, got %d", ErrInvalidRequest, r.Year)
	}
	return nil
}

// Status is the terminal state of one roll call within a run.
type Status string

const (
	StatusProcessed Status = "processed"
	StatusSkipped   Status = "skipped"
)

// Outcome records what happened to one roll call.
type Outcome struct {
	RollCall       int          `json:"rollCall"`
	Status         Status       `json:"status"`
	Stage          domain.Stage `json:"stage,omitempty"`
	Reason         string       `json:"reason,omitempty"`
	RowsWritten    int          `json:"rowsWritten"`
	BallotsSkipped int          `json:"ballotsSkipped,omitempty"`
}

// Summary returns run level metrics.
type Summary struct {
	RunID          uuid.UUID `json:"runId"`
	Year           int       `json:"year"`
	Attempted      int       `json:"attempted"`
	Processed      int       `json:"processed"`
	Skipped        int       `json:"skipped"`
	RowsWritten    int       `json:"rowsWritten"`
	BallotsSkipped int       `json:"ballotsSkipped"`
	Outcomes       []Outcome `json:"outcomes"`
}

func (s *Summary) record(outcome Outcome) {
	s.Attempted++
	switch outcome.Status {
	case StatusProcessed:
		s.Processed++
		s.RowsWritten += outcome.RowsWritten
	case StatusSkipped:
		s.Skipped++
	}
	s.BallotsSkipped += outcome.BallotsSkipped
	s.Outcomes = append(s.Outcomes, outcome)
}

// prepared is a fetched and extracted roll call waiting for the writer.
type prepared struct {
	id       int
	rollCall domain.RollCall
	err      error
}

// Run fetches and extracts roll calls concurrently and persists them one
// transaction at a time in ascending order. A failure on one roll call is
// recorded as a skip and never stops the run; only an invalid request, a
// schema failure or cancellation make Run return an error.
func (s *Service) Run(ctx context.Context, req Request) (Summary, error) {
	summary := Summary{
		RunID:    uuid.New(),
		Year:     req.Year,
		Outcomes: []Outcome{},
	}

	if err := req.Validate(); err != nil {
		return summary, err
	}

	logger := s.logger.With(zap.String("run_id", summary.RunID.String()), zap.Int("year", req.Year))
	if req.End < req.Start {
		logger.Info("empty roll call range", zap.Int("start", req.Start), zap.Int("end", req.End))
		return summary, nil
	}

	if err := s.votes.EnsureSchema(ctx); err != nil {
		return summary, fmt.Errorf("failed to ensure schema: %w", err)
	}

	logger.Info("starting ingestion run",
		zap.Int("start", req.Start),
		zap.Int("end", req.End),
		zap.Int("workers", s.workers))

	results := make(chan prepared, s.workers)
	go s.produce(ctx, req, results)

	// Results arrive in completion order; commit them in id order.
	pending := make(map[int]prepared)
	next := req.Start
	for result := range results {
		if ctx.Err() != nil {
			continue
		}
		pending[result.id] = result

		for ctx.Err() == nil {
			ready, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			next++
			summary.record(s.commit(ctx, logger, summary.RunID, req.Year, ready))
		}
	}

	if err := ctx.Err(); err != nil {
		logger.Warn("ingestion run cancelled",
			zap.Int("attempted", summary.Attempted),
			zap.Int("processed", summary.Processed),
			zap.Int("skipped", summary.Skipped))
		return summary, err
	}

	logger.Info("ingestion run complete",
		zap.Int("attempted", summary.Attempted),
		zap.Int("processed", summary.Processed),
		zap.Int("skipped", summary.Skipped),
		zap.Int("rows_written", summary.RowsWritten),
		zap.Int("ballots_skipped", summary.BallotsSkipped))

	return summary, nil
}

// produce fans fetch and extract out over a bounded pool and closes out when done.
func (s *Service) produce(ctx context.Context, req Request, out chan<- prepared) {
	defer close(out)

	var group errgroup.Group
	group.SetLimit(s.workers)
	for id := req.Start; id <= req.End; id++ {
		if ctx.Err() != nil {
			break
		}
		id := id
		group.Go(func() error {
			out <- s.prepare(ctx, id, req.Year)
			return nil
		})
	}
	_ = group.Wait()
}

func (s *Service) prepare(ctx context.Context, id int, year int) prepared {
	start := time.Now()
	doc, err := s.fetcher.Fetch(ctx, id, year)
	s.metrics.fetchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return prepared{id: id, err: domain.NewFetchError(id, err)}
	}

	rollCall, err := s.extract(doc)
	if err != nil {
		return prepared{id: id, err: domain.NewExtractError(id, err)}
	}
	rollCall.ID = id
	rollCall.Year = year

	return prepared{id: id, rollCall: rollCall}
}

func (s *Service) commit(ctx context.Context, logger *zap.Logger, runID uuid.UUID, year int, p prepared) Outcome {
	logger = logger.With(zap.Int("roll_call", p.id))
	if p.err != nil {
		return s.skip(ctx, logger, runID, year, p.id, p.err)
	}

	ballotsSkipped := 0
	if p.rollCall.BallotErrors != nil {
		ballotsSkipped = countErrors(p.rollCall.BallotErrors)
		s.metrics.ballotsSkipped.Add(float64(ballotsSkipped))
		logger.Warn("skipped malformed ballots",
			zap.Int("count", ballotsSkipped),
			zap.Error(p.rollCall.BallotErrors))
		s.recordLog(ctx, logger, domain.NewIngestionLogEntry(runID, year, p.id, domain.StageExtract, p.rollCall.BallotErrors))
	}

	written, err := s.votes.Write(ctx, p.rollCall.Header, p.rollCall.Ballots)
	if err != nil {
		outcome := s.skip(ctx, logger, runID, year, p.id, domain.NewWriteError(p.id, err))
		outcome.BallotsSkipped = ballotsSkipped
		return outcome
	}

	s.metrics.processed.Inc()
	s.metrics.rowsWritten.Add(float64(written))
	logger.Info("roll call ingested",
		zap.Int("ballots", len(p.rollCall.Ballots)),
		zap.Int("rows_written", written),
		zap.String("vote_result", p.rollCall.Header.VoteResult))

	return Outcome{
		RollCall:       p.id,
		Status:         StatusProcessed,
		RowsWritten:    written,
		BallotsSkipped: ballotsSkipped,
	}
}

func (s *Service) skip(ctx context.Context, logger *zap.Logger, runID uuid.UUID, year int, id int, err error) Outcome {
	stage := domain.StageOf(err)
	s.metrics.skipped.WithLabelValues(string(stage)).Inc()
	logger.Warn("roll call skipped", zap.String("stage", string(stage)), zap.Error(err))
	s.recordLog(ctx, logger, domain.NewIngestionLogEntry(runID, year, id, stage, err))

	return Outcome{
		RollCall: id,
		Status:   StatusSkipped,
		Stage:    stage,
		Reason:   err.Error(),
	}
}

// recordLog persists a skip entry. Failures are logged and otherwise ignored.
func (s *Service) recordLog(ctx context.Context, logger *zap.Logger, entry domain.IngestionLogEntry) {
	if s.logRepo == nil {
		return
	}
	if err := s.logRepo.Record(context.WithoutCancel(ctx), entry); err != nil {
		logger.Error("failed to record ingestion log", zap.Error(err))
	}
}

// ListLogs returns the skip log entries recorded by one run.
func (s *Service) ListLogs(ctx context.Context, runID uuid.UUID, limit, offset int) ([]domain.IngestionLogEntry, error) {
	if s.logRepo == nil {
		return []domain.IngestionLogEntry{}, nil
	}
	return s.logRepo.ListByRun(ctx, runID, limit, offset)
}

func countErrors(err error) int {
	var merr *multierror.Error
	if errors.As(err, &merr) {
		return len(merr.Errors)
	}
	return 1
}
