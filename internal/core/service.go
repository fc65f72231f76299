package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/importset/internal/logging"
)

// BuildTimeout is the maximum duration of one build started through Run.
var BuildTimeout = 10 * time.Minute

// ErrHistoryDisabled is returned by History when no history store is configured.
var ErrHistoryDisabled = errors.New("build history is not configured")

// HistoryStore persists finished builds.
type HistoryStore interface {
	RecordBuild(ctx context.Context, rec BuildRecord) error
	ListBuilds(ctx context.Context, limit int) ([]BuildRecord, error)
}

// Publisher copies a finished set archive to shared storage and returns
// where it was stored.
type Publisher interface {
	Publish(ctx context.Context, path string) (string, error)
}

// Service runs builds and handles what happens around them: concurrency
// limits, publishing the archive and recording history.
type Service struct {
	builder   *Builder
	history   HistoryStore
	publisher Publisher
	limiter   *BuildLimiter
}

// ServiceOption configures optional Service collaborators.
type ServiceOption func(*Service)

// WithHistory records every build in h.
func WithHistory(h HistoryStore) ServiceOption {
	return func(s *Service) { s.history = h }
}

// WithPublisher uploads every successful archive through p.
func WithPublisher(p Publisher) ServiceOption {
	return func(s *Service) { s.publisher = p }
}

// WithLimiter bounds concurrent builds and serializes builds of the same set.
func WithLimiter(l *BuildLimiter) ServiceOption {
	return func(s *Service) { s.limiter = l }
}

// NewService creates a new Service instance.
func NewService(builder *Builder, opts ...ServiceOption) *Service {
	if builder == nil {
		builder = NewBuilder(0)
	}
	s := &Service{builder: builder}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Limiter returns the configured limiter, or nil.
func (s *Service) Limiter() *BuildLimiter { return s.limiter }

// HistoryEnabled reports whether builds are recorded.
func (s *Service) HistoryEnabled() bool { return s.history != nil }

// Run builds the set for req, then publishes and records it. Publishing and
// recording failures are logged; they never fail a build whose archive was
// written.
func (s *Service) Run(ctx context.Context, req BuildRequest) (*BuildResult, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	logger := logging.WithFields(ctx, "build_id", req.ID)

	if s.limiter != nil {
		if err := s.limiter.Acquire(ctx); err != nil {
			return nil, err
		}
		defer s.limiter.Release()

		unlock, err := s.limiter.LockKey(ctx, req.Key())
		if err != nil {
			return nil, err
		}
		defer unlock()
	}

	ctx, cancel := context.WithTimeout(ctx, BuildTimeout)
	defer cancel()

	started := time.Now()
	result, err := s.builder.Build(ctx, req)

	if err == nil && s.publisher != nil {
		loc, perr := s.publisher.Publish(ctx, result.OutputPath)
		if perr != nil {
			logger.Warn("publish failed", "output", result.OutputPath, "error", perr)
			result.Warnings = append(result.Warnings, fmt.Sprintf("publish failed: %v", perr))
		} else {
			result.PublishedTo = loc
			logger.Info("set published", "location", loc)
		}
	}

	if s.history != nil {
		rec := newBuildRecord(req, result, err, started)
		// The build context may already be done; recording must still happen.
		recCtx, recCancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		if rerr := s.history.RecordBuild(recCtx, rec); rerr != nil {
			logger.Warn("record build failed", "error", rerr)
		}
		recCancel()
	}

	return result, err
}

// History returns the most recent builds, newest first.
func (s *Service) History(ctx context.Context, limit int) ([]BuildRecord, error) {
	if s.history == nil {
		return nil, ErrHistoryDisabled
	}
	return s.history.ListBuilds(ctx, limit)
}

func newBuildRecord(req BuildRequest, result *BuildResult, err error, started time.Time) BuildRecord {
	rec := BuildRecord{
		ID:          req.ID,
		Upstream:    req.Upstream,
		Run:         req.Run,
		Downstream:  req.Downstream,
		KeepAllSubs: req.KeepAllSubs,
		Status:      BuildSucceeded,
		StartedAt:   started,
		FinishedAt:  time.Now(),
	}
	if err != nil {
		rec.Status = BuildFailed
		rec.Error = err.Error()
		rec.ErrorCode = MapError(err).Code
		return rec
	}
	rec.Parameters = result.Parameters
	rec.OutputPath = result.OutputPath
	rec.PublishedTo = result.PublishedTo
	return rec
}
