// Package retrieve orchestrates windowed stop-and-search retrieval: one
// upstream query per reporting period, issued strictly sequentially in
// window order, with the accumulated records flattened once at the end so
// the column union spans the whole window.
package retrieve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"stopsearch/internal/flatten"
	"stopsearch/internal/types"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// UpstreamClient is the slice of the data API client the service needs.
// Declared here so tests can substitute a fake.
type UpstreamClient interface {
	// LatestPeriod returns the most recent reporting period with data.
	LatestPeriod(ctx context.Context) (types.Period, error)
	// StopsByArea returns the incidents inside the polygon for one period.
	StopsByArea(ctx context.Context, poly, date string) ([]types.IncidentRecord, error)
	// StopsByForce returns the incidents for one force and period.
	StopsByForce(ctx context.Context, force, date string) ([]types.IncidentRecord, error)
}

// ProgressEvent describes one completed period within a retrieval. Events
// are emitted after each period's response arrives; they are observability
// only and not part of the return contract.
type ProgressEvent struct {
	RetrievalID string
	Period      types.Period
	Index       int // 1-based position within the window
	Total       int
	Records     int // records this period contributed
}

// ProgressFunc receives per-period progress. Implementations must be fast;
// they run inline between sequential requests.
type ProgressFunc func(ProgressEvent)

// Service is the retrieval orchestrator.
type Service struct {
	client    UpstreamClient
	flattener *flatten.Flattener
	limiter   *rate.Limiter
	logger    *slog.Logger
	progress  ProgressFunc
}

// ServiceConfig holds the dependencies for creating a Service.
type ServiceConfig struct {
	Client    UpstreamClient
	Flattener *flatten.Flattener
	// Limiter spaces sequential upstream calls. Nil disables pacing.
	Limiter  *rate.Limiter
	Logger   *slog.Logger
	Progress ProgressFunc
}

// NewService creates a Service with the given configuration.
func NewService(cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	flattener := cfg.Flattener
	if flattener == nil {
		flattener = flatten.New(flatten.SkipAndWarn, logger)
	}
	return &Service{
		client:    cfg.Client,
		flattener: flattener,
		limiter:   cfg.Limiter,
		logger:    logger,
		progress:  cfg.Progress,
	}
}

// ResolveStart determines the starting period for a retrieval. When both
// year and month are supplied (non-zero) they are used as-is and no
// network call is made; otherwise the latest available reporting period
// is resolved from the availability endpoint.
func (s *Service) ResolveStart(ctx context.Context, year, month int) (types.Period, error) {
	if year != 0 && month != 0 {
		p := types.Period{Year: year, Month: month}
		if err := p.Validate(); err != nil {
			return types.Period{}, err
		}
		return p, nil
	}
	return s.client.LatestPeriod(ctx)
}

// RetrieveArea fetches incidents inside the polygon for every period in
// the window and returns them as one flattened table. Rows appear in
// window order; an empty month contributes zero rows and is not an error.
func (s *Service) RetrieveArea(ctx context.Context, polygon types.GeoPolygon, window []types.Period) (*types.ResultTable, error) {
	if polygon.Len() < 3 {
		return nil, types.NewAppError(
			types.ErrCodeValidationInvalidPolygon,
			"area retrieval requires a polygon with at least 3 vertices",
			nil,
		)
	}
	poly := polygon.QueryString()
	return s.run(ctx, window, func(ctx context.Context, p types.Period) ([]types.IncidentRecord, error) {
		return s.client.StopsByArea(ctx, poly, p.String())
	})
}

// RetrieveForce fetches incidents recorded by the identified force for
// every period in the window. Identical iteration, accumulation, and
// failure semantics to RetrieveArea. Valid identifiers are obtainable
// from the forces-listing endpoint.
func (s *Service) RetrieveForce(ctx context.Context, forceID string, window []types.Period) (*types.ResultTable, error) {
	if strings.TrimSpace(forceID) == "" {
		return nil, types.NewAppError(
			types.ErrCodeValidationMissingForce,
			"force retrieval requires a non-empty force identifier",
			nil,
		)
	}
	return s.run(ctx, window, func(ctx context.Context, p types.Period) ([]types.IncidentRecord, error) {
		return s.client.StopsByForce(ctx, forceID, p.String())
	})
}

// run drives the sequential per-period loop. Exactly one request is in
// flight at a time; cancellation is honored between periods, never by
// aborting the loop mid-request. Raw records accumulate across the whole
// window and are flattened once at the end for a consistent global column
// union.
//
// If any period fails irrecoverably the retrieval fails as a whole, with
// the failed period, its window index, and the completed-period count
// attached so callers can distinguish "partial, failed at month X" from
// "complete, N months".
func (s *Service) run(ctx context.Context, window []types.Period, fetch func(context.Context, types.Period) ([]types.IncidentRecord, error)) (*types.ResultTable, error) {
	if len(window) == 0 {
		return nil, types.NewAppError(
			types.ErrCodeValidationInvalidCount,
			"retrieval window is empty",
			nil,
		)
	}

	retrievalID := uuid.New().String()
	ctx = types.WithRequestID(ctx, retrievalID)

	var all []types.IncidentRecord
	for i, period := range window {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		records, err := fetch(ctx, period)
		if err != nil {
			return nil, failedPeriod(err, period, i, len(window))
		}
		all = append(all, records...)

		s.logger.InfoContext(ctx, "period retrieved",
			"retrieval_id", retrievalID,
			"period", period.String(),
			"index", i+1,
			"total", len(window),
			"records", len(records),
		)
		if s.progress != nil {
			s.progress(ProgressEvent{
				RetrievalID: retrievalID,
				Period:      period,
				Index:       i + 1,
				Total:       len(window),
				Records:     len(records),
			})
		}
	}

	return s.flattener.Flatten(all)
}

// failedPeriod annotates an upstream failure with its position in the
// window so partial progress is reportable.
func failedPeriod(err error, period types.Period, index, total int) error {
	details := map[string]any{
		"failed_period":     period.String(),
		"period_index":      index,
		"periods_completed": index,
		"periods_total":     total,
	}
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		return appErr.WithDetails(details)
	}
	return types.NewAppErrorWithDetails(
		types.ErrCodeUpstreamUnavailable,
		fmt.Sprintf("retrieval failed at period %s", period),
		err,
		details,
	)
}
