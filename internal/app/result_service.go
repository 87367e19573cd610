package app

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"timed-quiz-service/internal/domain"
)

// ResultService records finished attempts and answers statistics queries.
// Statistics are always recomputed from storage; there is no running total.
type ResultService struct {
	repo ResultRepository
	now  func() time.Time
	log  logrus.FieldLogger
	hub  *statsHub
}

func NewResultService(repo ResultRepository, log logrus.FieldLogger) *ResultService {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &ResultService{
		repo: repo,
		now:  time.Now,
		log:  log,
		hub:  newStatsHub(),
	}
}

// Record appends a result. Storage failures are returned wrapped in
// domain.ErrPersistence so callers can decide to retry.
func (s *ResultService) Record(ctx context.Context, r domain.Result) (domain.Result, error) {
	if err := validateResult(r); err != nil {
		return domain.Result{}, err
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.SubmittedAt.IsZero() {
		r.SubmittedAt = s.now()
	}
	if r.Name == "" {
		r.Name = "Anonymous"
	}
	if err := s.repo.AppendResult(ctx, r); err != nil {
		return domain.Result{}, fmt.Errorf("%w: append result: %v", domain.ErrPersistence, err)
	}
	s.log.WithFields(logrus.Fields{
		"result_id": r.ID,
		"rollno":    r.StudentID,
		"score":     r.Score,
		"total":     r.Total,
	}).Info("result recorded")
	s.Publish(ctx)
	return r, nil
}

// List returns the matching results, newest first, together with statistics
// computed from exactly that slice.
func (s *ResultService) List(ctx context.Context, filter domain.ResultFilter) ([]domain.Result, domain.Statistics, error) {
	results, err := s.repo.ListResults(ctx, filter)
	if err != nil {
		return nil, domain.Statistics{}, fmt.Errorf("list results: %w", err)
	}
	return results, ComputeStatistics(results), nil
}

// Aggregate computes statistics over the results matching filter.
func (s *ResultService) Aggregate(ctx context.Context, filter domain.ResultFilter) (domain.Statistics, error) {
	_, stats, err := s.List(ctx, filter)
	return stats, err
}

// Subscribe returns a channel of statistics snapshots, starting with the
// current one. The caller must invoke the returned cancel function.
func (s *ResultService) Subscribe(ctx context.Context) (<-chan domain.Statistics, func(), error) {
	stats, err := s.Aggregate(ctx, domain.ResultFilter{})
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := s.hub.subscribe(stats)
	return ch, cancel, nil
}

// Publish pushes freshly computed statistics to subscribers.
func (s *ResultService) Publish(ctx context.Context) {
	if s.hub.empty() {
		return
	}
	stats, err := s.Aggregate(ctx, domain.ResultFilter{})
	if err != nil {
		s.log.WithError(err).Warn("publish statistics")
		return
	}
	s.hub.broadcast(stats)
}

// ComputeStatistics folds scores into count/average/max/min. The average is
// rounded to one decimal.
func ComputeStatistics(results []domain.Result) domain.Statistics {
	if len(results) == 0 {
		return domain.Statistics{}
	}
	stats := domain.Statistics{
		Count: len(results),
		Max:   results[0].Score,
		Min:   results[0].Score,
	}
	sum := 0
	for _, r := range results {
		sum += r.Score
		if r.Score > stats.Max {
			stats.Max = r.Score
		}
		if r.Score < stats.Min {
			stats.Min = r.Score
		}
	}
	stats.Average = math.Round(float64(sum)/float64(len(results))*10) / 10
	return stats
}

func validateResult(r domain.Result) error {
	switch {
	case r.Score < 0 || r.Total < 0:
		return fmt.Errorf("%w: score and total must not be negative", domain.ErrMalformedInput)
	case r.Score > r.Total:
		return fmt.Errorf("%w: score %d exceeds total %d", domain.ErrMalformedInput, r.Score, r.Total)
	case r.Percentage < 0 || r.Percentage > 100:
		return fmt.Errorf("%w: percentage %d out of range", domain.ErrMalformedInput, r.Percentage)
	}
	return nil
}

type statsHub struct {
	mu          sync.Mutex
	subscribers map[chan domain.Statistics]struct{}
}

func newStatsHub() *statsHub {
	return &statsHub{subscribers: make(map[chan domain.Statistics]struct{})}
}

func (h *statsHub) empty() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers) == 0
}

func (h *statsHub) subscribe(initial domain.Statistics) (<-chan domain.Statistics, func()) {
	ch := make(chan domain.Statistics, 8)

	// initial goes in before registration so no broadcast can overtake it.
	h.mu.Lock()
	ch <- initial
	h.subscribers[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if _, ok := h.subscribers[ch]; ok {
			delete(h.subscribers, ch)
			close(ch)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

func (h *statsHub) broadcast(stats domain.Statistics) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subscribers {
		select {
		case ch <- stats:
		default:
			// Slow subscriber: replace its oldest snapshot with this one.
			select {
			case <-ch:
			default:
			}
			ch <- stats
		}
	}
}
