package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"porter-eta/eta-web/internal/metrics"

	"go.uber.org/zap"
)

var ErrInvalidInput = errors.New("invalid input")

type FormOption func(*FormService)

func WithClock(now func() time.Time) FormOption {
	return func(s *FormService) { s.now = now }
}

// WithStrictInput makes Submit reject unparseable numbers locally instead of
// forwarding them to the predictor as null.
func WithStrictInput(strict bool) FormOption {
	return func(s *FormService) { s.strict = strict }
}

// FormService applies user events to sessions and drives submissions.
type FormService struct {
	predictor Predictor
	logger    *zap.Logger
	now       func() time.Time
	strict    bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewFormService(predictor Predictor, logger *zap.Logger, opts ...FormOption) *FormService {
	ctx, cancel := context.WithCancel(context.Background())
	s := &FormService{
		predictor: predictor,
		logger:    logger,
		now:       time.Now,
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *FormService) UpdateField(sess *Session, name, raw string) (State, bool) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	next, ok := sess.state.UpdateField(name, raw)
	sess.state = next
	return next, ok
}

func (s *FormService) ToggleGallery(sess *Session) State {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.state = sess.state.ToggleGallery()
	return sess.state
}

// Submit starts a prediction for the session's current form and returns the
// loading state immediately. A request still outstanding for the same session
// is cancelled; whatever it returns afterwards is discarded.
func (s *FormService) Submit(sess *Session) State {
	sess.mu.Lock()
	next := sess.state.BeginSubmit()
	gen := next.Generation

	if s.strict {
		if invalid := InvalidFields(next.Form); len(invalid) > 0 {
			next, _ = next.Fail(gen, invalidInputMessage(invalid))
			sess.state = next
			sess.mu.Unlock()
			metrics.PredictionsTotal.WithLabelValues(metrics.OutcomeRejected).Inc()
			s.logger.Info("submission rejected",
				zap.String("session", sess.ID),
				zap.Error(fmt.Errorf("%w: %v", ErrInvalidInput, invalid)))
			return next
		}
	}

	payload := Coerce(next.Form, s.now())
	if sess.cancel != nil {
		sess.cancel()
	}
	ctx, cancel := context.WithCancel(s.ctx)
	sess.cancel = cancel
	sess.state = next
	sess.mu.Unlock()

	metrics.PredictionsInFlight.Inc()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer metrics.PredictionsInFlight.Dec()
		defer cancel()

		minutes, err := s.predictor.Predict(ctx, payload)
		s.settle(sess, gen, minutes, err)
	}()
	return next
}

func (s *FormService) settle(sess *Session, gen uint64, minutes float64, err error) {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	var ok bool
	if err != nil {
		sess.state, ok = sess.state.Fail(gen, PredictionFailedMessage)
	} else {
		sess.state, ok = sess.state.Succeed(gen, minutes)
	}

	if !ok {
		metrics.StaleResponses.Inc()
		s.logger.Debug("discarding stale prediction response",
			zap.String("session", sess.ID),
			zap.Uint64("generation", gen),
			zap.Uint64("current", sess.state.Generation))
		return
	}

	if err != nil {
		metrics.PredictionsTotal.WithLabelValues(metrics.OutcomeFailure).Inc()
		s.logger.Error("prediction failed",
			zap.String("session", sess.ID),
			zap.Uint64("generation", gen),
			zap.Error(err))
		return
	}
	metrics.PredictionsTotal.WithLabelValues(metrics.OutcomeSuccess).Inc()
	s.logger.Info("prediction received",
		zap.String("session", sess.ID),
		zap.Uint64("generation", gen),
		zap.Float64("minutes", minutes))
}

// Wait blocks until every submission started so far has settled.
func (s *FormService) Wait() {
	s.wg.Wait()
}

// Close cancels outstanding requests and waits for them to settle.
func (s *FormService) Close() {
	s.cancel()
	s.wg.Wait()
}

func invalidInputMessage(invalid map[string]string) string {
	names := make([]string, 0, len(invalid))
	for name := range invalid {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = name + " " + invalid[name]
	}
	return "Invalid input: " + strings.Join(parts, "; ")
}
