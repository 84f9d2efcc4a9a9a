package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"porter-eta/eta-web/internal/domain"
	"porter-eta/eta-web/internal/metrics"

	"go.uber.org/zap"
)

// DefaultPredictURL is the local predictor the form talks to unless
// configured otherwise.
const DefaultPredictURL = "http://localhost:8000/predict"

var (
	ErrUnexpectedStatus  = errors.New("predictor returned non-2xx status")
	ErrMissingPrediction = errors.New("predictor response has no predicted_delivery_time_minutes")
)

type PredictionClient struct {
	url    string
	client HTTPClient
	logger *zap.Logger
}

func NewPredictionClient(url string, client HTTPClient, logger *zap.Logger) *PredictionClient {
	if url == "" {
		url = DefaultPredictURL
	}
	return &PredictionClient{
		url:    url,
		client: client,
		logger: logger,
	}
}

func (c *PredictionClient) URL() string { return c.url }

// Predict POSTs payload as JSON and returns predicted_delivery_time_minutes.
// Transport errors, non-2xx statuses and undecodable bodies are all errors;
// callers do not distinguish between them.
func (c *PredictionClient) Predict(ctx context.Context, payload domain.OrderPayload) (float64, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	c.logger.Debug("sending prediction request", zap.String("url", c.url), zap.ByteString("body", body))

	start := time.Now()
	resp, err := c.client.Do(req)
	metrics.PredictorLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		return 0, fmt.Errorf("post %s: %w", c.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return 0, fmt.Errorf("%w: %d %s", ErrUnexpectedStatus, resp.StatusCode, bytes.TrimSpace(detail))
	}

	var out domain.PredictionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("decode response: %w", err)
	}
	if out.PredictedDeliveryTimeMinutes == nil {
		return 0, ErrMissingPrediction
	}
	return *out.PredictedDeliveryTimeMinutes, nil
}
