package service

import (
	"context"
	"net/http"

	"porter-eta/eta-web/internal/domain"
)

type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

type Predictor interface {
	Predict(ctx context.Context, payload domain.OrderPayload) (float64, error)
}

type FormServiceInterface interface {
	UpdateField(sess *Session, name, raw string) (State, bool)
	ToggleGallery(sess *Session) State
	Submit(sess *Session) State
}

var (
	_ Predictor            = (*PredictionClient)(nil)
	_ FormServiceInterface = (*FormService)(nil)
)
