package service

import (
	"time"

	"porter-eta/eta-web/internal/domain"
)

// PredictionFailedMessage is the only error text a user ever sees for a
// failed submission.
const PredictionFailedMessage = "Failed to get prediction. Ensure backend is running."

// State is the whole UI state of one form session. Every transition is a
// value method returning the next State; the receiver is never modified.
//
// Prediction and Error are never both set. Loading is true only between
// BeginSubmit and the matching Succeed/Fail.
type State struct {
	Form        domain.OrderForm `json:"form"`
	Prediction  *float64         `json:"prediction"`
	Error       string           `json:"error,omitempty"`
	Loading     bool             `json:"loading"`
	ShowGallery bool             `json:"show_gallery"`
	Generation  uint64           `json:"generation"`
}

func NewState(now time.Time) State {
	return State{Form: domain.DefaultOrderForm(FormatTimestamp(now))}
}

// UpdateField stores raw as typed. created_at and unknown names are left
// untouched and reported with false.
func (s State) UpdateField(name, raw string) (State, bool) {
	if name == domain.FieldCreatedAt {
		return s, false
	}
	form, ok := s.Form.With(name, raw)
	if !ok {
		return s, false
	}
	s.Form = form
	return s, true
}

func (s State) ToggleGallery() State {
	s.ShowGallery = !s.ShowGallery
	return s
}

// BeginSubmit opens a new generation, clears the previous outcome and marks
// the session as loading.
func (s State) BeginSubmit() State {
	s.Generation++
	s.Loading = true
	s.Prediction = nil
	s.Error = ""
	return s
}

// Succeed settles generation gen with a prediction. Settlements for any other
// generation, or when nothing is in flight, are rejected with false.
func (s State) Succeed(gen uint64, minutes float64) (State, bool) {
	if !s.accepts(gen) {
		return s, false
	}
	s.Loading = false
	s.Prediction = &minutes
	s.Error = ""
	return s, true
}

// Fail settles generation gen with an error message under the same rules as
// Succeed.
func (s State) Fail(gen uint64, message string) (State, bool) {
	if !s.accepts(gen) {
		return s, false
	}
	s.Loading = false
	s.Prediction = nil
	s.Error = message
	return s, true
}

func (s State) accepts(gen uint64) bool {
	return s.Loading && gen == s.Generation
}
