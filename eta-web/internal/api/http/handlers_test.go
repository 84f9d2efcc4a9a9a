package httpapi_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	httpapi "porter-eta/eta-web/internal/api/http"
	"porter-eta/eta-web/internal/domain"
	"porter-eta/eta-web/internal/gallery"
	"porter-eta/eta-web/internal/mocks"
	"porter-eta/eta-web/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const manifest = `[
  {"id": 0, "src": "graphs/page_0.png", "context": "Delivery time histogram", "source_pdf": "case.pdf", "page": 3},
  {"id": 1, "src": "graphs/page_1.png", "context": "Validation loss", "source_pdf": "nn.pdf", "page": 7}
]`

type testEnv struct {
	router http.Handler
	forms  *service.FormService
	pred   *mocks.Predictor
	cookie *http.Cookie
}

func setupTestRouter(t *testing.T, gal *gallery.Gallery, opts ...service.FormOption) *testEnv {
	t.Helper()
	logger := zaptest.NewLogger(t)
	pred := mocks.NewPredictor(t)
	forms := service.NewFormService(pred, logger, opts...)
	t.Cleanup(forms.Close)

	handler, err := httpapi.NewHandler(forms, service.NewSessionStore(time.Hour, nil), gal, logger, httpapi.Config{
		PublicURL: "http://localhost:5173",
	})
	require.NoError(t, err)

	return &testEnv{
		router: httpapi.NewRouter(handler, nil),
		forms:  forms,
		pred:   pred,
	}
}

func mustGallery(t *testing.T, raw string) *gallery.Gallery {
	t.Helper()
	g, err := gallery.Parse([]byte(raw))
	require.NoError(t, err)
	return g
}

func (e *testEnv) do(t *testing.T, method, path string, form url.Values, accept string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, path, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	if e.cookie != nil {
		req.AddCookie(e.cookie)
	}

	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)

	for _, c := range rr.Result().Cookies() {
		if c.Name == httpapi.DefaultCookieName {
			e.cookie = c
		}
	}
	return rr
}

func defaultFormValues() url.Values {
	return url.Values{
		domain.FieldMarketID:               {"1.0"},
		domain.FieldStorePrimaryCategory:   {"american"},
		domain.FieldOrderProtocol:          {"1.0"},
		domain.FieldTotalItems:             {"2"},
		domain.FieldSubtotal:               {"1500"},
		domain.FieldNumDistinctItems:       {"2"},
		domain.FieldMinItemPrice:           {"500"},
		domain.FieldMaxItemPrice:           {"1000"},
		domain.FieldTotalOutstandingOrders: {"10"},
		domain.FieldDrivingDuration:        {"400"},
		domain.FieldCreatedAt:              {"1999-01-01T00:00:00.000Z"},
	}
}

func TestHandler_HealthCheck(t *testing.T) {
	env := setupTestRouter(t, nil)
	rr := env.do(t, http.MethodGet, "/health", nil, "")

	assert.Equal(t, http.StatusOK, rr.Code)
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "eta-web", body["service"])
}

func TestHandler_IndexRendersDefaultForm(t *testing.T) {
	env := setupTestRouter(t, nil)
	rr := env.do(t, http.MethodGet, "/", nil, "")

	assert.Equal(t, http.StatusOK, rr.Code)
	require.NotNil(t, env.cookie, "a session cookie is issued")

	body := rr.Body.String()
	assert.Contains(t, body, `name="subtotal" value="1500"`)
	assert.Contains(t, body, `name="market_id" value="1.0"`)
	assert.Contains(t, body, `<option value="american" selected>American</option>`)
	assert.Contains(t, body, `<option value="fast_food">Fast Food</option>`)
	assert.Contains(t, body, "Predict Delivery Time")
	assert.NotContains(t, body, `name="created_at"`)
	assert.NotContains(t, body, `<div class="result-section">`)
	assert.NotContains(t, body, `http-equiv="refresh"`)
}

func TestHandler_SubmitShowsPrediction(t *testing.T) {
	env := setupTestRouter(t, nil)

	env.pred.On("Predict", mock.Anything, mock.MatchedBy(func(p domain.OrderPayload) bool {
		return p.Subtotal == domain.NewInt(1500) && p.MarketID == domain.Float(1) &&
			p.CreatedAt != "1999-01-01T00:00:00.000Z"
	})).Return(37.0, nil).Once()

	rr := env.do(t, http.MethodPost, "/submit", defaultFormValues(), "")
	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/", rr.Header().Get("Location"))

	env.forms.Wait()

	body := env.do(t, http.MethodGet, "/", nil, "").Body.String()
	assert.Contains(t, body, "Estimated Delivery Time")
	assert.Contains(t, body, `37<span class="result-unit">min</span>`)
	assert.NotContains(t, body, service.PredictionFailedMessage)
}

func TestHandler_SubmitFailureShowsFixedMessage(t *testing.T) {
	env := setupTestRouter(t, nil)

	env.pred.On("Predict", mock.Anything, mock.Anything).
		Return(0.0, errors.New("dial tcp: connection refused")).Once()

	env.do(t, http.MethodPost, "/submit", defaultFormValues(), "")
	env.forms.Wait()

	body := env.do(t, http.MethodGet, "/", nil, "").Body.String()
	assert.Contains(t, body, service.PredictionFailedMessage)
	assert.NotContains(t, body, "connection refused")
	assert.NotContains(t, body, `<div class="result-section">`)
}

func TestHandler_LoadingState(t *testing.T) {
	env := setupTestRouter(t, nil)

	release := make(chan struct{})
	env.pred.On("Predict", mock.Anything, mock.Anything).
		Return(func(ctx context.Context, p domain.OrderPayload) (float64, error) {
			<-release
			return 20.0, nil
		}).Once()

	rr := env.do(t, http.MethodPost, "/submit", defaultFormValues(), "application/json")
	require.Equal(t, http.StatusOK, rr.Code)

	var st service.State
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&st))
	assert.True(t, st.Loading)
	assert.Nil(t, st.Prediction)
	assert.Empty(t, st.Error)

	body := env.do(t, http.MethodGet, "/", nil, "").Body.String()
	assert.Contains(t, body, "Calculating...")
	assert.Contains(t, body, `class="submit-btn" disabled`)
	assert.Contains(t, body, `http-equiv="refresh"`)

	close(release)
	env.forms.Wait()

	body = env.do(t, http.MethodGet, "/", nil, "").Body.String()
	assert.Contains(t, body, `20<span class="result-unit">min</span>`)
	assert.NotContains(t, body, "Calculating...")
}

func TestHandler_GalleryToggleKeepsForm(t *testing.T) {
	env := setupTestRouter(t, mustGallery(t, manifest))

	rr := env.do(t, http.MethodPost, "/fields/subtotal", url.Values{"value": {"2750"}}, "")
	require.Equal(t, http.StatusOK, rr.Code)

	rr = env.do(t, http.MethodPost, "/gallery/toggle", nil, "")
	assert.Equal(t, http.StatusSeeOther, rr.Code)

	body := env.do(t, http.MethodGet, "/", nil, "").Body.String()
	assert.Contains(t, body, "Hide Analysis")
	assert.Contains(t, body, `<img src="/graphs/page_0.png" alt="Analysis from case.pdf"`)
	assert.Contains(t, body, "Source: nn.pdf (Page 7)")
	assert.Contains(t, body, "Validation loss")
	assert.NotContains(t, body, `name="subtotal"`)

	env.do(t, http.MethodPost, "/gallery/toggle", nil, "")
	body = env.do(t, http.MethodGet, "/", nil, "").Body.String()
	assert.Contains(t, body, "View Case Study Graphs")
	assert.Contains(t, body, `name="subtotal" value="2750"`)
}

func TestHandler_EmptyGalleryFallback(t *testing.T) {
	env := setupTestRouter(t, mustGallery(t, `[]`))

	env.do(t, http.MethodPost, "/gallery/toggle", nil, "")
	body := env.do(t, http.MethodGet, "/", nil, "").Body.String()

	assert.Contains(t, body, "No graphs found. Check console for errors.")
	assert.NotContains(t, body, `class="graph-card`)
}

func TestHandler_BrokenImageFlagged(t *testing.T) {
	gal := mustGallery(t, manifest)
	gal.Items[1].Broken = true
	env := setupTestRouter(t, gal)

	env.do(t, http.MethodPost, "/gallery/toggle", nil, "")
	body := env.do(t, http.MethodGet, "/", nil, "").Body.String()

	assert.Contains(t, body, `<div class="graph-card" id="graph-0">`)
	assert.Contains(t, body, `<div class="graph-card broken" id="graph-1">`)
}

func TestHandler_UpdateField(t *testing.T) {
	env := setupTestRouter(t, nil)

	tests := []struct {
		name         string
		field        string
		value        string
		expectedCode int
		expectedBody string
	}{
		{name: "raw value stored", field: "min_item_price", value: "4x", expectedCode: http.StatusOK, expectedBody: `"min_item_price":"4x"`},
		{name: "category", field: "store_primary_category", value: "vegan", expectedCode: http.StatusOK, expectedBody: `"store_primary_category":"vegan"`},
		{name: "created_at rejected", field: "created_at", value: "2020-01-01", expectedCode: http.StatusBadRequest},
		{name: "unknown field", field: "tip", value: "5", expectedCode: http.StatusNotFound},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := env.do(t, http.MethodPost, "/fields/"+tc.field, url.Values{"value": {tc.value}}, "")
			assert.Equal(t, tc.expectedCode, rr.Code)
			if tc.expectedBody != "" {
				assert.Contains(t, rr.Body.String(), tc.expectedBody)
			}
		})
	}
}

func TestHandler_GetState(t *testing.T) {
	env := setupTestRouter(t, nil)

	rr := env.do(t, http.MethodGet, "/api/state", nil, "")
	assert.Equal(t, http.StatusOK, rr.Code)

	var st service.State
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&st))
	assert.Equal(t, "1500", st.Form.Subtotal)
	assert.Nil(t, st.Prediction)
	assert.False(t, st.Loading)
	assert.False(t, st.ShowGallery)
}

func TestHandler_SessionsAreIsolated(t *testing.T) {
	env := setupTestRouter(t, nil)
	env.do(t, http.MethodPost, "/fields/subtotal", url.Values{"value": {"999"}}, "")

	other := &testEnv{router: env.router}
	rr := other.do(t, http.MethodGet, "/api/state", nil, "")

	var st service.State
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&st))
	assert.Equal(t, "1500", st.Form.Subtotal)
	assert.NotEqual(t, env.cookie.Value, other.cookie.Value)
}

func TestHandler_QRCode(t *testing.T) {
	env := setupTestRouter(t, nil)
	rr := env.do(t, http.MethodGet, "/qrcode", nil, "")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "image/png", rr.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rr.Body.String(), "\x89PNG"))
}

func TestHandler_Metrics(t *testing.T) {
	env := setupTestRouter(t, nil)
	rr := env.do(t, http.MethodGet, "/metrics", nil, "")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "eta_predictor_request_duration_seconds")
}

func TestFormatMinutes(t *testing.T) {
	assert.Equal(t, "37", httpapi.FormatMinutes(37))
	assert.Equal(t, "42.5", httpapi.FormatMinutes(42.5))
	assert.Equal(t, "18.25", httpapi.FormatMinutes(18.25))
}
