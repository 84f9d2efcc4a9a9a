package httpapi

import (
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"time"

	"porter-eta/eta-web/assets"
	"porter-eta/eta-web/internal/domain"
	"porter-eta/eta-web/internal/gallery"
	"porter-eta/eta-web/internal/service"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"
)

const DefaultCookieName = "eta_session"

type Config struct {
	CookieName string
	PublicURL  string
	AssetDir   string
}

type Handler struct {
	Forms    service.FormServiceInterface
	Sessions *service.SessionStore
	Gallery  *gallery.Gallery
	Logger   *zap.Logger

	cfg  Config
	page *template.Template
}

func NewHandler(forms service.FormServiceInterface, sessions *service.SessionStore, gal *gallery.Gallery, logger *zap.Logger, cfg Config) (*Handler, error) {
	page, err := template.ParseFS(assets.FS, assets.IndexTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultCookieName
	}
	return &Handler{
		Forms:    forms,
		Sessions: sessions,
		Gallery:  gal,
		Logger:   logger,
		cfg:      cfg,
		page:     page,
	}, nil
}

func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/health", h.healthCheck).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")
	r.HandleFunc("/qrcode", h.qrCode).Methods("GET")

	r.HandleFunc("/", h.index).Methods("GET")
	r.HandleFunc("/submit", h.submit).Methods("POST")
	r.HandleFunc("/fields/{name}", h.updateField).Methods("POST")
	r.HandleFunc("/gallery/toggle", h.toggleGallery).Methods("POST")
	r.HandleFunc("/api/state", h.getState).Methods("GET")

	if h.cfg.AssetDir != "" {
		r.PathPrefix("/").Handler(http.FileServer(http.Dir(h.cfg.AssetDir))).Methods("GET")
	}
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"service":   "eta-web",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func (h *Handler) qrCode(w http.ResponseWriter, r *http.Request) {
	png, err := qrcode.Encode(h.cfg.PublicURL, qrcode.Medium, 256)
	if err != nil {
		h.Logger.Error("encode qr code", zap.Error(err))
		http.Error(w, "failed to generate QR code", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(png)
}

type fieldView struct {
	Name       string
	Label      string
	Value      string
	IsCategory bool
}

type pageData struct {
	Fields        []fieldView
	Categories    []domain.Category
	Loading       bool
	Error         string
	HasPrediction bool
	Prediction    string
	ShowGallery   bool
	GalleryEmpty  bool
	Gallery       []domain.GalleryItem
}

func FormatMinutes(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func (h *Handler) index(w http.ResponseWriter, r *http.Request) {
	sess := h.session(w, r)
	st := sess.State()

	data := pageData{
		Categories:   domain.Categories,
		Loading:      st.Loading,
		Error:        st.Error,
		ShowGallery:  st.ShowGallery,
		GalleryEmpty: h.Gallery.Empty(),
	}
	if h.Gallery != nil {
		data.Gallery = h.Gallery.Items
	}
	if st.Prediction != nil {
		data.HasPrediction = true
		data.Prediction = FormatMinutes(*st.Prediction)
	}
	for _, f := range domain.Fields {
		if f.Kind == domain.KindTimestamp {
			continue
		}
		v, _ := st.Form.Value(f.Name)
		data.Fields = append(data.Fields, fieldView{
			Name:       f.Name,
			Label:      f.Label,
			Value:      v,
			IsCategory: f.Kind == domain.KindCategory,
		})
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := h.page.Execute(w, data); err != nil {
		h.Logger.Error("render page", zap.Error(err))
	}
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	sess := h.session(w, r)

	for _, f := range domain.Fields {
		if f.Kind == domain.KindTimestamp {
			continue
		}
		if vals, ok := r.PostForm[f.Name]; ok && len(vals) > 0 {
			h.Forms.UpdateField(sess, f.Name, vals[0])
		}
	}

	st := h.Forms.Submit(sess)
	h.respond(w, r, st)
}

func (h *Handler) updateField(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	field, known := domain.LookupField(name)
	if !known {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown field " + name})
		return
	}
	if field.Kind == domain.KindTimestamp {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": name + " is not editable"})
		return
	}

	sess := h.session(w, r)
	st, _ := h.Forms.UpdateField(sess, name, r.FormValue("value"))
	writeJSON(w, http.StatusOK, st)
}

func (h *Handler) toggleGallery(w http.ResponseWriter, r *http.Request) {
	sess := h.session(w, r)
	st := h.Forms.ToggleGallery(sess)
	h.respond(w, r, st)
}

func (h *Handler) getState(w http.ResponseWriter, r *http.Request) {
	sess := h.session(w, r)
	writeJSON(w, http.StatusOK, sess.State())
}

// respond answers form posts with a redirect back to the page, and JSON
// clients with the new state.
func (h *Handler) respond(w http.ResponseWriter, r *http.Request, st service.State) {
	if r.Header.Get("Accept") == "application/json" {
		writeJSON(w, http.StatusOK, st)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) *service.Session {
	var id string
	if c, err := r.Cookie(h.cfg.CookieName); err == nil {
		id = c.Value
	}
	sess, created := h.Sessions.GetOrNew(id)
	if created {
		http.SetCookie(w, &http.Cookie{
			Name:     h.cfg.CookieName,
			Value:    sess.ID,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
		h.Logger.Debug("session created", zap.String("session", sess.ID))
	}
	return sess
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
