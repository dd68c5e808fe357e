package report

import (
	"context"
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"go.uber.org/zap"

	"github.com/SamuelRCrider/leakguard/core"
)

// ResultStore looks up finished detection results by ID
type ResultStore interface {
	Result(ctx context.Context, id string) (*core.DetectionResult, error)
}

// ResultWriter accepts results posted to the ingest endpoint
type ResultWriter interface {
	PutResult(ctx context.Context, result *core.DetectionResult) error
}

// MemoryResults keeps results in memory for the download server
type MemoryResults struct {
	mu      sync.RWMutex
	results map[string]*core.DetectionResult
}

func NewMemoryResults() *MemoryResults {
	return &MemoryResults{results: make(map[string]*core.DetectionResult)}
}

// Put stores or replaces a result under its ID
func (m *MemoryResults) Put(result *core.DetectionResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[result.ID] = result
}

func (m *MemoryResults) PutResult(ctx context.Context, result *core.DetectionResult) error {
	m.Put(result)
	return nil
}

func (m *MemoryResults) Result(ctx context.Context, id string) (*core.DetectionResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.results[id]
	if !ok {
		return nil, core.NewError(core.KindResultNotFound, "lookup result", id, nil)
	}
	return r, nil
}

// Handler serves rendered reports for download
type Handler struct {
	store  ResultStore
	logger *zap.SugaredLogger
	now    func() time.Time
}

// NewHandler builds the report download router:
//
//	GET  /detections/{id}/report?format=html&sortBy=riskLevel&sortOrder=desc
//	POST /detections   (body: a detection result; only when store is a ResultWriter)
func NewHandler(store ResultStore, logger *zap.SugaredLogger) http.Handler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	h := &Handler{store: store, logger: logger, now: time.Now}

	r := chi.NewRouter()
	r.Route("/detections", func(r chi.Router) {
		r.Post("/", h.ingest)
		r.Get("/{id}/report", h.download)
	})
	return r
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, status int, err error) {
	if status >= http.StatusInternalServerError {
		core.ReportError(h.logger, "report request failed", err, "path", r.URL.Path)
	}
	render.Status(r, status)
	render.JSON(w, r, errorResponse{Error: err.Error(), Kind: string(core.KindOf(err))})
}

func (h *Handler) download(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	q := r.URL.Query()

	format := FormatHTML
	if f := q.Get("format"); f != "" {
		parsed, err := ParseFormat(f)
		if err != nil {
			h.fail(w, r, http.StatusBadRequest, err)
			return
		}
		format = parsed
	}

	opts, err := OptionsFromParams(q.Get, h.now())
	if err != nil {
		h.fail(w, r, http.StatusBadRequest, err)
		return
	}

	result, err := h.store.Result(r.Context(), id)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, core.ErrResultNotFound) {
			status = http.StatusNotFound
		}
		h.fail(w, r, status, err)
		return
	}

	rep, err := Render(result, format, opts)
	if err != nil {
		h.fail(w, r, http.StatusInternalServerError, err)
		return
	}

	h.logger.Infow("report served", "detection", id, "format", format, "size", rep.Size)

	w.Header().Set("Content-Type", rep.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": rep.Filename}))
	w.Header().Set("Content-Length", strconv.Itoa(rep.Size))
	w.WriteHeader(http.StatusOK)
	w.Write(rep.Content)
}

func (h *Handler) ingest(w http.ResponseWriter, r *http.Request) {
	sink, ok := h.store.(ResultWriter)
	if !ok {
		h.fail(w, r, http.StatusMethodNotAllowed, errors.New("result store is read-only"))
		return
	}

	var result core.DetectionResult
	if err := json.NewDecoder(r.Body).Decode(&result); err != nil {
		h.fail(w, r, http.StatusBadRequest, err)
		return
	}
	if result.ID == "" {
		h.fail(w, r, http.StatusBadRequest, core.NewError(core.KindMissingRequiredField, "ingest result", "", errors.New("missing id")))
		return
	}
	result.Summary = core.Summarize(result.Findings)

	if err := sink.PutResult(r.Context(), &result); err != nil {
		h.fail(w, r, http.StatusInternalServerError, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, map[string]string{"id": result.ID})
}

// OptionsFromParams reads render options from named string parameters
// (query values, tool arguments): sortBy, sortOrder, riskLevel, category,
// summary, details.
func OptionsFromParams(get func(string) string, now time.Time) (Options, error) {
	opts := Options{GeneratedAt: now}

	var err error
	opts.SortBy, opts.SortOrder, err = ParseSort(get("sortBy"), get("sortOrder"))
	if err != nil {
		return Options{}, err
	}
	if opts.FilterRiskLevel, err = ParseRiskLevels(get("riskLevel")); err != nil {
		return Options{}, err
	}
	opts.FilterCategory = ParseCategories(get("category"))

	if v := get("summary"); v != "" {
		include, err := strconv.ParseBool(v)
		if err != nil {
			return Options{}, core.NewError(core.KindInvalidField, "parse options", "summary", err)
		}
		opts.OmitSummary = !include
	}
	if v := get("details"); v != "" {
		include, err := strconv.ParseBool(v)
		if err != nil {
			return Options{}, core.NewError(core.KindInvalidField, "parse options", "details", err)
		}
		opts.OmitDetails = !include
	}
	return opts, nil
}
