package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"phishguard/db"
	"phishguard/ml"
	"phishguard/monitoring"
)

// PredictionRecorder persists served predictions. db.PredictionRecorder
// implements it.
type PredictionRecorder interface {
	Record(*ml.PredictionResult) bool
}

// Dependencies is everything the API needs. Only Inference is required.
type Dependencies struct {
	Inference *ml.InferenceContext
	Recorder  PredictionRecorder
	Metrics   *monitoring.MetricsCollector
	Hub       *monitoring.PredictionHub
	CacheSize int
	Logger    *zap.Logger
}

// API serves the classifier. It holds no mutable model state; the
// inference context is fixed at construction.
type API struct {
	inference *ml.InferenceContext
	recorder  PredictionRecorder
	metrics   *monitoring.MetricsCollector
	hub       *monitoring.PredictionHub
	cache     *lru.Cache[string, ml.PredictionResult]
	logger    *zap.Logger
	started   time.Time
}

func NewAPI(deps Dependencies) (*API, error) {
	if deps.Inference == nil {
		return nil, ml.ErrModelNotTrained
	}
	api := &API{
		inference: deps.Inference,
		recorder:  deps.Recorder,
		metrics:   deps.Metrics,
		hub:       deps.Hub,
		logger:    deps.Logger,
		started:   time.Now(),
	}
	if api.logger == nil {
		api.logger = zap.NewNop()
	}
	if api.metrics == nil {
		api.metrics = monitoring.NewMetricsCollector()
	}
	if deps.CacheSize > 0 {
		cache, err := lru.New[string, ml.PredictionResult](deps.CacheSize)
		if err != nil {
			return nil, err
		}
		api.cache = cache
	}
	return api, nil
}

// Register adds every route to mux. predict wraps only the predict route,
// which is where rate limiting goes.
func (a *API) Register(mux *http.ServeMux, predict ...Middleware) {
	web := staticHandler()
	for _, page := range []string{"GET /{$}", "GET /script.js", "GET /style.css"} {
		mux.Handle(page, web)
	}

	mux.HandleFunc("GET /api/health", a.handleHealth)
	mux.Handle("POST /api/predict", Chain(predict...)(http.HandlerFunc(a.handlePredict)))
	mux.HandleFunc("GET /api/model", a.handleModel)
	mux.HandleFunc("GET /api/metrics", a.handleMetrics)
	mux.HandleFunc("GET /api/predictions/recent", a.handleRecentPredictions)
	if a.hub != nil {
		mux.HandleFunc("GET /api/ws/predictions", a.hub.HandleWebSocket)
	}
}

type predictRequest struct {
	URL string `json:"url"`
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) handlePredict(w http.ResponseWriter, r *http.Request) {
	// Latency is measured from when the request entered the middleware chain.
	start := GetStartTime(r.Context())
	if start.IsZero() {
		start = time.Now()
	}

	var req predictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	key := strings.TrimSpace(req.URL)
	if a.cache != nil && key != "" {
		if cached, ok := a.cache.Get(key); ok {
			result := cached
			result.Explanation = append([]string{}, cached.Explanation...)
			a.served(&result, start, true)
			writeJSON(w, http.StatusOK, &result)
			return
		}
	}

	result, err := ml.Predict(a.inference, req.URL)
	if err != nil {
		var inputErr *ml.InputError
		if errors.As(err, &inputErr) {
			writeError(w, http.StatusBadRequest, inputErr.Error())
			return
		}
		a.logger.Error("prediction failed", zap.String("request_id", GetRequestID(r.Context())), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "prediction failed")
		return
	}

	if a.cache != nil {
		a.cache.Add(key, *result)
	}
	a.served(result, start, false)
	writeJSON(w, http.StatusOK, result)
}

// served does the per-prediction bookkeeping: metrics, the prediction
// log and the live feed.
func (a *API) served(result *ml.PredictionResult, start time.Time, cacheHit bool) {
	a.metrics.RecordPrediction(result.Label, time.Since(start), cacheHit)
	if a.recorder != nil {
		a.recorder.Record(result)
	}
	if a.hub != nil {
		a.hub.BroadcastPrediction(result)
	}
	a.logger.Debug("prediction served",
		zap.String("url", result.URL),
		zap.Float64("probability", result.PhishingProbability),
		zap.Int("label", result.Label),
		zap.Bool("cache_hit", cacheHit),
	)
}

type modelInfo struct {
	Features          []string        `json:"features"`
	DecisionThreshold float64         `json:"decision_threshold"`
	Trees             int             `json:"trees,omitempty"`
	LatestTraining    *db.TrainingLog `json:"latest_training,omitempty"`
	Uptime            string          `json:"uptime"`
}

func (a *API) handleModel(w http.ResponseWriter, r *http.Request) {
	info := modelInfo{
		Features:          a.inference.Schema(),
		DecisionThreshold: ml.DecisionThreshold,
		Trees:             a.inference.TreeCount(),
		Uptime:            time.Since(a.started).Round(time.Second).String(),
	}
	latest, err := db.LatestTrainingRun(r.Context())
	switch {
	case err == nil:
		info.LatestTraining = latest
	case errors.Is(err, db.ErrNotInitialized):
	default:
		a.logger.Warn("failed to load training log", zap.Error(err))
	}
	writeJSON(w, http.StatusOK, info)
}

func (a *API) handleMetrics(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Query().Get("format") {
	case "prometheus":
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(a.metrics.ExportPrometheus()))
		return
	case "history":
		history, err := a.metrics.ExportJSON()
		if err != nil {
			a.logger.Error("failed to export metric history", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to export metrics")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(history))
		return
	}

	response := map[string]interface{}{
		"predictions": a.metrics.PredictionSummaries(),
		"system":      a.metrics.GetSystemStats(),
	}
	if a.cache != nil {
		response["cache_entries"] = a.cache.Len()
	}
	total, phishing, err := db.PredictionStats(r.Context())
	switch {
	case err == nil:
		response["logged"] = map[string]int64{"total": total, "phishing": phishing}
	case errors.Is(err, db.ErrNotInitialized):
	default:
		a.logger.Warn("failed to load prediction stats", zap.Error(err))
	}
	if a.hub != nil {
		sent, dropped := a.hub.Stats()
		response["websocket"] = map[string]interface{}{
			"clients": a.hub.ClientCount(),
			"sent":    sent,
			"dropped": dropped,
		}
	}
	writeJSON(w, http.StatusOK, response)
}

func (a *API) handleRecentPredictions(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		l, err := strconv.Atoi(limitStr)
		if err != nil || l <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		if l > 500 {
			l = 500
		}
		limit = l
	}

	predictions, err := db.RecentPredictions(r.Context(), limit)
	if err != nil {
		if errors.Is(err, db.ErrNotInitialized) {
			writeError(w, http.StatusServiceUnavailable, "prediction log unavailable")
			return
		}
		a.logger.Error("failed to load recent predictions", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load predictions")
		return
	}
	writeJSON(w, http.StatusOK, predictions)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
