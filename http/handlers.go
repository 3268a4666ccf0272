package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"heartrisk/db"
	"heartrisk/ml"
	"heartrisk/monitoring"
)

const (
	transportHTTP      = "http"
	transportWebSocket = "ws"

	msgMissingFeature = "Missing feature in input"
	msgInvalidType    = "Invalid input type"
	msgInvalidBody    = "Request body must be a single JSON object"
	msgBodyTooLarge   = "Request body too large"
)

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	Field   string `json:"field,omitempty"`
}

type api struct {
	services     Services
	logger       *zap.Logger
	staticDir    string
	maxBodyBytes int64
	upgrader     websocket.Upgrader
}

func (a *api) register(mux *http.ServeMux) {
	mux.HandleFunc("POST /predict", a.handlePredict)
	mux.HandleFunc("POST /api/predict", a.handlePredict)
	mux.HandleFunc("GET /api/health", handleHealth)
	mux.HandleFunc("GET /api/model", a.handleModel)
	mux.HandleFunc("GET /api/metrics", a.handleMetrics)
	mux.HandleFunc("GET /api/training/log", a.handleTrainingLog)
	mux.HandleFunc("GET /api/ws/predict", a.handlePredictStream)
	if a.services.Hub != nil {
		mux.HandleFunc("GET /api/ws/monitor", a.services.Hub.HandleWebSocket)
	}
	mux.HandleFunc("GET /{$}", a.handleIndex)
	if a.staticDir != "" {
		mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.Dir(a.staticDir))))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *api) handlePredict(w http.ResponseWriter, r *http.Request) {
	record, err := decodeRecord(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: msgBodyTooLarge})
			return
		}
		a.rejected(transportHTTP, "invalid_body")
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: msgInvalidBody, Details: err.Error()})
		return
	}

	result, err := a.predict(r.Context(), transportHTTP, record)
	if err != nil {
		status, body := predictionError(err)
		writeJSON(w, status, body)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// decodeRecord reads exactly one JSON object. Numbers stay json.Number so
// the schema sees the literal the client sent.
func decodeRecord(body io.Reader) (ml.Record, error) {
	dec := json.NewDecoder(body)
	dec.UseNumber()

	var record ml.Record
	if err := dec.Decode(&record); err != nil {
		return nil, err
	}
	if record == nil {
		return nil, errors.New("body is null")
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, errors.New("body has trailing data")
	}
	return record, nil
}

// predict scores one record and records metrics, the audit row and the
// monitor event. Validation errors are returned unchanged.
func (a *api) predict(ctx context.Context, transport string, record ml.Record) (ml.Result, error) {
	start := time.Now()
	result, err := a.services.Predictor.Predict(record)
	latency := time.Since(start)
	if err != nil {
		a.rejected(transport, rejectionReason(err))
		return ml.Result{}, err
	}

	requestID := GetRequestID(ctx)
	if a.services.Metrics != nil {
		a.services.Metrics.RecordPrediction(transport, result, latency)
	}
	if a.services.Hub != nil {
		a.services.Hub.PublishPrediction(monitoring.PredictionEventData{
			RequestID:   requestID,
			Transport:   transport,
			Prediction:  result.Prediction,
			Probability: result.Probability,
			LatencyMS:   float64(latency.Microseconds()) / 1000,
		})
	}
	if a.services.AuditPredictions && a.services.Store != nil {
		err := a.services.Store.SavePrediction(ctx, db.PredictionRecord{
			RequestID: requestID,
			Record:    record,
			Result:    result,
			CreatedAt: time.Now(),
		})
		if err != nil {
			a.logger.Warn("audit prediction failed", zap.String("request_id", requestID), zap.Error(err))
		}
	}
	return result, nil
}

func (a *api) rejected(transport, reason string) {
	if a.services.Metrics != nil {
		a.services.Metrics.RecordRejection(transport, reason)
	}
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, ml.ErrMissingFeature):
		return "missing_feature"
	case errors.Is(err, ml.ErrInvalidFeatureType):
		return "invalid_type"
	default:
		return "internal"
	}
}

// predictionError maps validation failures to 400 and anything else to 500.
func predictionError(err error) (int, errorResponse) {
	var fe *ml.FeatureError
	field := ""
	if errors.As(err, &fe) {
		field = fe.Field
	}
	switch {
	case errors.Is(err, ml.ErrMissingFeature):
		return http.StatusBadRequest, errorResponse{Error: msgMissingFeature, Details: err.Error(), Field: field}
	case errors.Is(err, ml.ErrInvalidFeatureType):
		return http.StatusBadRequest, errorResponse{Error: msgInvalidType, Details: err.Error(), Field: field}
	default:
		return http.StatusInternalServerError, errorResponse{Error: "internal server error"}
	}
}

func (a *api) handleModel(w http.ResponseWriter, r *http.Request) {
	if a.services.Model == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "model metadata unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, a.services.Model.Info())
}

func (a *api) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if a.services.Metrics == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "metrics disabled"})
		return
	}
	collector := a.services.Metrics.Collector()
	switch r.URL.Query().Get("format") {
	case "", "prometheus":
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		io.WriteString(w, collector.ExportPrometheus())
	case "json":
		payload, err := collector.ExportJSON()
		if err != nil {
			a.logger.Error("export metrics failed", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, payload)
	default:
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "format must be prometheus or json"})
	}
}

func (a *api) handleTrainingLog(w http.ResponseWriter, r *http.Request) {
	if a.services.Store == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "training log unavailable"})
		return
	}
	limit := 20
	if s := r.URL.Query().Get("limit"); s != "" {
		l, err := strconv.Atoi(s)
		if err != nil || l < 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a non-negative integer"})
			return
		}
		limit = l
	}

	logs, err := a.services.Store.LoadTrainingLog(r.Context(), limit)
	if err != nil {
		a.logger.Error("load training log failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": logs})
}

// handleIndex serves the frontend when one is configured, otherwise a
// liveness message.
func (a *api) handleIndex(w http.ResponseWriter, r *http.Request) {
	if a.staticDir != "" {
		index := filepath.Join(a.staticDir, "index.html")
		if info, err := os.Stat(index); err == nil && !info.IsDir() {
			http.ServeFile(w, r, index)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "backend running"})
}
