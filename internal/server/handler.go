package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/kestrelworks/mailsync/internal/instrumentation"
	"github.com/kestrelworks/mailsync/internal/logging"
)

// Fetch response status values.
const (
	fetchStatusSuccess = "success"
	fetchStatusError   = "error"
	fetchStatusBusy    = "busy"
)

// FetchResponse is the JSON body returned by the /fetch endpoint.
type FetchResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	RunID     string `json:"run_id,omitempty"`
	Mailboxes int    `json:"mailboxes,omitempty"`
	Failed    int    `json:"failed,omitempty"`
	Extracted int    `json:"extracted,omitempty"`
	Inserted  int    `json:"inserted,omitempty"`
}

// FetchHandler triggers extraction runs over HTTP. Only one run may be
// in flight at a time; concurrent triggers get a 409.
type FetchHandler struct {
	serverContext *ServerContext
	metrics       *instrumentation.Metrics
	audit         *instrumentation.AuditLogger
	logger        *slog.Logger

	running chan struct{}
}

// NewFetchHandler creates the /fetch handler.
func NewFetchHandler(sc *ServerContext, metrics *instrumentation.Metrics, audit *instrumentation.AuditLogger, logger *slog.Logger) *FetchHandler {
	running := make(chan struct{}, 1)
	running <- struct{}{}
	return &FetchHandler{
		serverContext: sc,
		metrics:       metrics,
		audit:         audit,
		logger:        logger,
		running:       running,
	}
}

func (h *FetchHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, FetchResponse{
			Status:  fetchStatusError,
			Message: "method not allowed",
		})
		return
	}

	select {
	case <-h.running:
	default:
		writeJSON(w, http.StatusConflict, FetchResponse{
			Status:  fetchStatusBusy,
			Message: "an extraction run is already in progress",
		})
		return
	}
	defer func() { h.running <- struct{}{} }()

	ctx := r.Context()
	h.metrics.IncrementActiveRuns(ctx)
	defer h.metrics.DecrementActiveRuns(ctx)

	start := time.Now()
	summary, err := h.serverContext.Runner().Run(ctx)
	if err != nil {
		h.metrics.RecordRun(ctx, instrumentation.StatusError, time.Since(start))
		h.logger.Error("extraction run failed", logging.Err(err))
		writeJSON(w, http.StatusInternalServerError, FetchResponse{
			Status:  fetchStatusError,
			Message: err.Error(),
		})
		return
	}

	h.metrics.RecordRun(ctx, instrumentation.StatusSuccess, summary.Duration)
	h.metrics.AddMessagesExtracted(ctx, summary.Extracted)
	h.metrics.AddRowsInserted(ctx, summary.Inserted)
	for _, res := range summary.Results {
		status := instrumentation.StatusSuccess
		if res.Err != nil {
			status = instrumentation.StatusError
		}
		h.metrics.RecordMailbox(ctx, res.User, status)
		if res.Err == nil {
			h.audit.ArtifactConsumed(ctx, res.User, summary.RunID)
		}
	}
	h.audit.RunCompleted(ctx, summary.RunID, summary.Mailboxes, summary.Failed, summary.Inserted)

	writeJSON(w, http.StatusOK, FetchResponse{
		Status:    fetchStatusSuccess,
		Message:   "extraction run complete",
		RunID:     summary.RunID,
		Mailboxes: summary.Mailboxes,
		Failed:    summary.Failed,
		Extracted: summary.Extracted,
		Inserted:  summary.Inserted,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// NewRouter assembles the main listener mux: the /fetch trigger plus
// the health probes, all wrapped with HTTP request metrics.
func NewRouter(sc *ServerContext, health *HealthChecker, metrics *instrumentation.Metrics, audit *instrumentation.AuditLogger, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/fetch", NewFetchHandler(sc, metrics, audit, logger))
	health.RegisterHealthEndpoints(mux)
	return withRequestMetrics(mux, metrics)
}

// statusRecorder captures the response status code for metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func withRequestMetrics(next http.Handler, metrics *instrumentation.Metrics) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		metrics.RecordHTTPRequest(r.Context(), r.Method, r.URL.Path, recorder.status, time.Since(start))
	})
}
