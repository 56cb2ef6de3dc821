package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"cobraverifier"
	"cobraverifier/history"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const runIdHeader = "X-Run-Id"

// Verifies histories posted over HTTP
type verifierServer struct {
	opts []cobraverifier.VerifierOption
}

// NewServer returns a router serving the health check, the verify endpoint and the metrics.
// The options configure every verification. Query parameters add to them.
func NewServer(opts ...cobraverifier.VerifierOption) http.Handler {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	return HandlerWithOptions(&verifierServer{opts: opts}, ChiServerOptions{
		BaseRouter:       r,
		ErrorHandlerFunc: func(w http.ResponseWriter, r *http.Request, err error) {
			writeError(w, http.StatusBadRequest, err)
		},
	})
}

func (s *verifierServer) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *verifierServer) Verify(w http.ResponseWriter, r *http.Request, params VerifyParams) {
	runId := uuid.NewString()
	w.Header().Set(runIdHeader, runId)
	timer := prometheus.NewTimer(verifyDuration)
	defer timer.ObserveDuration()

	opts := append([]cobraverifier.VerifierOption{}, s.opts...)
	if params.Realtime != nil && *params.Realtime {
		opts = append(opts, cobraverifier.WithRealTimeEdges())
	}
	if params.MaxViolations != nil {
		opts = append(opts, cobraverifier.MaxReportedViolations(*params.MaxViolations))
	}

	h, err := history.Decode(r.Body)
	if err != nil {
		log.Printf("api: Run %v: Unable to decode history: %v", runId, err)
		rejectedTotal.Inc()
		writeError(w, http.StatusBadRequest, err)
		return
	}
	verdict, err := cobraverifier.Verify(h, opts...)
	if err != nil {
		log.Printf("api: Run %v: Rejected history: %v", runId, err)
		status := http.StatusInternalServerError
		if errors.Is(err, history.ErrMalformedHistory) {
			status = http.StatusBadRequest
			rejectedTotal.Inc()
		}
		writeError(w, status, err)
		return
	}
	log.Printf("api: Run %v: %v transactions, %v", runId, len(h.Transactions), verdict.Result)
	verificationsTotal.WithLabelValues(verdict.Result.String()).Inc()
	transactionsPerHistory.Observe(float64(len(h.Transactions)))
	for _, v := range verdict.Violations {
		violationsTotal.WithLabelValues(v.Anomaly.String()).Inc()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := verdict.Export(w); err != nil {
		log.Printf("api: Run %v: Unable to write verdict: %v", runId, err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
