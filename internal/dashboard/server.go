// Package dashboard serves the latest risk snapshot as a JSON API with websocket notifications.
package dashboard

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"defi-risk-lab/internal/classifier"
	"defi-risk-lab/internal/domain"
	"defi-risk-lab/internal/logging"
	"defi-risk-lab/internal/metrics"
	"defi-risk-lab/internal/observability"
	"defi-risk-lab/internal/service"
	"defi-risk-lab/internal/storage"
)

const (
	maxBodyBytes        = 1 << 16
	defaultHistoryLimit = 50
	maxHistoryLimit     = 1000
)

// Provider exposes the latest pipeline state.
type Provider interface {
	Current() *service.State
}

// Server holds the dashboard HTTP handlers.
type Server struct {
	provider Provider
	hub      *Hub
	history  storage.ScoredRecordStore
	logger   logrus.FieldLogger
	metrics  *observability.Metrics
	mux      *http.ServeMux
}

// NewServer creates the dashboard server. hub may be nil to disable /ws.
func NewServer(provider Provider, hub *Hub, logger logrus.FieldLogger) *Server {
	if logger == nil {
		logger = logging.Discard()
	}
	s := &Server{
		provider: provider,
		hub:      hub,
		logger:   logger.WithField("component", "dashboard"),
		mux:      http.NewServeMux(),
	}
	s.routes()
	return s
}

// WithHistory enables GET /api/history backed by store.
func (s *Server) WithHistory(store storage.ScoredRecordStore) *Server {
	s.history = store
	return s
}

// WithMetrics records predictions served.
func (s *Server) WithMetrics(m *observability.Metrics) *Server {
	s.metrics = m
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/protocols", s.handleProtocols)
	s.mux.HandleFunc("GET /api/distribution", s.handleDistribution)
	s.mux.HandleFunc("GET /api/top", s.handleTop)
	s.mux.HandleFunc("GET /api/summary", s.handleSummary)
	s.mux.HandleFunc("GET /api/history", s.handleHistory)
	s.mux.HandleFunc("POST /api/predict", s.handlePredict)
	if s.hub != nil {
		s.mux.HandleFunc("GET /ws", s.hub.HandleWebSocket)
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// HealthResponse is the JSON response for /health.
type HealthResponse struct {
	Status      string     `json:"status"` // ok | starting
	RunID       string     `json:"run_id,omitempty"`
	LastRefresh *time.Time `json:"last_refresh,omitempty"`
	WSClients   int        `json:"ws_clients"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "starting"}
	if st := s.provider.Current(); st != nil {
		resp.Status = "ok"
		resp.RunID = st.Snapshot.RunID
		at := st.Snapshot.CreatedAt
		resp.LastRefresh = &at
	}
	if s.hub != nil {
		resp.WSClients = s.hub.Clients()
	}
	writeJSON(w, http.StatusOK, resp)
}

// ProtocolsResponse is the JSON response for /api/protocols.
type ProtocolsResponse struct {
	RunID     string                `json:"run_id"`
	CreatedAt time.Time             `json:"created_at"`
	Protocols []domain.ScoredRecord `json:"protocols"`
}

func (s *Server) handleProtocols(w http.ResponseWriter, r *http.Request) {
	st, ok := s.current(w)
	if !ok {
		return
	}
	protocols := st.Snapshot.Records
	if protocols == nil {
		protocols = []domain.ScoredRecord{}
	}
	writeJSON(w, http.StatusOK, ProtocolsResponse{
		RunID:     st.Snapshot.RunID,
		CreatedAt: st.Snapshot.CreatedAt,
		Protocols: protocols,
	})
}

func (s *Server) handleDistribution(w http.ResponseWriter, r *http.Request) {
	st, ok := s.current(w)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, st.Summary.Distribution)
}

func (s *Server) handleTop(w http.ResponseWriter, r *http.Request) {
	st, ok := s.current(w)
	if !ok {
		return
	}
	n, err := intParam(r, "n", metrics.DefaultTopN, len(st.Snapshot.Records))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, metrics.TopByMarketCap(st.Snapshot.Table(), n))
}

// SummaryResponse is the JSON response for /api/summary.
type SummaryResponse struct {
	RunID      string            `json:"run_id"`
	CreatedAt  time.Time         `json:"created_at"`
	Accuracy   float64           `json:"accuracy"`
	Evaluation string            `json:"evaluation"`
	Dropped    int               `json:"dropped"`
	Block      *domain.BlockInfo `json:"block,omitempty"`
	Summary    *metrics.Summary  `json:"summary"`
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	st, ok := s.current(w)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, SummaryResponse{
		RunID:      st.Snapshot.RunID,
		CreatedAt:  st.Snapshot.CreatedAt,
		Accuracy:   st.Snapshot.Accuracy,
		Evaluation: st.Snapshot.Evaluation,
		Dropped:    st.Snapshot.Dropped,
		Block:      st.Snapshot.Block,
		Summary:    st.Summary,
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotFound, "score history is not archived")
		return
	}
	name := r.URL.Query().Get("name")
	if name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	limit, err := intParam(r, "limit", defaultHistoryLimit, maxHistoryLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	entries, err := s.history.GetHistory(r.Context(), name, limit)
	if err != nil {
		s.logger.WithError(err).WithField("name", name).Error("history query failed")
		writeError(w, http.StatusInternalServerError, "history unavailable")
		return
	}
	if entries == nil {
		entries = []domain.ScoreHistoryEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// PredictRequest is the body of POST /api/predict. All fields are required.
type PredictRequest struct {
	MarketCap   *float64 `json:"market_cap"`
	TotalVolume *float64 `json:"total_volume"`
	Volatility  *float64 `json:"volatility"`
}

// PredictResponse pairs the classifier label with the scorer's own score for the input.
type PredictResponse struct {
	RiskLabel  domain.RiskLabel `json:"risk_label"`
	Confidence float64          `json:"confidence"`
	RiskScore  float64          `json:"risk_score"`
	ScoreLabel domain.RiskLabel `json:"score_label"`
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	var req PredictRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if req.MarketCap == nil || req.TotalVolume == nil || req.Volatility == nil {
		writeError(w, http.StatusBadRequest, "market_cap, total_volume and volatility are required")
		return
	}
	fv := domain.FeatureVector{
		MarketCap:   *req.MarketCap,
		TotalVolume: *req.TotalVolume,
		Volatility:  *req.Volatility,
	}

	st := s.provider.Current()
	var model *classifier.Model
	if st != nil {
		model = st.Model
	}
	pred, err := model.Classify(fv)
	if err != nil {
		s.writeClassifierError(w, err)
		return
	}
	s.metrics.RecordPrediction(pred.Label.String())

	score := st.Scorer.RiskScore(fv)
	writeJSON(w, http.StatusOK, PredictResponse{
		RiskLabel:  pred.Label,
		Confidence: pred.Confidence,
		RiskScore:  score,
		ScoreLabel: st.Scorer.Label(score),
	})
}

func (s *Server) writeClassifierError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, classifier.ErrModelNotTrained):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, classifier.ErrInsufficientData):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, classifier.ErrInvalidSample):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.WithError(err).Error("prediction failed")
		writeError(w, http.StatusInternalServerError, "prediction failed")
	}
}

// current returns the latest state or writes 503 when no snapshot exists yet.
func (s *Server) current(w http.ResponseWriter) (*service.State, bool) {
	st := s.provider.Current()
	if st == nil || st.Snapshot == nil {
		writeError(w, http.StatusServiceUnavailable, "no snapshot available yet")
		return nil, false
	}
	return st, true
}

// intParam parses a positive integer query parameter, capped at max when max > 0.
func intParam(r *http.Request, key string, fallback, max int) (int, error) {
	v := r.URL.Query().Get(key)
	n := fallback
	if v != "" {
		var err error
		n, err = strconv.Atoi(v)
		if err != nil || n < 1 {
			return 0, fmt.Errorf("%s must be a positive integer", key)
		}
	}
	if max > 0 && n > max {
		n = max
	}
	return n, nil
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
