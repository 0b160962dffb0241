// Package api exposes the thin read-only surface over the summary stores.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"gexpipe/core"
	"gexpipe/db"
	"gexpipe/logger"
	"gexpipe/utils"
)

// Server represents the HTTP API server
type Server struct {
	router *mux.Router
	server *http.Server
	store  *db.TimescaleDB
	log    *logger.Logger
}

// NewServer builds the read API over the summary stores
func NewServer(store *db.TimescaleDB, port string) *Server {
	s := &Server{
		router: mux.NewRouter(),
		store:  store,
		log:    logger.L(),
	}
	s.server = &http.Server{
		Addr:         ":" + port,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/api/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/api/summary/{instrument}", s.handleLatestSummary).Methods(http.MethodGet)
	s.router.HandleFunc("/api/summaries/{instrument}", s.handleSummaryRange).Methods(http.MethodGet)
}

// Start runs the HTTP server until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		s.log.Info("API server listening", map[string]interface{}{
			"addr": s.server.Addr,
		})
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	SendSuccess(w, map[string]string{"status": "ok"}, "")
}

type summaryResponse struct {
	ISTMinute       time.Time `json:"ist_minute"`
	Instrument      string    `json:"instrument"`
	Expiry          string    `json:"expiry"`
	UnderlyingPrice float64   `json:"underlying_price"`
	TotalNetGex     float64   `json:"total_net_gex"`
	GammaFlipLevel  *float64  `json:"gamma_flip_level"`
	OtmCallVega     float64   `json:"otm_call_vega"`
	OtmPutVega      float64   `json:"otm_put_vega"`
	OtmCallTheta    float64   `json:"otm_call_theta"`
	OtmPutTheta     float64   `json:"otm_put_theta"`
	OtmCallDelta    float64   `json:"otm_call_delta"`
	OtmPutDelta     float64   `json:"otm_put_delta"`
}

func toSummaryResponse(s db.Summary) summaryResponse {
	return summaryResponse{
		ISTMinute:       s.ISTMinute,
		Instrument:      s.Instrument,
		Expiry:          s.Expiry.Format(core.ExpiryFormat),
		UnderlyingPrice: s.UnderlyingPrice,
		TotalNetGex:     s.TotalNetGex,
		GammaFlipLevel:  s.GammaFlipLevel,
		OtmCallVega:     s.OtmCallVega,
		OtmPutVega:      s.OtmPutVega,
		OtmCallTheta:    s.OtmCallTheta,
		OtmPutTheta:     s.OtmPutTheta,
		OtmCallDelta:    s.OtmCallDelta,
		OtmPutDelta:     s.OtmPutDelta,
	}
}

func (s *Server) handleLatestSummary(w http.ResponseWriter, r *http.Request) {
	instrument := mux.Vars(r)["instrument"]
	if core.GetInstruments().GetByID(instrument) == nil {
		SendNotFound(w, "Instrument "+instrument)
		return
	}

	latest, err := s.store.LatestSummary(r.Context(), instrument)
	if err != nil {
		s.log.Error("Failed to load latest summary", map[string]interface{}{
			"instrument": instrument,
			"error":      err.Error(),
		})
		SendInternalServerError(w)
		return
	}
	if latest == nil {
		SendNotFound(w, "Summary for "+instrument)
		return
	}

	SendSuccess(w, toSummaryResponse(*latest), "")
}

func (s *Server) handleSummaryRange(w http.ResponseWriter, r *http.Request) {
	instrument := mux.Vars(r)["instrument"]
	if core.GetInstruments().GetByID(instrument) == nil {
		SendNotFound(w, "Instrument "+instrument)
		return
	}

	day := utils.NowIST()
	if v := r.URL.Query().Get("day"); v != "" {
		parsed, err := time.ParseInLocation("2006-01-02", v, utils.IST())
		if err != nil {
			SendError(w, http.StatusBadRequest, "invalid day, expected YYYY-MM-DD", "")
			return
		}
		day = parsed
	}

	historical := r.URL.Query().Get("store") == "historical"

	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, utils.IST())
	to := from.AddDate(0, 0, 1)

	summaries, err := s.store.SummariesBetween(r.Context(), historical, instrument, from, to)
	if err != nil {
		s.log.Error("Failed to load summary range", map[string]interface{}{
			"instrument": instrument,
			"day":        from.Format("2006-01-02"),
			"error":      err.Error(),
		})
		SendInternalServerError(w)
		return
	}

	out := make([]summaryResponse, 0, len(summaries))
	for _, sum := range summaries {
		out = append(out, toSummaryResponse(sum))
	}
	SendSuccess(w, out, "")
}
