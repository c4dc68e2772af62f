// Package webhook exposes the HTTP signal intake plus read-only P&L and
// trade-log snapshots.
package webhook

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"windowtrader/internal/engine"
	"windowtrader/internal/machine"
	"windowtrader/internal/signal"
	"windowtrader/internal/sizing"
)

// Server translates HTTP requests into engine calls.
type Server struct {
	eng *engine.Engine
	log zerolog.Logger
}

// NewServer builds the webhook surface over the engine.
func NewServer(eng *engine.Engine, log zerolog.Logger) *Server {
	return &Server{eng: eng, log: log}
}

// Serve starts the HTTP listener in the background.
func (s *Server) Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	route := func(method, path string, h http.HandlerFunc) {
		mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
			if r.Method != method {
				http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
				return
			}
			h(w, r)
		})
	}
	route(http.MethodPost, "/signal", s.handleSignal)
	route(http.MethodGet, "/pnl", s.handlePnL)
	route(http.MethodGet, "/trades", s.handleTrades)
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}

type structuredSignal struct {
	Symbol  string  `json:"sym"`
	Side    string  `json:"side"`
	AtPrice float64 `json:"at_price"`
	Reason  string  `json:"reason"`
}

type signalResponse struct {
	Accepted bool   `json:"accepted"`
	Ignored  bool   `json:"ignored,omitempty"`
	Deferred bool   `json:"deferred,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// handleSignal accepts either a structured JSON record or a free-text alert
// payload.
func (s *Server) handleSignal(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<16))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}

	sig, err := decodeSignal(body, time.Now())
	if err != nil {
		s.log.Warn().Err(err).Msg("rejected signal payload")
		writeJSON(w, http.StatusBadRequest, signalResponse{Reason: "invalid_signal"})
		return
	}

	res, err := s.eng.SubmitSignal(sig)
	switch {
	case errors.Is(err, sizing.ErrUnknownUnderlying):
		writeJSON(w, http.StatusBadRequest, signalResponse{Reason: res.Reason})
	case errors.Is(err, machine.ErrNoPrice):
		writeJSON(w, http.StatusConflict, signalResponse{Reason: res.Reason})
	case err != nil:
		writeJSON(w, http.StatusBadRequest, signalResponse{Reason: res.Reason})
	case res.Accepted:
		writeJSON(w, http.StatusOK, signalResponse{Accepted: true})
	default:
		writeJSON(w, http.StatusOK, signalResponse{Ignored: !res.Deferred, Deferred: res.Deferred, Reason: res.Reason})
	}
}

func decodeSignal(body []byte, now time.Time) (signal.Signal, error) {
	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "{") {
		var structured structuredSignal
		if err := json.Unmarshal(body, &structured); err != nil {
			return signal.Signal{}, signal.ErrInvalidSignal
		}
		side := signal.Side(strings.ToUpper(structured.Side))
		if structured.Symbol == "" || (side != signal.Buy && side != signal.Sell) {
			return signal.Signal{}, signal.ErrInvalidSignal
		}
		return signal.Signal{
			Symbol:  structured.Symbol,
			Side:    side,
			Ts:      now,
			AtPrice: structured.AtPrice,
			Reason:  structured.Reason,
		}, nil
	}
	return signal.ParseText(trimmed, now)
}

func (s *Server) handlePnL(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.eng.PnL())
}

func (s *Server) handleTrades(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.eng.Trades())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
