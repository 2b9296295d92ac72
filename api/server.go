// Package api exposes the exchange over HTTP/JSON plus a websocket feed
// for live events.
package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"tickex/engine"
)

type Server struct {
	exchange *engine.Exchange
	hub      *Hub
	log      zerolog.Logger
	router   *mux.Router
}

func NewServer(exchange *engine.Exchange, hub *Hub, logger zerolog.Logger) *Server {
	s := &Server{
		exchange: exchange,
		hub:      hub,
		log:      logger,
		router:   mux.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router
	r.Use(s.requestID, s.logRequests)

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.handleWS).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()

	v1.HandleFunc("/constants", s.handleConstants).Methods(http.MethodGet)

	v1.HandleFunc("/pairs", s.handleCreatePair).Methods(http.MethodPost)
	v1.HandleFunc("/pairs/{base}/{quote}", s.handleGetOrderbook).Methods(http.MethodGet)
	v1.HandleFunc("/pairs/{base}/{quote}/depth", s.handleDepth).Methods(http.MethodGet)
	v1.HandleFunc("/pairs/{base}/{quote}/levels/{side}/{tick}", s.handleGetTickLevel).Methods(http.MethodGet)
	v1.HandleFunc("/pairs/{base}/{quote}/check", s.handleCheckConsistency).Methods(http.MethodPost)

	v1.HandleFunc("/orders", s.handlePlace).Methods(http.MethodPost)
	v1.HandleFunc("/orders/{id}", s.handleGetOrder).Methods(http.MethodGet)
	v1.HandleFunc("/orders/{id}/cancel", s.handleCancel).Methods(http.MethodPost)
	v1.HandleFunc("/pending/{id}", s.handleGetPendingOrder).Methods(http.MethodGet)
	v1.HandleFunc("/blocks/execute", s.handleExecuteBlock).Methods(http.MethodPost)

	v1.HandleFunc("/swap/exact-in", s.handleSwapExactIn).Methods(http.MethodPost)
	v1.HandleFunc("/swap/exact-out", s.handleSwapExactOut).Methods(http.MethodPost)
	v1.HandleFunc("/quote/exact-in", s.handleQuoteSwapIn).Methods(http.MethodPost)
	v1.HandleFunc("/quote/exact-out", s.handleQuoteSwapOut).Methods(http.MethodPost)

	v1.HandleFunc("/balances/{user}/{token}", s.handleBalanceOf).Methods(http.MethodGet)
	v1.HandleFunc("/balances/deposit", s.handleDeposit).Methods(http.MethodPost)
	v1.HandleFunc("/balances/withdraw", s.handleWithdraw).Methods(http.MethodPost)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
