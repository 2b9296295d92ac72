package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"tickex/domain/book"
	"tickex/engine"
	"tickex/infra/kv"
)

// displayPrice renders a scaled integer price as a decimal string, e.g.
// 99_900 -> "0.999".
func displayPrice(price int64) string {
	return decimal.New(price, 0).Div(decimal.New(book.PriceScale, 0)).String()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status, code := http.StatusInternalServerError, "internal"
	switch {
	case errors.Is(err, book.ErrInvalidTick),
		errors.Is(err, book.ErrInvalidFlipTick),
		errors.Is(err, book.ErrBelowMinimumSize),
		errors.Is(err, book.ErrInvalidAmount),
		errors.Is(err, book.ErrSameToken),
		errors.Is(err, errBadSide):
		status, code = http.StatusBadRequest, "invalid_request"
	case errors.Is(err, book.ErrOrderNotFound), errors.Is(err, book.ErrPairNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, book.ErrNotOwner):
		status, code = http.StatusForbidden, "not_owner"
	case errors.Is(err, book.ErrAlreadyTerminal), errors.Is(err, book.ErrPairAlreadyExists):
		status, code = http.StatusConflict, "conflict"
	case errors.Is(err, book.ErrInsufficientBalance):
		status, code = http.StatusUnprocessableEntity, "insufficient_balance"
	case errors.Is(err, book.ErrSlippageExceeded):
		status, code = http.StatusUnprocessableEntity, "slippage_exceeded"
	case errors.Is(err, kv.ErrBudgetExceeded):
		status, code = http.StatusTooManyRequests, "resource_budget_exceeded"
	}
	if status == http.StatusInternalServerError {
		s.log.Error().Err(err).Msg("request failed")
	}
	writeJSON(w, status, errorBody{Error: err.Error(), Code: code})
}

func decode(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

var errBadSide = errors.New("side must be bid or ask")

func parseSide(s string) (book.Side, error) {
	switch s {
	case "bid", "buy":
		return book.Bid, nil
	case "ask", "sell":
		return book.Ask, nil
	}
	return 0, errBadSide
}

// -------------------- Constants --------------------

func (s *Server) handleConstants(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"min_tick":       book.MinTick,
		"max_tick":       book.MaxTick,
		"tick_spacing":   book.TickSpacing,
		"price_scale":    book.PriceScale,
		"min_order_size": book.MinOrderSize,
	})
}

// -------------------- Pairs --------------------

type createPairRequest struct {
	Base  string `json:"base"`
	Quote string `json:"quote"`
}

func (s *Server) handleCreatePair(w http.ResponseWriter, r *http.Request) {
	var req createPairRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.exchange.CreatePair(req.Base, req.Quote); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"pair": req.Base + "/" + req.Quote})
}

type orderbookResponse struct {
	Base         string `json:"base"`
	Quote        string `json:"quote"`
	BestBidTick  int32  `json:"best_bid_tick"`
	BestAskTick  int32  `json:"best_ask_tick"`
	BestBidPrice string `json:"best_bid_price,omitempty"`
	BestAskPrice string `json:"best_ask_price,omitempty"`
}

func (s *Server) handleGetOrderbook(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	ob, err := s.exchange.GetOrderbook(vars["base"], vars["quote"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	resp := orderbookResponse{
		Base:        ob.Base,
		Quote:       ob.Quote,
		BestBidTick: ob.BestBidTick,
		BestAskTick: ob.BestAskTick,
	}
	if ob.HasBids() {
		resp.BestBidPrice = displayPrice(book.TickToPrice(ob.BestBidTick))
	}
	if ob.HasAsks() {
		resp.BestAskPrice = displayPrice(book.TickToPrice(ob.BestAskTick))
	}
	writeJSON(w, http.StatusOK, resp)
}

type depthLevel struct {
	Tick      int32  `json:"tick"`
	Price     string `json:"price"`
	Liquidity int64  `json:"liquidity"`
}

func (s *Server) handleDepth(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	side, err := parseSide(r.URL.Query().Get("side"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	maxLevels := 10
	if q := r.URL.Query().Get("levels"); q != "" {
		if n, err := strconv.Atoi(q); err == nil && n > 0 && n <= 100 {
			maxLevels = n
		}
	}
	levels, err := s.exchange.Depth(vars["base"], vars["quote"], side, maxLevels)
	if err != nil {
		s.writeError(w, err)
		return
	}
	out := make([]depthLevel, 0, len(levels))
	for _, l := range levels {
		out = append(out, depthLevel{
			Tick:      l.Tick,
			Price:     displayPrice(l.Price),
			Liquidity: l.Liquidity,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"side": side.String(), "levels": out})
}

func (s *Server) handleGetTickLevel(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	side, err := parseSide(vars["side"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	tick64, err := strconv.ParseInt(vars["tick"], 10, 32)
	if err != nil {
		s.writeError(w, book.ErrInvalidTick)
		return
	}
	level, err := s.exchange.GetTickLevel(vars["base"], vars["quote"], side, int32(tick64))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tick":            int32(tick64),
		"price":           displayPrice(book.TickToPrice(int32(tick64))),
		"head":            level.Head,
		"tail":            level.Tail,
		"total_liquidity": level.TotalLiquidity,
	})
}

func (s *Server) handleCheckConsistency(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := s.exchange.CheckConsistency(vars["base"], vars["quote"]); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "consistent"})
}

// -------------------- Orders --------------------

type placeRequest struct {
	Maker    string `json:"maker"`
	Base     string `json:"base"`
	Quote    string `json:"quote"`
	Side     string `json:"side"`
	Tick     int32  `json:"tick"`
	Amount   int64  `json:"amount"`
	Flip     bool   `json:"flip"`
	FlipTick int32  `json:"flip_tick"`
}

func (s *Server) handlePlace(w http.ResponseWriter, r *http.Request) {
	var req placeRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	side, err := parseSide(req.Side)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var id uint64
	if req.Flip {
		id, err = s.exchange.PlaceFlip(req.Maker, req.Base, req.Quote, side, req.Tick, req.Amount, req.FlipTick)
	} else {
		id, err = s.exchange.Place(req.Maker, req.Base, req.Quote, side, req.Tick, req.Amount)
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"order_id": id})
}

type orderResponse struct {
	ID        uint64 `json:"id"`
	Maker     string `json:"maker"`
	Base      string `json:"base"`
	Quote     string `json:"quote"`
	Side      string `json:"side"`
	State     string `json:"state"`
	Tick      int32  `json:"tick"`
	Price     string `json:"price"`
	Amount    int64  `json:"amount"`
	Remaining int64  `json:"remaining"`
	Flip      bool   `json:"flip,omitempty"`
	FlipTick  int32  `json:"flip_tick,omitempty"`
}

func orderToResponse(o *book.Order) orderResponse {
	return orderResponse{
		ID:        o.ID,
		Maker:     o.Maker,
		Base:      o.Base,
		Quote:     o.Quote,
		Side:      o.Side.String(),
		State:     o.State.String(),
		Tick:      o.Tick,
		Price:     displayPrice(book.TickToPrice(o.Tick)),
		Amount:    o.Amount,
		Remaining: o.Remaining,
		Flip:      o.Flip,
		FlipTick:  o.FlipTick,
	}
}

func parseOrderID(r *http.Request) (uint64, error) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		return 0, book.ErrOrderNotFound
	}
	return id, nil
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := parseOrderID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	o, err := s.exchange.GetOrder(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orderToResponse(o))
}

func (s *Server) handleGetPendingOrder(w http.ResponseWriter, r *http.Request) {
	id, err := parseOrderID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	o, err := s.exchange.GetPendingOrder(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orderToResponse(o))
}

type cancelRequest struct {
	Maker string `json:"maker"`
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, err := parseOrderID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req cancelRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	res, err := s.exchange.Cancel(req.Maker, id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"refund":   res.Refund,
		"token":    res.Token,
		"accesses": res.Accesses,
	})
}

type executeBlockRequest struct {
	Base     string   `json:"base"`
	Quote    string   `json:"quote"`
	OrderIDs []uint64 `json:"order_ids"`
}

func (s *Server) handleExecuteBlock(w http.ResponseWriter, r *http.Request) {
	var req executeBlockRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	res, err := s.exchange.ExecuteBlock(req.Base, req.Quote, req.OrderIDs)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"activated": res.Activated,
		"accesses":  res.Accesses,
	})
}

// -------------------- Swaps --------------------

type swapRequest struct {
	Taker    string `json:"taker"`
	Base     string `json:"base"`
	Quote    string `json:"quote"`
	IsBuy    bool   `json:"is_buy"`
	Amount   int64  `json:"amount"`
	Limit    int64  `json:"limit"` // min out for exact-in, max in for exact-out
	MaxTicks int    `json:"max_ticks"`
}

func (s *Server) handleSwapExactIn(w http.ResponseWriter, r *http.Request) {
	var req swapRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	res, err := s.exchange.SwapExactIn(req.Taker, req.Base, req.Quote, req.IsBuy, req.Amount, req.Limit, req.MaxTicks)
	s.writeSwap(w, res, err)
}

func (s *Server) handleSwapExactOut(w http.ResponseWriter, r *http.Request) {
	var req swapRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	res, err := s.exchange.SwapExactOut(req.Taker, req.Base, req.Quote, req.IsBuy, req.Amount, req.Limit, req.MaxTicks)
	s.writeSwap(w, res, err)
}

func (s *Server) handleQuoteSwapIn(w http.ResponseWriter, r *http.Request) {
	var req swapRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	res, err := s.exchange.QuoteSwapIn(req.Base, req.Quote, req.IsBuy, req.Amount)
	s.writeSwap(w, res, err)
}

func (s *Server) handleQuoteSwapOut(w http.ResponseWriter, r *http.Request) {
	var req swapRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	res, err := s.exchange.QuoteSwapOut(req.Base, req.Quote, req.IsBuy, req.Amount)
	s.writeSwap(w, res, err)
}

func (s *Server) writeSwap(w http.ResponseWriter, res engine.SwapResult, err error) {
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"amount_in":  res.AmountIn,
		"amount_out": res.AmountOut,
		"accesses":   res.Accesses,
	})
}

// -------------------- Ledger --------------------

type ledgerRequest struct {
	User   string `json:"user"`
	Token  string `json:"token"`
	Amount int64  `json:"amount"`
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req ledgerRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.exchange.Deposit(req.User, req.Token, req.Amount); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req ledgerRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.exchange.Withdraw(req.User, req.Token, req.Amount); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleBalanceOf(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	bal, err := s.exchange.BalanceOf(vars["user"], vars["token"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user":    vars["user"],
		"token":   vars["token"],
		"balance": bal,
	})
}
