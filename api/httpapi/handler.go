// Package httpapi is the HTTP ingress: request decoding, validation and
// error mapping around the Router. All matching semantics live below it.
package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"scalex/service"
)

type Handler struct {
	log      *zap.Logger
	router   *service.Router
	validate *validator.Validate
}

func New(log *zap.Logger, router *service.Router) *Handler {
	return &Handler{
		log:      log,
		router:   router,
		validate: validator.New(),
	}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Route("/orders", func(r chi.Router) {
			r.Post("/limit", h.postLimitOrder)
			r.Post("/market", h.postMarketOrder)
			r.Post("/cancel", h.postCancel)
			r.Post("/cancel/batch", h.postBatchCancel)
			r.Get("/{pool}/{id}", h.getOrder)
		})
		r.Route("/book/{pool}", func(r chi.Router) {
			r.Get("/queue", h.getQueue)
			r.Get("/best", h.getBestPrice)
			r.Get("/next", h.getNextBestPrices)
			r.Get("/depth", h.getDepth)
		})
		r.Route("/operators", func(r chi.Router) {
			r.Post("/approve", h.postApproveOperator)
			r.Post("/revoke", h.postRevokeOperator)
		})
		r.Route("/pools/{pool}", func(r chi.Router) {
			r.Post("/pause", h.postPause)
			r.Post("/resume", h.postResume)
		})
	})
	return r
}

// decode unmarshals and validates a request body; a false return means
// the response has been written.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.log.Debug("request decode failed", zap.Error(err))
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request format"})
		return false
	}
	if err := h.validate.Struct(v); err != nil {
		h.log.Debug("request validation failed", zap.Error(err))
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request parameters"})
		return false
	}
	return true
}

func (h *Handler) postLimitOrder(w http.ResponseWriter, r *http.Request) {
	var req LimitOrderRequest
	if !h.decode(w, r, &req) {
		return
	}
	side, err := parseSide(req.Side)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	tif, err := parseTIF(req.TIF)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	res, err := h.router.PlaceLimitOrder(service.LimitOrder{
		Pool:       req.Pool,
		Owner:      req.Owner,
		Side:       side,
		TIF:        tif,
		Price:      req.Price,
		Quantity:   req.Quantity,
		Expiry:     req.Expiry,
		Deposit:    req.Deposit,
		AutoBorrow: req.AutoBorrow,
		AutoRepay:  req.AutoRepay,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, placeResponse(res))
}

func (h *Handler) postMarketOrder(w http.ResponseWriter, r *http.Request) {
	var req MarketOrderRequest
	if !h.decode(w, r, &req) {
		return
	}
	side, err := parseSide(req.Side)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	res, err := h.router.PlaceMarketOrder(service.MarketOrder{
		Pool:       req.Pool,
		Owner:      req.Owner,
		Side:       side,
		Quantity:   req.Quantity,
		MinOut:     req.MinOut,
		Deposit:    req.Deposit,
		AutoBorrow: req.AutoBorrow,
		AutoRepay:  req.AutoRepay,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, placeResponse(res))
}

func (h *Handler) postCancel(w http.ResponseWriter, r *http.Request) {
	var req CancelRequest
	if !h.decode(w, r, &req) {
		return
	}
	o, err := h.router.CancelOrder(req.Pool, req.OrderID, req.Caller)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orderResponse(o))
}

func (h *Handler) postBatchCancel(w http.ResponseWriter, r *http.Request) {
	var req BatchCancelRequest
	if !h.decode(w, r, &req) {
		return
	}
	results := h.router.BatchCancelOrders(req.Pool, req.OrderIDs, req.Caller)
	out := BatchCancelResponse{Results: make([]CancelResultResponse, 0, len(results))}
	for _, res := range results {
		cr := CancelResultResponse{OrderID: res.OrderID, OK: res.Err == nil}
		if res.Err != nil {
			cr.Error = res.Err.Error()
		}
		out.Results = append(out.Results, cr)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	pool := chi.URLParam(r, "pool")
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid order id"})
		return
	}
	o, err := h.router.GetOrder(pool, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orderResponse(o))
}

func (h *Handler) getQueue(w http.ResponseWriter, r *http.Request) {
	pool := chi.URLParam(r, "pool")
	side, err := parseSide(r.URL.Query().Get("side"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	price, err := strconv.ParseInt(r.URL.Query().Get("price"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid price"})
		return
	}
	lvl, err := h.router.GetOrderQueue(pool, side, price)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, levelResponse(lvl))
}

func (h *Handler) getBestPrice(w http.ResponseWriter, r *http.Request) {
	pool := chi.URLParam(r, "pool")
	side, err := parseSide(r.URL.Query().Get("side"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	lvl, err := h.router.GetBestPrice(pool, side)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, levelResponse(lvl))
}

func (h *Handler) getNextBestPrices(w http.ResponseWriter, r *http.Request) {
	pool := chi.URLParam(r, "pool")
	side, err := parseSide(r.URL.Query().Get("side"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	from, err := strconv.ParseInt(r.URL.Query().Get("from"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid from price"})
		return
	}
	count, err := strconv.Atoi(r.URL.Query().Get("count"))
	if err != nil || count <= 0 {
		count = 1
	}
	levels, err := h.router.GetNextBestPrices(pool, side, from, count)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, levelResponses(levels))
}

func (h *Handler) getDepth(w http.ResponseWriter, r *http.Request) {
	pool := chi.URLParam(r, "pool")
	depth, err := strconv.Atoi(r.URL.Query().Get("levels"))
	if err != nil || depth <= 0 {
		depth = 20
	}
	bids, asks, err := h.router.Depth(pool, depth)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, DepthResponse{
		Pool: pool,
		Bids: levelResponses(bids),
		Asks: levelResponses(asks),
	})
}

func (h *Handler) postApproveOperator(w http.ResponseWriter, r *http.Request) {
	var req OperatorRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.router.ApproveOperator(req.Owner, req.Operator)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) postRevokeOperator(w http.ResponseWriter, r *http.Request) {
	var req OperatorRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.router.RevokeOperator(req.Owner, req.Operator)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) postPause(w http.ResponseWriter, r *http.Request) {
	if err := h.router.PausePool(chi.URLParam(r, "pool")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) postResume(w http.ResponseWriter, r *http.Request) {
	if err := h.router.ResumePool(chi.URLParam(r, "pool")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
