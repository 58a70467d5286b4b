package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/example/ec-stock-reservation/internal/api/middleware"
	"github.com/example/ec-stock-reservation/internal/command"
	"github.com/example/ec-stock-reservation/internal/domain/inventory"
	"github.com/example/ec-stock-reservation/internal/domain/ledger"
	"github.com/example/ec-stock-reservation/internal/domain/order"
	"github.com/example/ec-stock-reservation/internal/domain/product"
	"github.com/example/ec-stock-reservation/internal/infrastructure/redis"
	"github.com/example/ec-stock-reservation/internal/query"
	"go.uber.org/zap"
)

type Handlers struct {
	cmdHandler   *command.Handler
	queryHandler *query.Handler
	logger       *zap.Logger
}

func NewHandlers(cmdHandler *command.Handler, queryHandler *query.Handler, logger *zap.Logger) *Handlers {
	return &Handlers{
		cmdHandler:   cmdHandler,
		queryHandler: queryHandler,
		logger:       logger.Named("api"),
	}
}

type errorResponse struct {
	Error     string `json:"error"`
	ProductID int64  `json:"product_id,omitempty"`
}

// Product Handlers

func (h *Handlers) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var cmd command.CreateProduct
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	cmd.MemberID = middleware.GetMemberID(r.Context())

	p, err := h.cmdHandler.CreateProduct(r.Context(), cmd)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, p)
}

func (h *Handlers) GetProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.queryHandler.ListProducts(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, products)
}

func (h *Handlers) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(w, r)
	if !ok {
		return
	}
	p, err := h.queryHandler.GetProduct(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// GetStock reports the counter and ledger quantities of a product
func (h *Handlers) GetStock(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(w, r)
	if !ok {
		return
	}
	report, err := h.queryHandler.StockReport(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

func (h *Handlers) ReverseStock(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(w, r)
	if !ok {
		return
	}

	var cmd command.ReverseStock
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	cmd.ProductID = id

	remaining, err := h.cmdHandler.ReverseStock(r.Context(), cmd)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]int64{"product_id": id, "remaining": remaining})
}

// Order Handlers

func (h *Handlers) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var lines []command.OrderLine
	if err := json.NewDecoder(r.Body).Decode(&lines); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	placed, err := h.cmdHandler.PlaceOrder(r.Context(), command.PlaceOrder{
		MemberID: middleware.GetMemberID(r.Context()),
		Lines:    lines,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, placed)
}

func (h *Handlers) GetOrders(w http.ResponseWriter, r *http.Request) {
	memberID, admin := viewer(r)
	orders, err := h.queryHandler.ListOrders(r.Context(), memberID, admin)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, orders)
}

func (h *Handlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	memberID, admin := viewer(r)
	o, err := h.queryHandler.GetOrder(r.Context(), r.PathValue("id"), memberID, admin)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

func (h *Handlers) CancelOrder(w http.ResponseWriter, r *http.Request) {
	memberID, admin := viewer(r)
	o, err := h.cmdHandler.CancelOrder(r.Context(), command.CancelOrder{
		OrderID:  r.PathValue("id"),
		MemberID: memberID,
		IsAdmin:  admin,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

// Helper functions

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// respondError maps domain errors to HTTP status codes. Unexpected errors are
// logged and reported without detail.
func (h *Handlers) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	body := errorResponse{Error: err.Error()}

	var rejection *inventory.RejectionError
	if errors.As(err, &rejection) {
		body.ProductID = rejection.ProductID
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Error(err),
		)
		if status == http.StatusInternalServerError {
			body.Error = "internal server error"
		}
	}

	respondJSON(w, status, body)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, inventory.ErrInsufficientStock),
		errors.Is(err, order.ErrOrderCanceled),
		errors.Is(err, order.ErrInvalidStatus),
		errors.Is(err, ledger.ErrAlreadySeeded):
		return http.StatusConflict
	case errors.Is(err, inventory.ErrCounterStoreUnavailable),
		errors.Is(err, command.ErrReversalIncomplete):
		return http.StatusServiceUnavailable
	case errors.Is(err, inventory.ErrInvalidQuantity),
		errors.Is(err, inventory.ErrNoLines),
		errors.Is(err, order.ErrEmptyOrder),
		errors.Is(err, order.ErrInvalidLine),
		errors.Is(err, product.ErrInvalidName),
		errors.Is(err, product.ErrInvalidPrice),
		errors.Is(err, product.ErrInvalidStock),
		errors.Is(err, ledger.ErrInvalidSeed):
		return http.StatusBadRequest
	case errors.Is(err, product.ErrProductNotFound),
		errors.Is(err, order.ErrOrderNotFound),
		errors.Is(err, ledger.ErrEntryNotFound),
		errors.Is(err, redis.ErrCounterNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func productID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid product id"})
		return 0, false
	}
	return id, true
}

// viewer returns the member id and admin flag of the caller
func viewer(r *http.Request) (string, bool) {
	claims, ok := middleware.GetMemberFromContext(r.Context())
	if !ok {
		return "", false
	}
	return claims.MemberID, claims.IsAdmin()
}
