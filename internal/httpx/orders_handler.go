package httpx

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ariefcatur/go-storefront/internal/catalog"
	kafkax "github.com/ariefcatur/go-storefront/internal/kafka"
	"github.com/ariefcatur/go-storefront/internal/orders"
	"github.com/ariefcatur/go-storefront/internal/redisx"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type OrderRepo interface {
	Create(ctx context.Context, externalID string, req orders.CreateRequest) (orders.Order, bool, error)
	Get(ctx context.Context, id string) (orders.Order, error)
	List(ctx context.Context) ([]orders.Order, error)
	Update(ctx context.Context, id string, req orders.UpdateRequest) (orders.Order, error)
	Delete(ctx context.Context, id string) error
}

type ProductRepo interface {
	Get(ctx context.Context, id string) (catalog.Product, error)
	List(ctx context.Context) ([]catalog.Product, error)
}

type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

// OrdersHandler serves the orders REST API that the storefront consumes.
type OrdersHandler struct {
	Repo       OrderRepo
	Products   ProductRepo
	Producer   Publisher
	Redis      *redis.Client
	Service    string
	AdminToken string
	Log        *zap.Logger
}

type createOrderResp struct {
	Order orders.Order `json:"order"`
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(RequestTimeout))
		r.Get("/api/products", h.listProducts)
		r.Get("/api/products/{id}", h.getProduct)
		r.Post("/api/orders/create", h.createOrder)

		r.Group(func(r chi.Router) {
			r.Use(RequireBearer(h.AdminToken))
			r.Get("/api/orders", h.listOrders)
			r.Get("/api/orders/{id}", h.getOrder)
			r.Put("/api/orders/{id}", h.updateOrder)
			r.Delete("/api/orders/{id}", h.deleteOrder)
		})
	})
}

func (h *OrdersHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ps, err := h.Products.List(ctx)
	if err != nil {
		h.serverError(w, "list products", err)
		return
	}
	if ps == nil {
		ps = []catalog.Product{}
	}
	writeJSON(w, http.StatusOK, ps)
}

func (h *OrdersHandler) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	p, err := h.Products.Get(ctx, chi.URLParam(r, "id"))
	if errors.Is(err, catalog.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		h.serverError(w, "get product", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req orders.CreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := orders.ValidateCreate(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	// Redis is the fast path; the unique external_id in Postgres is the truth.
	key := r.Header.Get("Idempotency-Key")
	idemKey := fmt.Sprintf(redisx.KeyIdemOrderCreate, key)
	if key != "" {
		if id, err := h.Redis.Get(ctx, idemKey).Result(); err == nil && id != "" {
			if o, err := h.Repo.Get(ctx, id); err == nil {
				w.Header().Set("Idempotent-Replayed", "true")
				writeJSON(w, http.StatusOK, createOrderResp{Order: o})
				return
			}
		}
	}

	o, existed, err := h.Repo.Create(ctx, key, req)
	switch {
	case errors.Is(err, orders.ErrPriceChanged):
		writeError(w, http.StatusConflict, err.Error())
		return
	case errors.Is(err, orders.ErrUnknownProduct):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	case err != nil:
		h.serverError(w, "create order", err)
		return
	}

	if key != "" {
		_ = h.Redis.Set(ctx, idemKey, o.ID, redisx.TTLIdempotency).Err()
	}
	if existed {
		w.Header().Set("Idempotent-Replayed", "true")
		writeJSON(w, http.StatusOK, createOrderResp{Order: o})
		return
	}
	h.publish(r, orders.EventOrderCreated, o)
	writeJSON(w, http.StatusCreated, createOrderResp{Order: o})
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	list, err := h.Repo.List(r.Context())
	if err != nil {
		h.serverError(w, "list orders", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.Repo.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, orders.ErrOrderNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		h.serverError(w, "get order", err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) updateOrder(w http.ResponseWriter, r *http.Request) {
	var req orders.UpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	o, err := h.Repo.Update(r.Context(), chi.URLParam(r, "id"), req)
	switch {
	case errors.Is(err, orders.ErrOrderNotFound):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, orders.ErrInvalidStatus),
		errors.Is(err, orders.ErrNegativeAmount),
		errors.Is(err, orders.ErrTotalMismatch):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		h.serverError(w, "update order", err)
		return
	}
	h.publish(r, orders.EventOrderUpdated, o)
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) deleteOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	o, err := h.Repo.Get(r.Context(), id)
	if err == nil {
		err = h.Repo.Delete(r.Context(), id)
	}
	if errors.Is(err, orders.ErrOrderNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		h.serverError(w, "delete order", err)
		return
	}
	h.publish(r, orders.EventOrderDeleted, o)
	w.WriteHeader(http.StatusNoContent)
}

func (h *OrdersHandler) publish(r *http.Request, eventType string, o orders.Order) {
	if h.Producer == nil {
		return
	}
	ev, err := orders.NewEnvelope(eventType, h.Service, middleware.GetReqID(r.Context()), o)
	if err != nil {
		h.log().Error("build event", zap.String("event_type", eventType), zap.Error(err))
		return
	}
	h.Producer.Publish(orders.PartitionKey(o.ID), kafkax.MustMarshal(ev), kafkax.EventHeaders(eventType, ev.EventVersion)...)
}

func (h *OrdersHandler) serverError(w http.ResponseWriter, op string, err error) {
	h.log().Error(op, zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

func (h *OrdersHandler) log() *zap.Logger {
	if h.Log == nil {
		return zap.NewNop()
	}
	return h.Log
}
