package httpx

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/ariefcatur/go-storefront/internal/backend"
	"github.com/ariefcatur/go-storefront/internal/orders"
	"github.com/ariefcatur/go-storefront/internal/ordertable"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// StatsCache is a recent copy of the order statistics kept by another process.
type StatsCache interface {
	CachedStats(ctx context.Context) (orders.Stats, bool, error)
}

// Admin serves the order console. The engine's projection is shared by every
// admin; view state lives in Table. Cached, when set, answers stats before the
// projection has loaded.
type Admin struct {
	Engine *orders.Engine
	Table  *ordertable.Table
	Cached StatsCache
	Token  string
	Log    *zap.Logger
}

func (a *Admin) Register(r chi.Router) {
	r.Route("/admin/orders", func(r chi.Router) {
		r.Use(RequireBearer(a.Token), middleware.Timeout(RequestTimeout))
		r.Get("/", a.list)
		r.Get("/stats", a.stats)
		r.Post("/select-all", a.selectAll)
		r.Put("/hover", a.hover)
		r.Put("/{id}", a.update)
		r.Delete("/{id}", a.delete)
		r.Post("/{id}/expand", a.expand)
		r.Post("/{id}/select", a.selectRow)
	})
}

func parseFilter(r *http.Request) (orders.Filter, error) {
	q := r.URL.Query()
	f := orders.Filter{Search: q.Get("search")}
	if s := q.Get("status"); s != "" {
		st, err := orders.ParseStatus(s)
		if err != nil {
			return f, err
		}
		f.Status = st
	}
	if s := q.Get("paymentStatus"); s != "" {
		ps, err := orders.ParsePaymentStatus(s)
		if err != nil {
			return f, err
		}
		f.PaymentStatus = ps
	}
	w, err := orders.ParseDateWindow(q.Get("window"))
	if err != nil {
		return f, err
	}
	f.Window = w
	return f, nil
}

type listResp struct {
	Rows  []ordertable.Row `json:"rows"`
	Stats orders.Stats     `json:"stats"`
}

// list reloads from the backend, then filters. A failed reload keeps the
// previous projection and reports the error.
func (a *Admin) list(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.Engine.Refresh(r.Context()); err != nil {
		a.backendError(w, err)
		return
	}
	visible := a.Engine.List(f)
	writeJSON(w, http.StatusOK, listResp{Rows: a.Table.Rows(visible), Stats: a.Engine.Stats()})
}

func (a *Admin) stats(w http.ResponseWriter, r *http.Request) {
	if !a.Engine.Loaded() && a.Cached != nil {
		st, ok, err := a.Cached.CachedStats(r.Context())
		if err != nil && a.Log != nil {
			a.Log.Warn("cached stats unavailable", zap.Error(err))
		}
		if ok {
			w.Header().Set("X-Stats-Source", "cache")
			writeJSON(w, http.StatusOK, st)
			return
		}
	}
	if !a.Engine.Loaded() {
		if err := a.Engine.Refresh(r.Context()); err != nil {
			a.backendError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, a.Engine.Stats())
}

func (a *Admin) update(w http.ResponseWriter, r *http.Request) {
	var p orders.Patch
	if err := decodeJSON(r, &p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	o, err := a.Engine.Update(r.Context(), chi.URLParam(r, "id"), p)
	switch {
	case errors.Is(err, orders.ErrInvalidStatus), errors.Is(err, orders.ErrNegativeAmount):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, orders.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, orders.ErrOrderNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case err != nil:
		a.backendError(w, err)
	default:
		writeJSON(w, http.StatusOK, o)
	}
}

func (a *Admin) delete(w http.ResponseWriter, r *http.Request) {
	confirmed, _ := strconv.ParseBool(r.URL.Query().Get("confirm"))
	err := a.Engine.Delete(r.Context(), chi.URLParam(r, "id"), confirmed)
	switch {
	case errors.Is(err, orders.ErrConfirmationRequired):
		writeError(w, http.StatusPreconditionRequired, err.Error())
	case err != nil:
		a.backendError(w, err)
	default:
		a.Table.Prune(a.Engine.Orders())
		w.WriteHeader(http.StatusNoContent)
	}
}

func (a *Admin) expand(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := a.Engine.Get(id); !ok {
		writeError(w, http.StatusNotFound, orders.ErrOrderNotFound.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"expanded": a.Table.ToggleExpand(id)})
}

func (a *Admin) selectRow(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := a.Engine.Get(id); !ok {
		writeError(w, http.StatusNotFound, orders.ErrOrderNotFound.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"selected": a.Table.ToggleSelect(id)})
}

// selectAll takes the same filter query as list and toggles only those rows.
func (a *Admin) selectAll(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	a.Table.SelectAll(a.Engine.List(f))
	selected := a.Table.Selected(a.Engine.Orders())
	if selected == nil {
		selected = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"selected": selected})
}

func (a *Admin) hover(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID string `json:"id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	a.Table.Hover(req.ID)
	w.WriteHeader(http.StatusNoContent)
}

func (a *Admin) backendError(w http.ResponseWriter, err error) {
	if st := backend.StatusOf(err); st >= 400 && st < 500 {
		writeError(w, st, err.Error())
		return
	}
	if a.Log != nil {
		a.Log.Warn("order backend call failed", zap.Error(err))
	}
	writeError(w, http.StatusBadGateway, err.Error())
}
