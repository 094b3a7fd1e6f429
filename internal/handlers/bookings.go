package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wandertours/apiserver/internal/services"
	"github.com/wandertours/apiserver/internal/store"
	"github.com/wandertours/apiserver/types"
)

// BookingHandler serves the checkout route and admin booking CRUD.
type BookingHandler struct {
	resource Resource[types.Booking]
	svc      *services.BookingService
	auth     *AuthHandler
}

func NewBookingHandler(repo Repository[types.Booking], svc *services.BookingService, auth *AuthHandler) *BookingHandler {
	h := &BookingHandler{svc: svc, auth: auth}
	h.resource = Resource[types.Booking]{
		Repo:        repo,
		Schema:      types.BookingSchema,
		ScopeParams: map[string]string{"tourID": "tour"},
		ListJoins:   []store.Join{services.BookingUserJoin, services.BookingTourJoin},
		GetJoins:    []store.Join{services.BookingUserJoin, services.BookingTourJoin},
		WriteJoins:  []store.Join{services.BookingUserJoin, services.BookingTourJoin},
	}
	return h
}

// Register mounts the booking routes. Checkout is open to any signed-in
// user; the rest is back-office.
func (h *BookingHandler) Register(r chi.Router) {
	r.Use(h.auth.RequireAuth)
	r.Get("/checkout-session/{tourID}", h.Checkout)
	h.registerCRUD(r)
}

// RegisterNested mounts the back-office routes under a tour, where the tour
// identifier comes from the parent route.
func (h *BookingHandler) RegisterNested(r chi.Router) {
	r.Use(h.auth.RequireAuth)
	h.registerCRUD(r)
}

func (h *BookingHandler) registerCRUD(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.auth.RestrictTo(types.RoleAdmin, types.RoleLeadGuide))
		r.Get("/", h.resource.List)
		r.Post("/", h.resource.Create)
		r.Get("/{id}", h.resource.GetOne)
		r.Patch("/{id}", h.resource.UpdateOne)
		r.Delete("/{id}", h.resource.DeleteOne)
	})
}

// Checkout books the tour for the caller at its current price.
func (h *BookingHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, codeUnauthenticated, "You are not logged in. Please log in to get access")
		return
	}

	booking, err := h.svc.CreateCheckout(r.Context(), chi.URLParam(r, "tourID"), principal.ID)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeData(w, http.StatusCreated, booking)
}
