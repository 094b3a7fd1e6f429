package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wandertours/apiserver/internal/services"
	"github.com/wandertours/apiserver/internal/store"
	"github.com/wandertours/apiserver/types"
)

// ReviewHandler serves review routes, both top-level and nested under a tour.
type ReviewHandler struct {
	resource Resource[types.Review]
	svc      *services.ReviewService
	auth     *AuthHandler
}

func NewReviewHandler(repo Repository[types.Review], svc *services.ReviewService, auth *AuthHandler) *ReviewHandler {
	h := &ReviewHandler{svc: svc, auth: auth}
	h.resource = Resource[types.Review]{
		Repo:        repo,
		Schema:      types.ReviewSchema,
		ScopeParams: map[string]string{"tourID": "tour"},
		ListJoins:   []store.Join{services.ReviewAuthorJoin},
		GetJoins:    []store.Join{services.ReviewAuthorJoin},
		WriteJoins:  []store.Join{services.ReviewAuthorJoin},
		PostPersist: h.syncRatings,
		PostDelete:  h.syncRatings,
	}
	return h
}

func (h *ReviewHandler) syncRatings(ctx context.Context, review types.Review) error {
	return h.svc.SyncTourRatings(ctx, review.Tour)
}

// Register mounts the review routes. All of them require a signed-in caller.
func (h *ReviewHandler) Register(r chi.Router) {
	r.Use(h.auth.RequireAuth)

	r.Get("/", h.resource.List)
	r.With(h.auth.RestrictTo(types.RoleUser)).Post("/", h.Create)

	r.Get("/{id}", h.resource.GetOne)
	r.Group(func(r chi.Router) {
		r.Use(h.auth.RestrictTo(types.RoleUser, types.RoleAdmin))
		r.Patch("/{id}", h.resource.UpdateOne)
		r.Delete("/{id}", h.resource.DeleteOne)
	})
}

// Create writes the caller's review of a tour. A second review of the same
// tour by the same caller updates the first instead of failing.
func (h *ReviewHandler) Create(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, codeUnauthenticated, "You are not logged in. Please log in to get access")
		return
	}

	doc, err := decodeBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body")
		return
	}
	if _, present := doc["tour"]; !present {
		if tourID := chi.URLParam(r, "tourID"); tourID != "" {
			doc["tour"] = tourID
		}
	}
	doc["user"] = principal.ID

	if err := types.ReviewSchema.Coerce(doc); err != nil {
		writeFailure(w, err)
		return
	}
	types.ReviewSchema.ApplyDefaults(doc)
	if err := types.ReviewSchema.Validate(doc); err != nil {
		writeFailure(w, err)
		return
	}

	review, created, err := h.svc.Upsert(r.Context(), doc)
	if err != nil {
		writeFailure(w, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeData(w, status, review)
}
