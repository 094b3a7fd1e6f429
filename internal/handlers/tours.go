package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/wandertours/apiserver/internal/services"
	"github.com/wandertours/apiserver/internal/store"
	"github.com/wandertours/apiserver/types"
)

// TourHandler serves tour CRUD plus the analytics and geospatial routes.
type TourHandler struct {
	resource Resource[types.Tour]
	svc      *services.TourService
	auth     *AuthHandler
}

func NewTourHandler(repo Repository[types.Tour], svc *services.TourService, auth *AuthHandler) *TourHandler {
	h := &TourHandler{svc: svc, auth: auth}
	h.resource = Resource[types.Tour]{
		Repo:       repo,
		Schema:     types.TourSchema,
		Scope:      services.PublicTourScope,
		ListJoins:  []store.Join{services.GuidesJoin},
		GetJoins:   []store.Join{services.GuidesJoin, services.TourReviewsJoin},
		WriteJoins: []store.Join{services.GuidesJoin},
		PreCreate:  setSlug,
		PreUpdate:  setSlug,
	}
	return h
}

// setSlug derives the URL slug whenever a name is supplied.
func setSlug(_ *http.Request, doc map[string]any) error {
	if name, ok := doc["name"].(string); ok && name != "" {
		doc["slug"] = services.Slugify(name)
	}
	return nil
}

// Register mounts the tour routes. Nested review and booking routes are
// mounted by the server so their handlers stay self-contained.
func (h *TourHandler) Register(r chi.Router) {
	r.With(aliasTopTours).Get("/top-5-cheap", h.resource.List)
	r.Get("/tour-stats", h.Stats)
	r.With(h.auth.RequireAuth, h.auth.RestrictTo(types.RoleAdmin, types.RoleLeadGuide, types.RoleGuide)).
		Get("/monthly-plan/{year}", h.MonthlyPlan)
	r.Get("/tours-within/{distance}/center/{latlng}/unit/{unit}", h.Within)
	r.Get("/distances/{latlng}/unit/{unit}", h.Distances)

	r.Get("/", h.resource.List)
	r.Get("/{id}", h.resource.GetOne)

	r.Group(func(r chi.Router) {
		r.Use(h.auth.RequireAuth, h.auth.RestrictTo(types.RoleAdmin, types.RoleLeadGuide))
		r.Post("/", h.resource.Create)
		r.Patch("/{id}", h.resource.UpdateOne)
		r.Delete("/{id}", h.resource.DeleteOne)
	})
}

// aliasTopTours rewrites the request query to the canonical "top 5 cheap"
// listing before the generic list handler runs.
func aliasTopTours(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		q.Set("limit", "5")
		q.Set("sort", "-ratingsAverage,price")
		q.Set("fields", "name,price,ratingsAverage,summary,difficulty")
		r.URL.RawQuery = q.Encode()
		next.ServeHTTP(w, r)
	})
}

func (h *TourHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Stats(r.Context())
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{
		Status: "success",
		Data:   map[string]any{"stats": stats},
	})
}

func (h *TourHandler) MonthlyPlan(w http.ResponseWriter, r *http.Request) {
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid year")
		return
	}
	plan, err := h.svc.MonthlyPlan(r.Context(), year)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{
		Status: "success",
		Data:   map[string]any{"plan": plan},
	})
}

func (h *TourHandler) Within(w http.ResponseWriter, r *http.Request) {
	distance, err := strconv.ParseFloat(chi.URLParam(r, "distance"), 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid distance")
		return
	}
	lat, lng, err := services.ParseLatLng(chi.URLParam(r, "latlng"))
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Please provide latitude and longitude in the format lat,lng")
		return
	}

	tours, err := h.svc.Within(r.Context(), distance, lat, lng, chi.URLParam(r, "unit"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeList(w, tours, len(tours))
}

func (h *TourHandler) Distances(w http.ResponseWriter, r *http.Request) {
	lat, lng, err := services.ParseLatLng(chi.URLParam(r, "latlng"))
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Please provide latitude and longitude in the format lat,lng")
		return
	}

	distances, err := h.svc.Distances(r.Context(), lat, lng, chi.URLParam(r, "unit"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{
		Status: "success",
		Data:   map[string]any{"distances": distances},
	})
}
