package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/wandertours/apiserver/internal/query"
	"github.com/wandertours/apiserver/internal/store"
	"github.com/wandertours/apiserver/types"
)

// Repository is the slice of the store a Resource handler depends on: the
// five primitive operations, nothing more.
type Repository[T any] interface {
	Find(ctx context.Context, spec query.Spec, joins ...store.Join) ([]T, error)
	FindByID(ctx context.Context, id string, scope bson.M, joins ...store.Join) (T, error)
	Insert(ctx context.Context, fields map[string]any, joins ...store.Join) (T, error)
	UpdateByID(ctx context.Context, id string, fields map[string]any, joins ...store.Join) (T, error)
	DeleteByID(ctx context.Context, id string) error
}

// Resource provides the five generic CRUD operations for one record type.
// The same handler serves top-level and nested routes; nested routes narrow
// the result set through ScopeParams.
type Resource[T any] struct {
	Repo   Repository[T]
	Schema types.Schema

	// Scope is a static filter merged into every read (e.g. exclude
	// secret tours).
	Scope bson.M

	// ScopeParams maps URL parameters to filter fields for nested routes,
	// e.g. {"tourID": "tour"} on /tours/{tourID}/reviews. Values are
	// ObjectID hex.
	ScopeParams map[string]string

	// Join directives per operation. WriteJoins shape the record returned
	// by Create and UpdateOne.
	ListJoins  []store.Join
	GetJoins   []store.Join
	WriteJoins []store.Join

	// PreCreate and PreUpdate run after coercion and before validation;
	// they inject server-derived fields (slug, ownership).
	PreCreate func(r *http.Request, doc map[string]any) error
	PreUpdate func(r *http.Request, doc map[string]any) error

	// PostPersist runs after a successful Create or UpdateOne;
	// PostDelete runs after a successful DeleteOne with the record as it
	// was before deletion.
	PostPersist func(ctx context.Context, record T) error
	PostDelete  func(ctx context.Context, record T) error
}

// List executes the translated query against the repository. An empty
// result is a success with zero records.
func (h *Resource[T]) List(w http.ResponseWriter, r *http.Request) {
	spec, err := query.Parse(r.URL.Query(), h.Schema)
	if err != nil {
		writeFailure(w, err)
		return
	}
	scope, err := h.requestScope(r)
	if err != nil {
		writeFailure(w, err)
		return
	}

	records, err := h.Repo.Find(r.Context(), spec.WithFilter(scope), h.ListJoins...)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeList(w, records, len(records))
}

// GetOne returns the record with the requested identifier.
func (h *Resource[T]) GetOne(w http.ResponseWriter, r *http.Request) {
	scope, err := h.requestScope(r)
	if err != nil {
		writeFailure(w, err)
		return
	}

	record, err := h.Repo.FindByID(r.Context(), chi.URLParam(r, "id"), scope, h.GetJoins...)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeData(w, http.StatusOK, record)
}

// Create validates and persists a new record.
func (h *Resource[T]) Create(w http.ResponseWriter, r *http.Request) {
	doc, err := decodeBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body")
		return
	}
	if err := h.Schema.Coerce(doc); err != nil {
		writeFailure(w, err)
		return
	}
	if h.PreCreate != nil {
		if err := h.PreCreate(r, doc); err != nil {
			writeFailure(w, err)
			return
		}
	}
	h.Schema.ApplyDefaults(doc)
	if err := h.Schema.Validate(doc); err != nil {
		writeFailure(w, err)
		return
	}

	record, err := h.Repo.Insert(r.Context(), doc, h.WriteJoins...)
	if err != nil {
		writeFailure(w, err)
		return
	}
	if h.PostPersist != nil {
		if err := h.PostPersist(r.Context(), record); err != nil {
			writeFailure(w, err)
			return
		}
	}
	writeData(w, http.StatusCreated, record)
}

// UpdateOne applies a partial update, re-validating only supplied fields.
func (h *Resource[T]) UpdateOne(w http.ResponseWriter, r *http.Request) {
	doc, err := decodeBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body")
		return
	}
	if err := h.Schema.Coerce(doc); err != nil {
		writeFailure(w, err)
		return
	}
	if h.PreUpdate != nil {
		if err := h.PreUpdate(r, doc); err != nil {
			writeFailure(w, err)
			return
		}
	}
	if err := h.Schema.ValidatePartial(doc); err != nil {
		writeFailure(w, err)
		return
	}

	// An empty patch is a no-op; the store rejects an empty update, so
	// return the record unchanged instead.
	if len(doc) == 0 {
		record, err := h.Repo.FindByID(r.Context(), chi.URLParam(r, "id"), nil, h.WriteJoins...)
		if err != nil {
			writeFailure(w, err)
			return
		}
		writeData(w, http.StatusOK, record)
		return
	}

	record, err := h.Repo.UpdateByID(r.Context(), chi.URLParam(r, "id"), doc, h.WriteJoins...)
	if err != nil {
		writeFailure(w, err)
		return
	}
	if h.PostPersist != nil {
		if err := h.PostPersist(r.Context(), record); err != nil {
			writeFailure(w, err)
			return
		}
	}
	writeData(w, http.StatusOK, record)
}

// DeleteOne removes the record; a missing identifier is NotFound whether or
// not it ever existed, so repeated deletes are safe.
func (h *Resource[T]) DeleteOne(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var deleted T
	if h.PostDelete != nil {
		record, err := h.Repo.FindByID(r.Context(), id, nil, h.GetJoins...)
		if err != nil {
			writeFailure(w, err)
			return
		}
		deleted = record
	}

	if err := h.Repo.DeleteByID(r.Context(), id); err != nil {
		writeFailure(w, err)
		return
	}
	if h.PostDelete != nil {
		if err := h.PostDelete(r.Context(), deleted); err != nil {
			writeFailure(w, err)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Resource[T]) requestScope(r *http.Request) (bson.M, error) {
	if len(h.Scope) == 0 && len(h.ScopeParams) == 0 {
		return h.Scope, nil
	}
	scope := bson.M{}
	for key, value := range h.Scope {
		scope[key] = value
	}
	for param, field := range h.ScopeParams {
		raw := chi.URLParam(r, param)
		if raw == "" {
			continue
		}
		oid, err := bson.ObjectIDFromHex(raw)
		if err != nil {
			return nil, store.ErrInvalidID
		}
		scope[field] = oid
	}
	return scope, nil
}
