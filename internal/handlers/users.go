package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wandertours/apiserver/internal/services"
	"github.com/wandertours/apiserver/types"
)

// UserHandler serves account self-service and admin user management.
type UserHandler struct {
	resource Resource[types.User]
	users    *services.UserService
	auth     *AuthHandler
}

func NewUserHandler(repo Repository[types.User], users *services.UserService, auth *AuthHandler) *UserHandler {
	h := &UserHandler{users: users, auth: auth}
	h.resource = Resource[types.User]{
		Repo:   repo,
		Schema: types.UserSchema,
		Scope:  services.ActiveUserScope,
	}
	return h
}

// Register mounts the user routes: public account flows, signed-in
// self-service, then admin management.
func (h *UserHandler) Register(r chi.Router) {
	r.Post("/signup", h.auth.Signup)
	r.Post("/login", h.auth.Login)
	r.Get("/logout", h.auth.Logout)
	r.Post("/forgotPassword", h.auth.ForgotPassword)
	r.Patch("/resetPassword/{token}", h.auth.ResetPassword)

	r.Group(func(r chi.Router) {
		r.Use(h.auth.RequireAuth)

		r.Patch("/updateMyPassword", h.auth.UpdatePassword)
		r.Get("/me", h.Me)
		r.Patch("/updateMe", h.UpdateMe)
		r.Delete("/deleteMe", h.DeleteMe)

		r.Group(func(r chi.Router) {
			r.Use(h.auth.RestrictTo(types.RoleAdmin))
			r.Get("/", h.resource.List)
			r.Post("/", h.CreateNotSupported)
			r.Get("/{id}", h.resource.GetOne)
			r.Patch("/{id}", h.resource.UpdateOne)
			r.Delete("/{id}", h.resource.DeleteOne)
		})
	})
}

// Me returns the signed-in user's own record.
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, codeUnauthenticated, "You are not logged in. Please log in to get access")
		return
	}
	principal.Password = ""
	writeData(w, http.StatusOK, principal)
}

// UpdateMe changes the caller's own name and email. Password changes go
// through /updateMyPassword; any other submitted field is ignored.
func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
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
	if _, present := doc["password"]; present {
		writeError(w, http.StatusBadRequest, codeBadRequest, "This route is not for password updates. Please use /updateMyPassword")
		return
	}

	filtered := map[string]any{}
	for _, field := range []string{"name", "email"} {
		if value, ok := doc[field]; ok {
			filtered[field] = value
		}
	}
	// Emails are stored lowercased; a case-variant update must normalize
	// the same way signup does or it slips past the unique index.
	if email, ok := filtered["email"].(string); ok {
		filtered["email"] = strings.ToLower(strings.TrimSpace(email))
	}
	if err := types.UserSchema.ValidatePartial(filtered); err != nil {
		writeFailure(w, err)
		return
	}
	if len(filtered) == 0 {
		principal.Password = ""
		writeData(w, http.StatusOK, principal)
		return
	}

	updated, err := h.resource.Repo.UpdateByID(r.Context(), principal.ID.Hex(), filtered)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeData(w, http.StatusOK, updated)
}

// DeleteMe soft-deletes the caller's account.
func (h *UserHandler) DeleteMe(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, codeUnauthenticated, "You are not logged in. Please log in to get access")
		return
	}
	if err := h.users.Deactivate(r.Context(), principal.ID); err != nil {
		writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateNotSupported points admin tooling at the signup flow, which is the
// only way accounts are created.
func (h *UserHandler) CreateNotSupported(w http.ResponseWriter, _ *http.Request) {
	writeError(w, http.StatusInternalServerError, codeInternal, "This route is not defined. Please use /signup instead")
}
