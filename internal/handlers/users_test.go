package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/wandertours/apiserver/internal/query"
	"github.com/wandertours/apiserver/internal/services"
	"github.com/wandertours/apiserver/internal/store"
	"github.com/wandertours/apiserver/types"
)

// Find and DeleteByID round out fakeUserRepo as a user Repository.
func (f *fakeUserRepo) Find(_ context.Context, _ query.Spec, _ ...store.Join) ([]types.User, error) {
	out := make([]types.User, 0, len(f.users))
	for _, user := range f.users {
		out = append(out, user)
	}
	return out, nil
}

func (f *fakeUserRepo) DeleteByID(_ context.Context, id string) error {
	if _, ok := f.users[id]; !ok {
		return store.ErrNotFound
	}
	delete(f.users, id)
	return nil
}

func newTestUsers(repo *fakeUserRepo) *UserHandler {
	return NewUserHandler(repo, services.NewUserService(repo), newTestAuth(repo))
}

func updateMe(h *UserHandler, principal types.User, payload string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPatch, "/updateMe", strings.NewReader(payload))
	req = req.WithContext(WithPrincipal(req.Context(), principal))
	rec := httptest.NewRecorder()
	h.UpdateMe(rec, req)
	return rec
}

func TestUpdateMeNormalizesEmail(t *testing.T) {
	user := types.User{ID: bson.NewObjectID(), Name: "Leo", Email: "leo@example.com", Role: types.RoleUser}
	repo := newFakeUserRepo(user)
	handler := newTestUsers(repo)

	// Addresses are stored lowercased at signup; a self-service update must
	// normalize the same way.
	rec := updateMe(handler, user, `{"name":"Leo M","email":"  New.Address@Example.COM "}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	if repo.lastUpdate["email"] != "new.address@example.com" {
		t.Fatalf("unexpected email written: %v", repo.lastUpdate["email"])
	}
	stored := repo.users[user.ID.Hex()]
	if stored.Email != "new.address@example.com" || stored.Name != "Leo M" {
		t.Fatalf("unexpected stored user: %+v", stored)
	}
}

func TestUpdateMeWithoutChangesSkipsStore(t *testing.T) {
	user := types.User{ID: bson.NewObjectID(), Name: "Leo", Email: "leo@example.com", Role: types.RoleUser}

	// Neither an empty body nor one holding only ignored fields may reach
	// the store as an empty update.
	for _, payload := range []string{`{}`, `{"role":"admin","photo":"hack.jpg"}`} {
		repo := newFakeUserRepo(user)
		handler := newTestUsers(repo)

		rec := updateMe(handler, user, payload)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status %d: %s", payload, rec.Code, rec.Body.String())
		}
		if repo.lastUpdate != nil {
			t.Fatalf("%s: update reached the store: %v", payload, repo.lastUpdate)
		}
		body := decodeEnvelope(t, rec)
		data := body["data"].(map[string]any)["data"].(map[string]any)
		if data["email"] != "leo@example.com" {
			t.Fatalf("%s: unexpected record: %v", payload, data)
		}
		if stored := repo.users[user.ID.Hex()]; stored.Role != types.RoleUser {
			t.Fatalf("%s: ignored field applied: %+v", payload, stored)
		}
	}
}

func TestUpdateMeRejectsPassword(t *testing.T) {
	user := types.User{ID: bson.NewObjectID(), Name: "Leo", Email: "leo@example.com"}
	repo := newFakeUserRepo(user)
	handler := newTestUsers(repo)

	rec := updateMe(handler, user, `{"password":"newpass123"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeEnvelope(t, rec)
	if body["message"] != "This route is not for password updates. Please use /updateMyPassword" {
		t.Fatalf("unexpected message: %v", body["message"])
	}
}
