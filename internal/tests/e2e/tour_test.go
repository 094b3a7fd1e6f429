//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/wandertours/apiserver/config"
	"github.com/wandertours/apiserver/internal/server"
	"github.com/wandertours/apiserver/internal/store"
)

const (
	serverPort = 18080
	dbName     = "wandertours_e2e"
)

func TestMain(m *testing.M) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	root, err := repoRoot()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to locate repo root: %v\n", err)
		os.Exit(1)
	}

	if err := dockerCompose(ctx, root, "up", "-d"); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start docker compose: %v\n", err)
		os.Exit(1)
	}

	if err := waitForMongo(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "mongo not ready: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	if err := ensureIndexes(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "failed to ensure indexes: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	srv, err := startServer()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start server: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	baseURL := fmt.Sprintf("http://localhost:%d", serverPort)
	if err := waitForHealth(ctx, baseURL+"/healthz"); err != nil {
		fmt.Fprintf(os.Stderr, "server not healthy: %v\n", err)
		_ = srv.Shutdown()
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	code := m.Run()

	_ = srv.Shutdown()
	_ = dockerCompose(context.Background(), root, "down")
	os.Exit(code)
}

func TestTourLifecycle(t *testing.T) {
	baseURL := fmt.Sprintf("http://localhost:%d", serverPort)
	email := fmt.Sprintf("admin_%d@example.com", time.Now().UnixNano())
	password := "testpass123!"

	token, err := signup(t, baseURL, "Test Admin", email, password)
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	if err := promoteToAdmin(email); err != nil {
		t.Fatalf("promote user: %v", err)
	}
	// Roles are checked per request, so the old token picks up the new role.

	name := fmt.Sprintf("The E2E Test Tour %d", time.Now().Unix()%100000)
	created, err := createTour(t, baseURL, token, name)
	if err != nil {
		t.Fatalf("create tour: %v", err)
	}
	if created.Name != name {
		t.Fatalf("unexpected tour name: %q", created.Name)
	}
	if created.Slug == "" || !strings.HasPrefix(created.Slug, "the-e2e-test-tour") {
		t.Fatalf("slug not derived: %q", created.Slug)
	}
	if created.RatingsAverage != 4.5 {
		t.Fatalf("default rating not applied: %v", created.RatingsAverage)
	}

	fetched, err := getTour(t, baseURL, created.ID)
	if err != nil {
		t.Fatalf("get tour: %v", err)
	}
	if fetched.ID != created.ID {
		t.Fatalf("unexpected tour id: %s", fetched.ID)
	}

	listed, err := listTours(t, baseURL, "difficulty=easy&price[lt]=1000&sort=-price")
	if err != nil {
		t.Fatalf("list tours: %v", err)
	}
	found := false
	for _, tour := range listed {
		if tour.ID == created.ID {
			found = true
		}
	}
	if !found {
		t.Fatalf("created tour missing from filtered listing")
	}

	updated, err := updateTour(t, baseURL, token, created.ID, map[string]any{"price": 750})
	if err != nil {
		t.Fatalf("update tour: %v", err)
	}
	if updated.Price != 750 {
		t.Fatalf("unexpected updated price: %v", updated.Price)
	}

	if err := deleteTour(t, baseURL, token, created.ID); err != nil {
		t.Fatalf("delete tour: %v", err)
	}
	if _, err := getTour(t, baseURL, created.ID); err == nil {
		t.Fatalf("expected deleted tour to be missing")
	}
}

type tourResponse struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Slug           string  `json:"slug"`
	Price          float64 `json:"price"`
	RatingsAverage float64 `json:"ratingsAverage"`
}

type dataEnvelope struct {
	Status string `json:"status"`
	Token  string `json:"token"`
	Data   struct {
		Data json.RawMessage `json:"data"`
	} `json:"data"`
}

func signup(t *testing.T, baseURL, name, email, password string) (string, error) {
	t.Helper()

	payload := map[string]string{
		"name":            name,
		"email":           email,
		"password":        password,
		"passwordConfirm": password,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	resp, err := http.Post(baseURL+"/api/v1/users/signup", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("signup status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var parsed dataEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", err
	}
	if parsed.Token == "" {
		return "", fmt.Errorf("missing token in signup response")
	}
	return parsed.Token, nil
}

func promoteToAdmin(email string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := mongo.Connect(options.Client().ApplyURI(mongoURI()))
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Disconnect(ctx)
	}()

	_, err = client.Database(dbName).Collection("users").
		UpdateOne(ctx, bson.M{"email": email}, bson.M{"$set": bson.M{"role": "admin"}})
	return err
}

func createTour(t *testing.T, baseURL, token, name string) (tourResponse, error) {
	t.Helper()

	payload := map[string]any{
		"name":         name,
		"duration":     5,
		"maxGroupSize": 25,
		"difficulty":   "easy",
		"price":        "497",
		"summary":      "A test tour",
		"imageCover":   "cover.jpg",
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return tourResponse{}, err
	}

	req, err := http.NewRequest(http.MethodPost, baseURL+"/api/v1/tours", bytes.NewReader(body))
	if err != nil {
		return tourResponse{}, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return tourResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(resp.Body)
		return tourResponse{}, fmt.Errorf("create tour status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return decodeTour(resp.Body)
}

func getTour(t *testing.T, baseURL, id string) (tourResponse, error) {
	t.Helper()

	resp, err := http.Get(baseURL + "/api/v1/tours/" + id)
	if err != nil {
		return tourResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return tourResponse{}, fmt.Errorf("get tour status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return decodeTour(resp.Body)
}

func listTours(t *testing.T, baseURL, rawQuery string) ([]tourResponse, error) {
	t.Helper()

	resp, err := http.Get(baseURL + "/api/v1/tours?" + rawQuery)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("list tours status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var parsed dataEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, err
	}
	var tours []tourResponse
	if err := json.Unmarshal(parsed.Data.Data, &tours); err != nil {
		return nil, err
	}
	return tours, nil
}

func updateTour(t *testing.T, baseURL, token, id string, fields map[string]any) (tourResponse, error) {
	t.Helper()

	body, err := json.Marshal(fields)
	if err != nil {
		return tourResponse{}, err
	}

	req, err := http.NewRequest(http.MethodPatch, baseURL+"/api/v1/tours/"+id, bytes.NewReader(body))
	if err != nil {
		return tourResponse{}, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return tourResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return tourResponse{}, fmt.Errorf("update tour status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return decodeTour(resp.Body)
}

func deleteTour(t *testing.T, baseURL, token, id string) error {
	t.Helper()

	req, err := http.NewRequest(http.MethodDelete, baseURL+"/api/v1/tours/"+id, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("delete tour status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

func decodeTour(body io.Reader) (tourResponse, error) {
	var parsed dataEnvelope
	if err := json.NewDecoder(body).Decode(&parsed); err != nil {
		return tourResponse{}, err
	}
	var tour tourResponse
	if err := json.Unmarshal(parsed.Data.Data, &tour); err != nil {
		return tourResponse{}, err
	}
	return tour, nil
}

func mongoURI() string {
	if uri := os.Getenv("MONGO_URI"); uri != "" {
		return uri
	}
	return "mongodb://localhost:27017"
}

func waitForMongo(ctx context.Context) error {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := pingMongo(pingCtx)
		cancel()
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("mongo ping timeout: %w", err)
		case <-ticker.C:
		}
	}
}

func pingMongo(ctx context.Context) error {
	client, err := mongo.Connect(options.Client().ApplyURI(mongoURI()))
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Disconnect(ctx)
	}()
	return client.Ping(ctx, nil)
}

func ensureIndexes(ctx context.Context) error {
	client, err := mongo.Connect(options.Client().ApplyURI(mongoURI()))
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Disconnect(ctx)
	}()
	return store.EnsureIndexes(ctx, client.Database(dbName))
}

func waitForHealth(ctx context.Context, url string) error {
	client := &http.Client{Timeout: 2 * time.Second}
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			if err != nil {
				return fmt.Errorf("health check failed: %w", err)
			}
			return fmt.Errorf("health check failed with status")
		case <-ticker.C:
		}
	}
}

func startServer() (*server.Server, error) {
	_ = os.Setenv("JWT_SECRET", "test-secret")
	_ = os.Setenv("SERVER_PORT", fmt.Sprintf("%d", serverPort))
	_ = os.Setenv("MONGO_DB", dbName)
	_ = os.Setenv("MAIL_BACKEND", "log")

	cfg := config.LoadConfig()
	srv, err := server.New(context.Background(), cfg)
	if err != nil {
		return nil, err
	}

	go func() {
		_ = srv.Start()
	}()

	return srv, nil
}

func dockerCompose(ctx context.Context, root string, args ...string) error {
	composeFile := filepath.Join(root, "development", "docker-compose.yml")
	baseArgs := append([]string{"compose", "-f", composeFile}, args...)
	cmd := exec.CommandContext(ctx, "docker", baseArgs...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func repoRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("go.mod not found")
		}
		dir = parent
	}
}
