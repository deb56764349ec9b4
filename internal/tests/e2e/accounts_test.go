//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cliptube/accounts/config"
	"github.com/cliptube/accounts/internal/db"
	"github.com/cliptube/accounts/internal/server"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
)

const (
	serverPort = 18080
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

	setTestEnv()

	if err := waitForPostgres(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "postgres not ready: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	if err := runMigrations(root); err != nil {
		fmt.Fprintf(os.Stderr, "failed to run migrations: %v\n", err)
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

func TestAccountLifecycle(t *testing.T) {
	baseURL := fmt.Sprintf("http://localhost:%d", serverPort)
	username := fmt.Sprintf("alice_%d", time.Now().UnixNano())
	password := "testpass123!"

	user, err := registerUser(t, baseURL, username, password)
	if err != nil {
		t.Fatalf("register user: %v", err)
	}
	if user.ID == 0 {
		t.Fatalf("expected user ID to be set")
	}
	if !strings.Contains(user.AvatarURL, "avatars/") {
		t.Fatalf("unexpected avatar url: %q", user.AvatarURL)
	}

	login, err := loginUser(t, baseURL, username, password)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if login.AccessToken == "" || login.RefreshToken == "" {
		t.Fatalf("expected both tokens in login response")
	}

	if err := getMe(t, baseURL, login.AccessToken, user.ID); err != nil {
		t.Fatalf("me: %v", err)
	}

	rotated, err := refreshToken(t, baseURL, login.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if rotated.RefreshToken == login.RefreshToken {
		t.Fatalf("expected refresh token to rotate")
	}

	// The pre-rotation token is single-use.
	if _, err := refreshToken(t, baseURL, login.RefreshToken); err == nil {
		t.Fatalf("expected stale refresh token to be rejected")
	}

	if err := logoutUser(t, baseURL, rotated.AccessToken); err != nil {
		t.Fatalf("logout: %v", err)
	}

	if _, err := refreshToken(t, baseURL, rotated.RefreshToken); err == nil {
		t.Fatalf("expected refresh after logout to be rejected")
	}
}

func TestDuplicateRegistrationConflicts(t *testing.T) {
	baseURL := fmt.Sprintf("http://localhost:%d", serverPort)
	username := fmt.Sprintf("bob_%d", time.Now().UnixNano())

	if _, err := registerUser(t, baseURL, username, "pw"); err != nil {
		t.Fatalf("register user: %v", err)
	}

	_, err := registerUser(t, baseURL, username, "pw")
	if err == nil || !strings.Contains(err.Error(), "409") {
		t.Fatalf("expected conflict on duplicate registration, got %v", err)
	}
}

type userResponse struct {
	ID        int    `json:"id"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatarUrl"`
}

type loginResponse struct {
	User         userResponse `json:"user"`
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
}

type tokenPairResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

func registerUser(t *testing.T, baseURL, username, password string) (userResponse, error) {
	t.Helper()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	_ = writer.WriteField("fullname", "Test User")
	_ = writer.WriteField("email", fmt.Sprintf("%s@example.com", username))
	_ = writer.WriteField("username", username)
	_ = writer.WriteField("password", password)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="avatar"; filename="avatar.png"`)
	header.Set("Content-Type", "image/png")
	part, err := writer.CreatePart(header)
	if err != nil {
		return userResponse{}, err
	}
	if _, err := part.Write([]byte("fake image bytes")); err != nil {
		return userResponse{}, err
	}
	if err := writer.Close(); err != nil {
		return userResponse{}, err
	}

	req, err := http.NewRequest(http.MethodPost, baseURL+"/users/register", &body)
	if err != nil {
		return userResponse{}, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return userResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(resp.Body)
		return userResponse{}, fmt.Errorf("register status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var parsed userResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return userResponse{}, err
	}
	return parsed, nil
}

func loginUser(t *testing.T, baseURL, username, password string) (loginResponse, error) {
	t.Helper()

	payload := map[string]string{
		"username": username,
		"password": password,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return loginResponse{}, err
	}

	req, err := http.NewRequest(http.MethodPost, baseURL+"/users/login", bytes.NewReader(body))
	if err != nil {
		return loginResponse{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return loginResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return loginResponse{}, fmt.Errorf("login status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var parsed loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return loginResponse{}, err
	}
	return parsed, nil
}

func getMe(t *testing.T, baseURL, token string, wantID int) error {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, baseURL+"/users/me", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("me status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var parsed userResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return err
	}
	if parsed.ID != wantID {
		return fmt.Errorf("me returned user %d, want %d", parsed.ID, wantID)
	}
	return nil
}

func refreshToken(t *testing.T, baseURL, token string) (tokenPairResponse, error) {
	t.Helper()

	payload := map[string]string{"refreshToken": token}
	body, err := json.Marshal(payload)
	if err != nil {
		return tokenPairResponse{}, err
	}

	req, err := http.NewRequest(http.MethodPost, baseURL+"/users/refresh-token", bytes.NewReader(body))
	if err != nil {
		return tokenPairResponse{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return tokenPairResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return tokenPairResponse{}, fmt.Errorf("refresh status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var parsed tokenPairResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return tokenPairResponse{}, err
	}
	return parsed, nil
}

func logoutUser(t *testing.T, baseURL, token string) error {
	t.Helper()

	req, err := http.NewRequest(http.MethodPost, baseURL+"/users/logout", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("logout status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

func setTestEnv() {
	_ = os.Setenv("ACCESS_TOKEN_SECRET", "test-access-secret")
	_ = os.Setenv("REFRESH_TOKEN_SECRET", "test-refresh-secret")
	_ = os.Setenv("SERVER_PORT", fmt.Sprintf("%d", serverPort))
	_ = os.Setenv("DB_HOST", "localhost")
	_ = os.Setenv("DB_PORT", "5432")
	_ = os.Setenv("DB_USER", "accounts")
	_ = os.Setenv("DB_PASSWORD", "accounts")
	_ = os.Setenv("DB_NAME", "accounts")
	_ = os.Setenv("MINIO_ENDPOINT", "localhost:9000")
	_ = os.Setenv("MINIO_ACCESS_KEY", "minioadmin")
	_ = os.Setenv("MINIO_SECRET_KEY", "minioadmin")
	_ = os.Setenv("MINIO_BUCKET", "media")
	_ = os.Setenv("MEDIA_BASE_URL", "http://localhost:9000")
}

func waitForPostgres(ctx context.Context) error {
	cfg := config.LoadConfig()
	dsn := db.PostgresURL(cfg)
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return err
	}
	defer conn.Close()

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := conn.PingContext(pingCtx)
		cancel()
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("postgres ping timeout: %w", err)
		case <-ticker.C:
		}
	}
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

func runMigrations(root string) error {
	cfg := config.LoadConfig()
	dsn := db.PostgresURL(cfg)
	migrationsPath := filepath.Join(root, "internal", "db", "migrations")
	migrationsURL := "file://" + migrationsPath

	migrator, err := migrate.New(migrationsURL, dsn)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = migrator.Close()
	}()

	if err := migrator.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

func startServer() (*server.Server, error) {
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
