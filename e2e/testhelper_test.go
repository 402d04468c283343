package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/the-outlaw-004/medai-backend/internal/config"
	"github.com/the-outlaw-004/medai-backend/internal/handler"
	"github.com/the-outlaw-004/medai-backend/internal/middleware"
	"github.com/the-outlaw-004/medai-backend/internal/model"
	"github.com/the-outlaw-004/medai-backend/internal/repository"
	"github.com/the-outlaw-004/medai-backend/internal/service"
	"golang.org/x/crypto/bcrypt"
)

const (
	testAccessSecret  = "test-access-secret"
	testRefreshSecret = "test-refresh-secret"
)

// memReportStore implements service.ReportStore in memory.
type memReportStore struct {
	mu      sync.Mutex
	reports map[uuid.UUID]*model.Report
}

func newMemReportStore() *memReportStore {
	return &memReportStore{reports: make(map[uuid.UUID]*model.Report)}
}

func (s *memReportStore) CreatePending(_ context.Context, userID uuid.UUID, filePath string) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.New()
	s.reports[id] = &model.Report{
		ID:        id,
		UserID:    userID,
		FilePath:  filePath,
		Status:    model.ReportStatusPending,
		CreatedAt: time.Now(),
	}
	return id, nil
}

func (s *memReportStore) GetByID(_ context.Context, id uuid.UUID) (*model.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reports[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return r, nil
}

func (s *memReportStore) ListByUser(_ context.Context, userID uuid.UUID) ([]*model.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Report
	for _, r := range s.reports {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

// memUserStore implements service.UserStore in memory.
type memUserStore struct {
	mu      sync.Mutex
	byEmail map[string]*model.User
}

func newMemUserStore() *memUserStore {
	return &memUserStore{byEmail: make(map[string]*model.User)}
}

func (s *memUserStore) Create(_ context.Context, email, passwordHash string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user := &model.User{ID: uuid.New(), Email: email, PasswordHash: passwordHash, CreatedAt: time.Now()}
	s.byEmail[email] = user
	return user, nil
}

func (s *memUserStore) FindByEmail(_ context.Context, email string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.byEmail[email]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return user, nil
}

// memTokenStore implements service.RefreshTokenStore in memory.
type memTokenStore struct {
	mu     sync.Mutex
	tokens map[uuid.UUID]*model.RefreshToken
}

func newMemTokenStore() *memTokenStore {
	return &memTokenStore{tokens: make(map[uuid.UUID]*model.RefreshToken)}
}

func (s *memTokenStore) Store(_ context.Context, userID uuid.UUID, tokenHash string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.New()
	s.tokens[id] = &model.RefreshToken{ID: id, UserID: userID, TokenHash: tokenHash, ExpiresAt: expiresAt}
	return nil
}

func (s *memTokenStore) ListActive(_ context.Context, userID uuid.UUID) ([]*model.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.RefreshToken
	for _, t := range s.tokens {
		if t.UserID == userID && t.ExpiresAt.After(time.Now()) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *memTokenStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, id)
	return nil
}

func (s *memTokenStore) DeleteForUser(_ context.Context, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.tokens {
		if t.UserID == userID {
			delete(s.tokens, id)
		}
	}
	return nil
}

// fakeQueue implements service.TaskEnqueuer. Flip fail to simulate a broker
// outage.
type fakeQueue struct {
	mu    sync.Mutex
	tasks []*asynq.Task
	fail  bool
}

func (q *fakeQueue) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.fail {
		return nil, errors.New("broker down")
	}
	q.tasks = append(q.tasks, task)
	return &asynq.TaskInfo{ID: uuid.NewString(), Queue: service.QueueReports}, nil
}

func (q *fakeQueue) count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

type testApp struct {
	app     *fiber.App
	reports *memReportStore
	queue   *fakeQueue
}

// setupApp wires the HTTP surface exactly like main.go but on in-memory
// stores and a fake queue, so no Redis or Postgres is needed.
func setupApp(t *testing.T) *testApp {
	t.Helper()

	reports := newMemReportStore()
	users := newMemUserStore()
	tokens := newMemTokenStore()
	queue := &fakeQueue{}

	jwtCfg := config.JWTConfig{
		AccessSecret:   testAccessSecret,
		RefreshSecret:  testRefreshSecret,
		AccessExpires:  900,
		RefreshExpires: 3600,
		BcryptCost:     bcrypt.MinCost,
	}
	uploadCfg := config.UploadConfig{
		Dir:     t.TempDir(),
		MaxSize: 1 << 20,
	}
	workerCfg := config.WorkerConfig{
		Concurrency:    1,
		MaxRetry:       3,
		TimeoutSec:     60,
		RetentionHours: 24,
	}

	validate := validator.New()

	reportService := service.NewReportService(reports, queue, uploadCfg, workerCfg)
	authService := service.NewAuthService(users, tokens, jwtCfg)

	reportHandler := handler.NewReportHandler(reportService, uploadCfg.MaxSize)
	authHandler := handler.NewAuthHandler(authService, validate)
	authMiddleware := middleware.NewAuthMiddleware(jwtCfg.AccessSecret)

	app := fiber.New()

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"ok": true, "time": time.Now().UTC().Format(time.RFC3339)})
	})
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	authGroup := app.Group("/auth")
	authGroup.Post("/signup", authHandler.Signup)
	authGroup.Post("/login", authHandler.Login)
	authGroup.Post("/refresh", authHandler.Refresh)
	authGroup.Post("/logout", authHandler.Logout)

	report := app.Group("/report", authMiddleware.Authenticate())
	report.Post("/upload", reportHandler.Upload)
	report.Get("/", reportHandler.List)
	report.Get("/:id", reportHandler.Get)
	report.Post("/:id/reprocess", reportHandler.Reprocess)

	return &testApp{app: app, reports: reports, queue: queue}
}

// doRequest performs an HTTP request against the test app.
func doRequest(app *fiber.App, method, path, body string, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, path, bodyReader)
	if err != nil {
		return nil, err
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return app.Test(req, -1)
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

// signupAndLogin registers a fresh account and returns its token pair.
func signupAndLogin(t *testing.T, app *fiber.App, email string) (access, refresh string) {
	t.Helper()

	creds := `{"email":"` + email + `","password":"password123"}`
	resp, err := doRequest(app, "POST", "/auth/signup", creds, nil)
	if err != nil {
		t.Fatalf("signup request: %v", err)
	}
	assertStatus(t, resp, http.StatusCreated)

	resp, err = doRequest(app, "POST", "/auth/login", creds, nil)
	if err != nil {
		t.Fatalf("login request: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)

	body := parseJSON(t, resp)
	access, _ = body["accessToken"].(string)
	refresh, _ = body["refreshToken"].(string)
	if access == "" || refresh == "" {
		t.Fatalf("login returned incomplete token pair: %v", body)
	}
	return access, refresh
}

// uploadFile posts a multipart report upload.
func uploadFile(t *testing.T, app *fiber.App, token, filename, contentType string, content []byte) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="report"; filename="`+filename+`"`)
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	part, err := w.CreatePart(h)
	if err != nil {
		t.Fatalf("create multipart part: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("write multipart part: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}

	req, err := http.NewRequest("POST", "/report/upload", &buf)
	if err != nil {
		t.Fatalf("build upload request: %v", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("upload request: %v", err)
	}
	return resp
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response body: %v", err)
	}
	return string(b)
}

func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("parse JSON: %v\nbody: %s", err, body)
	}
	return result
}

func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}
