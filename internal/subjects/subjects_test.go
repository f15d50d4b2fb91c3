package subjects

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"

	"docgen-backend/internal/activity"
)

func TestServiceUpsertExistsDelete(t *testing.T) {
	svc := NewService(NewMemoryRepo())
	ctx := context.Background()

	if _, err := svc.Upsert(ctx, Subject{ID: " client-1 ", Name: ""}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	created, err := svc.Upsert(ctx, Subject{ID: " client-1 ", Name: "Acme"})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if created.ID != "client-1" || created.CreatedAt.IsZero() {
		t.Fatalf("unexpected subject %+v", created)
	}
	updated, _ := svc.Upsert(ctx, Subject{ID: "client-1", Name: "Acme Corp"})
	if !updated.CreatedAt.Equal(created.CreatedAt) {
		t.Fatalf("createdAt must survive an update")
	}

	if ok, err := svc.Exists(ctx, "client-1"); err != nil || !ok {
		t.Fatalf("expected subject to exist, got %v %v", ok, err)
	}
	if err := svc.Delete(ctx, "client-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if ok, _ := svc.Exists(ctx, "client-1"); ok {
		t.Fatalf("deleted subject still exists")
	}
	if err := svc.Delete(ctx, "client-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestExistsSurfacesStorageErrors(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()
	boom := errors.New("connection refused")
	mock.ExpectQuery(regexp.QuoteMeta(`FROM subjects`)).WithArgs("client-1").WillReturnError(boom)

	svc := NewService(&PGRepo{DB: db})
	if _, err := svc.Exists(context.Background(), "client-1"); !errors.Is(err, boom) {
		t.Fatalf("expected storage error, got %v", err)
	}
}

func TestPGRepoGetAndDelete(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM subjects`)).
		WithArgs("client-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "industry", "created_at", "updated_at"}).
			AddRow("client-1", "Acme", nil, now, now))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE subjects SET deleted_at = now()`)).
		WithArgs("client-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := &PGRepo{DB: db}
	got, err := repo.GetByID(context.Background(), "client-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Name != "Acme" || got.Industry != "" {
		t.Fatalf("unexpected subject %+v", got)
	}
	if err := repo.Delete(context.Background(), "client-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestHandlerUpsertAndActivity(t *testing.T) {
	gin.SetMode(gin.TestMode)
	log := activity.NewMemoryLog()
	_ = log.Record(context.Background(), "client-1", "Generated Business Plan v1")

	r := gin.New()
	NewHandler(NewService(NewMemoryRepo()), log).RegisterRoutes(r.Group("/api/v1"))

	req := httptest.NewRequest(http.MethodPut, "/api/v1/subjects/client-1", strings.NewReader(`{"name":"Acme"}`))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/subjects/client-1/activity", nil))
	var body struct {
		Items []activity.Entry `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Items) != 1 {
		t.Fatalf("unexpected activity %+v", body.Items)
	}

	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/subjects/missing", nil))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}
