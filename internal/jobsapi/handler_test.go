package jobsapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"docgen-backend/internal/activity"
	"docgen-backend/internal/documents"
	"docgen-backend/internal/engine"
	"docgen-backend/internal/generation"
	"docgen-backend/internal/jobs"
	"docgen-backend/internal/queue"
	"docgen-backend/internal/shared/server/middleware"
	"docgen-backend/internal/shared/storage/object/local"
	"docgen-backend/internal/subjects"
)

const testSubject = "client-1"

type flakyProvider struct {
	failOn string
}

func (p *flakyProvider) Complete(ctx context.Context, prompt string) (string, error) {
	if p.failOn != "" && strings.Contains(prompt, p.failOn) {
		return "", &generation.StatusError{StatusCode: http.StatusServiceUnavailable, Message: "overloaded"}
	}
	return generation.EchoProvider{}.Complete(ctx, prompt)
}

type testEnv struct {
	router   *gin.Engine
	svc      *engine.Service
	store    *jobs.MemoryStore
	provider *flakyProvider
}

func setupRouter(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	subj := subjects.NewService(subjects.NewMemoryRepo())
	if _, err := subj.Upsert(context.Background(), subjects.Subject{ID: testSubject, Name: "Acme Bakery"}); err != nil {
		t.Fatalf("seed subject: %v", err)
	}
	provider := &flakyProvider{}
	store := jobs.NewMemoryStore()
	svc := &engine.Service{
		Store:     store,
		Generator: generation.NewClient(generation.Config{Provider: provider}),
		Documents: documents.NewService(local.New(t.TempDir()), documents.NewMemoryRepo()),
		Activity:  activity.NewMemoryLog(),
		Subjects:  subj,
		Queue:     queue.Nop{},
	}

	router := gin.New()
	router.Use(middleware.RequestID(), middleware.Auth(nil))
	v1 := router.Group("/v1")
	NewHandler(svc, engine.PollOptions{Interval: 5 * time.Millisecond, Window: 200 * time.Millisecond}).RegisterRoutes(v1)
	return &testEnv{router: router, svc: svc, store: store, provider: provider}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	e.router.ServeHTTP(resp, req)
	return resp
}

func businessPlanRequest() map[string]any {
	return map[string]any{
		"type":      "BUSINESS_PLAN",
		"subjectId": testSubject,
		"input": map[string]string{
			"companyName":        "Acme Bakery",
			"industry":           "food service",
			"targetMarket":       "urban commuters",
			"productDescription": "fresh breakfast pastries",
		},
	}
}

func (e *testEnv) enqueue(t *testing.T) string {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/v1/jobs", businessPlanRequest())
	if resp.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d: %s", resp.Code, resp.Body.String())
	}
	var created struct {
		JobID  string `json:"jobId"`
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if created.JobID == "" {
		t.Fatalf("expected jobId, got empty")
	}
	if created.Status != jobs.StatusPending {
		t.Fatalf("expected status PENDING, got %q", created.Status)
	}
	return created.JobID
}

func errorCode(t *testing.T, resp *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body.Error.Code
}

func TestEnqueueAndFetchStatus(t *testing.T) {
	env := setupRouter(t)
	jobID := env.enqueue(t)

	resp := env.do(t, http.MethodGet, "/v1/jobs/"+jobID, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	var st engine.Status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if st.Status != jobs.StatusPending || st.TotalSections == 0 || st.CompletedSections != 0 {
		t.Fatalf("unexpected status %+v", st)
	}
}

func TestEnqueueValidationErrors(t *testing.T) {
	env := setupRouter(t)

	cases := []struct {
		name   string
		mutate func(map[string]any)
		status int
		code   string
	}{
		{"unknown type", func(b map[string]any) { b["type"] = "POEM" }, http.StatusBadRequest, engine.CodeUnknownJobType},
		{"missing subject", func(b map[string]any) { b["subjectId"] = "  " }, http.StatusBadRequest, engine.CodeInvalidInput},
		{"unknown subject", func(b map[string]any) { b["subjectId"] = "ghost" }, http.StatusUnprocessableEntity, engine.CodeSubjectNotFound},
		{"missing field", func(b map[string]any) { b["input"] = map[string]string{"companyName": "Acme"} }, http.StatusBadRequest, engine.CodeInvalidInput},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			body := businessPlanRequest()
			tc.mutate(body)
			resp := env.do(t, http.MethodPost, "/v1/jobs", body)
			if resp.Code != tc.status {
				t.Fatalf("expected status %d, got %d: %s", tc.status, resp.Code, resp.Body.String())
			}
			if code := errorCode(t, resp); code != tc.code {
				t.Fatalf("expected code %s, got %s", tc.code, code)
			}
		})
	}
}

func TestEnqueueRejectsMalformedBody(t *testing.T) {
	env := setupRouter(t)
	req := httptest.NewRequest(http.MethodPost, "/v1/jobs", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	env.router.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
}

func TestGetStatusUnknownJob(t *testing.T) {
	env := setupRouter(t)
	resp := env.do(t, http.MethodGet, "/v1/jobs/11111111-1111-1111-1111-111111111111", nil)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", resp.Code)
	}
	if code := errorCode(t, resp); code != engine.CodeNotFound {
		t.Fatalf("expected NOT_FOUND, got %s", code)
	}
}

func TestGetStatusPollLimited(t *testing.T) {
	env := setupRouter(t)
	jobID := env.enqueue(t)

	if resp := env.do(t, http.MethodGet, "/v1/jobs/"+jobID, nil); resp.Code != http.StatusOK {
		t.Fatalf("expected first poll 200, got %d", resp.Code)
	}
	resp := env.do(t, http.MethodGet, "/v1/jobs/"+jobID, nil)
	if resp.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second poll 429, got %d", resp.Code)
	}
	if resp.Header().Get("Retry-After") != "1" {
		t.Fatalf("expected Retry-After 1, got %q", resp.Header().Get("Retry-After"))
	}
}

func TestResumeFailedJobOverHTTP(t *testing.T) {
	env := setupRouter(t)
	jobID := env.enqueue(t)

	env.provider.failOn = "financial projection"
	out, err := env.svc.ProcessJob(context.Background(), jobID)
	if err != nil {
		t.Fatalf("ProcessJob: %v", err)
	}
	if out.Status != jobs.StatusFailed || !out.CanResume {
		t.Fatalf("expected resumable failure, got %+v", out)
	}

	resp := env.do(t, http.MethodGet, "/v1/resumable-jobs?subjectId="+testSubject, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	var listed struct {
		Items []engine.ResumableJob `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&listed); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(listed.Items) != 1 || listed.Items[0].JobID != jobID {
		t.Fatalf("expected job %s listed, got %+v", jobID, listed.Items)
	}

	env.provider.failOn = ""
	resp = env.do(t, http.MethodPost, "/v1/jobs/"+jobID+"/resume?wait=true", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var resumed engine.Outcome
	if err := json.NewDecoder(resp.Body).Decode(&resumed); err != nil {
		t.Fatalf("decode outcome: %v", err)
	}
	if resumed.Status != jobs.StatusCompleted || resumed.Result == nil {
		t.Fatalf("expected completed outcome, got %+v", resumed)
	}

	resp = env.do(t, http.MethodPost, "/v1/jobs/"+jobID+"/resume", nil)
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected status 409 on completed job, got %d", resp.Code)
	}
	if code := errorCode(t, resp); code != engine.CodeNotResumable {
		t.Fatalf("expected NOT_RESUMABLE, got %s", code)
	}
}

func TestResumeAsyncThenWait(t *testing.T) {
	env := setupRouter(t)
	jobID := env.enqueue(t)

	env.provider.failOn = "financial projection"
	if _, err := env.svc.ProcessJob(context.Background(), jobID); err != nil {
		t.Fatalf("ProcessJob: %v", err)
	}
	env.provider.failOn = ""

	resp := env.do(t, http.MethodPost, "/v1/jobs/"+jobID+"/resume", nil)
	if resp.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d: %s", resp.Code, resp.Body.String())
	}
	env.svc.Wait()

	resp = env.do(t, http.MethodGet, "/v1/jobs/"+jobID+"/wait", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	var waited struct {
		Status   engine.Status `json:"status"`
		TimedOut bool          `json:"timedOut"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&waited); err != nil {
		t.Fatalf("decode wait: %v", err)
	}
	if waited.TimedOut || waited.Status.Status != jobs.StatusCompleted {
		t.Fatalf("expected completed status, got %+v", waited)
	}
	if waited.Status.CompletedSections != waited.Status.TotalSections {
		t.Fatalf("expected all sections complete, got %d/%d", waited.Status.CompletedSections, waited.Status.TotalSections)
	}
}

func TestWaitTimesOutOnPendingJob(t *testing.T) {
	env := setupRouter(t)
	jobID := env.enqueue(t)

	resp := env.do(t, http.MethodGet, "/v1/jobs/"+jobID+"/wait?timeout=30ms", nil)
	if resp.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d", resp.Code)
	}
	var waited struct {
		Status   engine.Status `json:"status"`
		TimedOut bool          `json:"timedOut"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&waited); err != nil {
		t.Fatalf("decode wait: %v", err)
	}
	if !waited.TimedOut || waited.Status.Status != jobs.StatusPending {
		t.Fatalf("expected timed out pending status, got %+v", waited)
	}
}

func TestResumeUnknownJob(t *testing.T) {
	env := setupRouter(t)
	resp := env.do(t, http.MethodPost, "/v1/jobs/11111111-1111-1111-1111-111111111111/resume?wait=true", nil)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", resp.Code)
	}
}

func TestMalformedJobIDIsNotFound(t *testing.T) {
	env := setupRouter(t)
	cases := []struct {
		method, path string
	}{
		{http.MethodGet, "/v1/jobs/abc"},
		{http.MethodGet, "/v1/jobs/abc/wait"},
		{http.MethodPost, "/v1/jobs/abc/resume"},
		{http.MethodPost, "/v1/jobs/abc/resume?wait=true"},
	}
	for _, tc := range cases {
		resp := env.do(t, tc.method, tc.path, nil)
		if resp.Code != http.StatusNotFound {
			t.Fatalf("%s %s: expected status 404, got %d", tc.method, tc.path, resp.Code)
		}
		if code := errorCode(t, resp); code != engine.CodeNotFound {
			t.Fatalf("%s %s: expected NOT_FOUND, got %s", tc.method, tc.path, code)
		}
	}
}

func TestListCatalog(t *testing.T) {
	env := setupRouter(t)
	resp := env.do(t, http.MethodGet, "/v1/catalog", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	var body struct {
		Items []catalogEntry `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode catalog: %v", err)
	}
	if len(body.Items) < 2 {
		t.Fatalf("expected at least two document types, got %d", len(body.Items))
	}
	for _, item := range body.Items {
		if len(item.Sections) == 0 {
			t.Fatalf("expected sections for %s", item.Type)
		}
	}
}

func TestPollLimiterWindow(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	l := newPollLimiter(time.Second, func() time.Time { return now })

	if !l.Allow("key:ab", "job-1") {
		t.Fatalf("expected first poll allowed")
	}
	if l.Allow("key:ab", "job-1") {
		t.Fatalf("expected repeat poll blocked")
	}
	if !l.Allow("key:cd", "job-1") {
		t.Fatalf("expected other principal allowed")
	}
	now = now.Add(time.Second)
	if !l.Allow("key:ab", "job-1") {
		t.Fatalf("expected poll allowed after window")
	}
}

func TestRespondErrorFallsBackToInternal(t *testing.T) {
	gin.SetMode(gin.TestMode)
	resp := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(resp)
	c.Request = httptest.NewRequest(http.MethodGet, "/v1/jobs/x", nil)

	respondError(c, errors.New("disk full"), "failed to fetch job")
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", resp.Code)
	}
	if strings.Contains(resp.Body.String(), "disk full") {
		t.Fatalf("expected internal error text to be hidden, got %s", resp.Body.String())
	}
}
