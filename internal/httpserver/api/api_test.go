package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/ncecere/usage_reports/backend/internal/aggregate"
	"github.com/ncecere/usage_reports/backend/internal/cache"
	"github.com/ncecere/usage_reports/backend/internal/limits"
	"github.com/ncecere/usage_reports/backend/internal/models"
	"github.com/ncecere/usage_reports/backend/internal/services/exportfiles"
	reportsvc "github.com/ncecere/usage_reports/backend/internal/services/reports"
)

func newTestApp(h *handler) *fiber.App {
	app := fiber.New()
	register(app, h)
	return app
}

func jsonRequest(method, path string, body any) *http.Request {
	data, _ := json.Marshal(body)
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decode(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func savedResult(id string) reportsvc.SaveResult {
	return reportsvc.SaveResult{Report: models.Report{
		ID:      id,
		Period:  "2026-02-01 ~ 2026-02-03",
		Summary: models.TeamStats{TotalMembers: 1, TotalCost: 2.5},
	}}
}

func TestSaveReport(t *testing.T) {
	var got reportsvc.SingleInput
	reports := &stubReports{
		saveSingleFn: func(_ context.Context, in reportsvc.SingleInput) (reportsvc.SaveResult, error) {
			got = in
			res := savedResult("r-1")
			res.Warning = "slack notification failed: channel_not_found"
			return res, nil
		},
	}
	app := newTestApp(&handler{reports: reports})

	resp, err := app.Test(jsonRequest("POST", "/api/reports", map[string]any{
		"userName":    "alice",
		"teamName":    "core",
		"ccusageData": map[string]any{"daily": []any{}},
		"since":       "20260201",
		"slack":       map[string]string{"token": "xoxb-1", "channel": "C1"},
	}))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body saveReportResponse
	decode(t, resp, &body)
	require.True(t, body.Success)
	require.Equal(t, "r-1", body.ReportID)
	require.Equal(t, "2026-02-01 ~ 2026-02-03", body.Period)
	require.Equal(t, "slack notification failed: channel_not_found", body.Warning)

	require.Equal(t, "alice", got.UserName)
	require.Equal(t, "20260201", got.Since)
	require.JSONEq(t, `{"daily": []}`, string(got.Data))
	require.Equal(t, "C1", got.Slack.Channel)
}

func TestSaveReportAcceptsStringDocument(t *testing.T) {
	var got []byte
	reports := &stubReports{
		saveSingleFn: func(_ context.Context, in reportsvc.SingleInput) (reportsvc.SaveResult, error) {
			got = in.Data
			return savedResult("r-2"), nil
		},
	}
	app := newTestApp(&handler{reports: reports})

	resp, err := app.Test(jsonRequest("POST", "/api/reports", map[string]any{
		"userName":    "alice",
		"ccusageData": `{"daily": [], "totals": {}}`,
	}))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, `{"daily": [], "totals": {}}`, string(got))
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantError  string
		wantPath   string
	}{
		{
			name:       "validation",
			err:        &models.ValidationError{Path: "ccusageData.daily.2.totalCost", Reason: "expected number"},
			wantStatus: fiber.StatusBadRequest,
			wantError:  "ccusageData.daily.2.totalCost: expected number",
			wantPath:   "ccusageData.daily.2.totalCost",
		},
		{name: "not found", err: models.ErrNotFound, wantStatus: fiber.StatusNotFound, wantError: "not found"},
		{name: "slack", err: fmt.Errorf("%w: invalid_auth", reportsvc.ErrSlackDelivery), wantStatus: fiber.StatusBadGateway, wantError: "slack delivery failed: invalid_auth"},
		{name: "internal", err: errors.New("pq: connection reset"), wantStatus: fiber.StatusInternalServerError, wantError: "internal error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reports := &stubReports{
				getFn: func(context.Context, string) (models.Report, error) { return models.Report{}, tt.err },
			}
			app := newTestApp(&handler{reports: reports})
			resp, err := app.Test(httptest.NewRequest("GET", "/api/reports/abc", nil))
			require.NoError(t, err)
			require.Equal(t, tt.wantStatus, resp.StatusCode)

			var body map[string]string
			decode(t, resp, &body)
			require.Equal(t, tt.wantError, body["error"])
			require.Equal(t, tt.wantPath, body["path"])
		})
	}
}

func TestListReportsPassesPaging(t *testing.T) {
	reports := &stubReports{
		listFn: func(_ context.Context, page, limit int) (reportsvc.ListResult, error) {
			if page != 3 || limit != 25 {
				t.Fatalf("unexpected paging page=%d limit=%d", page, limit)
			}
			return reportsvc.ListResult{Reports: []models.ReportListItem{}, Total: 60, Page: page, Limit: limit}, nil
		},
	}
	app := newTestApp(&handler{reports: reports})
	resp, err := app.Test(httptest.NewRequest("GET", "/api/reports?page=3&limit=25", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body reportsvc.ListResult
	decode(t, resp, &body)
	require.Equal(t, int64(60), body.Total)
}

func TestDashboardQuery(t *testing.T) {
	var got reportsvc.DashboardQuery
	reports := &stubReports{
		dashboardFn: func(_ context.Context, q reportsvc.DashboardQuery) (reportsvc.Dashboard, error) {
			got = q
			return reportsvc.Dashboard{Teams: []string{"core"}}, nil
		},
	}
	app := newTestApp(&handler{reports: reports})
	resp, err := app.Test(httptest.NewRequest("GET", "/api/dashboard?year=2026&month=2&team=core&member=alice", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, reportsvc.DashboardQuery{Year: "2026", Month: "2", Team: "core", Member: "alice"}, got)

	var body map[string]any
	decode(t, resp, &body)
	for _, key := range []string{"teams", "summary", "dailyData", "modelData", "memberData", "teamData"} {
		require.Contains(t, body, key)
	}
}

func TestRateLimit(t *testing.T) {
	limiter := limits.NewMemoryLimiter(limits.Policy{Requests: 1, Window: time.Minute})
	reports := &stubReports{
		saveSingleFn: func(context.Context, reportsvc.SingleInput) (reportsvc.SaveResult, error) {
			return savedResult("r-1"), nil
		},
	}
	app := newTestApp(&handler{reports: reports, limiter: limiter})

	resp, err := app.Test(jsonRequest("POST", "/api/reports", map[string]any{"userName": "alice"}))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "1", resp.Header.Get("X-RateLimit-Limit"))
	require.Equal(t, "0", resp.Header.Get("X-RateLimit-Remaining"))

	resp, err = app.Test(jsonRequest("POST", "/api/reports", map[string]any{"userName": "alice"}))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get("Retry-After"))

	// reads are not limited
	reports.listFn = func(context.Context, int, int) (reportsvc.ListResult, error) { return reportsvc.ListResult{}, nil }
	resp, err = app.Test(httptest.NewRequest("GET", "/api/reports", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	// the slack group shares the bucket
	resp, err = app.Test(jsonRequest("POST", "/api/slack/message", map[string]any{"slackToken": "xoxb-1", "channelId": "C1", "text": "hi"}))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
}

func TestIdempotentSaveReplays(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	calls := 0
	reports := &stubReports{
		saveSingleFn: func(context.Context, reportsvc.SingleInput) (reportsvc.SaveResult, error) {
			calls++
			return savedResult(fmt.Sprintf("r-%d", calls)), nil
		},
	}
	app := newTestApp(&handler{reports: reports, idem: cache.NewIdempotencyCache(client, time.Minute)})

	send := func() (*http.Response, saveReportResponse) {
		req := jsonRequest("POST", "/api/reports", map[string]any{"userName": "alice"})
		req.Header.Set("Idempotency-Key", "abc")
		resp, err := app.Test(req)
		require.NoError(t, err)
		var body saveReportResponse
		decode(t, resp, &body)
		return resp, body
	}

	first, firstBody := send()
	require.Equal(t, fiber.StatusOK, first.StatusCode)
	second, secondBody := send()
	require.Equal(t, fiber.StatusOK, second.StatusCode)
	require.Equal(t, "true", second.Header.Get("Idempotent-Replayed"))
	require.Equal(t, firstBody, secondBody)
	require.Equal(t, 1, calls)
}

func TestIdempotentFailureNotStored(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	calls := 0
	reports := &stubReports{
		saveSingleFn: func(context.Context, reportsvc.SingleInput) (reportsvc.SaveResult, error) {
			calls++
			if calls == 1 {
				return reportsvc.SaveResult{}, &models.ValidationError{Path: "ccusageData", Reason: "required"}
			}
			return savedResult("r-ok"), nil
		},
	}
	app := newTestApp(&handler{reports: reports, idem: cache.NewIdempotencyCache(client, time.Minute)})

	for _, want := range []int{fiber.StatusBadRequest, fiber.StatusOK} {
		req := jsonRequest("POST", "/api/reports", map[string]any{"userName": "alice"})
		req.Header.Set("Idempotency-Key", "retry-me")
		resp, err := app.Test(req)
		require.NoError(t, err)
		require.Equal(t, want, resp.StatusCode)
	}
	require.Equal(t, 2, calls)
}

func TestExcel(t *testing.T) {
	reports := &stubReports{
		exportFn: func(_ context.Context, ids []string, mode string) (reportsvc.Export, error) {
			require.Equal(t, []string{"a", "b"}, ids)
			require.Equal(t, "individual", mode)
			return reportsvc.Export{Filename: "Claude_Usage_2026-02-15.xlsx", ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", Data: []byte("PK..")}, nil
		},
	}
	app := newTestApp(&handler{reports: reports})
	resp, err := app.Test(jsonRequest("POST", "/api/excel", map[string]any{"reportIds": []string{"a", "b"}, "mode": "individual"}))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, `attachment; filename="Claude_Usage_2026-02-15.xlsx"`, resp.Header.Get("Content-Disposition"))
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, "PK..", string(data))
}

func TestCreateExportAndDownload(t *testing.T) {
	id := uuid.New()
	expires := time.Date(2026, 2, 15, 9, 35, 0, 0, time.UTC)
	reports := &stubReports{
		exportFn: func(context.Context, []string, string) (reportsvc.Export, error) {
			return reportsvc.Export{Filename: "Claude_Usage_2026-02-15.xlsx", ContentType: "application/xlsx", Data: []byte("workbook")}, nil
		},
	}
	files := &stubFiles{
		createFn: func(_ context.Context, p exportfiles.CreateParams) (exportfiles.FileRecord, error) {
			return exportfiles.FileRecord{ID: id, Filename: p.Filename, ContentType: p.ContentType, Bytes: int64(len(p.Data)), ExpiresAt: expires}, nil
		},
		openFn: func(_ context.Context, raw string) (io.ReadCloser, exportfiles.FileRecord, error) {
			if raw != id.String() {
				return nil, exportfiles.FileRecord{}, fmt.Errorf("%w: %w", models.ErrNotFound, models.ErrExpired)
			}
			return io.NopCloser(strings.NewReader("workbook")), exportfiles.FileRecord{ID: id, Filename: "Claude_Usage_2026-02-15.xlsx", ContentType: "application/xlsx", Bytes: 8}, nil
		},
	}
	app := newTestApp(&handler{reports: reports, files: files, baseURL: "https://reports.example.com/"})

	resp, err := app.Test(jsonRequest("POST", "/api/exports", map[string]any{"reportIds": []string{"a"}}))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var body exportFileResponse
	decode(t, resp, &body)
	require.Equal(t, id.String(), body.ID)
	require.Equal(t, int64(8), body.Size)
	require.Equal(t, "https://reports.example.com/api/download/"+id.String(), body.DownloadURL)
	require.True(t, expires.Equal(body.ExpiresAt))

	resp, err = app.Test(httptest.NewRequest("GET", "/api/download/"+id.String(), nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, "workbook", string(data))

	resp, err = app.Test(httptest.NewRequest("GET", "/api/download/"+uuid.NewString(), nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	var errBody map[string]string
	decode(t, resp, &errBody)
	require.Equal(t, "file expired", errBody["error"])
}

func TestSlackUploadFile(t *testing.T) {
	var gotName string
	var gotData []byte
	var gotTarget reportsvc.SlackTarget
	reports := &stubReports{
		slackUploadFn: func(_ context.Context, target reportsvc.SlackTarget, filename string, data []byte, comment string) error {
			gotTarget, gotName, gotData = target, filename, data
			require.Equal(t, "monthly", comment)
			return nil
		},
	}
	app := newTestApp(&handler{reports: reports})

	req := multipartRequest(t, "/api/slack/upload", map[string]string{
		"slackToken": "xoxb-1",
		"channelId":  "C1",
		"comment":    "monthly",
	}, "report.xlsx", []byte("PK-data"))
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "report.xlsx", gotName)
	require.Equal(t, "PK-data", string(gotData))
	require.Equal(t, reportsvc.SlackTarget{Token: "xoxb-1", Channel: "C1"}, gotTarget)
}

func TestSlackUploadBuildsWorkbook(t *testing.T) {
	var exported []string
	var uploaded string
	reports := &stubReports{
		exportFn: func(_ context.Context, ids []string, mode string) (reportsvc.Export, error) {
			exported = ids
			return reportsvc.Export{Filename: "Claude_Usage_2026-02-15.xlsx", Data: []byte("PK")}, nil
		},
		slackUploadFn: func(_ context.Context, _ reportsvc.SlackTarget, filename string, _ []byte, _ string) error {
			uploaded = filename
			return nil
		},
	}
	app := newTestApp(&handler{reports: reports})

	req := multipartRequest(t, "/api/slack/upload", map[string]string{
		"slackToken": "xoxb-1",
		"channelId":  "C1",
		"reportIds":  "a, b",
	}, "", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, []string{"a", "b"}, exported)
	require.Equal(t, "Claude_Usage_2026-02-15.xlsx", uploaded)

	req = multipartRequest(t, "/api/slack/upload", map[string]string{"slackToken": "xoxb-1", "channelId": "C1"}, "", nil)
	resp, err = app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestSlackLinkAndMessage(t *testing.T) {
	var linkMessage, text string
	reports := &stubReports{
		slackLinkFn: func(_ context.Context, _ reportsvc.SlackTarget, message string) error {
			linkMessage = message
			return nil
		},
		slackMessageFn: func(_ context.Context, _ reportsvc.SlackTarget, t string) error {
			text = t
			return reportsvc.ErrSlackUnavailable
		},
	}
	app := newTestApp(&handler{reports: reports})

	resp, err := app.Test(jsonRequest("POST", "/api/slack/send-link", map[string]string{"slackToken": "xoxb-1", "channelId": "C1", "message": "see reports"}))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "see reports", linkMessage)

	resp, err = app.Test(jsonRequest("POST", "/api/slack/message", map[string]string{"slackToken": "xoxb-1", "channelId": "C1", "text": "hello"}))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
	require.Equal(t, "hello", text)
}

// Helpers

func multipartRequest(t *testing.T, path string, fields map[string]string, filename string, data []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if filename != "" {
		part, err := w.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	req := httptest.NewRequest("POST", path, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

type stubReports struct {
	saveSingleFn   func(context.Context, reportsvc.SingleInput) (reportsvc.SaveResult, error)
	saveTeamFn     func(context.Context, reportsvc.TeamInput) (reportsvc.SaveResult, error)
	listFn         func(context.Context, int, int) (reportsvc.ListResult, error)
	getFn          func(context.Context, string) (models.Report, error)
	deleteFn       func(context.Context, string) error
	statsFn        func(context.Context, []string) (aggregate.View, error)
	dashboardFn    func(context.Context, reportsvc.DashboardQuery) (reportsvc.Dashboard, error)
	exportFn       func(context.Context, []string, string) (reportsvc.Export, error)
	slackMessageFn func(context.Context, reportsvc.SlackTarget, string) error
	slackLinkFn    func(context.Context, reportsvc.SlackTarget, string) error
	slackUploadFn  func(context.Context, reportsvc.SlackTarget, string, []byte, string) error
}

var errNotStubbed = errors.New("not stubbed")

func (s *stubReports) SaveSingle(ctx context.Context, in reportsvc.SingleInput) (reportsvc.SaveResult, error) {
	if s.saveSingleFn != nil {
		return s.saveSingleFn(ctx, in)
	}
	return reportsvc.SaveResult{}, errNotStubbed
}

func (s *stubReports) SaveTeam(ctx context.Context, in reportsvc.TeamInput) (reportsvc.SaveResult, error) {
	if s.saveTeamFn != nil {
		return s.saveTeamFn(ctx, in)
	}
	return reportsvc.SaveResult{}, errNotStubbed
}

func (s *stubReports) List(ctx context.Context, page, limit int) (reportsvc.ListResult, error) {
	if s.listFn != nil {
		return s.listFn(ctx, page, limit)
	}
	return reportsvc.ListResult{}, errNotStubbed
}

func (s *stubReports) Get(ctx context.Context, id string) (models.Report, error) {
	if s.getFn != nil {
		return s.getFn(ctx, id)
	}
	return models.Report{}, errNotStubbed
}

func (s *stubReports) Delete(ctx context.Context, id string) error {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, id)
	}
	return errNotStubbed
}

func (s *stubReports) Stats(ctx context.Context, ids []string) (aggregate.View, error) {
	if s.statsFn != nil {
		return s.statsFn(ctx, ids)
	}
	return aggregate.View{}, errNotStubbed
}

func (s *stubReports) Dashboard(ctx context.Context, q reportsvc.DashboardQuery) (reportsvc.Dashboard, error) {
	if s.dashboardFn != nil {
		return s.dashboardFn(ctx, q)
	}
	return reportsvc.Dashboard{}, errNotStubbed
}

func (s *stubReports) Export(ctx context.Context, ids []string, mode string) (reportsvc.Export, error) {
	if s.exportFn != nil {
		return s.exportFn(ctx, ids, mode)
	}
	return reportsvc.Export{}, errNotStubbed
}

func (s *stubReports) SlackMessage(ctx context.Context, target reportsvc.SlackTarget, text string) error {
	if s.slackMessageFn != nil {
		return s.slackMessageFn(ctx, target, text)
	}
	return errNotStubbed
}

func (s *stubReports) SlackLink(ctx context.Context, target reportsvc.SlackTarget, message string) error {
	if s.slackLinkFn != nil {
		return s.slackLinkFn(ctx, target, message)
	}
	return errNotStubbed
}

func (s *stubReports) SlackUpload(ctx context.Context, target reportsvc.SlackTarget, filename string, data []byte, comment string) error {
	if s.slackUploadFn != nil {
		return s.slackUploadFn(ctx, target, filename, data, comment)
	}
	return errNotStubbed
}

type stubFiles struct {
	createFn func(context.Context, exportfiles.CreateParams) (exportfiles.FileRecord, error)
	infoFn   func(context.Context, string) (exportfiles.FileRecord, error)
	openFn   func(context.Context, string) (io.ReadCloser, exportfiles.FileRecord, error)
}

func (s *stubFiles) Create(ctx context.Context, p exportfiles.CreateParams) (exportfiles.FileRecord, error) {
	if s.createFn != nil {
		return s.createFn(ctx, p)
	}
	return exportfiles.FileRecord{}, errNotStubbed
}

func (s *stubFiles) Info(ctx context.Context, id string) (exportfiles.FileRecord, error) {
	if s.infoFn != nil {
		return s.infoFn(ctx, id)
	}
	return exportfiles.FileRecord{}, errNotStubbed
}

func (s *stubFiles) Open(ctx context.Context, id string) (io.ReadCloser, exportfiles.FileRecord, error) {
	if s.openFn != nil {
		return s.openFn(ctx, id)
	}
	return nil, exportfiles.FileRecord{}, errNotStubbed
}
