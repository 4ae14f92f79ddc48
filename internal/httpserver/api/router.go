// Package api serves the JSON report endpoints under /api.
package api

import (
	"context"
	"io"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/ncecere/usage_reports/backend/internal/aggregate"
	"github.com/ncecere/usage_reports/backend/internal/app"
	"github.com/ncecere/usage_reports/backend/internal/cache"
	"github.com/ncecere/usage_reports/backend/internal/limits"
	"github.com/ncecere/usage_reports/backend/internal/models"
	"github.com/ncecere/usage_reports/backend/internal/services/exportfiles"
	reportsvc "github.com/ncecere/usage_reports/backend/internal/services/reports"
)

type reportService interface {
	SaveSingle(ctx context.Context, in reportsvc.SingleInput) (reportsvc.SaveResult, error)
	SaveTeam(ctx context.Context, in reportsvc.TeamInput) (reportsvc.SaveResult, error)
	List(ctx context.Context, page, limit int) (reportsvc.ListResult, error)
	Get(ctx context.Context, id string) (models.Report, error)
	Delete(ctx context.Context, id string) error
	Stats(ctx context.Context, ids []string) (aggregate.View, error)
	Dashboard(ctx context.Context, q reportsvc.DashboardQuery) (reportsvc.Dashboard, error)
	Export(ctx context.Context, ids []string, mode string) (reportsvc.Export, error)
	SlackMessage(ctx context.Context, target reportsvc.SlackTarget, text string) error
	SlackLink(ctx context.Context, target reportsvc.SlackTarget, message string) error
	SlackUpload(ctx context.Context, target reportsvc.SlackTarget, filename string, data []byte, comment string) error
}

type exportFileService interface {
	Create(ctx context.Context, params exportfiles.CreateParams) (exportfiles.FileRecord, error)
	Info(ctx context.Context, id string) (exportfiles.FileRecord, error)
	Open(ctx context.Context, id string) (io.ReadCloser, exportfiles.FileRecord, error)
}

type handler struct {
	reports reportService
	files   exportFileService
	limiter limits.Limiter
	idem    *cache.IdempotencyCache
	baseURL string
	logger  *slog.Logger
}

// Register wires the report API routes.
func Register(app *fiber.App, container *app.Container) {
	h := &handler{
		reports: container.Reports,
		limiter: container.Limiter,
		idem:    container.Idempotency,
		baseURL: container.Config.Server.PublicBaseURL,
		logger:  container.Logger,
	}
	if container.ExportFiles != nil {
		h.files = container.ExportFiles
	}
	register(app, h)
}

func register(router fiber.Router, h *handler) {
	if h.logger == nil {
		h.logger = slog.Default()
	}
	limited := rateLimit(h.limiter, h.logger)
	replay := idempotent(h.idem)

	group := router.Group("/api")
	group.Post("/reports", limited, replay, h.saveReport)
	group.Post("/reports/team", limited, replay, h.saveTeamReport)
	group.Get("/reports", h.listReports)
	group.Get("/reports/:id", h.getReport)
	group.Delete("/reports/:id", h.deleteReport)
	group.Post("/stats", h.stats)
	group.Get("/dashboard", h.dashboard)

	group.Post("/excel", h.excel)
	group.Post("/exports", h.createExport)
	group.Get("/download/:id", h.download)
	group.Get("/download/:id/info", h.downloadInfo)

	slack := group.Group("/slack", limited)
	slack.Post("/message", h.slackMessage)
	slack.Post("/send-link", h.slackLink)
	slack.Post("/upload", h.slackUpload)
}
