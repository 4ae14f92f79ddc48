package api

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/ncecere/usage_reports/backend/internal/models"
	reportsvc "github.com/ncecere/usage_reports/backend/internal/services/reports"
)

type saveReportRequest struct {
	UserName    string                 `json:"userName"`
	TeamName    string                 `json:"teamName"`
	CCUsageData json.RawMessage        `json:"ccusageData"`
	FileName    string                 `json:"fileName"`
	Since       string                 `json:"since"`
	Until       string                 `json:"until"`
	Slack       *reportsvc.SlackTarget `json:"slack"`
}

type teamMemberRequest struct {
	Name     string          `json:"name"`
	FileName string          `json:"fileName"`
	Data     json.RawMessage `json:"data"`
}

type saveTeamRequest struct {
	TeamName     string                 `json:"teamName"`
	ReporterName string                 `json:"reporterName"`
	Members      []teamMemberRequest    `json:"members"`
	Since        string                 `json:"since"`
	Until        string                 `json:"until"`
	Slack        *reportsvc.SlackTarget `json:"slack"`
}

type saveReportResponse struct {
	Success  bool             `json:"success"`
	ReportID string           `json:"reportId"`
	Period   string           `json:"period"`
	Summary  models.TeamStats `json:"summary"`
	Warning  string           `json:"warning,omitempty"`
}

type reportIDsRequest struct {
	ReportIDs []string `json:"reportIds"`
	Mode      string   `json:"mode"`
}

func (h *handler) saveReport(c *fiber.Ctx) error {
	var req saveReportRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid JSON body")
	}
	res, err := h.reports.SaveSingle(c.UserContext(), reportsvc.SingleInput{
		UserName: req.UserName,
		TeamName: req.TeamName,
		Data:     usageDocument(req.CCUsageData),
		Since:    req.Since,
		Until:    req.Until,
		FileName: req.FileName,
		Slack:    req.Slack,
	})
	if err != nil {
		return h.writeServiceError(c, err)
	}
	return c.JSON(toSaveResponse(res))
}

func (h *handler) saveTeamReport(c *fiber.Ctx) error {
	var req saveTeamRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid JSON body")
	}
	members := make([]reportsvc.MemberInput, 0, len(req.Members))
	for _, m := range req.Members {
		members = append(members, reportsvc.MemberInput{
			Name:     m.Name,
			FileName: m.FileName,
			Data:     usageDocument(m.Data),
		})
	}
	res, err := h.reports.SaveTeam(c.UserContext(), reportsvc.TeamInput{
		TeamName:     req.TeamName,
		ReporterName: req.ReporterName,
		Members:      members,
		Since:        req.Since,
		Until:        req.Until,
		Slack:        req.Slack,
	})
	if err != nil {
		return h.writeServiceError(c, err)
	}
	return c.JSON(toSaveResponse(res))
}

func toSaveResponse(res reportsvc.SaveResult) saveReportResponse {
	return saveReportResponse{
		Success:  true,
		ReportID: res.Report.ID,
		Period:   res.Report.Period,
		Summary:  res.Report.Summary,
		Warning:  res.Warning,
	}
}

// usageDocument accepts the export either inline or as a JSON-encoded
// string holding the file contents.
func usageDocument(raw json.RawMessage) []byte {
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, `"`) {
		var text string
		if err := json.Unmarshal(raw, &text); err == nil {
			return []byte(text)
		}
	}
	if trimmed == "null" {
		return nil
	}
	return raw
}

func (h *handler) listReports(c *fiber.Ctx) error {
	page := parseQueryInt(c, "page", 1)
	limit := parseQueryInt(c, "limit", 0)
	res, err := h.reports.List(c.UserContext(), page, limit)
	if err != nil {
		return h.writeServiceError(c, err)
	}
	return c.JSON(res)
}

func (h *handler) getReport(c *fiber.Ctx) error {
	report, err := h.reports.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return h.writeServiceError(c, err)
	}
	return c.JSON(report)
}

func (h *handler) deleteReport(c *fiber.Ctx) error {
	if err := h.reports.Delete(c.UserContext(), c.Params("id")); err != nil {
		return h.writeServiceError(c, err)
	}
	return c.JSON(fiber.Map{"success": true})
}

func (h *handler) stats(c *fiber.Ctx) error {
	var req reportIDsRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid JSON body")
	}
	view, err := h.reports.Stats(c.UserContext(), req.ReportIDs)
	if err != nil {
		return h.writeServiceError(c, err)
	}
	return c.JSON(view)
}

func (h *handler) dashboard(c *fiber.Ctx) error {
	dash, err := h.reports.Dashboard(c.UserContext(), reportsvc.DashboardQuery{
		Year:   c.Query("year"),
		Month:  c.Query("month"),
		Team:   c.Query("team"),
		Member: c.Query("member"),
	})
	if err != nil {
		return h.writeServiceError(c, err)
	}
	return c.JSON(dash)
}

func parseQueryInt(c *fiber.Ctx, key string, def int) int {
	if val := c.Query(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}
