package api

import (
	"io"
	"strings"

	"github.com/gofiber/fiber/v2"

	reportsvc "github.com/ncecere/usage_reports/backend/internal/services/reports"
)

type slackMessageRequest struct {
	SlackToken string `json:"slackToken"`
	ChannelID  string `json:"channelId"`
	Text       string `json:"text"`
	Message    string `json:"message"`
}

func (r slackMessageRequest) target() reportsvc.SlackTarget {
	return reportsvc.SlackTarget{Token: r.SlackToken, Channel: r.ChannelID}
}

func (h *handler) slackMessage(c *fiber.Ctx) error {
	var req slackMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid JSON body")
	}
	if err := h.reports.SlackMessage(c.UserContext(), req.target(), req.Text); err != nil {
		return h.writeServiceError(c, err)
	}
	return c.JSON(fiber.Map{"success": true})
}

func (h *handler) slackLink(c *fiber.Ctx) error {
	var req slackMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid JSON body")
	}
	if err := h.reports.SlackLink(c.UserContext(), req.target(), req.Message); err != nil {
		return h.writeServiceError(c, err)
	}
	return c.JSON(fiber.Map{"success": true})
}

// slackUpload sends either an uploaded file or a workbook built from
// reportIds to the caller's channel.
func (h *handler) slackUpload(c *fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil {
		return badRequest(c, "multipart form required")
	}
	target := reportsvc.SlackTarget{
		Token:   firstValue(form.Value["slackToken"]),
		Channel: firstValue(form.Value["channelId"]),
	}
	comment := firstValue(form.Value["comment"])

	var (
		filename string
		data     []byte
	)
	if files := form.File["file"]; len(files) > 0 {
		file := files[0]
		reader, err := file.Open()
		if err != nil {
			return badRequest(c, "failed to open file")
		}
		defer reader.Close()
		data, err = io.ReadAll(reader)
		if err != nil {
			return badRequest(c, "failed to read file")
		}
		filename = file.Filename
	} else if ids := splitIDs(form.Value["reportIds"]); len(ids) > 0 {
		out, err := h.reports.Export(c.UserContext(), ids, firstValue(form.Value["mode"]))
		if err != nil {
			return h.writeServiceError(c, err)
		}
		filename, data = out.Filename, out.Data
	} else {
		return badRequest(c, "file or reportIds is required")
	}

	if err := h.reports.SlackUpload(c.UserContext(), target, filename, data, comment); err != nil {
		return h.writeServiceError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "filename": filename})
}

func firstValue(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0])
}

// splitIDs accepts repeated fields as well as comma separated lists.
func splitIDs(values []string) []string {
	var out []string
	for _, v := range values {
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				out = append(out, id)
			}
		}
	}
	return out
}
