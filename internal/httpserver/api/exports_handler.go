package api

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ncecere/usage_reports/backend/internal/httpserver/httputil"
	"github.com/ncecere/usage_reports/backend/internal/services/exportfiles"
)

type exportFileResponse struct {
	ID          string    `json:"id"`
	Filename    string    `json:"filename"`
	Size        int64     `json:"size"`
	ExpiresAt   time.Time `json:"expiresAt"`
	DownloadURL string    `json:"downloadUrl"`
}

// excel streams the workbook directly as an attachment.
func (h *handler) excel(c *fiber.Ctx) error {
	var req reportIDsRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid JSON body")
	}
	out, err := h.reports.Export(c.UserContext(), req.ReportIDs, req.Mode)
	if err != nil {
		return h.writeServiceError(c, err)
	}
	c.Set(fiber.HeaderContentType, out.ContentType)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=\"%s\"", out.Filename))
	return c.Send(out.Data)
}

// createExport stores the workbook as a short-lived download.
func (h *handler) createExport(c *fiber.Ctx) error {
	if h.files == nil {
		return httputil.WriteError(c, fiber.StatusNotImplemented, "export files disabled")
	}
	var req reportIDsRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid JSON body")
	}
	out, err := h.reports.Export(c.UserContext(), req.ReportIDs, req.Mode)
	if err != nil {
		return h.writeServiceError(c, err)
	}
	rec, err := h.files.Create(c.UserContext(), exportfiles.CreateParams{
		Filename:    out.Filename,
		ContentType: out.ContentType,
		Data:        out.Data,
	})
	if err != nil {
		return h.writeServiceError(c, err)
	}
	return c.JSON(exportFileResponse{
		ID:          rec.ID.String(),
		Filename:    rec.Filename,
		Size:        rec.Bytes,
		ExpiresAt:   rec.ExpiresAt,
		DownloadURL: h.downloadURL(rec.ID.String()),
	})
}

func (h *handler) downloadURL(id string) string {
	return strings.TrimRight(h.baseURL, "/") + "/api/download/" + id
}

func (h *handler) download(c *fiber.Ctx) error {
	if h.files == nil {
		return httputil.WriteError(c, fiber.StatusNotImplemented, "export files disabled")
	}
	reader, rec, err := h.files.Open(c.UserContext(), c.Params("id"))
	if err != nil {
		return h.writeServiceError(c, err)
	}
	defer reader.Close()
	c.Set(fiber.HeaderContentType, rec.ContentType)
	c.Set(fiber.HeaderContentLength, strconv.FormatInt(rec.Bytes, 10))
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=\"%s\"", rec.Filename))
	_, err = io.Copy(c, reader)
	return err
}

func (h *handler) downloadInfo(c *fiber.Ctx) error {
	if h.files == nil {
		return httputil.WriteError(c, fiber.StatusNotImplemented, "export files disabled")
	}
	rec, err := h.files.Info(c.UserContext(), c.Params("id"))
	if err != nil {
		return h.writeServiceError(c, err)
	}
	return c.JSON(rec)
}
