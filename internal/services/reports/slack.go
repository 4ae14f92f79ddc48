package reports

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ncecere/usage_reports/backend/internal/models"
	"github.com/ncecere/usage_reports/backend/internal/notify"
)

var (
	ErrSlackUnavailable = errors.New("slack delivery is not configured")
	ErrSlackDelivery    = errors.New("slack delivery failed")
)

const defaultLinkMessage = "Claude usage reports are available here:"

// SlackMessage posts free text on behalf of the caller's bot token.
func (s *Service) SlackMessage(ctx context.Context, target SlackTarget, text string) error {
	if strings.TrimSpace(text) == "" {
		return &models.ValidationError{Path: "text", Reason: "required"}
	}
	if err := s.checkSlack(target); err != nil {
		return err
	}
	res := s.sender.PostMessage(ctx, strings.TrimSpace(target.Token), strings.TrimSpace(target.Channel), text)
	return s.slackResult(ctx, "message", res)
}

// SlackLink posts a link to the report listing with an optional message.
func (s *Service) SlackLink(ctx context.Context, target SlackTarget, message string) error {
	if err := s.checkSlack(target); err != nil {
		return err
	}
	if strings.TrimSpace(message) == "" {
		message = defaultLinkMessage
	}
	text := fmt.Sprintf("%s\n<%s/reports>", strings.TrimSpace(message), s.baseURL)
	res := s.sender.PostMessage(ctx, strings.TrimSpace(target.Token), strings.TrimSpace(target.Channel), text)
	return s.slackResult(ctx, "link", res)
}

// SlackUpload uploads a file to the caller's channel.
func (s *Service) SlackUpload(ctx context.Context, target SlackTarget, filename string, data []byte, comment string) error {
	if len(data) == 0 {
		return &models.ValidationError{Path: "file", Reason: "required"}
	}
	if strings.TrimSpace(filename) == "" {
		return &models.ValidationError{Path: "file", Reason: "filename required"}
	}
	if err := s.checkSlack(target); err != nil {
		return err
	}
	res := s.sender.UploadFile(ctx, strings.TrimSpace(target.Token), strings.TrimSpace(target.Channel), filename, data, comment)
	return s.slackResult(ctx, "upload", res)
}

func (s *Service) checkSlack(target SlackTarget) error {
	if err := notify.ValidateSlackTarget(target.Token, target.Channel); err != nil {
		path := "slackToken"
		if errors.Is(err, notify.ErrInvalidSlackChannel) {
			path = "channelId"
		}
		return &models.ValidationError{Path: path, Reason: err.Error()}
	}
	if s.sender == nil {
		return ErrSlackUnavailable
	}
	return nil
}

func (s *Service) slackResult(ctx context.Context, op string, res notify.Result) error {
	s.metrics.RecordNotification("slack", res.OK)
	if res.OK {
		return nil
	}
	s.log(ctx).Warn("slack call failed", "op", op, "error", res.Error)
	return fmt.Errorf("%w: %s", ErrSlackDelivery, res.Error)
}
