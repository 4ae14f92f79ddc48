package notify

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/slack-go/slack"

	"github.com/ncecere/usage_reports/backend/internal/config"
)

var (
	ErrInvalidSlackToken   = errors.New("invalid slack token: expected a bot token starting with xoxb-")
	ErrInvalidSlackChannel = errors.New("invalid slack channel id")

	slackTokenPattern   = regexp.MustCompile(`^xoxb-`)
	slackChannelPattern = regexp.MustCompile(`^[A-Z0-9]+$`)
)

// Result is the outcome of one Slack call. Error is empty on success.
type Result struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

func failure(err error) Result {
	return Result{OK: false, Error: err.Error()}
}

// ValidateSlackTarget checks the token and channel shapes before any call.
func ValidateSlackTarget(token, channel string) error {
	if !slackTokenPattern.MatchString(strings.TrimSpace(token)) {
		return ErrInvalidSlackToken
	}
	if !slackChannelPattern.MatchString(strings.TrimSpace(channel)) {
		return ErrInvalidSlackChannel
	}
	return nil
}

// Sender posts messages and files on behalf of a caller-supplied bot token.
type Sender interface {
	PostMessage(ctx context.Context, token, channel, text string) Result
	UploadFile(ctx context.Context, token, channel, filename string, data []byte, comment string) Result
}

type SlackSender struct {
	apiURL     string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewSlackSender(cfg config.SlackConfig, logger *slog.Logger) *SlackSender {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	apiURL := strings.TrimSpace(cfg.APIURL)
	if apiURL != "" && !strings.HasSuffix(apiURL, "/") {
		apiURL += "/"
	}
	return &SlackSender{
		apiURL:     apiURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

func (s *SlackSender) client(token string) *slack.Client {
	opts := []slack.Option{slack.OptionHTTPClient(s.httpClient)}
	if s.apiURL != "" {
		opts = append(opts, slack.OptionAPIURL(s.apiURL))
	}
	return slack.New(strings.TrimSpace(token), opts...)
}

func (s *SlackSender) PostMessage(ctx context.Context, token, channel, text string) Result {
	if err := ValidateSlackTarget(token, channel); err != nil {
		return failure(err)
	}
	if strings.TrimSpace(text) == "" {
		return failure(errors.New("message text required"))
	}
	_, _, err := s.client(token).PostMessageContext(ctx, channel, slack.MsgOptionText(text, false))
	if err != nil {
		s.logger.Warn("slack post message failed", "channel", channel, "error", err)
		return failure(err)
	}
	return Result{OK: true}
}

func (s *SlackSender) UploadFile(ctx context.Context, token, channel, filename string, data []byte, comment string) Result {
	if err := ValidateSlackTarget(token, channel); err != nil {
		return failure(err)
	}
	if len(data) == 0 {
		return failure(errors.New("file is empty"))
	}
	_, err := s.client(token).UploadFileV2Context(ctx, slack.UploadFileV2Parameters{
		Reader:         bytes.NewReader(data),
		FileSize:       len(data),
		Filename:       filename,
		Title:          filename,
		Channel:        channel,
		InitialComment: comment,
	})
	if err != nil {
		s.logger.Warn("slack file upload failed", "channel", channel, "filename", filename, "error", err)
		return failure(err)
	}
	return Result{OK: true}
}

// SlackAnnouncer posts every announcement to one configured channel.
type SlackAnnouncer struct {
	sender  Sender
	token   string
	channel string
}

// NewSlackAnnouncer returns nil unless both token and channel are set.
func NewSlackAnnouncer(sender Sender, token, channel string) Announcer {
	if sender == nil || strings.TrimSpace(token) == "" || strings.TrimSpace(channel) == "" {
		return nil
	}
	return &SlackAnnouncer{sender: sender, token: token, channel: channel}
}

func (s *SlackAnnouncer) Announce(ctx context.Context, a Announcement) error {
	res := s.sender.PostMessage(ctx, s.token, s.channel, SaveMessage(a))
	if !res.OK {
		return errors.New("slack announce: " + res.Error)
	}
	return nil
}
