// Package notify delivers report announcements to Slack and webhooks.
// Delivery failures are soft: callers log or surface them as warnings and
// never roll back the save that triggered them.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"

	"github.com/ncecere/usage_reports/backend/internal/models"
)

// Announcement describes a freshly saved report.
type Announcement struct {
	ReportID  string           `json:"report_id"`
	Reporter  string           `json:"reporter"`
	Team      string           `json:"team"`
	Period    string           `json:"period"`
	Summary   models.TeamStats `json:"summary"`
	CreatedAt time.Time        `json:"created_at"`
}

// AnnouncementFor builds the announcement of a stored report.
func AnnouncementFor(r models.Report) Announcement {
	return Announcement{
		ReportID:  r.ID,
		Reporter:  r.ReporterName,
		Team:      r.TeamName,
		Period:    r.Period,
		Summary:   r.Summary,
		CreatedAt: r.CreatedAt,
	}
}

type Announcer interface {
	Announce(ctx context.Context, a Announcement) error
}

// Composite fans an announcement out to several announcers.
type Composite struct {
	announcers []Announcer
}

// NewComposite drops nil entries and returns nil when none remain.
func NewComposite(announcers ...Announcer) Announcer {
	filtered := make([]Announcer, 0, len(announcers))
	for _, a := range announcers {
		if a == nil {
			continue
		}
		filtered = append(filtered, a)
	}
	if len(filtered) == 0 {
		return nil
	}
	return &Composite{announcers: filtered}
}

func (c *Composite) Announce(ctx context.Context, a Announcement) error {
	if c == nil {
		return nil
	}
	var errs []error
	for _, announcer := range c.announcers {
		if err := announcer.Announce(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SaveMessage is the Slack text posted when a report is saved.
func SaveMessage(a Announcement) string {
	who := a.Reporter
	if who == "" {
		who = models.UnknownName
	}
	if a.Team != "" {
		who = fmt.Sprintf("%s (%s)", who, a.Team)
	}
	period := a.Period
	if period == "" {
		period = "no usage"
	}
	return fmt.Sprintf(
		"Usage report saved by %s for %s\nCost: $%s, tokens: %s, members: %d",
		who,
		period,
		decimal.NewFromFloat(a.Summary.TotalCost).StringFixed(2),
		humanize.Comma(a.Summary.TotalTokens),
		a.Summary.TotalMembers,
	)
}
