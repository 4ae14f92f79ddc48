package reports

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/ncecere/usage_reports/backend/internal/aggregate"
	"github.com/ncecere/usage_reports/backend/internal/db"
	"github.com/ncecere/usage_reports/backend/internal/models"
	"github.com/ncecere/usage_reports/backend/internal/notify"
)

const (
	kindSingle = "single"
	kindTeam   = "team"
)

// SlackTarget is a caller-supplied bot token and channel id.
type SlackTarget struct {
	Token   string `json:"token"`
	Channel string `json:"channel"`
}

func (t *SlackTarget) empty() bool {
	return t == nil || (strings.TrimSpace(t.Token) == "" && strings.TrimSpace(t.Channel) == "")
}

// SingleInput is one owner's usage export.
type SingleInput struct {
	UserName string
	TeamName string
	Data     []byte
	Since    string
	Until    string
	FileName string
	Slack    *SlackTarget
}

type MemberInput struct {
	Name     string
	FileName string
	Data     []byte
}

// TeamInput saves several members' exports as one team report.
type TeamInput struct {
	TeamName     string
	ReporterName string
	Members      []MemberInput
	Since        string
	Until        string
	Slack        *SlackTarget
}

// SaveResult carries the stored report and, when a notification failed,
// a warning for the caller. The save itself has succeeded either way.
type SaveResult struct {
	Report  models.Report
	Warning string
}

// SaveSingle validates, merges and stores one owner's usage export.
func (s *Service) SaveSingle(ctx context.Context, in SingleInput) (SaveResult, error) {
	if len(bytes.TrimSpace(in.Data)) == 0 {
		return SaveResult{}, &models.ValidationError{Path: "ccusageData", Reason: "required"}
	}
	rec, err := models.ParseUsageRecord(in.Data)
	if err != nil {
		return SaveResult{}, validationAt(err, "ccusageData")
	}
	opts, err := saveOptions(in.Since, in.Until, in.FileName)
	if err != nil {
		return SaveResult{}, err
	}

	fields := aggregate.MergeSingle(in.UserName, rec, opts)
	report, err := s.persist(ctx, in.UserName, in.TeamName, fields)
	if err != nil {
		return SaveResult{}, err
	}
	s.metrics.RecordReportSaved(kindSingle, report.Summary.TotalCost, report.Summary.TotalTokens)
	s.log(ctx).Info("report saved", "report_id", report.ID, "kind", kindSingle, "period", report.Period)

	return SaveResult{Report: report, Warning: s.announce(ctx, report, in.Slack)}, nil
}

// SaveTeam validates every member export and stores them as one report.
// The first invalid member aborts the save.
func (s *Service) SaveTeam(ctx context.Context, in TeamInput) (SaveResult, error) {
	team := strings.TrimSpace(in.TeamName)
	if team == "" {
		return SaveResult{}, &models.ValidationError{Path: "teamName", Reason: "required"}
	}
	if len(in.Members) == 0 {
		return SaveResult{}, &models.ValidationError{Path: "members", Reason: "at least one member required"}
	}

	members := make([]models.MemberData, 0, len(in.Members))
	for i, m := range in.Members {
		path := fmt.Sprintf("members.%d.data", i)
		if len(bytes.TrimSpace(m.Data)) == 0 {
			return SaveResult{}, &models.ValidationError{Path: path, Reason: "required"}
		}
		rec, err := models.ParseUsageRecord(m.Data)
		if err != nil {
			return SaveResult{}, validationAt(err, path)
		}
		members = append(members, models.MemberData{
			Name:     strings.TrimSpace(m.Name),
			FileName: strings.TrimSpace(m.FileName),
			Data:     rec,
		})
	}
	opts, err := saveOptions(in.Since, in.Until, "")
	if err != nil {
		return SaveResult{}, err
	}

	fields := aggregate.MergeTeam(team, members, opts)
	report, err := s.persist(ctx, in.ReporterName, team, fields)
	if err != nil {
		return SaveResult{}, err
	}
	s.metrics.RecordReportSaved(kindTeam, report.Summary.TotalCost, report.Summary.TotalTokens)
	s.log(ctx).Info("report saved", "report_id", report.ID, "kind", kindTeam, "members", len(members), "period", report.Period)

	return SaveResult{Report: report, Warning: s.announce(ctx, report, in.Slack)}, nil
}

// persist evicts the oldest reports beyond the retention cap and upserts
// the new one inside a single transaction.
func (s *Service) persist(ctx context.Context, reporter, team string, fields models.ReportFields) (models.Report, error) {
	raw, err := json.Marshal(fields.RawData)
	if err != nil {
		return models.Report{}, fmt.Errorf("encode raw data: %w", err)
	}
	summary, err := json.Marshal(fields.Summary)
	if err != nil {
		return models.Report{}, fmt.Errorf("encode summary: %w", err)
	}

	id := pgtype.UUID{Bytes: s.newID(), Valid: true}
	var row db.Report
	err = s.inTx(ctx, func(q Queries) error {
		if _, err := q.EvictReportsOverCap(ctx, db.EvictReportsOverCapParams{
			KeepID: id,
			Keep:   int32(s.cfg.RetentionCap - 1),
		}); err != nil {
			return fmt.Errorf("evict reports: %w", err)
		}
		var err error
		row, err = q.UpsertReport(ctx, db.UpsertReportParams{
			ID:           id,
			ReporterName: optionalText(reporter),
			TeamName:     optionalText(team),
			Period:       fields.Period,
			PeriodStart:  models.PeriodStart(fields.Period),
			RawData:      raw,
			Summary:      summary,
		})
		if err != nil {
			return fmt.Errorf("insert report: %w", err)
		}
		return nil
	})
	if err != nil {
		return models.Report{}, err
	}
	return toReport(row)
}

// announce fans the saved report out to the configured announcers and the
// caller's Slack channel. Failures only produce a warning.
func (s *Service) announce(ctx context.Context, report models.Report, target *SlackTarget) string {
	a := notify.AnnouncementFor(report)
	if s.announcer != nil {
		err := s.announcer.Announce(ctx, a)
		s.metrics.RecordNotification("announce", err == nil)
		if err != nil {
			s.log(ctx).Warn("report announcement failed", "report_id", report.ID, "error", err)
		}
	}

	if target.empty() {
		return ""
	}
	if err := notify.ValidateSlackTarget(target.Token, target.Channel); err != nil {
		return "slack notification skipped: " + err.Error()
	}
	if s.sender == nil {
		return "slack notification unavailable"
	}
	res := s.sender.PostMessage(ctx, strings.TrimSpace(target.Token), strings.TrimSpace(target.Channel), notify.SaveMessage(a))
	s.metrics.RecordNotification("slack", res.OK)
	if !res.OK {
		s.log(ctx).Warn("slack notification failed", "report_id", report.ID, "error", res.Error)
		return "slack notification failed: " + res.Error
	}
	return ""
}

var overrideLayouts = []string{"20060102", "2006-01-02"}

func saveOptions(since, until, fileName string) (aggregate.SaveOptions, error) {
	since = strings.TrimSpace(since)
	until = strings.TrimSpace(until)
	if err := checkOverride("since", since); err != nil {
		return aggregate.SaveOptions{}, err
	}
	if err := checkOverride("until", until); err != nil {
		return aggregate.SaveOptions{}, err
	}
	if since != "" && until != "" && models.NormalizeDate(since) > models.NormalizeDate(until) {
		return aggregate.SaveOptions{}, &models.ValidationError{Path: "until", Reason: "must not be before since"}
	}
	return aggregate.SaveOptions{Since: since, Until: until, FileName: strings.TrimSpace(fileName)}, nil
}

func checkOverride(field, value string) error {
	if value == "" {
		return nil
	}
	for _, layout := range overrideLayouts {
		if _, err := time.Parse(layout, value); err == nil {
			return nil
		}
	}
	return &models.ValidationError{Path: field, Reason: "expected YYYYMMDD or YYYY-MM-DD"}
}

func validationAt(err error, prefix string) error {
	var verr *models.ValidationError
	if errors.As(err, &verr) {
		return verr.WithPrefix(prefix)
	}
	return err
}
