package services

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"html"
	"io"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/csahub/internal/models"
)

const (
	exportBatchSize = 500
	digestWindow    = 7 * 24 * time.Hour
	digestTopMajors = 5
	digestEvents    = 5
)

var exportHeader = []string{
	"id", "first_name", "last_name", "email", "year_level", "major", "campus",
	"phone", "status", "consent_comms", "created_at", "verified_at",
}

// ExportOptions select the members written by ExportMembers.
type ExportOptions struct {
	// Status limits the export to one status; empty exports every status.
	Status models.MemberStatus
	// IncludeBlocked keeps blocked members when Status is empty.
	IncludeBlocked bool
}

// MajorCount is a major and the number of members studying it.
type MajorCount struct {
	Major string `json:"major"`
	Total int64  `json:"total"`
}

// Digest summarises recent membership activity.
type Digest struct {
	GeneratedAt      time.Time      `json:"generated_at"`
	Since            time.Time      `json:"since"`
	NewRegistrations int64          `json:"new_registrations"`
	NewVerifications int64          `json:"new_verifications"`
	Counts           MemberCounts   `json:"counts"`
	TopMajors        []MajorCount   `json:"top_majors"`
	UpcomingEvents   []models.Event `json:"upcoming_events"`
}

// ReportService produces exports and digests for the organisers.
type ReportService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewReportService constructs a ReportService.
func NewReportService(db *gorm.DB) (*ReportService, error) {
	if db == nil {
		return nil, errors.New("report service: db is required")
	}
	return &ReportService{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// ExportMembers writes matching members as CSV, oldest first, and returns the
// number of rows written. Stored HTML escaping is undone in the output.
func (s *ReportService) ExportMembers(ctx context.Context, w io.Writer, opts ExportOptions) (int, error) {
	ctx = ensureContext(ctx)
	if opts.Status != "" && !opts.Status.Valid() {
		return 0, fmt.Errorf("report service: unknown status %q", opts.Status)
	}

	writer := csv.NewWriter(w)
	if err := writer.Write(exportHeader); err != nil {
		return 0, fmt.Errorf("report service: write header: %w", err)
	}

	query := s.db.WithContext(ctx).Model(&models.Member{}).Order("id ASC")
	switch {
	case opts.Status != "":
		query = query.Where("status = ?", opts.Status)
	case !opts.IncludeBlocked:
		query = query.Where("status <> ?", models.MemberStatusBlocked)
	}

	written := 0
	var batch []models.Member
	res := query.FindInBatches(&batch, exportBatchSize, func(_ *gorm.DB, _ int) error {
		for _, m := range batch {
			if err := writer.Write(memberRecord(m)); err != nil {
				return err
			}
			written++
		}
		writer.Flush()
		return writer.Error()
	})
	if res.Error != nil {
		return written, fmt.Errorf("report service: export members: %w", res.Error)
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return written, fmt.Errorf("report service: flush: %w", err)
	}
	return written, nil
}

func memberRecord(m models.Member) []string {
	phone := ""
	if m.Phone != nil {
		phone = html.UnescapeString(*m.Phone)
	}
	verifiedAt := ""
	if m.VerifiedAt != nil {
		verifiedAt = m.VerifiedAt.UTC().Format(time.RFC3339)
	}
	return []string{
		strconv.FormatUint(uint64(m.ID), 10),
		html.UnescapeString(m.FirstName),
		html.UnescapeString(m.LastName),
		m.Email,
		html.UnescapeString(m.YearLevel),
		html.UnescapeString(m.Major),
		html.UnescapeString(m.Campus),
		phone,
		string(m.Status),
		strconv.FormatBool(m.ConsentComms),
		m.CreatedAt.UTC().Format(time.RFC3339),
		verifiedAt,
	}
}

// WeeklyDigest summarises the last seven days.
func (s *ReportService) WeeklyDigest(ctx context.Context) (*Digest, error) {
	ctx = ensureContext(ctx)
	now := s.now()
	since := now.Add(-digestWindow)
	db := s.db.WithContext(ctx)

	digest := &Digest{GeneratedAt: now, Since: since}

	if err := db.Model(&models.Member{}).
		Where("created_at >= ?", since).
		Count(&digest.NewRegistrations).Error; err != nil {
		return nil, fmt.Errorf("report service: count registrations: %w", err)
	}
	if err := db.Model(&models.Member{}).
		Where("verified_at >= ?", since).
		Count(&digest.NewVerifications).Error; err != nil {
		return nil, fmt.Errorf("report service: count verifications: %w", err)
	}

	counts, err := countMembersByStatus(ctx, s.db)
	if err != nil {
		return nil, fmt.Errorf("report service: %w", err)
	}
	digest.Counts = counts

	if err := db.Model(&models.Member{}).
		Select("major, COUNT(*) AS total").
		Where("major <> ''").
		Group("major").
		Order("total DESC").
		Order("major ASC").
		Limit(digestTopMajors).
		Scan(&digest.TopMajors).Error; err != nil {
		return nil, fmt.Errorf("report service: top majors: %w", err)
	}

	if err := db.Where("start_time > ?", now).
		Order("start_time ASC").
		Limit(digestEvents).
		Find(&digest.UpcomingEvents).Error; err != nil {
		return nil, fmt.Errorf("report service: upcoming events: %w", err)
	}

	return digest, nil
}

// ParseExportStatus maps a CLI flag value to a status filter.
func ParseExportStatus(raw string) (models.MemberStatus, error) {
	raw = strings.ToUpper(strings.TrimSpace(raw))
	if raw == "" || raw == "ALL" {
		return "", nil
	}
	status := models.MemberStatus(raw)
	if !status.Valid() {
		return "", fmt.Errorf("unknown status %q", raw)
	}
	return status, nil
}
