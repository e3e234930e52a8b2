package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/csahub/internal/models"
	"github.com/charlesng35/csahub/internal/security"
	"github.com/charlesng35/csahub/pkg/logger"
)

// MembersPerPage is the admin list page size.
const MembersPerPage = 25

// MemberListOptions filter the admin member list. Status is one of all,
// pending, verified or blocked.
type MemberListOptions struct {
	Status string
	Search string
	Page   int
}

// MemberCounts are per-status totals across the whole table.
type MemberCounts struct {
	All      int64 `json:"all"`
	Pending  int64 `json:"pending"`
	Verified int64 `json:"verified"`
	Blocked  int64 `json:"blocked"`
}

// MemberPage is one page of the admin member list.
type MemberPage struct {
	Members    []models.Member `json:"members"`
	Total      int64           `json:"total"`
	Page       int             `json:"page"`
	PerPage    int             `json:"per_page"`
	TotalPages int             `json:"total_pages"`
	Counts     MemberCounts    `json:"counts"`
	Status     string          `json:"status"`
	Search     string          `json:"search"`
}

// MemberService backs the admin member pages.
type MemberService struct {
	db    *gorm.DB
	audit *AuditService
	now   func() time.Time
	log   *zap.Logger
}

// NewMemberService constructs a MemberService.
func NewMemberService(db *gorm.DB, audit *AuditService) (*MemberService, error) {
	if db == nil {
		return nil, errors.New("member service: db is required")
	}
	return &MemberService{
		db:    db,
		audit: audit,
		now:   func() time.Time { return time.Now().UTC() },
		log:   logger.WithModule("members"),
	}, nil
}

// List returns a filtered page of members, newest first.
func (s *MemberService) List(ctx context.Context, opts MemberListOptions) (*MemberPage, error) {
	ctx = ensureContext(ctx)
	status := normaliseStatusFilter(opts.Status)
	search := strings.TrimSpace(opts.Search)
	page := normalisePage(opts.Page)

	query := s.db.WithContext(ctx).Model(&models.Member{})
	if status != "all" {
		query = query.Where("status = ?", strings.ToUpper(status))
	}
	if search != "" {
		// Names and majors are stored escaped, emails as typed.
		text := likePattern(security.SanitizeText(search))
		email := likePattern(search)
		query = query.Where(
			"(LOWER(first_name) LIKE ? ESCAPE '!' OR LOWER(last_name) LIKE ? ESCAPE '!' OR LOWER(email) LIKE ? ESCAPE '!' OR LOWER(major) LIKE ? ESCAPE '!')",
			text, text, email, text,
		)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, internalError(fmt.Errorf("count members: %w", err))
	}

	var members []models.Member
	if err := query.
		Order("created_at DESC").
		Order("id DESC").
		Offset((page - 1) * MembersPerPage).
		Limit(MembersPerPage).
		Find(&members).Error; err != nil {
		return nil, internalError(fmt.Errorf("list members: %w", err))
	}

	counts, err := countMembersByStatus(ctx, s.db)
	if err != nil {
		return nil, internalError(err)
	}

	return &MemberPage{
		Members:    members,
		Total:      total,
		Page:       page,
		PerPage:    MembersPerPage,
		TotalPages: totalPages(total, MembersPerPage),
		Counts:     counts,
		Status:     status,
		Search:     search,
	}, nil
}

// Get loads a member by id.
func (s *MemberService) Get(ctx context.Context, id uint) (*models.Member, error) {
	var member models.Member
	err := s.db.WithContext(ensureContext(ctx)).Take(&member, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrMemberNotFound
	}
	if err != nil {
		return nil, internalError(fmt.Errorf("load member: %w", err))
	}
	return &member, nil
}

// Execute applies cmd and returns the confirmation message.
func (s *MemberService) Execute(ctx context.Context, actor Actor, cmd MemberCommand) (string, error) {
	ctx = ensureContext(ctx)
	if cmd == nil {
		return "", ErrMemberNotFound
	}

	message, err := s.execute(ctx, cmd)
	result := AuditSuccess
	if err != nil {
		result = AuditFailure
	}
	recordAudit(s.audit, ctx, actor.entry(
		"member."+cmd.Action(),
		resourceRef("member", cmd.MemberID()),
		result,
		nil,
	))
	if err != nil {
		return "", err
	}
	s.log.Info("member command applied",
		zap.String("action", cmd.Action()),
		zap.Uint("member_id", cmd.MemberID()),
		zap.String("admin", actor.Email),
	)
	return message, nil
}

func (s *MemberService) execute(ctx context.Context, cmd MemberCommand) (string, error) {
	member, err := s.Get(ctx, cmd.MemberID())
	if err != nil {
		return "", err
	}
	now := s.now()
	db := s.db.WithContext(ctx).Model(member)

	switch cmd.(type) {
	case VerifyMember:
		updates := map[string]any{
			"status":             models.MemberStatusVerified,
			"verification_token": nil,
		}
		if member.VerifiedAt == nil {
			updates["verified_at"] = now
		}
		if err := db.Updates(updates).Error; err != nil {
			return "", internalError(fmt.Errorf("verify member: %w", err))
		}
		return "Member verified successfully!", nil
	case BlockMember:
		if err := db.Updates(map[string]any{
			"status":             models.MemberStatusBlocked,
			"verification_token": nil,
		}).Error; err != nil {
			return "", internalError(fmt.Errorf("block member: %w", err))
		}
		return "Member blocked successfully!", nil
	case UnblockMember:
		if err := db.Update("status", models.MemberStatusVerified).Error; err != nil {
			return "", internalError(fmt.Errorf("unblock member: %w", err))
		}
		return "Member unblocked successfully!", nil
	case DeleteMember:
		if err := s.db.WithContext(ctx).Delete(&models.Member{}, member.ID).Error; err != nil {
			return "", internalError(fmt.Errorf("delete member: %w", err))
		}
		return "Member deleted successfully!", nil
	default:
		return "", fmt.Errorf("member service: unsupported command %T", cmd)
	}
}

func normaliseStatusFilter(status string) string {
	status = strings.ToLower(strings.TrimSpace(status))
	switch status {
	case "pending", "verified", "blocked":
		return status
	default:
		return "all"
	}
}

func countMembersByStatus(ctx context.Context, db *gorm.DB) (MemberCounts, error) {
	var rows []struct {
		Status models.MemberStatus
		Total  int64
	}
	if err := db.WithContext(ctx).Model(&models.Member{}).
		Select("status, COUNT(*) AS total").
		Group("status").
		Scan(&rows).Error; err != nil {
		return MemberCounts{}, fmt.Errorf("count members by status: %w", err)
	}

	var counts MemberCounts
	for _, row := range rows {
		counts.All += row.Total
		switch row.Status {
		case models.MemberStatusPending:
			counts.Pending = row.Total
		case models.MemberStatusVerified:
			counts.Verified = row.Total
		case models.MemberStatusBlocked:
			counts.Blocked = row.Total
		}
	}
	return counts, nil
}
