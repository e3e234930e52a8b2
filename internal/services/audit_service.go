package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/charlesng35/csahub/internal/models"
)

// Audit results.
const (
	AuditSuccess = "success"
	AuditFailure = "failure"
)

const (
	defaultAuditPageSize = 50
	maxAuditPageSize     = 200
	redactedValue        = "[redacted]"
)

// Metadata keys whose values must never reach the audit table.
var sensitiveMetadataKeys = []string{"password", "token", "captcha", "secret"}

// AuditEntry is one admin action to be recorded.
type AuditEntry struct {
	AdminID    *uint
	AdminEmail string
	Action     string
	Resource   string
	Result     string
	IPAddress  string
	UserAgent  string
	Metadata   map[string]any
}

// AuditFilters narrows an audit query. Scope matches the action namespace
// ("member", "event", "admin").
type AuditFilters struct {
	AdminID    *uint
	AdminEmail string
	Scope      string
	Action     string
	Result     string
	Resource   string
	Since      *time.Time
	Until      *time.Time
}

type AuditListOptions struct {
	Page     int
	PageSize int
	Filters  AuditFilters
}

// AuditService records admin activity against members and events.
type AuditService struct {
	db  *gorm.DB
	now func() time.Time
}

func NewAuditService(db *gorm.DB) (*AuditService, error) {
	if db == nil {
		return nil, errors.New("audit service: db is required")
	}
	return &AuditService{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Log writes entry. Metadata values under sensitive keys are replaced
// before they are stored.
func (s *AuditService) Log(ctx context.Context, entry AuditEntry) error {
	action := strings.TrimSpace(entry.Action)
	result := strings.TrimSpace(entry.Result)
	switch {
	case action == "":
		return errors.New("audit service: action is required")
	case result == "":
		return errors.New("audit service: result is required")
	}

	metadata, err := encodeAuditMetadata(entry.Metadata)
	if err != nil {
		return err
	}

	row := models.AuditLog{
		AdminID:    entry.AdminID,
		AdminEmail: normalizeEmail(entry.AdminEmail),
		Action:     action,
		Resource:   strings.TrimSpace(entry.Resource),
		Result:     result,
		IPAddress:  strings.TrimSpace(entry.IPAddress),
		UserAgent:  truncateRunes(strings.TrimSpace(entry.UserAgent), 255),
		Metadata:   metadata,
	}
	return s.db.WithContext(ensureContext(ctx)).Create(&row).Error
}

// List returns the newest entries first together with the unpaged total.
func (s *AuditService) List(ctx context.Context, opts AuditListOptions) ([]models.AuditLog, int64, error) {
	pageSize := opts.PageSize
	if pageSize <= 0 || pageSize > maxAuditPageSize {
		pageSize = defaultAuditPageSize
	}
	page := normalisePage(opts.Page)

	query := opts.Filters.apply(s.db.WithContext(ensureContext(ctx)).Model(&models.AuditLog{}))

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("audit service: count: %w", err)
	}
	if total == 0 {
		return []models.AuditLog{}, 0, nil
	}

	var rows []models.AuditLog
	err := query.
		Order("created_at DESC").
		Order("id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&rows).Error
	if err != nil {
		return nil, 0, fmt.Errorf("audit service: list: %w", err)
	}
	return rows, total, nil
}

// CleanupOlderThan deletes entries written more than retentionDays ago.
func (s *AuditService) CleanupOlderThan(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, errors.New("audit service: retentionDays must be positive")
	}
	cutoff := s.now().AddDate(0, 0, -retentionDays)

	res := s.db.WithContext(ensureContext(ctx)).
		Where("created_at < ?", cutoff).
		Delete(&models.AuditLog{})
	if res.Error != nil {
		return 0, fmt.Errorf("audit service: cleanup: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (f AuditFilters) apply(query *gorm.DB) *gorm.DB {
	if f.AdminID != nil {
		query = query.Where("admin_id = ?", *f.AdminID)
	}
	if email := normalizeEmail(f.AdminEmail); email != "" {
		query = query.Where("admin_email = ?", email)
	}
	if scope := strings.TrimSpace(f.Scope); scope != "" {
		query = query.Where("action LIKE ?", scope+".%")
	}
	if f.Action != "" {
		query = query.Where("action = ?", f.Action)
	}
	if f.Result != "" {
		query = query.Where("result = ?", f.Result)
	}
	if f.Resource != "" {
		query = query.Where("resource = ?", f.Resource)
	}
	if f.Since != nil {
		query = query.Where("created_at >= ?", *f.Since)
	}
	if f.Until != nil {
		query = query.Where("created_at <= ?", *f.Until)
	}
	return query
}

func encodeAuditMetadata(metadata map[string]any) (datatypes.JSON, error) {
	if metadata == nil {
		return nil, nil
	}
	clean := make(map[string]any, len(metadata))
	for key, value := range metadata {
		if isSensitiveMetadataKey(key) {
			clean[key] = redactedValue
			continue
		}
		clean[key] = value
	}
	encoded, err := json.Marshal(clean)
	if err != nil {
		return nil, fmt.Errorf("audit service: marshal metadata: %w", err)
	}
	return datatypes.JSON(encoded), nil
}

func isSensitiveMetadataKey(key string) bool {
	key = strings.ToLower(key)
	for _, sensitive := range sensitiveMetadataKeys {
		if strings.Contains(key, sensitive) {
			return true
		}
	}
	return false
}
