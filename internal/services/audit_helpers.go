package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/charlesng35/csahub/pkg/logger"
)

// Actor identifies the admin performing a command.
type Actor struct {
	AdminID   uint
	Email     string
	IPAddress string
	UserAgent string
}

func (a Actor) entry(action, resource, result string, metadata map[string]any) AuditEntry {
	var id *uint
	if a.AdminID != 0 {
		adminID := a.AdminID
		id = &adminID
	}
	return AuditEntry{
		AdminID:    id,
		AdminEmail: a.Email,
		Action:     action,
		Resource:   resource,
		Result:     result,
		IPAddress:  a.IPAddress,
		UserAgent:  a.UserAgent,
		Metadata:   metadata,
	}
}

func resourceRef(kind string, id uint) string {
	return fmt.Sprintf("%s:%d", kind, id)
}

// recordAudit logs the supplied entry while tolerating audit failures.
func recordAudit(audit *AuditService, ctx context.Context, entry AuditEntry) {
	if audit == nil {
		return
	}
	if err := audit.Log(ctx, entry); err != nil {
		logger.WithModule("audit").Warn("audit entry not recorded",
			zap.String("action", entry.Action),
			zap.Error(err),
		)
	}
}
