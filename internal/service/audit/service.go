package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/telecare-api/internal/model"
	"github.com/jwalitptl/telecare-api/internal/repository"
)

type clientKey struct{}

type clientInfo struct {
	ip        string
	userAgent string
}

// WithClient stores the caller's address and user agent on ctx for audit
// entries written further down the call chain.
func WithClient(ctx context.Context, ip, userAgent string) context.Context {
	return context.WithValue(ctx, clientKey{}, clientInfo{ip: ip, userAgent: userAgent})
}

type Service struct {
	repo repository.AuditRepository
	now  func() time.Time
}

func NewService(repo repository.AuditRepository) *Service {
	return &Service{repo: repo, now: model.Now}
}

// Log creates an audit log entry
func (s *Service) Log(ctx context.Context, entry model.AuditEntry) error {
	var changes json.RawMessage
	if entry.Changes != nil {
		data, err := json.Marshal(entry.Changes)
		if err != nil {
			return fmt.Errorf("failed to marshal audit changes: %w", err)
		}
		changes = data
	}

	ipAddress, userAgent := entry.IPAddress, entry.UserAgent
	if ipAddress == "" {
		if gc, ok := ctx.(*gin.Context); ok {
			ipAddress = gc.ClientIP()
			userAgent = gc.GetHeader("User-Agent")
		} else if info, ok := ctx.Value(clientKey{}).(clientInfo); ok {
			ipAddress = info.ip
			userAgent = info.userAgent
		}
	}

	log := &model.AuditLog{
		UserID:     entry.UserID,
		Action:     entry.Action,
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID,
		Changes:    changes,
		IPAddress:  ipAddress,
		UserAgent:  userAgent,
		CreatedAt:  s.now(),
	}
	if err := s.repo.Create(ctx, log); err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

func (s *Service) List(ctx context.Context, filters *model.AuditLogFilters) ([]*model.AuditLog, int64, error) {
	logs, total, err := s.repo.List(ctx, filters)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list audit logs: %w", err)
	}
	return logs, total, nil
}

// Cleanup removes entries older than the retention period.
func (s *Service) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	return s.repo.Cleanup(ctx, s.now().Add(-retention))
}
