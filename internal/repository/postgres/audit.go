package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/telecare-api/internal/model"
	"github.com/jwalitptl/telecare-api/internal/repository"
)

const auditColumns = `id, user_id, action, entity_type, entity_id,
	COALESCE(changes, '{}'::jsonb) AS changes, ip_address, user_agent, created_at`

type auditRepository struct {
	BaseRepository
}

func NewAuditRepository(base BaseRepository) repository.AuditRepository {
	return &auditRepository{base}
}

func (r *auditRepository) Create(ctx context.Context, log *model.AuditLog) error {
	query := `
		INSERT INTO audit_logs (
			id, user_id, action, entity_type, entity_id,
			changes, ip_address, user_agent, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = model.Now()
	}

	var changes interface{}
	if len(log.Changes) > 0 {
		changes = []byte(log.Changes)
	}

	_, err := r.db.ExecContext(ctx, query,
		log.ID,
		log.UserID,
		log.Action,
		log.EntityType,
		log.EntityID,
		changes,
		log.IPAddress,
		log.UserAgent,
		log.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	return nil
}

func (r *auditRepository) List(ctx context.Context, filters *model.AuditLogFilters) ([]*model.AuditLog, int64, error) {
	var c conditions
	if filters.UserID != nil {
		c.add("user_id = $%d", *filters.UserID)
	}
	if filters.EntityType != "" {
		c.add("entity_type = $%d", filters.EntityType)
	}
	if filters.Action != "" {
		c.add("action = $%d", filters.Action)
	}
	if filters.From != nil {
		c.add("created_at >= $%d", *filters.From)
	}
	if filters.To != nil {
		c.add("created_at <= $%d", *filters.To)
	}

	// Get total count
	var total int64
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM audit_logs`+c.where(), c.args...); err != nil {
		return nil, 0, fmt.Errorf("failed to get total count: %w", err)
	}

	suffix, args := c.page(filters.Limit(), filters.Offset())
	query := `SELECT ` + auditColumns + ` FROM audit_logs` + c.where() + ` ORDER BY created_at DESC` + suffix

	logs := []*model.AuditLog{}
	if err := r.db.SelectContext(ctx, &logs, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list audit logs: %w", err)
	}
	return logs, total, nil
}

func (r *auditRepository) Cleanup(ctx context.Context, before time.Time) (int64, error) {
	query := `DELETE FROM audit_logs WHERE created_at < $1`

	result, err := r.db.ExecContext(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup audit logs: %w", err)
	}
	return result.RowsAffected()
}
