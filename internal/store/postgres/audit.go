package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Emmanuelombaye/POS-System-sub000/internal/domain"
	"github.com/Emmanuelombaye/POS-System-sub000/internal/xid"
)

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO audit_logs (id, branch_id, actor_id, actor_name, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, entry.ID, entry.BranchID, entry.ActorID, entry.ActorName, entry.ActorRole,
		entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return classify(err)
}

func (s *Store) ListAuditLogs(ctx context.Context, branchID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	rows, _ := s.pool.Query(ctx, `
		SELECT id, branch_id, actor_id, actor_name, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE ($1 = '' OR branch_id = $1) AND created_at >= $2 AND created_at < $3
		ORDER BY created_at DESC, id DESC
		LIMIT NULLIF($4, 0)
	`, branchID, from, to, limit)
	logs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.AuditLog, error) {
		var l domain.AuditLog
		err := row.Scan(&l.ID, &l.BranchID, &l.ActorID, &l.ActorName, &l.ActorRole,
			&l.Action, &l.EntityType, &l.EntityID, &l.Detail, &l.CreatedAt)
		return l, err
	})
	if err != nil {
		return nil, classify(err)
	}
	return logs, nil
}
