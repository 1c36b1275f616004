package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/xela07ax/treasury-approval-gate/internal/audit"
	"github.com/xela07ax/treasury-approval-gate/internal/infra"

	_ "github.com/jackc/pgx/v5/stdlib" // Драйвер Postgres
)

type AuditRepo struct {
	db *sql.DB
}

func NewAuditRepo(cfg infra.DatabaseConfig) (*AuditRepo, error) {
	db, err := sql.Open("pgx", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("postgres: open audit connection: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxConns)
	db.SetMaxIdleConns(cfg.MinConns)
	db.SetConnMaxLifetime(5 * time.Minute)
	return &AuditRepo{db: db}, nil
}

// Ping проверяет доступность базы при старте
func (r *AuditRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// WriteBatch пакетно вставляет события HITL-контура в approval_audit.
func (r *AuditRepo) WriteBatch(ctx context.Context, events []audit.ApprovalEvent) error {
	if len(events) == 0 {
		return nil
	}

	// Количество колонок в таблице approval_audit
	numFields := 13
	placeholderStr := ""
	vals := make([]interface{}, 0, len(events)*numFields)

	// Динамически строим запрос для пакетной вставки
	for i, e := range events {
		p := i * numFields
		placeholderStr += fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d),",
			p+1, p+2, p+3, p+4, p+5, p+6, p+7, p+8, p+9, p+10, p+11, p+12, p+13)

		vals = append(vals,
			e.ID, e.TraceID, e.RequestID, e.SubjectID, e.OperationKind,
			e.Amount, e.Origin, e.Stage, e.Outcome, e.ReviewerID,
			e.Prompt, e.DurationMs, e.Timestamp,
		)
	}

	// Убираем лишнюю запятую в конце
	query := fmt.Sprintf(
		"INSERT INTO approval_audit (id, trace_id, request_id, subject_id, operation_kind, amount, origin, stage, outcome, reviewer_id, prompt, duration_ms, timestamp) VALUES %s",
		strings.TrimSuffix(placeholderStr, ","),
	)

	_, err := r.db.ExecContext(ctx, query, vals...)
	return err
}
