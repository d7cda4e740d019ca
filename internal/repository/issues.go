package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"guildhall/internal/domain"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

type IssueRepository struct {
	db     DBTX
	logger zerolog.Logger
}

func NewIssueRepository(db DBTX, logger zerolog.Logger) *IssueRepository {
	return &IssueRepository{db: db, logger: logger}
}

func (r *IssueRepository) withTx(tx DBTX) *IssueRepository {
	return &IssueRepository{db: tx, logger: r.logger}
}

const issueColumns = `id, issue_type, severity, subject_key, payload, resolved, resolved_at, created_at, updated_at`

// Unresolved returns the open issue for a (type, subject) pair, or nil.
func (r *IssueRepository) Unresolved(ctx context.Context, issueType domain.IssueType, subjectKey string) (*domain.AuditIssue, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+issueColumns+`
		FROM audit_issues
		WHERE issue_type = ? AND subject_key = ? AND resolved = 0`, issueType, subjectKey)

	issue, err := scanIssue(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get issue %s/%s: %w", issueType, subjectKey, err)
	}
	return issue, nil
}

// UnresolvedByType returns all open issues of one type.
func (r *IssueRepository) UnresolvedByType(ctx context.Context, issueType domain.IssueType) ([]domain.AuditIssue, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+issueColumns+`
		FROM audit_issues
		WHERE issue_type = ? AND resolved = 0
		ORDER BY created_at`, issueType)
	if err != nil {
		return nil, fmt.Errorf("failed to query open %s issues: %w", issueType, err)
	}
	defer rows.Close()

	return scanIssues(rows)
}

// ListOpen returns every open issue for the admin surface.
func (r *IssueRepository) ListOpen(ctx context.Context) ([]domain.AuditIssue, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+issueColumns+`
		FROM audit_issues
		WHERE resolved = 0
		ORDER BY severity, created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to query open issues: %w", err)
	}
	defer rows.Close()

	return scanIssues(rows)
}

// Create inserts a new open issue.
func (r *IssueRepository) Create(ctx context.Context, issue domain.AuditIssue) (*domain.AuditIssue, error) {
	if issue.ID == "" {
		id, err := gonanoid.New()
		if err != nil {
			return nil, fmt.Errorf("failed to generate issue id: %w", err)
		}
		issue.ID = id
	}
	now := time.Now().UTC()
	issue.CreatedAt = now
	issue.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `INSERT INTO audit_issues
		(id, issue_type, severity, subject_key, payload, resolved, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 0, ?, ?)`,
		issue.ID, issue.IssueType, issue.Severity, issue.SubjectKey, issue.Payload,
		issue.CreatedAt, issue.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create issue %s/%s: %w", issue.IssueType, issue.SubjectKey, err)
	}
	return &issue, nil
}

// Touch refreshes an open issue's payload in place instead of duplicating
// it.
func (r *IssueRepository) Touch(ctx context.Context, id, payload string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE audit_issues
		SET payload = ?, updated_at = ?
		WHERE id = ? AND resolved = 0`, payload, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to touch issue %s: %w", id, err)
	}
	return nil
}

// Resolve closes an issue.
func (r *IssueRepository) Resolve(ctx context.Context, id string) error {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `UPDATE audit_issues
		SET resolved = 1, resolved_at = ?, updated_at = ?
		WHERE id = ? AND resolved = 0`, now, now, id)
	if err != nil {
		return fmt.Errorf("failed to resolve issue %s: %w", id, err)
	}
	return nil
}

func scanIssues(rows *sql.Rows) ([]domain.AuditIssue, error) {
	var issues []domain.AuditIssue
	for rows.Next() {
		issue, err := scanIssue(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan issue: %w", err)
		}
		issues = append(issues, *issue)
	}
	return issues, rows.Err()
}

func scanIssue(row scanner) (*domain.AuditIssue, error) {
	var issue domain.AuditIssue
	var resolvedAt sql.NullTime

	err := row.Scan(&issue.ID, &issue.IssueType, &issue.Severity, &issue.SubjectKey,
		&issue.Payload, &issue.Resolved, &resolvedAt, &issue.CreatedAt, &issue.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if resolvedAt.Valid {
		issue.ResolvedAt = &resolvedAt.Time
	}
	return &issue, nil
}
