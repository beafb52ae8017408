package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shouni/go-manga-press/pkg/domain"
)

// CreateRegeneration は再生成サブジョブを保存します。
func (s *Store) CreateRegeneration(ctx context.Context, r *domain.RegenerationJob) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO regenerations (id, parent_job_id, panel_id, status, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID,
		r.ParentJobID,
		r.PanelID,
		string(r.Status),
		nullableString(r.Error),
		formatTime(r.CreatedAt),
		formatTime(r.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("再生成 %s の保存に失敗しました: %w", r.ID, err)
	}
	return nil
}

// UpdateRegeneration は再生成サブジョブの状態を保存します。
func (s *Store) UpdateRegeneration(ctx context.Context, r *domain.RegenerationJob) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE regenerations SET status = ?, error = ?, updated_at = ? WHERE id = ?",
		string(r.Status), nullableString(r.Error), formatTime(r.UpdatedAt), r.ID)
	if err != nil {
		return fmt.Errorf("再生成 %s の更新に失敗しました: %w", r.ID, err)
	}
	return expectOne(res, "再生成", r.ID)
}

// GetRegeneration は再生成サブジョブを返します。
func (s *Store) GetRegeneration(ctx context.Context, id string) (*domain.RegenerationJob, error) {
	var (
		r         domain.RegenerationJob
		status    string
		errMsg    sql.NullString
		createdAt string
		updatedAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, parent_job_id, panel_id, status, error, created_at, updated_at
		FROM regenerations WHERE id = ?`, id,
	).Scan(&r.ID, &r.ParentJobID, &r.PanelID, &status, &errMsg, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: 再生成 %s", domain.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("再生成 %s の読み込みに失敗しました: %w", id, err)
	}
	r.Status = domain.RegenerationStatus(status)
	r.Error = errMsg.String
	r.CreatedAt = parseTime(createdAt)
	r.UpdatedAt = parseTime(updatedAt)
	return &r, nil
}
