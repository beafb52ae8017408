package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shouni/go-manga-press/pkg/domain"
)

// JobInput はジョブ開始時に受け取った台本とキャラクター定義です。
type JobInput struct {
	Chapter    domain.Chapter     `json:"chapter"`
	Characters []domain.Character `json:"characters,omitempty"`
}

// CharactersMap はチャプター内のキャラクターと追加のキャラクター定義を統合して返します。
func (in JobInput) CharactersMap() domain.CharactersMap {
	chars := append([]domain.Character(nil), in.Chapter.Characters...)
	chars = append(chars, in.Characters...)
	return domain.BuildCharactersMap(chars)
}

const jobColumns = `id, project_id, stage, progress, last_completed_stage, last_completed_page,
	failed_page, total_pages, error, created_at, updated_at`

// CreateJob はジョブと入力を保存します。
func (s *Store) CreateJob(ctx context.Context, job *domain.GenerationJob, input JobInput) error {
	payload, err := json.Marshal(input)
	if err != nil {
		return fmt.Errorf("ジョブ入力のエンコードに失敗しました: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO jobs (
			id, project_id, stage, progress, last_completed_stage, last_completed_page,
			failed_page, total_pages, error, input_json, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID,
		job.ProjectID,
		string(job.Stage),
		job.Progress,
		nullableString(string(job.LastCompletedStage)),
		job.LastCompletedPage,
		job.FailedPage,
		job.TotalPages,
		nullableString(job.Error),
		string(payload),
		formatTime(job.CreatedAt),
		formatTime(job.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("ジョブ %s の保存に失敗しました: %w", job.ID, err)
	}
	return nil
}

// UpdateJob はジョブの工程と進捗を保存します。
func (s *Store) UpdateJob(ctx context.Context, job *domain.GenerationJob) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET
			stage = ?, progress = ?, last_completed_stage = ?, last_completed_page = ?,
			failed_page = ?, total_pages = ?, error = ?, updated_at = ?
		WHERE id = ?`,
		string(job.Stage),
		job.Progress,
		nullableString(string(job.LastCompletedStage)),
		job.LastCompletedPage,
		job.FailedPage,
		job.TotalPages,
		nullableString(job.Error),
		formatTime(job.UpdatedAt),
		job.ID,
	)
	if err != nil {
		return fmt.Errorf("ジョブ %s の更新に失敗しました: %w", job.ID, err)
	}
	return expectOne(res, "ジョブ", job.ID)
}

// GetJob はジョブを返します。存在しない場合は ErrNotFound です。
func (s *Store) GetJob(ctx context.Context, id string) (*domain.GenerationJob, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+jobColumns+" FROM jobs WHERE id = ?", id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: ジョブ %s", domain.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("ジョブ %s の読み込みに失敗しました: %w", id, err)
	}
	return job, nil
}

// ListJobs は新しい順にジョブを返します。
func (s *Store) ListJobs(ctx context.Context, limit int) ([]*domain.GenerationJob, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, "SELECT "+jobColumns+" FROM jobs ORDER BY created_at DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("ジョブ一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var jobs []*domain.GenerationJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("ジョブの読み込みに失敗しました: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// GetJobInput はジョブ開始時の入力を返します。
func (s *Store) GetJobInput(ctx context.Context, id string) (*JobInput, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, "SELECT input_json FROM jobs WHERE id = ?", id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: ジョブ %s", domain.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("ジョブ %s の入力の読み込みに失敗しました: %w", id, err)
	}
	var in JobInput
	if err := json.Unmarshal([]byte(payload), &in); err != nil {
		return nil, fmt.Errorf("ジョブ %s の入力のデコードに失敗しました: %w", id, err)
	}
	return &in, nil
}

// SaveScript は正規化済みのページ群を保存します。
func (s *Store) SaveScript(ctx context.Context, jobID string, pages []domain.PageScript) error {
	payload, err := json.Marshal(pages)
	if err != nil {
		return fmt.Errorf("台本のエンコードに失敗しました: %w", err)
	}
	res, err := s.db.ExecContext(ctx, "UPDATE jobs SET script_json = ? WHERE id = ?", string(payload), jobID)
	if err != nil {
		return fmt.Errorf("ジョブ %s の台本の保存に失敗しました: %w", jobID, err)
	}
	return expectOne(res, "ジョブ", jobID)
}

// GetScript は正規化済みのページ群を返します。正規化前の場合は nil です。
func (s *Store) GetScript(ctx context.Context, jobID string) ([]domain.PageScript, error) {
	var payload sql.NullString
	err := s.db.QueryRowContext(ctx, "SELECT script_json FROM jobs WHERE id = ?", jobID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: ジョブ %s", domain.ErrNotFound, jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("ジョブ %s の台本の読み込みに失敗しました: %w", jobID, err)
	}
	if !payload.Valid {
		return nil, nil
	}
	var pages []domain.PageScript
	if err := json.Unmarshal([]byte(payload.String), &pages); err != nil {
		return nil, fmt.Errorf("ジョブ %s の台本のデコードに失敗しました: %w", jobID, err)
	}
	return pages, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*domain.GenerationJob, error) {
	var (
		job                domain.GenerationJob
		stage              string
		lastCompletedStage sql.NullString
		errMsg             sql.NullString
		createdAt          string
		updatedAt          string
	)
	if err := row.Scan(
		&job.ID,
		&job.ProjectID,
		&stage,
		&job.Progress,
		&lastCompletedStage,
		&job.LastCompletedPage,
		&job.FailedPage,
		&job.TotalPages,
		&errMsg,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}
	job.Stage = domain.Stage(stage)
	job.LastCompletedStage = domain.Stage(lastCompletedStage.String)
	job.Error = errMsg.String
	job.CreatedAt = parseTime(createdAt)
	job.UpdatedAt = parseTime(updatedAt)
	return &job, nil
}

func expectOne(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新件数の取得に失敗しました: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s %s", domain.ErrNotFound, kind, id)
	}
	return nil
}
