package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shouni/go-manga-press/pkg/domain"
)

const panelColumns = `id, job_id, page_number, panel_number, image, lettered_image, seed,
	prompt, negative_prompt, descriptor_json, context_json, preceding_context_json, issues_json, updated_at`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// SavePanel はパネルを保存します。同じIDのパネルは置き換えます。
func (s *Store) SavePanel(ctx context.Context, p domain.GeneratedPanel) error {
	return savePanel(ctx, s.db, p)
}

func savePanel(ctx context.Context, db execer, p domain.GeneratedPanel) error {
	desc, err := json.Marshal(p.Descriptor)
	if err != nil {
		return fmt.Errorf("パネルのディスクリプタのエンコードに失敗しました: %w", err)
	}
	issues, err := marshalIssues(p.Issues)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO panels (`+panelColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			image = excluded.image,
			lettered_image = excluded.lettered_image,
			seed = excluded.seed,
			prompt = excluded.prompt,
			negative_prompt = excluded.negative_prompt,
			descriptor_json = excluded.descriptor_json,
			context_json = excluded.context_json,
			preceding_context_json = excluded.preceding_context_json,
			issues_json = excluded.issues_json,
			updated_at = excluded.updated_at`,
		p.ID,
		p.JobID,
		p.PageNumber,
		p.PanelNumber,
		p.Image,
		p.LetteredImage,
		p.Seed,
		p.Prompt,
		p.NegativePrompt,
		string(desc),
		contextColumn(p.Context),
		contextColumn(p.PrecedingContext),
		issues,
		formatTime(p.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("パネル %s の保存に失敗しました: %w", p.ID, err)
	}
	return nil
}

// SavePanels はページ内のパネルを1つのトランザクションで保存します。
func (s *Store) SavePanels(ctx context.Context, panels []domain.GeneratedPanel) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, p := range panels {
		if err := savePanel(ctx, tx, p); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetPanel はパネルを返します。存在しない場合は ErrNotFound です。
func (s *Store) GetPanel(ctx context.Context, id string) (*domain.GeneratedPanel, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+panelColumns+" FROM panels WHERE id = ?", id)
	p, err := scanPanel(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: パネル %s", domain.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("パネル %s の読み込みに失敗しました: %w", id, err)
	}
	return p, nil
}

// ListPanels はページ内のパネルをパネル番号順に返します。
func (s *Store) ListPanels(ctx context.Context, jobID string, pageNumber int) ([]domain.GeneratedPanel, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+panelColumns+" FROM panels WHERE job_id = ? AND page_number = ? ORDER BY panel_number",
		jobID, pageNumber)
	if err != nil {
		return nil, fmt.Errorf("ジョブ %s のページ %d のパネル一覧の取得に失敗しました: %w", jobID, pageNumber, err)
	}
	defer rows.Close()

	var panels []domain.GeneratedPanel
	for rows.Next() {
		p, err := scanPanel(rows)
		if err != nil {
			return nil, fmt.Errorf("パネルの読み込みに失敗しました: %w", err)
		}
		panels = append(panels, *p)
	}
	return panels, rows.Err()
}

func scanPanel(row scanner) (*domain.GeneratedPanel, error) {
	var (
		p              domain.GeneratedPanel
		prompt         sql.NullString
		negativePrompt sql.NullString
		desc           string
		contextJSON    sql.NullString
		precedingJSON  sql.NullString
		issues         sql.NullString
		updatedAt      string
	)
	if err := row.Scan(
		&p.ID,
		&p.JobID,
		&p.PageNumber,
		&p.PanelNumber,
		&p.Image,
		&p.LetteredImage,
		&p.Seed,
		&prompt,
		&negativePrompt,
		&desc,
		&contextJSON,
		&precedingJSON,
		&issues,
		&updatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(desc), &p.Descriptor); err != nil {
		return nil, fmt.Errorf("パネルのディスクリプタのデコードに失敗しました: %w", err)
	}
	var err error
	if p.Issues, err = unmarshalIssues(issues); err != nil {
		return nil, err
	}
	p.Context = domain.NewConsistencyContext(json.RawMessage(contextJSON.String))
	p.PrecedingContext = domain.NewConsistencyContext(json.RawMessage(precedingJSON.String))
	p.Prompt = prompt.String
	p.NegativePrompt = negativePrompt.String
	p.UpdatedAt = parseTime(updatedAt)
	return &p, nil
}

// contextColumn は空のコンテキストを NULL として保存します。
func contextColumn(c domain.ConsistencyContext) sql.NullString {
	if c.IsEmpty() {
		return sql.NullString{}
	}
	return sql.NullString{String: string(c.Raw()), Valid: true}
}
