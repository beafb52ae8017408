package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shouni/go-manga-press/pkg/domain"
)

// PageRecord は合成済みページ1枚分です。
type PageRecord struct {
	JobID      string                  `json:"job_id"`
	PageNumber int                     `json:"page_number"`
	Layout     domain.PageLayout       `json:"layout"`
	Image      []byte                  `json:"-"`
	Issues     []domain.LetteringIssue `json:"issues,omitempty"`
	UpdatedAt  time.Time               `json:"updated_at"`
}

// SavePage はページを保存します。同じ番号のページは置き換えます。
func (s *Store) SavePage(ctx context.Context, page PageRecord) error {
	layout, err := json.Marshal(page.Layout)
	if err != nil {
		return fmt.Errorf("レイアウトのエンコードに失敗しました: %w", err)
	}
	issues, err := marshalIssues(page.Issues)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO pages (job_id, page_number, layout_json, image, issues_json, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(job_id, page_number) DO UPDATE SET
			layout_json = excluded.layout_json,
			image = excluded.image,
			issues_json = excluded.issues_json,
			updated_at = excluded.updated_at`,
		page.JobID,
		page.PageNumber,
		string(layout),
		page.Image,
		issues,
		formatTime(page.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("ジョブ %s のページ %d の保存に失敗しました: %w", page.JobID, page.PageNumber, err)
	}
	return nil
}

// GetPage は画像を含むページを返します。
func (s *Store) GetPage(ctx context.Context, jobID string, pageNumber int) (*PageRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT job_id, page_number, layout_json, image, issues_json, updated_at
		FROM pages WHERE job_id = ? AND page_number = ?`, jobID, pageNumber)
	page, err := scanPage(row, true)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: ジョブ %s のページ %d", domain.ErrNotFound, jobID, pageNumber)
	}
	if err != nil {
		return nil, fmt.Errorf("ジョブ %s のページ %d の読み込みに失敗しました: %w", jobID, pageNumber, err)
	}
	return page, nil
}

// ListPages はページ番号順にページを返します。画像は含みません。
func (s *Store) ListPages(ctx context.Context, jobID string) ([]PageRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT job_id, page_number, layout_json, NULL, issues_json, updated_at
		FROM pages WHERE job_id = ? ORDER BY page_number`, jobID)
	if err != nil {
		return nil, fmt.Errorf("ジョブ %s のページ一覧の取得に失敗しました: %w", jobID, err)
	}
	defer rows.Close()

	var pages []PageRecord
	for rows.Next() {
		page, err := scanPage(rows, false)
		if err != nil {
			return nil, fmt.Errorf("ページの読み込みに失敗しました: %w", err)
		}
		pages = append(pages, *page)
	}
	return pages, rows.Err()
}

func scanPage(row scanner, withImage bool) (*PageRecord, error) {
	var (
		page      PageRecord
		layout    string
		image     []byte
		issues    sql.NullString
		updatedAt string
	)
	if err := row.Scan(&page.JobID, &page.PageNumber, &layout, &image, &issues, &updatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(layout), &page.Layout); err != nil {
		return nil, fmt.Errorf("レイアウトのデコードに失敗しました: %w", err)
	}
	var err error
	if page.Issues, err = unmarshalIssues(issues); err != nil {
		return nil, err
	}
	if withImage {
		page.Image = image
	}
	page.UpdatedAt = parseTime(updatedAt)
	return &page, nil
}

func marshalIssues(issues []domain.LetteringIssue) (sql.NullString, error) {
	if len(issues) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(issues)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("写植の問題のエンコードに失敗しました: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func unmarshalIssues(s sql.NullString) ([]domain.LetteringIssue, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	var issues []domain.LetteringIssue
	if err := json.Unmarshal([]byte(s.String), &issues); err != nil {
		return nil, fmt.Errorf("写植の問題のデコードに失敗しました: %w", err)
	}
	return issues, nil
}
