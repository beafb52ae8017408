package domain

import (
	"fmt"
	"strings"
	"time"
)

// Stage は生成ジョブの工程を表す閉じた列挙型です。
type Stage string

const (
	StagePending    Stage = "PENDING"
	StageScenario   Stage = "SCENARIO"
	StageCharacters Stage = "CHARACTERS"
	StagePages      Stage = "PAGES"
	StageExport     Stage = "EXPORT"
	StageDone       Stage = "DONE"
	StageFailed     Stage = "FAILED"
)

// stageOrder は正常系の遷移順です。FAILED は含みません。
var stageOrder = []Stage{
	StagePending,
	StageScenario,
	StageCharacters,
	StagePages,
	StageExport,
	StageDone,
}

// ParseStage は文字列を工程に変換します。
func ParseStage(s string) (Stage, error) {
	st := Stage(strings.ToUpper(strings.TrimSpace(s)))
	if st == StageFailed {
		return st, nil
	}
	if st.index() < 0 {
		return "", fmt.Errorf("未知の工程です: %q", s)
	}
	return st, nil
}

func (s Stage) index() int {
	for i, st := range stageOrder {
		if st == s {
			return i
		}
	}
	return -1
}

// IsTerminal は DONE または FAILED かどうかを返します。
func (s Stage) IsTerminal() bool {
	return s == StageDone || s == StageFailed
}

// Next は正常系で次に進む工程を返します。終端工程では false を返します。
func (s Stage) Next() (Stage, bool) {
	if s.IsTerminal() {
		return "", false
	}
	i := s.index()
	if i < 0 || i+1 >= len(stageOrder) {
		return "", false
	}
	return stageOrder[i+1], true
}

// CanTransition は s から to への遷移が許可されているかどうかを返します。
// 遷移は1段階ずつ前進するか、終端以外の工程から FAILED へ移るかのどちらかです。
func (s Stage) CanTransition(to Stage) bool {
	if s.IsTerminal() {
		return false
	}
	if to == StageFailed {
		return true
	}
	next, ok := s.Next()
	return ok && next == to
}

// GenerationJob は1話分の生成ジョブの状態です。
type GenerationJob struct {
	ID                 string    `json:"id"`
	ProjectID          string    `json:"project_id"`
	Stage              Stage     `json:"stage"`
	Progress           float64   `json:"progress"`
	LastCompletedStage Stage     `json:"last_completed_stage,omitempty"`
	LastCompletedPage  int       `json:"last_completed_page"`
	FailedPage         int       `json:"failed_page,omitempty"`
	TotalPages         int       `json:"total_pages"`
	Error              string    `json:"error,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// NewGenerationJob は PENDING 状態のジョブを生成します。
func NewGenerationJob(id, projectID string) *GenerationJob {
	now := time.Now().UTC()
	return &GenerationJob{
		ID:        id,
		ProjectID: projectID,
		Stage:     StagePending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Advance は次の工程へ進めます。直前の工程は完了済みとして記録されます。
func (j *GenerationJob) Advance(to Stage) error {
	if to == StageFailed {
		return fmt.Errorf("%w: FAILED への遷移には Fail を使用してください", ErrInvalidTransition)
	}
	if !j.Stage.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Stage, to)
	}
	if j.Stage != StagePending {
		j.LastCompletedStage = j.Stage
	}
	j.Stage = to
	j.UpdatedAt = time.Now().UTC()
	return nil
}

// Fail はジョブを FAILED にします。最後に完了した工程とページはそのまま保持されます。
func (j *GenerationJob) Fail(cause error, failedPage int) error {
	if !j.Stage.CanTransition(StageFailed) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Stage, StageFailed)
	}
	j.Stage = StageFailed
	j.FailedPage = failedPage
	if cause != nil {
		j.Error = cause.Error()
	}
	j.UpdatedAt = time.Now().UTC()
	return nil
}

// RecordProgress は進捗率を更新します。値は単調非減少で、減少する更新は無視されます。
func (j *GenerationJob) RecordProgress(percent float64) bool {
	if percent > 100 {
		percent = 100
	}
	if percent <= j.Progress {
		return false
	}
	j.Progress = percent
	j.UpdatedAt = time.Now().UTC()
	return true
}

// CompletePage は完了したページ番号を記録します。
func (j *GenerationJob) CompletePage(pageNumber int) {
	if pageNumber > j.LastCompletedPage {
		j.LastCompletedPage = pageNumber
	}
	j.UpdatedAt = time.Now().UTC()
}

// RegenerationStatus は再生成サブジョブの状態です。
type RegenerationStatus string

const (
	RegenerationRunning   RegenerationStatus = "running"
	RegenerationSucceeded RegenerationStatus = "succeeded"
	RegenerationFailed    RegenerationStatus = "failed"
)

// RegenerationJob は1パネルの再生成を表す短命なサブジョブです。親ジョブの工程は変更しません。
type RegenerationJob struct {
	ID          string             `json:"id"`
	ParentJobID string             `json:"parent_job_id"`
	PanelID     string             `json:"panel_id"`
	Status      RegenerationStatus `json:"status"`
	Error       string             `json:"error,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// PanelModifications は再生成時にパネルへ適用する変更です。nil のフィールドは変更しません。
type PanelModifications struct {
	Description *string         `json:"description,omitempty"`
	Dialogue    *[]DialogueLine `json:"dialogue,omitempty"`
}

// Apply は変更を適用したディスクリプタを返します。元の値は変更しません。
func (m PanelModifications) Apply(d PanelDescriptor) PanelDescriptor {
	out := d
	if m.Description != nil {
		out.Description = *m.Description
		out.EnhancedDescription = ""
	}
	if m.Dialogue != nil {
		out.Dialogue = append([]DialogueLine(nil), (*m.Dialogue)...)
	}
	return out
}

// RegenerationRequest は単一パネル再生成の入力です。
type RegenerationRequest struct {
	PanelID       string             `json:"panel_id"`
	Modifications PanelModifications `json:"modifications"`
	Seed          *int64             `json:"seed,omitempty"`
}
