package domain

import (
	"errors"
	"testing"
)

func TestStage_CanTransition(t *testing.T) {
	tests := []struct {
		name string
		from Stage
		to   Stage
		want bool
	}{
		{"PENDINGからSCENARIOへ進める", StagePending, StageScenario, true},
		{"SCENARIOからCHARACTERSへ進める", StageScenario, StageCharacters, true},
		{"PAGESからEXPORTへ進める", StagePages, StageExport, true},
		{"EXPORTからDONEへ進める", StageExport, StageDone, true},
		{"工程を飛ばせない", StageScenario, StagePages, false},
		{"後退できない", StagePages, StageCharacters, false},
		{"任意の非終端工程からFAILEDへ移れる", StageCharacters, StageFailed, true},
		{"PENDINGからFAILEDへ移れる", StagePending, StageFailed, true},
		{"DONEからは遷移できない", StageDone, StageFailed, false},
		{"FAILEDからは遷移できない", StageFailed, StagePending, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.from.CanTransition(tt.to); got != tt.want {
				t.Errorf("%s -> %s: 期待値 %v, 実際の値 %v", tt.from, tt.to, tt.want, got)
			}
		})
	}
}

func TestGenerationJob_Lifecycle(t *testing.T) {
	job := NewGenerationJob("job-1", "project-1")

	for _, st := range []Stage{StageScenario, StageCharacters, StagePages} {
		if err := job.Advance(st); err != nil {
			t.Fatalf("%s への遷移に失敗しました: %v", st, err)
		}
	}
	if job.LastCompletedStage != StageCharacters {
		t.Errorf("完了済み工程: 期待値 %s, 実際の値 %s", StageCharacters, job.LastCompletedStage)
	}

	job.CompletePage(2)
	job.CompletePage(1)
	if job.LastCompletedPage != 2 {
		t.Errorf("最終完了ページ: 期待値 2, 実際の値 %d", job.LastCompletedPage)
	}

	if err := job.Fail(errors.New("boom"), 3); err != nil {
		t.Fatalf("FAILED への遷移に失敗しました: %v", err)
	}
	if job.Stage != StageFailed || job.FailedPage != 3 || job.Error != "boom" {
		t.Errorf("失敗状態が正しく記録されていません: %+v", job)
	}
	if job.LastCompletedStage != StageCharacters {
		t.Errorf("失敗後も完了済み工程が保持されるべきです: %s", job.LastCompletedStage)
	}

	if err := job.Advance(StageExport); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("終端工程からの遷移は ErrInvalidTransition になるべきです: %v", err)
	}
}

func TestGenerationJob_RecordProgress(t *testing.T) {
	job := NewGenerationJob("job-1", "p")
	steps := []struct {
		in      float64
		updated bool
		want    float64
	}{
		{10, true, 10},
		{5, false, 10},
		{30, true, 30},
		{30, false, 30},
		{150, true, 100},
	}
	for _, s := range steps {
		if got := job.RecordProgress(s.in); got != s.updated {
			t.Errorf("RecordProgress(%v): 期待値 %v, 実際の値 %v", s.in, s.updated, got)
		}
		if job.Progress != s.want {
			t.Errorf("進捗率: 期待値 %v, 実際の値 %v", s.want, job.Progress)
		}
	}
}

func TestPanelModifications_Apply(t *testing.T) {
	orig := PanelDescriptor{
		PanelNumber:         2,
		Description:         "old",
		EnhancedDescription: "old enhanced",
		Dialogue:            []DialogueLine{{Character: "A", Text: "hi"}},
	}

	desc := "new"
	lines := []DialogueLine{{Character: "B", Text: "yo"}}
	got := PanelModifications{Description: &desc, Dialogue: &lines}.Apply(orig)

	if got.Description != "new" || got.EnhancedDescription != "" {
		t.Errorf("説明文が更新されていません: %+v", got)
	}
	if len(got.Dialogue) != 1 || got.Dialogue[0].Character != "B" {
		t.Errorf("セリフが更新されていません: %+v", got.Dialogue)
	}
	if orig.Description != "old" || orig.Dialogue[0].Character != "A" {
		t.Errorf("元のディスクリプタが変更されています: %+v", orig)
	}

	unchanged := PanelModifications{}.Apply(orig)
	if unchanged.EnhancedDescription != "old enhanced" {
		t.Errorf("変更なしの場合は拡張説明を保持するべきです: %+v", unchanged)
	}
}
