package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/shouni/go-manga-press/pkg/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "db", "manga.db"))
	if err != nil {
		t.Fatalf("Open に失敗しました: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func createJob(t *testing.T, s *Store, id string) *domain.GenerationJob {
	t.Helper()
	job := domain.NewGenerationJob(id, "project-1")
	input := JobInput{
		Chapter:    domain.Chapter{Title: "第1話", Pages: []domain.PageScript{{PageNumber: 1}}},
		Characters: []domain.Character{{ID: "aoi", Name: "Aoi"}},
	}
	if err := s.CreateJob(context.Background(), job, input); err != nil {
		t.Fatalf("CreateJob に失敗しました: %v", err)
	}
	return job
}

func TestStore_Jobs(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	job := createJob(t, s, "job-1")

	t.Run("工程の遷移が保存されること", func(t *testing.T) {
		if err := job.Advance(domain.StageScenario); err != nil {
			t.Fatal(err)
		}
		job.RecordProgress(10)
		job.TotalPages = 3
		if err := s.UpdateJob(ctx, job); err != nil {
			t.Fatal(err)
		}

		got, err := s.GetJob(ctx, "job-1")
		if err != nil {
			t.Fatal(err)
		}
		if got.Stage != domain.StageScenario || got.Progress != 10 || got.TotalPages != 3 || got.ProjectID != "project-1" {
			t.Errorf("保存内容が不正です: %+v", got)
		}
		if got.CreatedAt.IsZero() {
			t.Error("作成日時が読み込まれていません")
		}
	})

	t.Run("失敗の記録が保存されること", func(t *testing.T) {
		job.CompletePage(1)
		if err := job.Fail(errors.New("boom"), 2); err != nil {
			t.Fatal(err)
		}
		if err := s.UpdateJob(ctx, job); err != nil {
			t.Fatal(err)
		}
		got, _ := s.GetJob(ctx, "job-1")
		if got.Stage != domain.StageFailed || got.FailedPage != 2 || got.LastCompletedPage != 1 || got.Error != "boom" {
			t.Errorf("失敗の記録が不正です: %+v", got)
		}
	})

	t.Run("入力と台本を読み戻せること", func(t *testing.T) {
		in, err := s.GetJobInput(ctx, "job-1")
		if err != nil {
			t.Fatal(err)
		}
		if in.Chapter.Title != "第1話" || in.CharactersMap().FindCharacter("aoi") == nil {
			t.Errorf("入力が不正です: %+v", in)
		}

		script, err := s.GetScript(ctx, "job-1")
		if err != nil || script != nil {
			t.Fatalf("正規化前の台本は nil のはずです: %v %v", script, err)
		}
		pages := []domain.PageScript{{PageNumber: 1, Layout: "standard", Panels: []domain.PanelDescriptor{{PanelNumber: 1, Type: domain.PanelTypeAction}}}}
		if err := s.SaveScript(ctx, "job-1", pages); err != nil {
			t.Fatal(err)
		}
		script, _ = s.GetScript(ctx, "job-1")
		if len(script) != 1 || script[0].Panels[0].Type != domain.PanelTypeAction {
			t.Errorf("台本が不正です: %+v", script)
		}
	})

	t.Run("存在しないジョブは ErrNotFound になること", func(t *testing.T) {
		if _, err := s.GetJob(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("ErrNotFound を期待しましたが %v でした", err)
		}
		if err := s.UpdateJob(ctx, domain.NewGenerationJob("missing", "p")); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("ErrNotFound を期待しましたが %v でした", err)
		}
	})

	t.Run("一覧は新しい順であること", func(t *testing.T) {
		createJob(t, s, "job-2")
		jobs, err := s.ListJobs(ctx, 10)
		if err != nil {
			t.Fatal(err)
		}
		if len(jobs) != 2 || jobs[0].ID != "job-2" {
			t.Errorf("一覧が不正です: %d 件", len(jobs))
		}
	})
}

func TestStore_PanelsAndPages(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	createJob(t, s, "job-1")

	panels := []domain.GeneratedPanel{
		{ID: "p2", JobID: "job-1", PageNumber: 1, PanelNumber: 2, Image: []byte("b"), Seed: 2,
			Descriptor:       domain.PanelDescriptor{PanelNumber: 2, Description: "two"},
			Context:          domain.NewConsistencyContext([]byte(`{"k":2}`)),
			PrecedingContext: domain.NewConsistencyContext([]byte(`{"k":1}`))},
		{ID: "p1", JobID: "job-1", PageNumber: 1, PanelNumber: 1, Image: []byte("a"), Seed: 1,
			Descriptor: domain.PanelDescriptor{PanelNumber: 1, Description: "one"},
			Issues:     []domain.LetteringIssue{{Kind: domain.IssueKindBubbleAssignmentMismatch, DialogueIndex: 0, BubbleIndex: -1}}},
	}
	if err := s.SavePanels(ctx, panels); err != nil {
		t.Fatalf("SavePanels に失敗しました: %v", err)
	}

	t.Run("パネル番号順に読み出せること", func(t *testing.T) {
		got, err := s.ListPanels(ctx, "job-1", 1)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 2 || got[0].ID != "p1" || got[1].ID != "p2" {
			t.Fatalf("順序が不正です: %+v", got)
		}
		if len(got[0].Issues) != 1 || got[0].Issues[0].BubbleIndex != -1 {
			t.Errorf("写植の問題が保存されていません: %+v", got[0].Issues)
		}
		if string(got[1].Context.Raw()) != `{"k":2}` || string(got[1].PrecedingContext.Raw()) != `{"k":1}` {
			t.Errorf("コンテキストが保存されていません: %s %s", got[1].Context.Raw(), got[1].PrecedingContext.Raw())
		}
		if !got[0].Context.IsEmpty() || !got[0].PrecedingContext.IsEmpty() {
			t.Error("空のコンテキストは空のまま読み出されるはずです")
		}
	})

	t.Run("同じIDの保存は置き換えになること", func(t *testing.T) {
		updated := panels[0]
		updated.Image = []byte("b2")
		updated.Seed = 3
		if err := s.SavePanel(ctx, updated); err != nil {
			t.Fatal(err)
		}
		got, err := s.GetPanel(ctx, "p2")
		if err != nil {
			t.Fatal(err)
		}
		if string(got.Image) != "b2" || got.Seed != 3 || got.Descriptor.Description != "two" {
			t.Errorf("置き換えが不正です: %+v", got)
		}
		if _, err := s.GetPanel(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("ErrNotFound を期待しましたが %v でした", err)
		}
	})

	t.Run("ページの保存と一覧", func(t *testing.T) {
		page := PageRecord{
			JobID: "job-1", PageNumber: 1, Image: []byte("png"),
			Layout: domain.PageLayout{PageNumber: 1, Name: "standard", Placements: []domain.Placement{{PanelNumber: 1, Width: 10, Height: 10}}},
		}
		if err := s.SavePage(ctx, page); err != nil {
			t.Fatal(err)
		}
		page.Image = []byte("png2")
		if err := s.SavePage(ctx, page); err != nil {
			t.Fatal(err)
		}

		got, err := s.GetPage(ctx, "job-1", 1)
		if err != nil {
			t.Fatal(err)
		}
		if string(got.Image) != "png2" || got.Layout.Name != "standard" || len(got.Layout.Placements) != 1 {
			t.Errorf("ページが不正です: %+v", got)
		}

		list, err := s.ListPages(ctx, "job-1")
		if err != nil {
			t.Fatal(err)
		}
		if len(list) != 1 || list[0].Image != nil {
			t.Errorf("一覧には画像を含めないはずです: %+v", list)
		}
		if _, err := s.GetPage(ctx, "job-1", 9); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("ErrNotFound を期待しましたが %v でした", err)
		}
	})
}

func TestStore_Regenerations(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	createJob(t, s, "job-1")

	r := &domain.RegenerationJob{ID: "r1", ParentJobID: "job-1", PanelID: "p1", Status: domain.RegenerationRunning}
	if err := s.CreateRegeneration(ctx, r); err != nil {
		t.Fatal(err)
	}
	r.Status = domain.RegenerationFailed
	r.Error = "timeout"
	if err := s.UpdateRegeneration(ctx, r); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetRegeneration(ctx, "r1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.RegenerationFailed || got.Error != "timeout" || got.ParentJobID != "job-1" {
		t.Errorf("再生成の記録が不正です: %+v", got)
	}
}

func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manga.db")
	s, err := Open(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	createJob(t, s, "job-1")
	_ = s.Close()

	s, err = Open(context.Background(), path)
	if err != nil {
		t.Fatalf("再オープンに失敗しました: %v", err)
	}
	defer s.Close()
	if _, err := s.GetJob(context.Background(), "job-1"); err != nil {
		t.Errorf("再オープン後にジョブが読めません: %v", err)
	}
}
