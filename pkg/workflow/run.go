package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shouni/go-manga-press/pkg/domain"
	"github.com/shouni/go-manga-press/pkg/generator"
	"github.com/shouni/go-manga-press/pkg/progress"
	"github.com/shouni/go-manga-press/pkg/publisher"
	"github.com/shouni/go-manga-press/pkg/runner"
	"github.com/shouni/go-manga-press/pkg/store"

	"golang.org/x/sync/errgroup"
)

// pageError は特定のページでの失敗を表します。
type pageError struct {
	page int
	err  error
}

func (e *pageError) Error() string {
	return fmt.Sprintf("ページ %d の生成に失敗しました: %v", e.page, e.err)
}

func (e *pageError) Unwrap() error { return e.err }

// jobRun は1回のジョブ実行の状態です。ページは並列に完了するため、ジョブの更新は mu で直列化します。
type jobRun struct {
	m       *Manager
	job     *domain.GenerationJob
	tracker *progress.Tracker
	logger  *slog.Logger

	mu        sync.Mutex
	pagesDone int
}

// execute は SCENARIO から DONE までの工程を順に実行します。
// どこかで失敗した場合はジョブを FAILED にし、それまでの結果は残します。
func (m *Manager) execute(ctx context.Context, job *domain.GenerationJob, input store.JobInput) error {
	r := &jobRun{
		m:       m,
		job:     job,
		tracker: progress.NewTracker(m.broker, job.ID),
		logger:  slog.With("job_id", job.ID),
	}
	start := time.Now()
	chars := input.CharactersMap()

	// 1. 台本の正規化
	if err := r.enter(ctx, domain.StageScenario); err != nil {
		return r.fail(ctx, err, 0)
	}
	pages, err := m.runners.Script.Run(ctx, input.Chapter, chars)
	if err != nil {
		return r.fail(ctx, err, 0)
	}
	if err := m.store.SaveScript(ctx, job.ID, pages); err != nil {
		return r.fail(ctx, err, 0)
	}
	r.mu.Lock()
	job.TotalPages = len(pages)
	r.mu.Unlock()
	r.completed(ctx, domain.StageScenario, fmt.Sprintf("%d ページの台本を正規化しました", len(pages)))

	// 2. キャラクターの準備
	if err := r.enter(ctx, domain.StageCharacters); err != nil {
		return r.fail(ctx, err, 0)
	}
	adapters, err := m.runners.Design.Run(ctx, chars, pages)
	if err != nil {
		return r.fail(ctx, err, 0)
	}
	r.completed(ctx, domain.StageCharacters, fmt.Sprintf("%d 人のキャラクターを準備しました", len(adapters)))

	// 3. ページ生成
	if err := r.enter(ctx, domain.StagePages); err != nil {
		return r.fail(ctx, err, 0)
	}
	style, err := runner.StyleFor(m.cfg, input.Chapter.Style)
	if err != nil {
		return r.fail(ctx, err, 0)
	}
	if err := r.runPages(ctx, pages, adapters, style, input.Chapter.Title); err != nil {
		var pe *pageError
		failed := 0
		if errors.As(err, &pe) {
			failed = pe.page
		}
		return r.fail(ctx, err, failed)
	}
	r.completed(ctx, domain.StagePages, "すべてのページを合成しました")

	// 4. 書き出し
	if err := r.enter(ctx, domain.StageExport); err != nil {
		return r.fail(ctx, err, 0)
	}
	manuscript, err := m.manuscript(ctx, job.ID, input.Chapter, pages)
	if err != nil {
		return r.fail(ctx, err, 0)
	}
	result, err := m.runners.Publish.Run(ctx, manuscript)
	if err != nil {
		return r.fail(ctx, err, 0)
	}
	r.completed(ctx, domain.StageExport, result.ManifestPath)

	// 5. 完了
	if err := r.enter(ctx, domain.StageDone); err != nil {
		return r.fail(ctx, err, 0)
	}
	r.completed(ctx, domain.StageDone, "")

	r.logger.InfoContext(ctx, "Job completed",
		"pages", len(pages),
		"manifest", result.ManifestPath,
		"duration", time.Since(start).Round(time.Millisecond))
	return nil
}

// runPages はページを並列に生成します。1ページでも失敗すると残りのページは開始せず、最初の失敗を返します。
func (r *jobRun) runPages(ctx context.Context, pages []domain.PageScript, adapters generator.AdapterSet, style domain.StyleParams, title string) error {
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(r.m.cfg.PageConcurrency)

	for _, page := range pages {
		eg.Go(func() error {
			return r.runPage(egCtx, runner.PageJob{
				JobID:    r.job.ID,
				Page:     page,
				Adapters: adapters,
				Style:    style,
				BaseSeed: runner.PageSeed(title, page.PageNumber),
			})
		})
	}
	return eg.Wait()
}

// runPage はページロックを取って1ページを生成し、パネルとページを保存します。
// 失敗したページでも生成済みのパネルは保存します。
func (r *jobRun) runPage(ctx context.Context, pj runner.PageJob) error {
	n := pj.Page.PageNumber
	if err := ctx.Err(); err != nil {
		return &pageError{page: n, err: fmt.Errorf("%w: %v", domain.ErrCancellationRequested, err)}
	}

	unlock, err := r.m.locks.Lock(ctx, pageKey(r.job.ID, n))
	if err != nil {
		return &pageError{page: n, err: fmt.Errorf("%w: %v", domain.ErrCancellationRequested, err)}
	}
	defer unlock()

	out, runErr := r.m.runners.Page.Run(ctx, pj)
	persistCtx := context.WithoutCancel(ctx)
	if out != nil && len(out.Panels) > 0 {
		if err := r.m.store.SavePanels(persistCtx, out.Panels); err != nil {
			return &pageError{page: n, err: errors.Join(runErr, err)}
		}
	}
	if runErr != nil {
		return &pageError{page: n, err: runErr}
	}

	err = r.m.store.SavePage(persistCtx, store.PageRecord{
		JobID:      r.job.ID,
		PageNumber: n,
		Layout:     out.Page.Layout,
		Image:      out.Page.Image,
		Issues:     out.Issues,
		UpdatedAt:  time.Now().UTC(),
	})
	if err != nil {
		return &pageError{page: n, err: err}
	}

	r.pageCompleted(ctx, n)
	return nil
}

// manuscript は保存済みのページを読み直して書き出し用の原稿を組み立てます。再生成の結果もここで反映されます。
func (m *Manager) manuscript(ctx context.Context, jobID string, chapter domain.Chapter, pages []domain.PageScript) (publisher.Manuscript, error) {
	ms := publisher.Manuscript{JobID: jobID, Title: chapter.Title, Synopsis: chapter.Synopsis}
	for _, script := range pages {
		rec, err := m.store.GetPage(ctx, jobID, script.PageNumber)
		if err != nil {
			return ms, fmt.Errorf("ページ %d の読み込みに失敗しました: %w", script.PageNumber, err)
		}
		ms.Pages = append(ms.Pages, publisher.Page{
			Script: script,
			Layout: rec.Layout,
			Image:  rec.Image,
			Issues: rec.Issues,
		})
	}
	return ms, nil
}

// enter は工程を進めて保存します。キャンセル済みの場合は進めません。
func (r *jobRun) enter(ctx context.Context, stage domain.Stage) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrCancellationRequested, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.job.Advance(stage); err != nil {
		return err
	}
	r.logger.InfoContext(ctx, "Stage started", "stage", stage)
	return r.m.store.UpdateJob(context.WithoutCancel(ctx), r.job)
}

// completed は工程の完了を通知し、進捗率を保存します。
func (r *jobRun) completed(ctx context.Context, stage domain.Stage, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev := r.tracker.StageCompleted(ctx, stage, message)
	r.job.RecordProgress(ev.Percent)
	r.save(ctx)
}

// pageCompleted はページの完了を記録し、通知します。
func (r *jobRun) pageCompleted(ctx context.Context, pageNumber int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pagesDone++
	r.job.CompletePage(pageNumber)
	ev := r.tracker.PageCompleted(ctx, r.pagesDone, r.job.TotalPages)
	r.job.RecordProgress(ev.Percent)
	r.save(ctx)
}

// fail はジョブを FAILED にして保存し、失敗を通知します。cause をそのまま返します。
func (r *jobRun) fail(ctx context.Context, cause error, failedPage int) error {
	persistCtx := context.WithoutCancel(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()
	stage := r.job.Stage
	if err := r.job.Fail(cause, failedPage); err != nil {
		return errors.Join(cause, err)
	}
	r.save(persistCtx)
	r.tracker.Failed(persistCtx, stage, cause.Error())

	r.logger.WarnContext(ctx, "Job failed",
		"stage", stage,
		"failed_page", failedPage,
		"last_completed_stage", r.job.LastCompletedStage,
		"last_completed_page", r.job.LastCompletedPage,
		"error", cause)
	return cause
}

// save はジョブを保存します。保存の失敗はジョブを止めずにログへ残します。
func (r *jobRun) save(ctx context.Context) {
	if err := r.m.store.UpdateJob(context.WithoutCancel(ctx), r.job); err != nil {
		r.logger.WarnContext(ctx, "Failed to persist job", "stage", r.job.Stage, "error", err)
	}
}
