package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net/http"
	"slices"
	"time"

	"github.com/shouni/go-manga-press/examples"
	"github.com/shouni/go-manga-press/internal/builder"
	"github.com/shouni/go-manga-press/pkg/asset"
	"github.com/shouni/go-manga-press/pkg/domain"
	"github.com/shouni/go-manga-press/pkg/store"
	"github.com/shouni/go-manga-press/pkg/workflow"
)

// DefaultProjectID は --project-id を省略したときのプロジェクト ID です。
const DefaultProjectID = "cli"

const shutdownTimeout = 30 * time.Second

// Execute は台本を読み込み、パネル生成から書き出しまでを同期的に実行します。
func Execute(ctx context.Context, app *builder.AppContext) (*domain.GenerationJob, error) {
	req, err := loadRequest(ctx, app)
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "Generation started",
		"title", req.Chapter.Title,
		"pages", len(req.Chapter.Pages),
		"characters", len(req.Characters))

	job, err := app.Manager.Run(ctx, *req)
	if err != nil {
		if job != nil {
			return job, fmt.Errorf("ジョブ %s が失敗しました (ページ %d): %w", job.ID, job.FailedPage, err)
		}
		return nil, err
	}

	dir, err := asset.JobOutputDir(app.Config.OutputDir, job.ID)
	if err != nil {
		return job, err
	}
	slog.InfoContext(ctx, "Generation completed", "job_id", job.ID, "pages", job.TotalPages, "output", dir)
	return job, nil
}

// ExecuteScriptOnly は台本を正規化し、生成順に並んだページ群を JSON で w に書き出します。
// バックエンドは呼び出しません。
func ExecuteScriptOnly(ctx context.Context, app *builder.AppContext, w io.Writer) error {
	req, err := loadRequest(ctx, app)
	if err != nil {
		return err
	}

	input := store.JobInput{Chapter: req.Chapter, Characters: req.Characters}
	pages, err := app.Script.Run(ctx, req.Chapter, input.CharactersMap())
	if err != nil {
		return err
	}

	normalized := req.Chapter
	normalized.Pages = pages
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(normalized)
}

// Serve は HTTP サーバーを起動し、ctx が終了したら実行中のジョブを止めてから停止します。
func Serve(ctx context.Context, app *builder.AppContext, addr string) error {
	srv := builder.BuildServer(app, addr)

	errCh := make(chan error, 1)
	go func() {
		slog.InfoContext(ctx, "HTTP server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("HTTP サーバーの起動に失敗しました: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	var errs []error
	if err := srv.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("HTTP サーバーの停止に失敗しました: %w", err))
	}
	if err := app.Manager.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// loadRequest はオプションで指定された台本とキャラクター定義を読み込みます。
func loadRequest(ctx context.Context, app *builder.AppContext) (*workflow.StartRequest, error) {
	opts := app.Options
	var (
		chapter *domain.Chapter
		chars   domain.CharactersMap
		err     error
	)
	switch {
	case opts.ScriptFile != "":
		chapter, err = app.Script.Load(ctx, opts.ScriptFile)
	case opts.UseSample:
		chapter, chars, err = examples.LoadSample()
	default:
		return nil, fmt.Errorf("台本ファイル（--script-file）を指定してください")
	}
	if err != nil {
		return nil, err
	}

	if opts.CharacterConfig != "" {
		loaded, err := app.Script.LoadCharacters(ctx, opts.CharacterConfig)
		if err != nil {
			return nil, err
		}
		chars = chars.Merge(loaded)
	}

	req := &workflow.StartRequest{ProjectID: opts.ProjectID, Chapter: *chapter}
	if req.ProjectID == "" {
		req.ProjectID = DefaultProjectID
	}
	for _, key := range slices.Sorted(maps.Keys(chars)) {
		req.Characters = append(req.Characters, chars[key])
	}
	return req, nil
}
