package pipeline

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shouni/go-manga-press/internal/builder"
	"github.com/shouni/go-manga-press/internal/config"
	"github.com/shouni/go-manga-press/pkg/backend"
	pkgconfig "github.com/shouni/go-manga-press/pkg/config"
	"github.com/shouni/go-manga-press/pkg/domain"
)

// newBackend は常に灰色のパネルを返す生成バックエンドです。
func newBackend(t *testing.T, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 96))
	for y := 0; y < 96; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.Gray{Y: 128})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	encoded := base64.StdEncoding.EncodeToString(buf.Bytes())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case backend.PathStoryGenerate:
			n := calls.Add(1)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"image":   encoded,
				"context": map[string]int32{"n": n},
				"seed":    n,
			})
		case backend.PathCharacterReference:
			_ = json.NewEncoder(w).Encode(map[string]string{"reference": "ref-" + r.URL.Path})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newApp(t *testing.T, endpoint string, opts config.GenerateOptions) *builder.AppContext {
	t.Helper()
	cfg := pkgconfig.DefaultConfig()
	cfg.BackendEndpoint = endpoint
	cfg.BackendTimeout = 5 * time.Second
	cfg.RateInterval = 0
	cfg.PageWidth, cfg.PageHeight = 400, 600
	cfg.MarginTop, cfg.MarginBottom, cfg.MarginLeft, cfg.MarginRight = 10, 10, 10, 10
	cfg.Gutter, cfg.MinCellSize = 10, 32
	cfg.DatabasePath = filepath.Join(t.TempDir(), "manga.db")
	cfg.OutputDir = t.TempDir()
	cfg.WebtoonWidth = 0

	app, err := builder.BuildAppContext(context.Background(), cfg, opts)
	if err != nil {
		t.Fatalf("組み立てに失敗しました: %v", err)
	}
	t.Cleanup(func() { _ = app.Close() })
	return app
}

func TestExecute(t *testing.T) {
	t.Run("サンプル台本を最後まで生成できること", func(t *testing.T) {
		var calls atomic.Int32
		srv := newBackend(t, &calls)
		app := newApp(t, srv.URL, config.GenerateOptions{UseSample: true, ProjectID: "demo"})

		job, err := Execute(context.Background(), app)
		if err != nil {
			t.Fatalf("生成に失敗しました: %v", err)
		}
		if job.Stage != domain.StageDone || job.TotalPages != 2 || job.ProjectID != "demo" {
			t.Errorf("ジョブの状態が不正です: %+v", job)
		}
		if calls.Load() != 5 {
			t.Errorf("パネル生成回数: 期待値 5, 実際の値 %d", calls.Load())
		}
		if _, err := os.Stat(filepath.Join(app.Config.OutputDir, job.ID)); err != nil {
			t.Errorf("出力ディレクトリがありません: %v", err)
		}
	})

	t.Run("台本の指定がない場合はエラーになること", func(t *testing.T) {
		app := newApp(t, "http://127.0.0.1:1", config.GenerateOptions{})
		if _, err := Execute(context.Background(), app); err == nil {
			t.Error("エラーを期待しましたが nil でした")
		}
	})
}

func TestExecuteScriptOnly(t *testing.T) {
	t.Run("正規化した台本を書き出すこと", func(t *testing.T) {
		script := filepath.Join(t.TempDir(), "chapter.json")
		content := `{"title":"t","pages":[{"page_number":5,"panels":[
			{"panel_number":3,"description":"  a cat  "},
			{"panel_number":1,"description":"rain","dialogue":[{"character":"Mio","text":"hi"}]}
		]}]}`
		if err := os.WriteFile(script, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
		app := newApp(t, "http://127.0.0.1:1", config.GenerateOptions{ScriptFile: script})

		var buf bytes.Buffer
		if err := ExecuteScriptOnly(context.Background(), app, &buf); err != nil {
			t.Fatalf("正規化に失敗しました: %v", err)
		}
		var got domain.Chapter
		if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
			t.Fatalf("出力が JSON ではありません: %v", err)
		}
		page := got.Pages[0]
		if page.PageNumber != 1 || page.Panels[0].PanelNumber != 1 || page.Panels[1].PanelNumber != 2 {
			t.Errorf("番号が詰め直されていません: %+v", page)
		}
		if page.Panels[0].Type != domain.PanelTypeDialogue || page.Panels[1].Description != "a cat" {
			t.Errorf("パネルが正規化されていません: %+v", page.Panels)
		}
	})

	t.Run("不正な台本は ErrInvalidScript になること", func(t *testing.T) {
		script := filepath.Join(t.TempDir(), "chapter.json")
		if err := os.WriteFile(script, []byte(`{"title":"t","pages":[{"page_number":1,"panels":[]}]}`), 0o644); err != nil {
			t.Fatal(err)
		}
		app := newApp(t, "http://127.0.0.1:1", config.GenerateOptions{ScriptFile: script})

		err := ExecuteScriptOnly(context.Background(), app, &bytes.Buffer{})
		if err == nil {
			t.Fatal("エラーを期待しましたが nil でした")
		}
	})
}

func TestServe(t *testing.T) {
	app := newApp(t, "http://127.0.0.1:1", config.GenerateOptions{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- Serve(ctx, app, "127.0.0.1:0") }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("停止時にエラーが返されました: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("サーバーが停止しませんでした")
	}
}
