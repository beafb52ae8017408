package builder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/shouni/go-manga-press/internal/config"
	"github.com/shouni/go-manga-press/pkg/api"
	"github.com/shouni/go-manga-press/pkg/backend"
	"github.com/shouni/go-manga-press/pkg/bubble"
	pkgconfig "github.com/shouni/go-manga-press/pkg/config"
	"github.com/shouni/go-manga-press/pkg/domain"
	"github.com/shouni/go-manga-press/pkg/generator"
	"github.com/shouni/go-manga-press/pkg/layout"
	"github.com/shouni/go-manga-press/pkg/lettering"
	"github.com/shouni/go-manga-press/pkg/parser"
	"github.com/shouni/go-manga-press/pkg/progress"
	"github.com/shouni/go-manga-press/pkg/prompts"
	"github.com/shouni/go-manga-press/pkg/publisher"
	"github.com/shouni/go-manga-press/pkg/runner"
	"github.com/shouni/go-manga-press/pkg/script"
	"github.com/shouni/go-manga-press/pkg/store"
	"github.com/shouni/go-manga-press/pkg/workflow"

	"github.com/shouni/go-remote-io/remoteio"
	"github.com/shouni/go-remote-io/remoteio/gcs"
	remotes3 "github.com/shouni/go-remote-io/remoteio/s3"
	"golang.org/x/time/rate"
)

// BuildAppContext は設定に従って全コンポーネントを組み立てます。
// 失敗した場合は途中まで開いたリソースを閉じます。
func BuildAppContext(ctx context.Context, cfg pkgconfig.Config, opts config.GenerateOptions) (_ *AppContext, err error) {
	if opts.OutputDir != "" {
		cfg.OutputDir = opts.OutputDir
	}
	if opts.WebtoonWidth > 0 {
		cfg.WebtoonWidth = opts.WebtoonWidth
	}

	app := &AppContext{Config: cfg, Options: opts, Geometry: BuildGeometry(cfg)}
	defer func() {
		if err != nil {
			_ = app.Close()
		}
	}()

	client, err := BuildBackendClient(cfg)
	if err != nil {
		return nil, err
	}
	app.Reader, app.Writer, app.ioCloser, err = BuildIO(ctx, cfg)
	if err != nil {
		return nil, err
	}
	model, err := BuildTextModel(ctx, cfg)
	if err != nil {
		return nil, err
	}
	app.Store, err = store.Open(ctx, cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("ストアの初期化に失敗しました: %w", err)
	}
	app.Broker, err = BuildBroker(ctx, cfg)
	if err != nil {
		return nil, err
	}

	runners, err := BuildRunners(cfg, client, app.Geometry, app.Reader, app.Writer, model)
	if err != nil {
		return nil, err
	}
	scriptRunner, ok := runners.Script.(*runner.MangaScriptRunner)
	if !ok {
		return nil, fmt.Errorf("未対応の ScriptRunner です: %T", runners.Script)
	}
	app.Script = scriptRunner

	app.Manager, err = workflow.New(workflow.ManagerArgs{
		Config:  cfg,
		Store:   app.Store,
		Broker:  app.Broker,
		Runners: runners,
	})
	if err != nil {
		return nil, fmt.Errorf("ワークフローの初期化に失敗しました: %w", err)
	}
	return app, nil
}

// BuildBackendClient はレート制限付きのバックエンドクライアントを構築します。
func BuildBackendClient(cfg pkgconfig.Config) (*backend.Client, error) {
	var limiter *rate.Limiter
	if cfg.RateInterval > 0 {
		limiter = rate.NewLimiter(rate.Every(cfg.RateInterval), max(cfg.RateBurst, 1))
	}
	client, err := backend.New(backend.Options{
		Endpoint:       cfg.BackendEndpoint,
		Timeout:        cfg.BackendTimeout,
		MaxAttempts:    cfg.MaxAttempts,
		InitialBackoff: cfg.RetryInitialBackoff,
		MaxBackoff:     cfg.RetryMaxBackoff,
		Limiter:        limiter,
		AbortInFlight:  cfg.AbortInFlight,
	})
	if err != nil {
		return nil, fmt.Errorf("バックエンドクライアントの初期化に失敗しました: %w", err)
	}
	return client, nil
}

// BuildIO は出力先の URI に応じて入出力を構築します。gs:// と s3:// の場合はクラウドのクライアントを初期化し、
// 返す io.Closer で解放します。ローカルの場合の io.Closer は nil です。
func BuildIO(ctx context.Context, cfg pkgconfig.Config) (remoteio.InputReader, remoteio.OutputWriter, io.Closer, error) {
	var (
		factory remoteio.IOFactory
		err     error
	)
	switch {
	case remoteio.IsGCSURI(cfg.OutputDir):
		factory, err = gcs.New(ctx)
	case remoteio.IsS3URI(cfg.OutputDir):
		factory, err = remotes3.New(ctx)
	default:
		return remoteio.NewUniversalInputReader(nil, nil), remoteio.NewUniversalIOWriter(nil, nil), nil, nil
	}
	if err != nil {
		return nil, nil, nil, fmt.Errorf("ストレージクライアントの初期化に失敗しました: %w", err)
	}

	reader, err := factory.InputReader()
	if err != nil {
		return nil, nil, nil, errors.Join(err, factory.Close())
	}
	writer, err := factory.OutputWriter()
	if err != nil {
		return nil, nil, nil, errors.Join(err, factory.Close())
	}
	slog.InfoContext(ctx, "Using remote storage", "output_dir", cfg.OutputDir)
	return reader, writer, factory, nil
}

// BuildBroker は RedisURL が設定されていれば Redis、なければプロセス内のブローカーを返します。
func BuildBroker(ctx context.Context, cfg pkgconfig.Config) (progress.Broker, error) {
	if cfg.RedisURL == "" {
		return progress.NewMemoryBroker(), nil
	}
	b, err := progress.NewRedisBroker(ctx, cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("Redis ブローカーの初期化に失敗しました: %w", err)
	}
	slog.InfoContext(ctx, "Using redis progress broker")
	return b, nil
}

// BuildGeometry は設定からページの割り付け規則を作ります。
func BuildGeometry(cfg pkgconfig.Config) layout.Geometry {
	aspect := 0.0
	if cfg.PanelHeight > 0 {
		aspect = float64(cfg.PanelWidth) / float64(cfg.PanelHeight)
	}
	return layout.Geometry{
		CanvasWidth:  cfg.PageWidth,
		CanvasHeight: cfg.PageHeight,
		Margins: domain.Margins{
			Top:    cfg.MarginTop,
			Bottom: cfg.MarginBottom,
			Left:   cfg.MarginLeft,
			Right:  cfg.MarginRight,
		},
		Gutter:      cfg.Gutter,
		Border:      cfg.BorderThickness,
		MinCellSize: cfg.MinCellSize,
		PanelAspect: aspect,
	}
}

// BuildLetterer は吹き出し検出器と書体を読み込んで Letterer を構築します。
func BuildLetterer(cfg pkgconfig.Config) (*lettering.Letterer, error) {
	detector, err := bubble.NewDetector(bubble.Options{
		Threshold:      cfg.BubbleThreshold,
		MinArea:        cfg.BubbleMinArea,
		MaxArea:        cfg.BubbleMaxArea,
		MinVertices:    cfg.BubbleMinVertices,
		MinAspect:      cfg.BubbleMinAspect,
		MaxAspect:      cfg.BubbleMaxAspect,
		MinCircularity: cfg.BubbleMinCircularity,
		ApproxEpsilon:  cfg.BubbleApproxEpsilon,
	})
	if err != nil {
		return nil, fmt.Errorf("吹き出し検出器の初期化に失敗しました: %w", err)
	}
	fonts, err := lettering.LoadFonts(cfg.FontPath)
	if err != nil {
		return nil, err
	}
	return lettering.NewLetterer(lettering.Options{
		MinFontSize:  cfg.MinFontSize,
		MaxFontSize:  cfg.MaxFontSize,
		SafetyMargin: cfg.SafetyMargin,
		Policy:       cfg.AssignmentPolicy,
	}, fonts, detector)
}

// BuildComposer は ComposeMode に応じてページ合成器を選びます。
func BuildComposer(cfg pkgconfig.Config, client *backend.Client, geo layout.Geometry) layout.Composer {
	if cfg.ComposeMode == pkgconfig.ComposeModeBackend {
		return layout.NewRemoteComposer(geo, client)
	}
	return layout.NewLocalComposer(geo)
}

// BuildRunners はワークフローの各工程を担う Runner を構築します。model が nil の場合、あらすじからの台本生成は行いません。
func BuildRunners(
	cfg pkgconfig.Config,
	client *backend.Client,
	geo layout.Geometry,
	reader remoteio.InputReader,
	writer remoteio.OutputWriter,
	model script.TextModel,
) (workflow.Runners, error) {
	prompt, err := prompts.NewImagePromptBuilder()
	if err != nil {
		return workflow.Runners{}, fmt.Errorf("プロンプトビルダーの初期化に失敗しました: %w", err)
	}
	letterer, err := BuildLetterer(cfg)
	if err != nil {
		return workflow.Runners{}, err
	}

	limits := script.Limits{
		MaxPages:         cfg.MaxPagesPerChapter,
		MaxPanelsPerPage: cfg.MaxPanelsPerPage,
	}
	normalizer := script.NewNormalizer(prompt, limits)
	var outliner *script.Outliner
	if model != nil {
		textPrompt, err := prompts.NewTextPromptBuilder()
		if err != nil {
			return workflow.Runners{}, fmt.Errorf("TextPromptBuilder の初期化に失敗しました: %w", err)
		}
		outliner = script.NewOutliner(model, textPrompt, limits)
		if cfg.EnhanceDescriptions {
			normalizer.WithEnhancer(script.NewDescriptionRewriter(model, textPrompt))
		}
	}

	sequencer := generator.NewSequencer(client, prompt, generator.NewContextCache(cfg.ContextTTL))
	pages := runner.NewMangaPageRunner(sequencer, letterer, BuildComposer(cfg, client, geo), cfg.RenderConcurrency)
	pub := publisher.NewMangaPublisher(writer)

	return workflow.Runners{
		Script:  runner.NewMangaScriptRunner(normalizer, parser.NewLoader(reader), outliner),
		Design:  runner.NewMangaDesignRunner(generator.NewAdapterResolver(client, cfg.AdapterStrength)),
		Page:    pages,
		Panel:   runner.NewMangaPanelRunner(pages, prompt),
		Publish: runner.NewMangaPublishRunner(pub, cfg.OutputDir, cfg.WebtoonWidth),
	}, nil
}

// BuildServer は Manager を公開する HTTP サーバーを構築します。
func BuildServer(app *AppContext, addr string) *http.Server {
	if addr == "" {
		addr = app.Config.HTTPAddr
	}
	return api.NewServer(addr, api.NewRouter(app.Manager))
}
