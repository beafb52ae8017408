package config

import (
	"fmt"
	"time"
)

// デフォルト値の定義
const (
	DefaultBackendEndpoint     = "http://localhost:7860"
	DefaultBackendTimeout      = 120 * time.Second
	DefaultMaxAttempts         = 3
	DefaultRetryInitialBackoff = 2 * time.Second
	DefaultRetryMaxBackoff     = 30 * time.Second
	DefaultRateInterval        = 500 * time.Millisecond
	DefaultRateBurst           = 2

	DefaultPanelWidth      = 512
	DefaultPanelHeight     = 768
	DefaultSteps           = 25
	DefaultCFGScale        = 7.0
	DefaultSampler         = "DPM++ 2M Karras"
	DefaultNegativePrompt  = "bad anatomy, blurry, low quality"
	DefaultAdapterStrength = 0.8
	DefaultStyle           = "shonen"
	DefaultAdditionalTags  = "clean line art, screentone shading, high contrast ink, detailed background"

	DefaultMaxPagesPerChapter = 30
	DefaultMaxPanelsPerPage   = 8
	DefaultPageConcurrency    = 2
	DefaultRenderConcurrency  = 4
	DefaultContextTTL         = 24 * time.Hour

	DefaultPageWidth       = 2480
	DefaultPageHeight      = 3508
	DefaultMarginTop       = 100
	DefaultMarginBottom    = 100
	DefaultMarginLeft      = 80
	DefaultMarginRight     = 80
	DefaultGutter          = 20
	DefaultBorderThickness = 3
	DefaultMinCellSize     = 64
	DefaultComposeMode     = ComposeModeLocal

	DefaultBubbleThreshold      = 240
	DefaultBubbleMinArea        = 500
	DefaultBubbleMaxArea        = 50000
	DefaultBubbleMinVertices    = 6
	DefaultBubbleMinAspect      = 0.5
	DefaultBubbleMaxAspect      = 2.0
	DefaultBubbleMinCircularity = 0.6
	DefaultBubbleApproxEpsilon  = 0.02

	DefaultMinFontSize      = 10
	DefaultMaxFontSize      = 48
	DefaultSafetyMargin     = 0.15
	DefaultAssignmentPolicy = AssignmentPositional

	DefaultDatabasePath = "output/manga.db"
	DefaultOutputDir    = "output"
	DefaultWebtoonWidth = 800
	DefaultHTTPAddr     = ":8080"

	DefaultGeminiModel = "gemini-3-flash-preview"
)

// 合成モードと吹き出し割り当て方式の識別子です。
const (
	ComposeModeLocal   = "local"
	ComposeModeBackend = "backend"

	AssignmentPositional = "positional"
	AssignmentSpatial    = "spatial"
)

// Config は漫画生成パイプラインの各コンポーネントを動作させるための基本設定です。
type Config struct {
	// --- Generation Backend ---
	BackendEndpoint     string
	BackendTimeout      time.Duration // 1回の呼び出しに許容する最大待ち時間
	MaxAttempts         int           // タイムアウト時の最大試行回数
	RetryInitialBackoff time.Duration
	RetryMaxBackoff     time.Duration
	RateInterval        time.Duration
	RateBurst           int
	AbortInFlight       bool // キャンセル時に実行中の呼び出しも中断するかどうか

	// --- Generation Settings ---
	PanelWidth      int
	PanelHeight     int
	Steps           int
	CFGScale        float64
	Sampler         string
	NegativePrompt  string
	AdapterStrength float64
	Style           string
	AdditionalTags  string

	// --- Scenario Model ---
	GeminiAPIKey        string // 空の場合はあらすじからの台本生成と説明文の書き直しを行いません
	GeminiModel         string
	EnhanceDescriptions bool // true の場合、パネルの説明文をモデルで書き直します

	// --- Limits & Concurrency ---
	MaxPagesPerChapter int
	MaxPanelsPerPage   int
	PageConcurrency    int // 同時に生成するページ数の上限
	RenderConcurrency  int // 吹き出し検出・写植の同時実行数
	ContextTTL         time.Duration

	// --- Layout Settings ---
	PageWidth       int
	PageHeight      int
	MarginTop       int
	MarginBottom    int
	MarginLeft      int
	MarginRight     int
	Gutter          int
	BorderThickness int
	MinCellSize     int
	ComposeMode     string

	// --- Bubble Detection ---
	BubbleThreshold      uint8
	BubbleMinArea        float64
	BubbleMaxArea        float64
	BubbleMinVertices    int
	BubbleMinAspect      float64
	BubbleMaxAspect      float64
	BubbleMinCircularity float64
	BubbleApproxEpsilon  float64

	// --- Lettering ---
	FontPath         string // 空の場合は組み込みフォントを使用します
	MinFontSize      int
	MaxFontSize      int
	SafetyMargin     float64
	AssignmentPolicy string

	// --- Storage & Transport ---
	DatabasePath string
	OutputDir    string
	WebtoonWidth int    // 0 の場合は縦読み画像を出力しません
	RedisURL     string // 空の場合はプロセス内ブローカーを使用します
	HTTPAddr     string
}

// DefaultConfig は推奨されるデフォルト設定を返すヘルパー関数です。
func DefaultConfig() Config {
	return Config{
		BackendEndpoint:     DefaultBackendEndpoint,
		BackendTimeout:      DefaultBackendTimeout,
		MaxAttempts:         DefaultMaxAttempts,
		RetryInitialBackoff: DefaultRetryInitialBackoff,
		RetryMaxBackoff:     DefaultRetryMaxBackoff,
		RateInterval:        DefaultRateInterval,
		RateBurst:           DefaultRateBurst,

		PanelWidth:      DefaultPanelWidth,
		PanelHeight:     DefaultPanelHeight,
		Steps:           DefaultSteps,
		CFGScale:        DefaultCFGScale,
		Sampler:         DefaultSampler,
		NegativePrompt:  DefaultNegativePrompt,
		AdapterStrength: DefaultAdapterStrength,
		Style:           DefaultStyle,
		AdditionalTags:  DefaultAdditionalTags,

		GeminiModel: DefaultGeminiModel,

		MaxPagesPerChapter: DefaultMaxPagesPerChapter,
		MaxPanelsPerPage:   DefaultMaxPanelsPerPage,
		PageConcurrency:    DefaultPageConcurrency,
		RenderConcurrency:  DefaultRenderConcurrency,
		ContextTTL:         DefaultContextTTL,

		PageWidth:       DefaultPageWidth,
		PageHeight:      DefaultPageHeight,
		MarginTop:       DefaultMarginTop,
		MarginBottom:    DefaultMarginBottom,
		MarginLeft:      DefaultMarginLeft,
		MarginRight:     DefaultMarginRight,
		Gutter:          DefaultGutter,
		BorderThickness: DefaultBorderThickness,
		MinCellSize:     DefaultMinCellSize,
		ComposeMode:     DefaultComposeMode,

		BubbleThreshold:      DefaultBubbleThreshold,
		BubbleMinArea:        DefaultBubbleMinArea,
		BubbleMaxArea:        DefaultBubbleMaxArea,
		BubbleMinVertices:    DefaultBubbleMinVertices,
		BubbleMinAspect:      DefaultBubbleMinAspect,
		BubbleMaxAspect:      DefaultBubbleMaxAspect,
		BubbleMinCircularity: DefaultBubbleMinCircularity,
		BubbleApproxEpsilon:  DefaultBubbleApproxEpsilon,

		MinFontSize:      DefaultMinFontSize,
		MaxFontSize:      DefaultMaxFontSize,
		SafetyMargin:     DefaultSafetyMargin,
		AssignmentPolicy: DefaultAssignmentPolicy,

		DatabasePath: DefaultDatabasePath,
		OutputDir:    DefaultOutputDir,
		WebtoonWidth: DefaultWebtoonWidth,
		HTTPAddr:     DefaultHTTPAddr,
	}
}

// Validate は設定値の範囲を検証します。
func (c Config) Validate() error {
	switch {
	case c.BackendEndpoint == "":
		return fmt.Errorf("BackendEndpoint が設定されていません")
	case c.BackendTimeout <= 0:
		return fmt.Errorf("BackendTimeout は正の値である必要があります: %s", c.BackendTimeout)
	case c.MaxAttempts < 1:
		return fmt.Errorf("MaxAttempts は1以上である必要があります: %d", c.MaxAttempts)
	case c.PageConcurrency < 1:
		return fmt.Errorf("PageConcurrency は1以上である必要があります: %d", c.PageConcurrency)
	case c.RenderConcurrency < 1:
		return fmt.Errorf("RenderConcurrency は1以上である必要があります: %d", c.RenderConcurrency)
	case c.MaxPanelsPerPage < 1 || c.MaxPagesPerChapter < 1:
		return fmt.Errorf("ページ数・パネル数の上限は1以上である必要があります")
	case c.PageWidth <= c.MarginLeft+c.MarginRight || c.PageHeight <= c.MarginTop+c.MarginBottom:
		return fmt.Errorf("ページサイズがマージンより小さくなっています: %dx%d", c.PageWidth, c.PageHeight)
	case c.Gutter < 0 || c.BorderThickness < 0:
		return fmt.Errorf("Gutter と BorderThickness は0以上である必要があります")
	case c.BubbleMinArea >= c.BubbleMaxArea:
		return fmt.Errorf("BubbleMinArea (%.0f) は BubbleMaxArea (%.0f) より小さい必要があります", c.BubbleMinArea, c.BubbleMaxArea)
	case c.BubbleMinAspect > c.BubbleMaxAspect:
		return fmt.Errorf("BubbleMinAspect は BubbleMaxAspect 以下である必要があります")
	case c.MinFontSize < 1 || c.MinFontSize > c.MaxFontSize:
		return fmt.Errorf("フォントサイズの範囲が不正です: %d-%d", c.MinFontSize, c.MaxFontSize)
	case c.SafetyMargin < 0 || c.SafetyMargin >= 0.5:
		return fmt.Errorf("SafetyMargin は 0 以上 0.5 未満である必要があります: %.2f", c.SafetyMargin)
	}

	switch c.ComposeMode {
	case ComposeModeLocal, ComposeModeBackend:
	default:
		return fmt.Errorf("未対応の ComposeMode です: %q", c.ComposeMode)
	}
	switch c.AssignmentPolicy {
	case AssignmentPositional, AssignmentSpatial:
	default:
		return fmt.Errorf("未対応の AssignmentPolicy です: %q", c.AssignmentPolicy)
	}
	return nil
}
