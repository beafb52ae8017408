package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/shouni/go-manga-press/pkg/config"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"github.com/shouni/go-utils/envutil"
)

// DefaultConfigFile はパス未指定時にカレントディレクトリで探す設定ファイルです。
const DefaultConfigFile = "manga-press.toml"

// GenerateOptions は CLI フラグから渡される実行時のパラメータです。
type GenerateOptions struct {
	ScriptFile      string // --script-file
	CharacterConfig string // --characters
	OutputDir       string // --output-dir
	ProjectID       string // --project-id
	WebtoonWidth    int    // --webtoon-width
	UseSample       bool   // --sample: 組み込みのサンプル台本を使います
}

// LoadConfig はデフォルト値に設定ファイル、環境変数の順で値を重ねて返します。
// .env があれば先に環境変数へ読み込みます。path が空でカレントディレクトリに設定ファイルもなければ、ファイルは読みません。
func LoadConfig(path string) (config.Config, error) {
	_ = godotenv.Load()

	cfg := config.DefaultConfig()
	if err := applyFile(&cfg, path); err != nil {
		return cfg, err
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("設定が不正です: %w", err)
	}
	return cfg, nil
}

// fileConfig は TOML ファイルの構造です。省略したキーはデフォルト値のままです。
type fileConfig struct {
	Backend struct {
		Endpoint       string `toml:"endpoint"`
		Timeout        string `toml:"timeout"`
		MaxAttempts    int    `toml:"max_attempts"`
		InitialBackoff string `toml:"initial_backoff"`
		MaxBackoff     string `toml:"max_backoff"`
		RateInterval   string `toml:"rate_interval"`
		RateBurst      int    `toml:"rate_burst"`
		AbortInFlight  *bool  `toml:"abort_in_flight"`
	} `toml:"backend"`

	Generation struct {
		Width           int     `toml:"width"`
		Height          int     `toml:"height"`
		Steps           int     `toml:"steps"`
		CFGScale        float64 `toml:"cfg_scale"`
		Sampler         string  `toml:"sampler"`
		NegativePrompt  string  `toml:"negative_prompt"`
		AdapterStrength float64 `toml:"adapter_strength"`
		Style           string  `toml:"style"`
		AdditionalTags  string  `toml:"additional_tags"`
	} `toml:"generation"`

	Scenario struct {
		Model               string `toml:"model"`
		EnhanceDescriptions *bool  `toml:"enhance_descriptions"`
	} `toml:"scenario"`

	Limits struct {
		MaxPages          int    `toml:"max_pages"`
		MaxPanelsPerPage  int    `toml:"max_panels_per_page"`
		PageConcurrency   int    `toml:"page_concurrency"`
		RenderConcurrency int    `toml:"render_concurrency"`
		ContextTTL        string `toml:"context_ttl"`
	} `toml:"limits"`

	Layout struct {
		PageWidth       int    `toml:"page_width"`
		PageHeight      int    `toml:"page_height"`
		MarginTop       *int   `toml:"margin_top"`
		MarginBottom    *int   `toml:"margin_bottom"`
		MarginLeft      *int   `toml:"margin_left"`
		MarginRight     *int   `toml:"margin_right"`
		Gutter          *int   `toml:"gutter"`
		BorderThickness *int   `toml:"border_thickness"`
		MinCellSize     int    `toml:"min_cell_size"`
		ComposeMode     string `toml:"compose_mode"`
	} `toml:"layout"`

	Bubble struct {
		Threshold      int     `toml:"threshold"`
		MinArea        float64 `toml:"min_area"`
		MaxArea        float64 `toml:"max_area"`
		MinVertices    int     `toml:"min_vertices"`
		MinAspect      float64 `toml:"min_aspect"`
		MaxAspect      float64 `toml:"max_aspect"`
		MinCircularity float64 `toml:"min_circularity"`
		ApproxEpsilon  float64 `toml:"approx_epsilon"`
	} `toml:"bubble"`

	Lettering struct {
		FontPath         string   `toml:"font_path"`
		MinFontSize      int      `toml:"min_font_size"`
		MaxFontSize      int      `toml:"max_font_size"`
		SafetyMargin     *float64 `toml:"safety_margin"`
		AssignmentPolicy string   `toml:"assignment_policy"`
	} `toml:"lettering"`

	Storage struct {
		DatabasePath string `toml:"database_path"`
		OutputDir    string `toml:"output_dir"`
		WebtoonWidth *int   `toml:"webtoon_width"`
		RedisURL     string `toml:"redis_url"`
		HTTPAddr     string `toml:"http_addr"`
	} `toml:"storage"`
}

func applyFile(cfg *config.Config, path string) error {
	explicit := path != ""
	if !explicit {
		path = DefaultConfigFile
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("設定ファイル %s の読み込みに失敗しました: %w", path, err)
	}

	var fc fileConfig
	if err := toml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("設定ファイル %s の解析に失敗しました: %w", path, err)
	}
	return fc.apply(cfg)
}

// apply はファイルに書かれていた値だけを cfg に反映します。
func (fc fileConfig) apply(cfg *config.Config) error {
	var errs []error
	str := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	num := func(dst *int, v int) {
		if v != 0 {
			*dst = v
		}
	}
	flt := func(dst *float64, v float64) {
		if v != 0 {
			*dst = v
		}
	}
	dur := func(dst *time.Duration, key, v string) {
		if v == "" {
			return
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = d
	}
	ptr := func(dst *int, v *int) {
		if v != nil {
			*dst = *v
		}
	}

	b := fc.Backend
	str(&cfg.BackendEndpoint, b.Endpoint)
	dur(&cfg.BackendTimeout, "backend.timeout", b.Timeout)
	num(&cfg.MaxAttempts, b.MaxAttempts)
	dur(&cfg.RetryInitialBackoff, "backend.initial_backoff", b.InitialBackoff)
	dur(&cfg.RetryMaxBackoff, "backend.max_backoff", b.MaxBackoff)
	dur(&cfg.RateInterval, "backend.rate_interval", b.RateInterval)
	num(&cfg.RateBurst, b.RateBurst)
	if b.AbortInFlight != nil {
		cfg.AbortInFlight = *b.AbortInFlight
	}

	g := fc.Generation
	num(&cfg.PanelWidth, g.Width)
	num(&cfg.PanelHeight, g.Height)
	num(&cfg.Steps, g.Steps)
	flt(&cfg.CFGScale, g.CFGScale)
	str(&cfg.Sampler, g.Sampler)
	str(&cfg.NegativePrompt, g.NegativePrompt)
	flt(&cfg.AdapterStrength, g.AdapterStrength)
	str(&cfg.Style, g.Style)
	str(&cfg.AdditionalTags, g.AdditionalTags)

	sc := fc.Scenario
	str(&cfg.GeminiModel, sc.Model)
	if sc.EnhanceDescriptions != nil {
		cfg.EnhanceDescriptions = *sc.EnhanceDescriptions
	}

	l := fc.Limits
	num(&cfg.MaxPagesPerChapter, l.MaxPages)
	num(&cfg.MaxPanelsPerPage, l.MaxPanelsPerPage)
	num(&cfg.PageConcurrency, l.PageConcurrency)
	num(&cfg.RenderConcurrency, l.RenderConcurrency)
	dur(&cfg.ContextTTL, "limits.context_ttl", l.ContextTTL)

	lay := fc.Layout
	num(&cfg.PageWidth, lay.PageWidth)
	num(&cfg.PageHeight, lay.PageHeight)
	ptr(&cfg.MarginTop, lay.MarginTop)
	ptr(&cfg.MarginBottom, lay.MarginBottom)
	ptr(&cfg.MarginLeft, lay.MarginLeft)
	ptr(&cfg.MarginRight, lay.MarginRight)
	ptr(&cfg.Gutter, lay.Gutter)
	ptr(&cfg.BorderThickness, lay.BorderThickness)
	num(&cfg.MinCellSize, lay.MinCellSize)
	str(&cfg.ComposeMode, lay.ComposeMode)

	bb := fc.Bubble
	if bb.Threshold != 0 {
		if bb.Threshold < 0 || bb.Threshold > 255 {
			errs = append(errs, fmt.Errorf("bubble.threshold は 0-255 の範囲で指定してください: %d", bb.Threshold))
		} else {
			cfg.BubbleThreshold = uint8(bb.Threshold)
		}
	}
	flt(&cfg.BubbleMinArea, bb.MinArea)
	flt(&cfg.BubbleMaxArea, bb.MaxArea)
	num(&cfg.BubbleMinVertices, bb.MinVertices)
	flt(&cfg.BubbleMinAspect, bb.MinAspect)
	flt(&cfg.BubbleMaxAspect, bb.MaxAspect)
	flt(&cfg.BubbleMinCircularity, bb.MinCircularity)
	flt(&cfg.BubbleApproxEpsilon, bb.ApproxEpsilon)

	lt := fc.Lettering
	str(&cfg.FontPath, lt.FontPath)
	num(&cfg.MinFontSize, lt.MinFontSize)
	num(&cfg.MaxFontSize, lt.MaxFontSize)
	if lt.SafetyMargin != nil {
		cfg.SafetyMargin = *lt.SafetyMargin
	}
	str(&cfg.AssignmentPolicy, lt.AssignmentPolicy)

	s := fc.Storage
	str(&cfg.DatabasePath, s.DatabasePath)
	str(&cfg.OutputDir, s.OutputDir)
	ptr(&cfg.WebtoonWidth, s.WebtoonWidth)
	str(&cfg.RedisURL, s.RedisURL)
	str(&cfg.HTTPAddr, s.HTTPAddr)

	return errors.Join(errs...)
}

// applyEnv は MANGA_ で始まる環境変数で設定を上書きします。
func applyEnv(cfg *config.Config) error {
	var errs []error
	str := func(dst *string, key string) {
		if v := envutil.GetEnv(key, ""); v != "" {
			*dst = v
		}
	}
	num := func(dst *int, key string) {
		v := envutil.GetEnv(key, "")
		if v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = n
	}
	dur := func(dst *time.Duration, key string) {
		v := envutil.GetEnv(key, "")
		if v == "" {
			return
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = d
	}
	flag := func(dst *bool, key string) {
		v := envutil.GetEnv(key, "")
		if v == "" {
			return
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = b
	}

	str(&cfg.BackendEndpoint, "MANGA_BACKEND_ENDPOINT")
	dur(&cfg.BackendTimeout, "MANGA_BACKEND_TIMEOUT")
	num(&cfg.MaxAttempts, "MANGA_MAX_ATTEMPTS")
	dur(&cfg.RateInterval, "MANGA_RATE_INTERVAL")
	flag(&cfg.AbortInFlight, "MANGA_ABORT_IN_FLIGHT")
	str(&cfg.Style, "MANGA_STYLE")
	str(&cfg.GeminiAPIKey, "GEMINI_API_KEY")
	str(&cfg.GeminiModel, "GEMINI_MODEL")
	flag(&cfg.EnhanceDescriptions, "MANGA_ENHANCE_DESCRIPTIONS")
	num(&cfg.PageConcurrency, "MANGA_PAGE_CONCURRENCY")
	num(&cfg.RenderConcurrency, "MANGA_RENDER_CONCURRENCY")
	str(&cfg.ComposeMode, "MANGA_COMPOSE_MODE")
	str(&cfg.FontPath, "MANGA_FONT_PATH")
	str(&cfg.AssignmentPolicy, "MANGA_ASSIGNMENT_POLICY")
	str(&cfg.DatabasePath, "MANGA_DATABASE_PATH")
	str(&cfg.OutputDir, "MANGA_OUTPUT_DIR")
	num(&cfg.WebtoonWidth, "MANGA_WEBTOON_WIDTH")
	str(&cfg.RedisURL, "REDIS_URL")
	str(&cfg.RedisURL, "MANGA_REDIS_URL")
	str(&cfg.HTTPAddr, "MANGA_HTTP_ADDR")

	return errors.Join(errs...)
}
