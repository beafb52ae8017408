package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/shouni/go-manga-press/internal/builder"
	"github.com/shouni/go-manga-press/internal/config"

	clibase "github.com/shouni/go-cli-base"
	"github.com/spf13/cobra"
)

const appName = "manga-press"

var (
	opts       config.GenerateOptions
	configPath string
	logLevel   string
	logFormat  string

	// stopSignals は preRunAppE で登録したシグナルの監視を解除します。
	stopSignals context.CancelFunc = func() {}
)

// addAppFlags は、すべてのサブコマンドに共通するグローバルフラグを定義します。
func addAppFlags(rootCmd *cobra.Command) {
	rootCmd.PersistentFlags().StringVar(&configPath, "config-file", "", "設定ファイル（TOML）のパス。省略時は ./"+config.DefaultConfigFile+" があれば読み込みます")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "ログレベル (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "ログ形式 (text, json)")

	rootCmd.PersistentFlags().StringVarP(&opts.ScriptFile, "script-file", "f", "", "台本ファイルのパス（.json または .md、ローカル or gs://...）")
	rootCmd.PersistentFlags().StringVarP(&opts.CharacterConfig, "characters", "c", "", "キャラクター定義 JSON のパス")
	rootCmd.PersistentFlags().BoolVar(&opts.UseSample, "sample", false, "組み込みのサンプル台本とキャラクターを使います")
}

// preRunAppE は、ロガーを設定し、SIGINT/SIGTERM でコマンドの context がキャンセルされるようにします。
func preRunAppE(cmd *cobra.Command, args []string) error {
	if err := setupLogger(logLevel, logFormat); err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	stopSignals = stop
	cmd.SetContext(ctx)
	return nil
}

// setupLogger は slog のデフォルトロガーを設定します。
func setupLogger(level, format string) error {
	var lv slog.Level
	if err := lv.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("不正なログレベルです: %q", level)
	}
	handlerOpts := &slog.HandlerOptions{Level: lv}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	case "text", "":
		handler = slog.NewTextHandler(os.Stderr, handlerOpts)
	default:
		return fmt.Errorf("不正なログ形式です: %q", format)
	}
	slog.SetDefault(slog.New(handler))
	return nil
}

// buildApp は設定を読み込んでアプリケーションを組み立てます。
func buildApp(ctx context.Context) (*builder.AppContext, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	return builder.BuildAppContext(ctx, cfg, opts)
}

// Execute は、アプリケーションのメインエントリポイントです。
// main.go から呼び出され、cobra のコマンドライン解析を開始します。
func Execute() {
	defer func() { stopSignals() }()
	clibase.Execute(
		appName,
		addAppFlags,
		preRunAppE,
		generateCmd,
		scriptCmd,
		designCmd,
		layoutCmd,
		serveCmd,
	)
}
