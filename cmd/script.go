package cmd

import (
	"bytes"
	"fmt"
	"log/slog"

	"github.com/shouni/go-manga-press/internal/pipeline"

	"github.com/spf13/cobra"
)

var scriptOutput string

// scriptCmd は、台本の正規化のみを実行します。バックエンドは呼び出しません。
var scriptCmd = &cobra.Command{
	Use:   "script",
	Short: "台本を正規化して JSON で出力します。",
	Long: `台本を読み込んでページ・パネル番号を詰め直し、パネル種別と拡張説明文を補った
生成順の台本を JSON で出力します。台本の検証にも使えます。`,
	RunE: scriptCommand,
}

func init() {
	scriptCmd.Flags().StringVar(&scriptOutput, "output-file", "-", "出力先のパス（ローカル or gs://...、'-' で標準出力）")
}

func scriptCommand(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	app, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	if scriptOutput == "-" {
		return pipeline.ExecuteScriptOnly(ctx, app, cmd.OutOrStdout())
	}

	var buf bytes.Buffer
	if err := pipeline.ExecuteScriptOnly(ctx, app, &buf); err != nil {
		return err
	}
	if err := app.Writer.Write(ctx, scriptOutput, &buf, "application/json"); err != nil {
		return fmt.Errorf("出力ファイルの書き込みに失敗しました: %w", err)
	}
	slog.InfoContext(ctx, "Normalized script written", "output_file", scriptOutput)
	return nil
}
