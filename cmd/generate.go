package cmd

import (
	"fmt"

	"github.com/shouni/go-manga-press/internal/pipeline"

	"github.com/spf13/cobra"
)

// generateCmd は、台本からパネル生成・写植・ページ合成・書き出しまでを実行します。
var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "台本から漫画ページを生成します。",
	Long: `台本を正規化し、キャラクターのスタイルアダプターを用意してから、
ページごとにパネルを順に生成・写植・合成して出力ディレクトリに書き出します。`,
	RunE: generateCommand,
}

func init() {
	generateCmd.Flags().StringVarP(&opts.OutputDir, "output-dir", "o", "", "成果物の出力先ディレクトリ（省略時は設定値）")
	generateCmd.Flags().StringVar(&opts.ProjectID, "project-id", pipeline.DefaultProjectID, "ジョブに記録するプロジェクト ID")
	generateCmd.Flags().IntVar(&opts.WebtoonWidth, "webtoon-width", 0, "縦読み画像の幅（省略時は設定値）")
}

func generateCommand(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	app, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	job, err := pipeline.Execute(ctx, app)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), job.ID)
	return nil
}
