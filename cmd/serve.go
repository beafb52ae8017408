package cmd

import (
	"github.com/shouni/go-manga-press/internal/pipeline"

	"github.com/spf13/cobra"
)

var serveAddr string

// serveCmd は、ジョブ API と進捗 WebSocket を提供する HTTP サーバーを起動します。
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "ジョブ API サーバーを起動します。",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		app, err := buildApp(ctx)
		if err != nil {
			return err
		}
		defer app.Close()
		return pipeline.Serve(ctx, app, serveAddr)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "待ち受けアドレス（省略時は設定値）")
}
