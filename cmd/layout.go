package cmd

import (
	"encoding/json"

	"github.com/shouni/go-manga-press/internal/builder"
	"github.com/shouni/go-manga-press/internal/config"
	"github.com/shouni/go-manga-press/pkg/layout"

	"github.com/spf13/cobra"
)

var (
	layoutPanels int
	layoutName   string
)

// layoutCmd は、パネル数に対するページ割り付けを計算して表示します。
var layoutCmd = &cobra.Command{
	Use:   "layout",
	Short: "パネル数からページの割り付けを計算して JSON で出力します。",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			return err
		}
		geo := builder.BuildGeometry(cfg)
		plan, err := geo.Plan(1, layoutName, layoutPanels)
		if err != nil {
			return err
		}
		if err := layout.Validate(plan, cfg.MinCellSize); err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(plan)
	},
}

func init() {
	layoutCmd.Flags().IntVarP(&layoutPanels, "panels", "n", 4, "ページのパネル数")
	layoutCmd.Flags().StringVar(&layoutName, "name", "", "レイアウト名（省略時はパネル数から決定）")
}
