package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"github.com/shouni/go-manga-press/examples"
	"github.com/shouni/go-manga-press/internal/builder"
	"github.com/shouni/go-manga-press/internal/config"
	"github.com/shouni/go-manga-press/pkg/domain"
	"github.com/shouni/go-manga-press/pkg/generator"
	"github.com/shouni/go-manga-press/pkg/parser"

	"github.com/shouni/go-remote-io/remoteio"
	"github.com/spf13/cobra"
)

var designChars []string

// designCmd は、キャラクターのスタイルアダプター参照をバックエンドで作成し、
// AdapterRef を埋めたキャラクター定義を出力します。出力を --characters に渡すと再作成を省けます。
var designCmd = &cobra.Command{
	Use:   "design",
	Short: "キャラクターのスタイルアダプターを作成します。",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			return err
		}
		reader, _, closer, err := builder.BuildIO(ctx, cfg)
		if err != nil {
			return err
		}
		if closer != nil {
			defer closer.Close()
		}
		chars, err := loadCharacters(ctx, reader)
		if err != nil {
			return err
		}

		names := designChars
		if len(names) == 0 {
			names = slices.Sorted(maps.Keys(chars))
		}

		client, err := builder.BuildBackendClient(cfg)
		if err != nil {
			return err
		}
		resolver := generator.NewAdapterResolver(client, cfg.AdapterStrength)

		slog.InfoContext(ctx, "Preparing character adapters", "chars", names)
		set, err := resolver.Prepare(ctx, chars, names)
		if err != nil {
			return err
		}

		out := make(domain.CharactersMap, len(names))
		for _, name := range names {
			char := chars.FindCharacter(name)
			if char == nil {
				slog.WarnContext(ctx, "Character not found", "char", name)
				continue
			}
			if a, ok := set[strings.ToLower(char.Name)]; ok {
				char.AdapterRef = a.Reference
			}
			out[char.ID] = *char
		}
		if len(out) == 0 {
			return fmt.Errorf("対象のキャラクターが見つかりませんでした: %v", names)
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func init() {
	designCmd.Flags().StringSliceVar(&designChars, "chars", nil, "対象のキャラクター ID（省略時は全員）")
}

func loadCharacters(ctx context.Context, reader remoteio.InputReader) (domain.CharactersMap, error) {
	switch {
	case opts.CharacterConfig != "":
		return parser.NewLoader(reader).LoadCharacters(ctx, opts.CharacterConfig)
	case opts.UseSample:
		_, chars, err := examples.LoadSample()
		return chars, err
	default:
		return nil, fmt.Errorf("キャラクター定義（--characters）を指定してください")
	}
}
