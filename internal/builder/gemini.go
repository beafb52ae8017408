package builder

import (
	"context"
	"fmt"
	"log/slog"

	pkgconfig "github.com/shouni/go-manga-press/pkg/config"
	"github.com/shouni/go-manga-press/pkg/script"

	"github.com/shouni/go-gemini-client/gemini"
	"google.golang.org/genai"
)

const defaultGeminiTemperature = float32(0.2)

// geminiTextModel は Gemini クライアントを script.TextModel として使うためのアダプターです。
type geminiTextModel struct {
	client gemini.GenerativeModel
	model  string
}

func (m *geminiTextModel) GenerateText(ctx context.Context, prompt string) (string, error) {
	resp, err := m.client.GenerateContent(ctx, prompt, m.model)
	if err != nil {
		return "", fmt.Errorf("Gemini の呼び出しに失敗しました (model: %s): %w", m.model, err)
	}
	return resp.Text, nil
}

// InitializeAIClient は gemini クライアントを初期化します。
func InitializeAIClient(ctx context.Context, apiKey string) (gemini.GenerativeModel, error) {
	clientConfig := gemini.Config{
		APIKey:      apiKey,
		Temperature: genai.Ptr(defaultGeminiTemperature),
	}
	aiClient, err := gemini.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("AIクライアントの初期化に失敗しました: %w", err)
	}
	return aiClient, nil
}

// BuildTextModel は GeminiAPIKey が設定されていれば台本生成用のモデルを返します。未設定の場合は nil です。
func BuildTextModel(ctx context.Context, cfg pkgconfig.Config) (script.TextModel, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, nil
	}
	client, err := InitializeAIClient(ctx, cfg.GeminiAPIKey)
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "Scenario model enabled", "model", cfg.GeminiModel, "enhance_descriptions", cfg.EnhanceDescriptions)
	return &geminiTextModel{client: client, model: cfg.GeminiModel}, nil
}
