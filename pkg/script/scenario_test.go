package script

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shouni/go-manga-press/pkg/domain"
	"github.com/shouni/go-manga-press/pkg/prompts"
)

// fakeModel は受け取ったプロンプトを記録し、決まった応答を返します。
type fakeModel struct {
	reply   string
	err     error
	prompts []string
}

func (m *fakeModel) GenerateText(ctx context.Context, prompt string) (string, error) {
	m.prompts = append(m.prompts, prompt)
	return m.reply, m.err
}

func newTextPrompt(t *testing.T) *prompts.TextPromptBuilder {
	t.Helper()
	pb, err := prompts.NewTextPromptBuilder()
	if err != nil {
		t.Fatal(err)
	}
	return pb
}

const outlineReply = "構成案です。\n```json\n" + `{"pages":[
 {"page_number":1,"panels":[
  {"panel_number":1,"type":"establishing_shot","description":"harbor town at dawn"},
  {"panel_number":2,"description":"girl on the pier","dialogue":[{"character":"Aoi","text":"着いた！"}]},
  {"panel_number":3,"description":"seagulls"}
 ]},
 {"page_number":2,"panels":[{"panel_number":1,"description":"market street"}]},
 {"page_number":3,"panels":[{"panel_number":1,"description":"sunset"}]}
]}` + "\n```"

func TestOutliner_Outline(t *testing.T) {
	chars := domain.CharactersMap{"aoi": {ID: "aoi", Name: "Aoi", VisualCues: []string{"red scarf"}}}
	chapter := domain.Chapter{Title: "港町", Synopsis: "少女が港町にたどり着く"}

	t.Run("コードブロックの JSON からページを起こし上限で切り詰めること", func(t *testing.T) {
		model := &fakeModel{reply: outlineReply}
		o := NewOutliner(model, newTextPrompt(t), Limits{MaxPages: 2, MaxPanelsPerPage: 2})

		pages, err := o.Outline(context.Background(), chapter, chars)
		if err != nil {
			t.Fatalf("台本の生成に失敗しました: %v", err)
		}
		if len(pages) != 2 {
			t.Fatalf("ページ数: 期待値 2, 実際の値 %d", len(pages))
		}
		if len(pages[0].Panels) != 2 || pages[0].Panels[1].Dialogue[0].Character != "Aoi" {
			t.Errorf("パネルが不正です: %+v", pages[0].Panels)
		}
		if len(model.prompts) != 1 || !strings.Contains(model.prompts[0], "少女が港町にたどり着く") || !strings.Contains(model.prompts[0], "red scarf") {
			t.Errorf("プロンプトにあらすじとキャラクターが含まれていません: %q", model.prompts)
		}
	})

	t.Run("生成結果を正規化できること", func(t *testing.T) {
		o := NewOutliner(&fakeModel{reply: outlineReply}, newTextPrompt(t), Limits{MaxPages: 5, MaxPanelsPerPage: 4})
		pages, err := o.Outline(context.Background(), chapter, chars)
		if err != nil {
			t.Fatal(err)
		}
		normalized, err := newTestNormalizer(t, Limits{MaxPages: 5, MaxPanelsPerPage: 4}).
			Normalize(context.Background(), domain.Chapter{Pages: pages}, chars)
		if err != nil {
			t.Fatalf("正規化に失敗しました: %v", err)
		}
		if normalized[0].Panels[1].Type != domain.PanelTypeDialogue {
			t.Errorf("種別: 期待値 %s, 実際の値 %s", domain.PanelTypeDialogue, normalized[0].Panels[1].Type)
		}
	})

	t.Run("JSON でない応答は ErrInvalidScript になること", func(t *testing.T) {
		o := NewOutliner(&fakeModel{reply: "ごめんなさい"}, newTextPrompt(t), Limits{})
		if _, err := o.Outline(context.Background(), chapter, chars); !errors.Is(err, domain.ErrInvalidScript) {
			t.Errorf("ErrInvalidScript を期待しましたが %v でした", err)
		}
	})

	t.Run("あらすじがない場合はモデルを呼ばないこと", func(t *testing.T) {
		model := &fakeModel{reply: outlineReply}
		o := NewOutliner(model, newTextPrompt(t), Limits{})
		if _, err := o.Outline(context.Background(), domain.Chapter{Title: "t"}, nil); !errors.Is(err, domain.ErrInvalidScript) {
			t.Errorf("ErrInvalidScript を期待しましたが %v でした", err)
		}
		if len(model.prompts) != 0 {
			t.Errorf("呼び出し回数: 期待値 0, 実際の値 %d", len(model.prompts))
		}
	})

	t.Run("モデルのエラーを返すこと", func(t *testing.T) {
		boom := errors.New("quota exceeded")
		o := NewOutliner(&fakeModel{err: boom}, newTextPrompt(t), Limits{})
		if _, err := o.Outline(context.Background(), chapter, chars); !errors.Is(err, boom) {
			t.Errorf("期待値 %v, 実際の値 %v", boom, err)
		}
	})
}

func TestNormalizer_WithEnhancer(t *testing.T) {
	chapter := domain.Chapter{Pages: []domain.PageScript{{PageNumber: 1, Panels: []domain.PanelDescriptor{
		{PanelNumber: 1, Type: domain.PanelTypeCloseUp, Description: "smiling girl"},
	}}}}

	t.Run("モデルの書き直しを説明文に使うこと", func(t *testing.T) {
		model := &fakeModel{reply: "  \"A close-up of a smiling girl,\n soft light\"  "}
		n := newTestNormalizer(t, Limits{}).WithEnhancer(NewDescriptionRewriter(model, newTextPrompt(t)))

		pages, err := n.Normalize(context.Background(), chapter, nil)
		if err != nil {
			t.Fatal(err)
		}
		if got := pages[0].Panels[0].EnhancedDescription; got != "A close-up of a smiling girl, soft light" {
			t.Errorf("期待値 %q, 実際の値 %q", "A close-up of a smiling girl, soft light", got)
		}
		if len(model.prompts) != 1 || !strings.Contains(model.prompts[0], "smiling girl") {
			t.Errorf("プロンプトに説明文が含まれていません: %q", model.prompts)
		}
	})

	t.Run("書き直しに失敗した場合はテンプレートの説明文を使うこと", func(t *testing.T) {
		template, err := newTestNormalizer(t, Limits{}).Normalize(context.Background(), chapter, nil)
		if err != nil {
			t.Fatal(err)
		}
		n := newTestNormalizer(t, Limits{}).WithEnhancer(NewDescriptionRewriter(&fakeModel{err: errors.New("unavailable")}, newTextPrompt(t)))
		pages, err := n.Normalize(context.Background(), chapter, nil)
		if err != nil {
			t.Fatalf("書き直しの失敗で正規化が止まりました: %v", err)
		}
		want := template[0].Panels[0].EnhancedDescription
		if got := pages[0].Panels[0].EnhancedDescription; got != want {
			t.Errorf("期待値 %q, 実際の値 %q", want, got)
		}
	})
}
