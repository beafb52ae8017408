package domain

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestChapter_JSON(t *testing.T) {
	t.Run("シナリオ生成の出力形式をデコードできること", func(t *testing.T) {
		inputJSON := `{
			"title": "はじまりの街",
			"pages": [
				{
					"page_number": 1,
					"panels": [
						{
							"panel_number": 1,
							"type": "establishing_shot",
							"description": "港町の全景",
							"dialogue": [{"character": "Aoi", "text": "着いた！"}],
							"sound_effects": ["ザザーン", {"text": "ドン", "style": "impact"}]
						}
					]
				}
			]
		}`

		var ch Chapter
		if err := json.Unmarshal([]byte(inputJSON), &ch); err != nil {
			t.Fatalf("パースに失敗しました: %v", err)
		}
		panel := ch.Pages[0].Panels[0]
		if panel.Type != PanelTypeEstablishingShot {
			t.Errorf("パネル種別: 期待値 %s, 実際の値 %s", PanelTypeEstablishingShot, panel.Type)
		}
		if len(panel.SoundEffects) != 2 {
			t.Fatalf("効果音: 期待値 2件, 実際の値 %d件", len(panel.SoundEffects))
		}
		if panel.SoundEffects[0].Text != "ザザーン" || panel.SoundEffects[1].Style != "impact" {
			t.Errorf("効果音が正しくデコードされていません: %+v", panel.SoundEffects)
		}
	})
}

func TestParsePanelType(t *testing.T) {
	if pt, err := ParsePanelType(" Close_Up "); err != nil || pt != PanelTypeCloseUp {
		t.Errorf("正規化に失敗しました: %v, %v", pt, err)
	}
	if _, err := ParsePanelType("splash"); !errors.Is(err, ErrInvalidScript) {
		t.Errorf("未知の種別は ErrInvalidScript になるべきです: %v", err)
	}
}

func TestPanelDescriptor_Speakers(t *testing.T) {
	p := PanelDescriptor{Dialogue: []DialogueLine{
		{Character: "Aoi", Text: "a"},
		{Character: "", Text: "narration"},
		{Character: "aoi", Text: "b"},
		{Character: "Ren", Text: "c"},
	}}
	got := p.Speakers()
	if len(got) != 2 || got[0] != "Aoi" || got[1] != "Ren" {
		t.Errorf("話者の抽出結果が不正です: %v", got)
	}
}

func TestConsistencyContext(t *testing.T) {
	var empty ConsistencyContext
	if !empty.IsEmpty() || string(empty.Raw()) != "null" {
		t.Errorf("ゼロ値は空コンテキストであるべきです")
	}
	if !NewConsistencyContext(json.RawMessage("null")).IsEmpty() {
		t.Errorf("null は空コンテキストとして扱うべきです")
	}
	a := NewConsistencyContext(json.RawMessage(`{"t":"p1"}`))
	b := NewConsistencyContext(json.RawMessage(` {"t":"p1"} `))
	if a.IsEmpty() || !a.Equal(b) || a.Equal(empty) {
		t.Errorf("コンテキストの比較結果が不正です")
	}
}
