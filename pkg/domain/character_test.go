package domain

import (
	"testing"
)

func TestGetCharacters(t *testing.T) {
	jsonInput := []byte(`{
		"hero": {
			"name": "勇者",
			"visual_cues": ["blue hair", "sword"],
			"seed": 123,
			"is_primary": true
		}
	}`)

	chars, err := GetCharacters(jsonInput)
	if err != nil {
		t.Fatalf("正常なJSONでエラーが発生しました: %v", err)
	}

	if chars["hero"].Name != "勇者" {
		t.Errorf("期待値 '勇者', 実際の値 '%s'", chars["hero"].Name)
	}
	if chars["hero"].ID != "hero" {
		t.Errorf("IDがキーから補完されていません: %q", chars["hero"].ID)
	}

	if _, err := GetCharacters([]byte(`{ invalid json }`)); err == nil {
		t.Error("不正なJSONでエラーが発生しませんでした")
	}
}

func TestParseCharacters_Array(t *testing.T) {
	data := `[{"name": "Aoi", "visual_cues": ["red scarf"]}, {"id": "ren", "name": "Ren"}]`

	chars, err := ParseCharacters([]byte(data))
	if err != nil {
		t.Fatalf("読み込みに失敗しました: %v", err)
	}
	if len(chars) != 2 {
		t.Fatalf("期待値 2件, 実際の値 %d件", len(chars))
	}
	if c := chars.FindCharacter("AOI"); c == nil || c.ID != "aoi" {
		t.Errorf("名前による検索に失敗しました: %+v", c)
	}
}

func TestCharactersMap_SeedFor(t *testing.T) {
	chars := CharactersMap{
		"alice": Character{ID: "alice", Name: "Alice", Seed: 999},
		"bob":   Character{ID: "bob", Name: "Bob"},
	}

	t.Run("設定済みのSeedを取得できること", func(t *testing.T) {
		if seed := chars.SeedFor("Alice"); seed != 999 {
			t.Errorf("期待値 999, 実際の値 %d", seed)
		}
	})

	t.Run("Seed未設定の場合はハッシュから生成されること", func(t *testing.T) {
		if seed := chars.SeedFor("Bob"); seed != int64(GetSeedFromName("Bob")) {
			t.Errorf("名前由来のSeedと一致しません: %d", seed)
		}
	})

	t.Run("存在しない名前でも決定論的であること", func(t *testing.T) {
		s1, s2 := chars.SeedFor("Unknown"), chars.SeedFor("Unknown")
		if s1 != s2 || s1 < 0 {
			t.Errorf("決定論的な正のSeedではありません: %d, %d", s1, s2)
		}
	})
}

func TestCharactersMap_GetPrimary(t *testing.T) {
	chars := CharactersMap{
		"b": {ID: "b", Name: "B", IsPrimary: true},
		"a": {ID: "a", Name: "A", IsPrimary: true},
	}
	if p := chars.GetPrimary(); p == nil || p.ID != "a" {
		t.Errorf("ソート順で最初の主人公が返されていません: %+v", p)
	}
	if p := (CharactersMap{}).GetPrimary(); p != nil {
		t.Errorf("空マップで nil が返されていません: %+v", p)
	}
}

func TestCharacter_String(t *testing.T) {
	c := Character{ID: "test-id", Name: "テスト名"}
	expected := "テスト名 (test-id)"
	if c.String() != expected {
		t.Errorf("期待値 '%s', 実際の値 '%s'", expected, c.String())
	}
}
