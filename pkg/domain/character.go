package domain

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strings"
)

// Character は漫画に登場するキャラクターの定義を保持します。
type Character struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	VisualCues      []string `json:"visual_cues"`                // 生成プロンプトに注入する外見上の特徴
	ReferenceURL    string   `json:"reference_url,omitempty"`    // 一貫性保持のための参照画像URL
	Seed            int64    `json:"seed"`                       // DB保存等のために広い型を維持
	IsPrimary       bool     `json:"is_primary"`                 // 主人公フラグ
	AdapterRef      string   `json:"adapter_ref,omitempty"`      // 学習済みスタイルアダプターの参照
	AdapterStrength float64  `json:"adapter_strength,omitempty"` // 0 の場合は設定値を使用します
}

// CharactersMap はIDをキーとしたキャラクターの検索用マップです。
type CharactersMap map[string]Character

// ParseCharacters はキャラクター定義の JSON をキャラクターマップに変換します。
// JSON はIDをキーとしたオブジェクト形式と配列形式の両方を受け付けます。
func ParseCharacters(data []byte) (CharactersMap, error) {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var list []Character
		if err := json.Unmarshal(data, &list); err != nil {
			return nil, fmt.Errorf("キャラクター配列のデコードに失敗しました: %w", err)
		}
		return BuildCharactersMap(list), nil
	}
	return GetCharacters(data)
}

// String はキャラクターの情報を文字列で返します。
func (c Character) String() string {
	return fmt.Sprintf("%s (%s)", c.Name, c.ID)
}

// VisualDescription はビジュアル特徴をカンマ区切りで連結します。
func (c Character) VisualDescription() string {
	return strings.Join(c.VisualCues, ", ")
}

// BuildCharactersMap はスライス形式のデータを検索効率の良いマップ形式に変換します。
func BuildCharactersMap(chars []Character) CharactersMap {
	m := make(CharactersMap, len(chars))
	for _, c := range chars {
		key := c.ID
		if key == "" {
			key = strings.ToLower(c.Name)
		}
		if c.ID == "" {
			c.ID = key
		}
		m[key] = c
	}
	return m
}

// GetSeedFromName は名前から決定論的なシード値を生成します。
func GetSeedFromName(name string) int32 {
	hash := sha256.Sum256([]byte(name))
	seed := int32(binary.BigEndian.Uint32(hash[:4]))
	// バックエンドには正のシード値を渡すため、最上位ビットを落とします
	return seed & 0x7FFFFFFF
}

// NewCharacter は名前と特徴からキャラクター構造体を生成します。
func NewCharacter(id, name, visualCue string, seed int32) Character {
	if seed == 0 {
		seed = GetSeedFromName(name)
	}
	return Character{
		ID:         id,
		Name:       name,
		VisualCues: []string{visualCue},
		Seed:       int64(seed),
	}
}
