package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// FindCharacter はIDまたは表示名からキャラクター情報を特定します。
// 名前での一致は大文字小文字を区別せず、常に同じ結果を得るためIDでソートした順に走査します。
func (m CharactersMap) FindCharacter(key string) *Character {
	if m == nil || key == "" {
		return nil
	}
	if char, ok := m[key]; ok {
		res := char
		return &res
	}
	if char, ok := m[strings.ToLower(key)]; ok {
		res := char
		return &res
	}

	for _, k := range m.sortedKeys() {
		if strings.EqualFold(m[k].Name, key) {
			res := m[k]
			return &res
		}
	}
	return nil
}

// GetPrimary はマップ内から IsPrimary が true のキャラクターを1人返します。
func (m CharactersMap) GetPrimary() *Character {
	for _, k := range m.sortedKeys() {
		if char := m[k]; char.IsPrimary {
			return &char
		}
	}
	return nil
}

// SeedFor はキャラクターに設定されたシード値を返します。
// 未登録または未設定の場合は名前から決定論的に生成します。
func (m CharactersMap) SeedFor(name string) int64 {
	if char := m.FindCharacter(name); char != nil && char.Seed != 0 {
		return char.Seed
	}
	return int64(GetSeedFromName(name))
}

// Merge は other の内容で上書きした新しいマップを返します。
func (m CharactersMap) Merge(other CharactersMap) CharactersMap {
	merged := make(CharactersMap, len(m)+len(other))
	for k, v := range m {
		merged[k] = v
	}
	for k, v := range other {
		merged[k] = v
	}
	return merged
}

func (m CharactersMap) sortedKeys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// GetCharacters はJSONバイト列からキャラクターマップをパースして返します。
// この関数はステートレスであり、キャッシュを行いません。
func GetCharacters(charactersJSON []byte) (CharactersMap, error) {
	var chars CharactersMap
	if err := json.Unmarshal(charactersJSON, &chars); err != nil {
		return nil, fmt.Errorf("キャラクター情報のJSONパースに失敗しました: %w", err)
	}
	for k, c := range chars {
		if c.ID == "" {
			c.ID = k
			chars[k] = c
		}
	}
	return chars, nil
}
