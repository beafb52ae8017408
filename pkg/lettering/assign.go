package lettering

import (
	"fmt"
	"image"
	"math"
	"sort"

	"github.com/shouni/go-manga-press/pkg/domain"
)

// 吹き出しとセリフの対応付け方式です。
const (
	PolicyPositional = "positional"
	PolicySpatial    = "spatial"
)

// Pair は吹き出しとセリフの1対1の対応です。インデックスは元のスライスの位置です。
type Pair struct {
	Bubble   int
	Dialogue int
}

// Assignment は対応付けの結果です。対応が取れなかったものは Issues と Unmatched に残ります。
type Assignment struct {
	Pairs     []Pair
	Issues    []domain.LetteringIssue
	Unmatched []domain.DialogueLine
}

// Assign は policy に従って吹き出しとセリフを1対1で対応付けます。結果は入力に対して決定的です。
func Assign(policy string, panel domain.PanelDescriptor, bubbles []domain.BubbleRegion, area image.Rectangle) (Assignment, error) {
	var pairs []Pair
	switch policy {
	case PolicyPositional, "":
		pairs = assignPositional(bubbles, len(panel.Dialogue))
	case PolicySpatial:
		pairs = assignSpatial(bubbles, len(panel.Dialogue), area)
	default:
		return Assignment{}, fmt.Errorf("未知の対応付け方式です: %q", policy)
	}
	return complete(panel, bubbles, pairs), nil
}

// ReadingOrder は吹き出しを右から左、上から下の読み順に並べたインデックスを返します。
func ReadingOrder(bubbles []domain.BubbleRegion) []int {
	order := make([]int, len(bubbles))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ba, bb := bubbles[order[a]].Bounds, bubbles[order[b]].Bounds
		if ba.Y != bb.Y {
			return ba.Y < bb.Y
		}
		return ba.X+ba.Width > bb.X+bb.Width
	})
	return order
}

// assignPositional は読み順で i 番目の吹き出しに i 番目のセリフを割り当てます。
func assignPositional(bubbles []domain.BubbleRegion, lines int) []Pair {
	order := ReadingOrder(bubbles)
	n := min(len(order), lines)
	pairs := make([]Pair, 0, n)
	for i := 0; i < n; i++ {
		pairs = append(pairs, Pair{Bubble: order[i], Dialogue: i})
	}
	return pairs
}

// assignSpatial は各セリフの想定位置（右上から左下への対角線上）に最も近い吹き出しを、
// 全体で距離の小さい組から順に貪欲に確定させます。
func assignSpatial(bubbles []domain.BubbleRegion, lines int, area image.Rectangle) []Pair {
	if lines == 0 || len(bubbles) == 0 {
		return nil
	}

	type candidate struct {
		bubble, dialogue int
		dist             float64
	}
	var cands []candidate
	for d := 0; d < lines; d++ {
		t := (float64(d) + 0.5) / float64(lines)
		ax := float64(area.Max.X) - t*float64(area.Dx())
		ay := float64(area.Min.Y) + t*float64(area.Dy())
		for b, bubble := range bubbles {
			cx := float64(bubble.Bounds.X) + float64(bubble.Bounds.Width)/2
			cy := float64(bubble.Bounds.Y) + float64(bubble.Bounds.Height)/2
			cands = append(cands, candidate{bubble: b, dialogue: d, dist: math.Hypot(cx-ax, cy-ay)})
		}
	}
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].dist != cands[j].dist {
			return cands[i].dist < cands[j].dist
		}
		if cands[i].dialogue != cands[j].dialogue {
			return cands[i].dialogue < cands[j].dialogue
		}
		return cands[i].bubble < cands[j].bubble
	})

	usedB := make(map[int]bool)
	usedD := make(map[int]bool)
	var pairs []Pair
	for _, c := range cands {
		if usedB[c.bubble] || usedD[c.dialogue] {
			continue
		}
		usedB[c.bubble], usedD[c.dialogue] = true, true
		pairs = append(pairs, Pair{Bubble: c.bubble, Dialogue: c.dialogue})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].Dialogue < pairs[j].Dialogue })
	return pairs
}

// complete は対応の取れなかったセリフと吹き出しを問題として記録します。
func complete(panel domain.PanelDescriptor, bubbles []domain.BubbleRegion, pairs []Pair) Assignment {
	out := Assignment{Pairs: pairs}
	usedB := make(map[int]bool, len(pairs))
	usedD := make(map[int]bool, len(pairs))
	for _, p := range pairs {
		usedB[p.Bubble], usedD[p.Dialogue] = true, true
	}

	for i, line := range panel.Dialogue {
		if usedD[i] {
			continue
		}
		out.Unmatched = append(out.Unmatched, line)
		out.Issues = append(out.Issues, domain.LetteringIssue{
			Kind:          domain.IssueKindBubbleAssignmentMismatch,
			PanelNumber:   panel.PanelNumber,
			DialogueIndex: i,
			BubbleIndex:   -1,
			Text:          line.Text,
			Reason:        "セリフに対応する吹き出しがありません",
		})
	}
	for i := range bubbles {
		if usedB[i] {
			continue
		}
		out.Issues = append(out.Issues, domain.LetteringIssue{
			Kind:          domain.IssueKindBubbleAssignmentMismatch,
			PanelNumber:   panel.PanelNumber,
			DialogueIndex: -1,
			BubbleIndex:   i,
			Reason:        "吹き出しに対応するセリフがありません",
		})
	}
	return out
}
