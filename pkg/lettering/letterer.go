package lettering

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/jpeg"
	"image/png"
	"log/slog"
	"math"

	"github.com/shouni/go-manga-press/pkg/director"
	"github.com/shouni/go-manga-press/pkg/domain"

	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
)

// BubbleDetector は画像から吹き出し候補を検出します。
type BubbleDetector interface {
	Detect(img image.Image) []domain.BubbleRegion
}

// Options は写植の設定です。
type Options struct {
	MinFontSize  int
	MaxFontSize  int
	SafetyMargin float64 // 吹き出しの外接矩形を各辺この比率だけ内側に縮めます
	Policy       string  // PolicyPositional または PolicySpatial
}

// Result は写植の結果です。
type Result struct {
	Image     *image.RGBA
	Bubbles   []domain.BubbleRegion
	Issues    []domain.LetteringIssue
	Unmatched []domain.DialogueLine
}

// Err は対応の取れなかったセリフや吹き出しがあれば ErrBubbleAssignmentMismatch を返します。
// 描画自体は完了しているため、呼び出し側は警告として扱います。
// 効果音の配置漏れは Issues に残りますが、このエラーには数えません。
func (r *Result) Err() error {
	n := 0
	for _, issue := range r.Issues {
		if issue.Kind == domain.IssueKindBubbleAssignmentMismatch {
			n++
		}
	}
	if n == 0 {
		return nil
	}
	return fmt.Errorf("%w: %d 件", domain.ErrBubbleAssignmentMismatch, n)
}

// Letterer は検出した吹き出しにセリフを、空いた場所に効果音を描き込みます。
type Letterer struct {
	opts     Options
	fonts    *Fonts
	detector BubbleDetector
	style    *director.StyleManager
	layout   *director.LayoutManager
}

// NewLetterer は Letterer を初期化します。
func NewLetterer(opts Options, fonts *Fonts, detector BubbleDetector) (*Letterer, error) {
	if opts.MinFontSize <= 0 || opts.MaxFontSize < opts.MinFontSize {
		return nil, fmt.Errorf("フォントサイズの範囲が不正です: %d-%d", opts.MinFontSize, opts.MaxFontSize)
	}
	if opts.SafetyMargin < 0 || opts.SafetyMargin >= 0.5 {
		return nil, fmt.Errorf("安全マージンは 0 以上 0.5 未満である必要があります: %v", opts.SafetyMargin)
	}
	return &Letterer{
		opts:     opts,
		fonts:    fonts,
		detector: detector,
		style:    director.NewStyleManager(),
		layout:   director.NewLayoutManager(),
	}, nil
}

// LetterPNG は PNG/JPEG のパネル画像から吹き出しを検出して写植し、PNG にエンコードします。
func (l *Letterer) LetterPNG(ctx context.Context, data []byte, panel domain.PanelDescriptor) ([]byte, *Result, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, nil, fmt.Errorf("パネル %d の画像のデコードに失敗しました: %w", panel.PanelNumber, err)
	}
	res, err := l.Letter(ctx, img, l.detector.Detect(img), panel)
	if err != nil {
		return nil, nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, res.Image); err != nil {
		return nil, nil, fmt.Errorf("写植済み画像のエンコードに失敗しました: %w", err)
	}
	return buf.Bytes(), res, nil
}

// Letter は bubbles にセリフを割り当てて描画し、続けて効果音を合成した新しい画像を返します。
// 元の画像は変更しません。
func (l *Letterer) Letter(ctx context.Context, img image.Image, bubbles []domain.BubbleRegion, panel domain.PanelDescriptor) (*Result, error) {
	bounds := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(dst, dst.Bounds(), img, bounds.Min, draw.Src)

	assignment, err := Assign(l.opts.Policy, panel, bubbles, dst.Bounds())
	if err != nil {
		return nil, err
	}
	logger := slog.With("panel", panel.PanelNumber)
	for _, issue := range assignment.Issues {
		logger.WarnContext(ctx, "Bubble assignment mismatch",
			"dialogue_index", issue.DialogueIndex,
			"bubble_index", issue.BubbleIndex,
			"reason", issue.Reason)
	}

	for _, pair := range assignment.Pairs {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrCancellationRequested, err)
		}
		line := panel.Dialogue[pair.Dialogue]
		if err := l.drawDialogue(ctx, dst, bubbles[pair.Bubble], line); err != nil {
			return nil, err
		}
	}

	sfxIssues, err := l.drawSoundEffects(ctx, dst, bubbles, panel)
	if err != nil {
		return nil, err
	}

	return &Result{
		Image:     dst,
		Bubbles:   bubbles,
		Issues:    append(assignment.Issues, sfxIssues...),
		Unmatched: assignment.Unmatched,
	}, nil
}

func (l *Letterer) drawDialogue(ctx context.Context, dst *image.RGBA, bubble domain.BubbleRegion, line domain.DialogueLine) error {
	text, kind := l.style.Strip(line.Text)
	if text == "" {
		return nil
	}
	inner := innerBox(bubble.Bounds.Image(), l.opts.SafetyMargin)
	vertical := IsCJK(text, line.Language)

	b, fitted, err := l.fit(text, vertical, inner.Size(), l.style.FontScale(kind))
	if err != nil {
		return err
	}
	if !fitted {
		slog.WarnContext(ctx, "Text does not fit bubble, using minimum font size",
			"text", text,
			"bubble", bubble.Bounds,
			"size", b.size)
	}

	face, err := l.fonts.face(b.size)
	if err != nil {
		return err
	}
	defer face.Close()

	if b.vertical {
		drawVertical(dst, face, b, inner)
	} else {
		drawHorizontal(dst, face, b, inner)
	}
	return nil
}

// fit は二分探索で箱に収まる最大のフォントサイズを選びます。
// どのサイズでも収まらない場合は最小サイズで組んだ結果と false を返します。
func (l *Letterer) fit(text string, vertical bool, box image.Point, scale float64) (block, bool, error) {
	lo := l.opts.MinFontSize
	hi := max(lo, int(math.Round(float64(l.opts.MaxFontSize)*scale)))

	var best block
	found := false
	for lo <= hi {
		mid := (lo + hi) / 2
		b, ok, err := l.layoutAt(text, vertical, box, mid)
		if err != nil {
			return block{}, false, err
		}
		if ok {
			best, found = b, true
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}
	if found {
		return best, true, nil
	}

	b, _, err := l.layoutAt(text, vertical, box, l.opts.MinFontSize)
	if err != nil {
		return block{}, false, err
	}
	if len(b.lines) == 0 {
		b = block{size: l.opts.MinFontSize, vertical: vertical, lines: []string{text}}
	}
	return b, false, nil
}

func (l *Letterer) layoutAt(text string, vertical bool, box image.Point, size int) (block, bool, error) {
	face, err := l.fonts.face(size)
	if err != nil {
		return block{}, false, err
	}
	defer face.Close()

	var b block
	var ok bool
	if vertical {
		b, ok = layoutVertical(face, text, box)
	} else {
		b, ok = layoutHorizontal(face, text, box)
	}
	b.size = size
	b.vertical = vertical
	return b, ok, nil
}

// drawSoundEffects は効果音を合成し、配置できなかったものを問題として返します。
func (l *Letterer) drawSoundEffects(ctx context.Context, dst *image.RGBA, bubbles []domain.BubbleRegion, panel domain.PanelDescriptor) ([]domain.LetteringIssue, error) {
	if len(panel.SoundEffects) == 0 {
		return nil, nil
	}
	placer := newSFXPlacer(dst.Bounds(), bubbles, l.layout)
	size := min(l.opts.MaxFontSize, max(l.opts.MinFontSize, dst.Bounds().Dy()/8))

	var issues []domain.LetteringIssue
	for i, sfx := range panel.SoundEffects {
		face, err := l.fonts.face(size)
		if err != nil {
			return nil, err
		}
		img := renderSFX(face, sfx)
		face.Close()

		r, ok := placer.place(i, img.Bounds().Size())
		if !ok {
			slog.WarnContext(ctx, "Sound effect does not fit panel",
				"panel", panel.PanelNumber,
				"text", sfx.Text,
				"size", size)
			issues = append(issues, domain.LetteringIssue{
				Kind:          domain.IssueKindSoundEffectNotPlaced,
				PanelNumber:   panel.PanelNumber,
				DialogueIndex: -1,
				BubbleIndex:   -1,
				Text:          sfx.Text,
				Reason:        "効果音を配置できる領域がありません",
			})
			continue
		}
		composite(dst, r, img)
	}
	return issues, nil
}

// innerBox は各辺を margin の比率だけ内側に縮めた矩形です。
func innerBox(r image.Rectangle, margin float64) image.Rectangle {
	dx := int(float64(r.Dx()) * margin)
	dy := int(float64(r.Dy()) * margin)
	return image.Rect(r.Min.X+dx, r.Min.Y+dy, r.Max.X-dx, r.Max.Y-dy)
}

func drawHorizontal(dst *image.RGBA, face font.Face, b block, box image.Rectangle) {
	m := face.Metrics()
	lh := lineHeight(face)
	top := box.Min.Y + (box.Dy()-b.height)/2
	d := &font.Drawer{Dst: dst, Src: image.NewUniform(color.Black), Face: face}
	for i, line := range b.lines {
		w := font.MeasureString(face, line).Ceil()
		x := box.Min.X + (box.Dx()-w)/2
		d.Dot = fixed.P(x, top+i*lh+m.Ascent.Ceil())
		d.DrawString(line)
	}
}

func drawVertical(dst *image.RGBA, face font.Face, b block, box image.Rectangle) {
	m := face.Metrics()
	step := lineHeight(face)
	cw := columnWidth(face)
	right := box.Min.X + (box.Dx()+b.width)/2
	top := box.Min.Y + (box.Dy()-b.height)/2
	d := &font.Drawer{Dst: dst, Src: image.NewUniform(color.Black), Face: face}
	for c, column := range b.lines {
		colLeft := right - (c+1)*cw
		row := 0
		for _, r := range column {
			adv := runeAdvance(face, r).Ceil()
			x := colLeft + (cw-adv)/2
			d.Dot = fixed.P(x, top+row*step+m.Ascent.Ceil())
			d.DrawString(string(r))
			row++
		}
	}
}
