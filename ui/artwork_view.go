package ui

import (
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"mediadash/artwork"
)

const halfBlock = '▀'

// ArtworkView draws an RGB565 image with upper half-block cells: the
// foreground colors the top pixel row and the background the bottom one. The
// image is scaled by nearest neighbor to fit the inner rect, keeping aspect.
type ArtworkView struct {
	*tview.Box
	format  artwork.Format
	colors  []tcell.Color
	metrics *Metrics
}

func NewArtworkView(metrics *Metrics) *ArtworkView {
	return &ArtworkView{Box: tview.NewBox(), metrics: metrics}
}

// SetPixels converts pixels once so redraws only sample the color table.
// A nil pixels slice clears the image.
func (v *ArtworkView) SetPixels(format artwork.Format, pixels []byte) {
	if pixels == nil || len(pixels) < format.Size() || format.Width <= 0 || format.Height <= 0 {
		v.colors = nil
		return
	}
	start := time.Now()
	colors := make([]tcell.Color, format.Width*format.Height)
	for y := 0; y < format.Height; y++ {
		for x := 0; x < format.Width; x++ {
			r, g, b := format.RGB(pixels, x, y)
			colors[y*format.Width+x] = tcell.NewRGBColor(int32(r), int32(g), int32(b))
		}
	}
	v.format = format
	v.colors = colors
	v.metrics.ObserveArtwork(time.Since(start))
}

// HasImage reports whether an image is loaded.
func (v *ArtworkView) HasImage() bool {
	return v.colors != nil
}

// fit returns the drawn size in cells for an inner rect of cols x rows.
func (v *ArtworkView) fit(cols, rows int) (w, h int) {
	if v.format.Width <= 0 || v.format.Height <= 0 || cols <= 0 || rows <= 0 {
		return 0, 0
	}
	// Each cell is one pixel wide and two pixels tall.
	w = cols
	h = (w*v.format.Height/v.format.Width + 1) / 2
	if h > rows {
		h = rows
		w = h * 2 * v.format.Width / v.format.Height
	}
	if w > v.format.Width {
		w = v.format.Width
		h = (v.format.Height + 1) / 2
	}
	return w, h
}

func (v *ArtworkView) sample(col, halfRow, w, halfRows int) tcell.Color {
	px := col * v.format.Width / w
	py := halfRow * v.format.Height / halfRows
	if py >= v.format.Height {
		return tcell.ColorBlack
	}
	return v.colors[py*v.format.Width+px]
}

func (v *ArtworkView) Draw(screen tcell.Screen) {
	v.Box.DrawForSubclass(screen, v)
	x, y, cols, rows := v.GetInnerRect()
	if v.colors == nil {
		drawText(screen, x, y+rows/2, cols, centerText("no artwork", cols), tcell.StyleDefault.Foreground(tcell.ColorGray))
		return
	}
	w, h := v.fit(cols, rows)
	if w <= 0 || h <= 0 {
		return
	}
	offX := x + (cols-w)/2
	offY := y + (rows-h)/2
	for cy := 0; cy < h; cy++ {
		for cx := 0; cx < w; cx++ {
			top := v.sample(cx, 2*cy, w, 2*h)
			bottom := v.sample(cx, 2*cy+1, w, 2*h)
			style := tcell.StyleDefault.Foreground(top).Background(bottom)
			screen.SetContent(offX+cx, offY+cy, halfBlock, nil, style)
		}
	}
}

func centerText(s string, width int) string {
	n := len([]rune(s))
	if n >= width {
		return truncateRunes(s, width)
	}
	pad := (width - n) / 2
	out := make([]rune, 0, width)
	for i := 0; i < pad; i++ {
		out = append(out, ' ')
	}
	return string(append(out, []rune(s)...))
}
