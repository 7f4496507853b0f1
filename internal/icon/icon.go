// Package icon rasterizes the tray icon: two rounded progress bars, session
// on top and weekly below, filled to utilization and tinted by severity.
package icon

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"runtime"

	"github.com/tnunamak/tokentorch/internal/forecast"
)

var (
	green  = color.NRGBA{76, 175, 80, 255}
	yellow = color.NRGBA{255, 193, 7, 255}
	red    = color.NRGBA{244, 67, 54, 255}
	gray   = color.NRGBA{120, 120, 120, 255}
	track  = color.NRGBA{68, 68, 72, 255}
)

// Layout is the bar geometry in pixels.
type Layout struct {
	Width, Height int
	BarX, BarW    int
	BarH          int
	Radius        float64
	TopY          int
	Gap           int
}

var (
	// MenuBar is the wide icon used by the macOS menu bar.
	MenuBar = Layout{Width: 36, Height: 22, BarX: 2, BarW: 32, BarH: 7, Radius: 3, TopY: 3, Gap: 2}
	// Square is used by system trays elsewhere.
	Square = Layout{Width: 32, Height: 32, BarX: 2, BarW: 28, BarH: 10, Radius: 4, TopY: 4, Gap: 4}
)

func DefaultLayout() Layout {
	if runtime.GOOS == "darwin" {
		return MenuBar
	}
	return Square
}

// Color is the fill for a severity. RedBlink shares Red's fill; blinking is
// done by alternating with Blank.
func Color(s forecast.Severity) color.NRGBA {
	switch s {
	case forecast.Green:
		return green
	case forecast.Yellow:
		return yellow
	case forecast.Red, forecast.RedBlink:
		return red
	default:
		return gray
	}
}

// Render draws the bars for state. Absent bars and error states draw as
// empty gray tracks.
func Render(l Layout, state forecast.State) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, l.Width, l.Height))
	drawBar(img, l, l.TopY, state.Session)
	drawBar(img, l, l.TopY+l.BarH+l.Gap, state.Weekly)
	return img
}

// Blank is the "off" frame of the blink animation.
func Blank(l Layout) *image.NRGBA {
	return Render(l, forecast.State{})
}

func drawBar(img *image.NRGBA, l Layout, y int, bar *forecast.UsageBar) {
	fill, frac := gray, 0.0
	if bar != nil {
		fill, frac = Color(bar.Color), bar.Utilization/100
	}
	frac = min(max(frac, 0), 1)
	fillW := int(float64(l.BarW) * frac)

	for py := y; py < y+l.BarH; py++ {
		for px := l.BarX; px < l.BarX+l.BarW; px++ {
			if !inRoundedRect(px, py, l.BarX, y, l.BarW, l.BarH, l.Radius) {
				continue
			}
			c := track
			if px < l.BarX+fillW {
				c = fill
			}
			img.SetNRGBA(px, py, c)
		}
	}
}

// inRoundedRect tests the pixel center against a rectangle with circular
// corners of radius r.
func inRoundedRect(px, py, x, y, w, h int, r float64) bool {
	cx, cy := float64(px)+0.5, float64(py)+0.5
	left, top := float64(x), float64(y)
	right, bottom := left+float64(w), top+float64(h)

	if cx < left || cx > right || cy < top || cy > bottom {
		return false
	}

	var ox, oy float64
	switch {
	case cx < left+r:
		ox = left + r
	case cx > right-r:
		ox = right - r
	default:
		return true
	}
	switch {
	case cy < top+r:
		oy = top + r
	case cy > bottom-r:
		oy = bottom - r
	default:
		return true
	}
	dx, dy := cx-ox, cy-oy
	return dx*dx+dy*dy <= r*r
}

// PNG encodes img for systray.SetIcon.
func PNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
