package browser

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"

	"go.uber.org/zap"

	"github.com/deepsurf-ai/deepsurf/api/schemas"
)

// Annotator overlays element IDs onto screenshots so the decision oracle can
// reference elements by the same numbers the extractor assigned.
type Annotator struct {
	maxElements int
	logger      *zap.Logger
}

// NewAnnotator creates an annotator that draws at most maxElements boxes.
func NewAnnotator(maxElements int, logger *zap.Logger) *Annotator {
	return &Annotator{
		maxElements: maxElements,
		logger:      logger.Named("annotator"),
	}
}

var elementColors = map[string]color.RGBA{
	"button":   {255, 0, 0, 255},
	"input":    {0, 100, 255, 255},
	"textarea": {0, 100, 255, 255},
	"a":        {0, 200, 0, 255},
	"select":   {255, 165, 0, 255},
}

var fallbackColor = color.RGBA{150, 0, 255, 255}

// Annotate draws a numbered bounding box for each element onto the PNG
// screenshot. On any decode or encode failure it returns the original bytes
// so the caller still has a usable screenshot.
func (a *Annotator) Annotate(screenshot []byte, elements []schemas.ElementRecord) []byte {
	img, err := png.Decode(bytes.NewReader(screenshot))
	if err != nil {
		a.logger.Warn("Failed to decode screenshot, returning unannotated image.", zap.Error(err))
		return screenshot
	}

	bounds := img.Bounds()
	rgba := image.NewRGBA(bounds)
	draw.Draw(rgba, bounds, img, bounds.Min, draw.Src)

	drawn := 0
	for _, el := range elements {
		if drawn >= a.maxElements {
			a.logger.Debug("Annotation cap reached.", zap.Int("cap", a.maxElements))
			break
		}
		if el.BBox.Width <= 0 || el.BBox.Height <= 0 {
			continue
		}

		c, ok := elementColors[el.Type]
		if !ok {
			c = fallbackColor
		}

		x1, y1 := el.BBox.X, el.BBox.Y
		x2, y2 := el.BBox.X+el.BBox.Width, el.BBox.Y+el.BBox.Height
		if x1 < 0 {
			x1 = 0
		}
		if y1 < 0 {
			y1 = 0
		}
		if x2 > bounds.Max.X {
			x2 = bounds.Max.X
		}
		if y2 > bounds.Max.Y {
			y2 = bounds.Max.Y
		}
		if x1 >= x2 || y1 >= y2 {
			continue
		}

		drawRect(rgba, x1, y1, x2, y2, c, 2)
		drawNumberBadge(rgba, x1, y1, el.ID, c)
		drawn++
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, rgba); err != nil {
		a.logger.Warn("Failed to encode annotated screenshot, returning original.", zap.Error(err))
		return screenshot
	}
	return buf.Bytes()
}

// drawRect draws a rectangle outline.
func drawRect(img *image.RGBA, x1, y1, x2, y2 int, c color.RGBA, thickness int) {
	bounds := img.Bounds()
	for t := 0; t < thickness; t++ {
		for x := x1; x < x2; x++ {
			if y1+t >= 0 && y1+t < bounds.Max.Y && x >= 0 && x < bounds.Max.X {
				img.SetRGBA(x, y1+t, c)
			}
			if y2-1-t >= 0 && y2-1-t < bounds.Max.Y && x >= 0 && x < bounds.Max.X {
				img.SetRGBA(x, y2-1-t, c)
			}
		}
		for y := y1; y < y2; y++ {
			if x1+t >= 0 && x1+t < bounds.Max.X && y >= 0 && y < bounds.Max.Y {
				img.SetRGBA(x1+t, y, c)
			}
			if x2-1-t >= 0 && x2-1-t < bounds.Max.X && y >= 0 && y < bounds.Max.Y {
				img.SetRGBA(x2-1-t, y, c)
			}
		}
	}
}

// drawNumberBadge draws a small filled badge with the element ID.
func drawNumberBadge(img *image.RGBA, x, y, num int, boxColor color.RGBA) {
	bounds := img.Bounds()
	numStr := fmt.Sprintf("%d", num)

	charWidth := 6
	charHeight := 9
	padding := 2
	badgeWidth := len(numStr)*charWidth + padding*2
	badgeHeight := charHeight + padding*2

	// Prefer placing the badge above the box; fall back to inside.
	badgeX := x
	badgeY := y - badgeHeight
	if badgeY < 0 {
		badgeY = y
	}

	for by := badgeY; by < badgeY+badgeHeight && by < bounds.Max.Y; by++ {
		for bx := badgeX; bx < badgeX+badgeWidth && bx < bounds.Max.X; bx++ {
			if bx >= 0 && by >= 0 {
				img.SetRGBA(bx, by, boxColor)
			}
		}
	}

	textX := badgeX + padding
	textY := badgeY + padding
	white := color.RGBA{255, 255, 255, 255}
	for i, ch := range numStr {
		drawDigit(img, textX+i*charWidth, textY, int(ch-'0'), white)
	}
}

// 5x7 bitmap font for digits 0-9.
var digitPatterns = [10][7]uint8{
	{0x0E, 0x11, 0x13, 0x15, 0x19, 0x11, 0x0E}, // 0
	{0x04, 0x0C, 0x04, 0x04, 0x04, 0x04, 0x0E}, // 1
	{0x0E, 0x11, 0x01, 0x02, 0x04, 0x08, 0x1F}, // 2
	{0x1F, 0x02, 0x04, 0x02, 0x01, 0x11, 0x0E}, // 3
	{0x02, 0x06, 0x0A, 0x12, 0x1F, 0x02, 0x02}, // 4
	{0x1F, 0x10, 0x1E, 0x01, 0x01, 0x11, 0x0E}, // 5
	{0x06, 0x08, 0x10, 0x1E, 0x11, 0x11, 0x0E}, // 6
	{0x1F, 0x01, 0x02, 0x04, 0x08, 0x08, 0x08}, // 7
	{0x0E, 0x11, 0x11, 0x0E, 0x11, 0x11, 0x0E}, // 8
	{0x0E, 0x11, 0x11, 0x0F, 0x01, 0x02, 0x0C}, // 9
}

func drawDigit(img *image.RGBA, x, y, digit int, c color.RGBA) {
	if digit < 0 || digit > 9 {
		return
	}
	bounds := img.Bounds()
	pattern := digitPatterns[digit]

	for row := 0; row < 7; row++ {
		for col := 0; col < 5; col++ {
			if pattern[row]&(1<<(4-col)) != 0 {
				px := x + col
				py := y + row
				if px >= 0 && px < bounds.Max.X && py >= 0 && py < bounds.Max.Y {
					img.SetRGBA(px, py, c)
				}
			}
		}
	}
}
