package render

import "unicode"

const (
	fontWidth  = 5
	fontHeight = 7
)

// 5x7 font, one byte per column, bit 0 is the top row.
var font5x7 = map[rune][]byte{
	'A': {0x7E, 0x09, 0x09, 0x09, 0x7E},
	'B': {0x7F, 0x49, 0x49, 0x49, 0x36},
	'C': {0x3E, 0x41, 0x41, 0x41, 0x22},
	'D': {0x7F, 0x41, 0x41, 0x22, 0x1C},
	'E': {0x7F, 0x49, 0x49, 0x49, 0x41},
	'F': {0x7F, 0x09, 0x09, 0x09, 0x01},
	'G': {0x3E, 0x41, 0x49, 0x49, 0x3A},
	'H': {0x7F, 0x08, 0x08, 0x08, 0x7F},
	'I': {0x00, 0x41, 0x7F, 0x41, 0x00},
	'J': {0x20, 0x40, 0x41, 0x3F, 0x01},
	'K': {0x7F, 0x08, 0x14, 0x22, 0x41},
	'L': {0x7F, 0x40, 0x40, 0x40, 0x40},
	'M': {0x7F, 0x02, 0x0C, 0x02, 0x7F},
	'N': {0x7F, 0x04, 0x08, 0x10, 0x7F},
	'O': {0x3E, 0x41, 0x41, 0x41, 0x3E},
	'P': {0x7F, 0x09, 0x09, 0x09, 0x06},
	'Q': {0x3E, 0x41, 0x51, 0x21, 0x5E},
	'R': {0x7F, 0x09, 0x19, 0x29, 0x46},
	'S': {0x26, 0x49, 0x49, 0x49, 0x32},
	'T': {0x01, 0x01, 0x7F, 0x01, 0x01},
	'U': {0x3F, 0x40, 0x40, 0x40, 0x3F},
	'V': {0x1F, 0x20, 0x40, 0x20, 0x1F},
	'W': {0x3F, 0x40, 0x30, 0x40, 0x3F},
	'X': {0x63, 0x14, 0x08, 0x14, 0x63},
	'Y': {0x07, 0x08, 0x70, 0x08, 0x07},
	'Z': {0x61, 0x51, 0x49, 0x45, 0x43},
	'0': {0x3E, 0x51, 0x49, 0x45, 0x3E},
	'1': {0x00, 0x42, 0x7F, 0x40, 0x00},
	'2': {0x42, 0x61, 0x51, 0x49, 0x46},
	'3': {0x21, 0x41, 0x45, 0x4B, 0x31},
	'4': {0x18, 0x14, 0x12, 0x7F, 0x10},
	'5': {0x27, 0x45, 0x45, 0x45, 0x39},
	'6': {0x3C, 0x4A, 0x49, 0x49, 0x30},
	'7': {0x01, 0x71, 0x09, 0x05, 0x03},
	'8': {0x36, 0x49, 0x49, 0x49, 0x36},
	'9': {0x06, 0x49, 0x49, 0x29, 0x1E},
	' ': {0x00, 0x00, 0x00, 0x00, 0x00},
	'!': {0x00, 0x00, 0x5F, 0x00, 0x00},
	'.': {0x00, 0x60, 0x60, 0x00, 0x00},
	',': {0x00, 0x50, 0x30, 0x00, 0x00},
	':': {0x00, 0x36, 0x36, 0x00, 0x00},
	'-': {0x08, 0x08, 0x08, 0x08, 0x08},
	'+': {0x08, 0x08, 0x3E, 0x08, 0x08},
}

// textColumns flattens text into a stream of column bitmasks with one
// blank column between characters. Lowercase letters are folded to
// uppercase; unknown characters render as spaces.
func textColumns(text string) []byte {
	cols := make([]byte, 0, len(text)*(fontWidth+1))
	for _, ch := range text {
		glyph, ok := font5x7[unicode.ToUpper(ch)]
		if !ok {
			glyph = font5x7[' ']
		}
		cols = append(cols, glyph...)
		cols = append(cols, 0)
	}
	return cols
}

// TextScroller scrolls a text banner across the strip. The strip is
// treated as a column-major panel seven pixels tall, so a 140 pixel
// strip shows 20 columns.
type TextScroller struct {
	cols    []byte
	R, G, B uint8
}

// NewTextScroller creates a text animation for the given banner.
func NewTextScroller(text string) *TextScroller {
	if text == "" {
		text = "CLOCKLESS"
	}
	return &TextScroller{cols: textColumns(text), R: 255, G: 255, B: 255}
}

func (a *TextScroller) Frame(t Target, tick uint64) {
	t.Clear()
	width := t.Len() / fontHeight
	if width == 0 || len(a.cols) == 0 {
		return
	}
	span := len(a.cols) + width
	offset := int(tick % uint64(span))
	for x := 0; x < width; x++ {
		// Columns enter from the right edge and scroll left.
		ci := x - width + offset
		if ci < 0 || ci >= len(a.cols) {
			continue
		}
		col := a.cols[ci]
		for y := 0; y < fontHeight; y++ {
			if col&(1<<uint(y)) == 0 {
				continue
			}
			t.SetRGB(x*fontHeight+y, a.R, a.G, a.B)
		}
	}
}
