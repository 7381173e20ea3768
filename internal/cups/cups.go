// Package cups renders a water volume in milliliters as a human-friendly
// cup measure with unicode fraction glyphs, e.g. "1½ cups".
package cups

import (
	"math"
	"strconv"
)

const mlPerCup = 236.588

// fractions maps the supported cup fractions to their glyphs. The whole-cup
// endpoints render with no glyph.
var fractions = []struct {
	value float64
	glyph string
}{
	{0.0, ""},
	{0.25, "¼"},
	{1.0 / 3.0, "⅓"},
	{0.5, "½"},
	{2.0 / 3.0, "⅔"},
	{0.75, "¾"},
	{1.0, ""},
}

// FromML converts a milliliter amount to a cup string, snapping the
// fractional part to the nearest supported fraction. A fraction of 0.99 cups
// or more rolls into the next whole cup.
func FromML(ml float64) string {
	cups := ml / mlPerCup
	whole := int(cups)
	remainder := cups - float64(whole)

	best := fractions[0]
	for _, f := range fractions[1:] {
		if math.Abs(remainder-f.value) < math.Abs(remainder-best.value) {
			best = f
		}
	}
	if best.value >= 0.99 {
		whole++
		best.glyph = ""
	}

	switch {
	case whole == 0 && best.glyph != "":
		return best.glyph + " cup"
	case whole > 0 && best.glyph != "":
		return strconv.Itoa(whole) + best.glyph + " cups"
	case whole == 1:
		return "1 cup"
	case whole > 1:
		return strconv.Itoa(whole) + " cups"
	default:
		return "0 cups"
	}
}
