// Package display holds the small presentation helpers shared by the API and
// the terminal client: human readable sizes, file icons and MIME guessing.
package display

import (
	"math"

	"github.com/dustin/go-humanize"
)

var sizeUnits = []string{"Bytes", "KB", "MB", "GB", "TB"}

// FormatSize renders a byte count with base-1024 units and at most two
// decimals, e.g. 1536 -> "1.5 KB", 0 -> "0 Bytes".
func FormatSize(bytes int64) string {
	if bytes <= 0 {
		return "0 Bytes"
	}
	exp := int(math.Floor(math.Log(float64(bytes)) / math.Log(1024)))
	if exp >= len(sizeUnits) {
		exp = len(sizeUnits) - 1
	}
	value := float64(bytes) / math.Pow(1024, float64(exp))
	return humanize.FtoaWithDigits(math.Round(value*100)/100, 2) + " " + sizeUnits[exp]
}
