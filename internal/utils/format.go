package utils

import (
	"math"
	"strconv"
	"time"
)

const fileTimestampLayout = "2006-01-02 15:04"

var fileSizeUnits = [...]string{"b", "kb", "mb", "gb", "tb", "pb"}

// FormatFileSize renders a byte count in binary multiples with a lower-case
// unit, such as "512b", "1.5kb" or "10mb". Values below ten keep one decimal.
func FormatFileSize(byteCount int64) string {
	if byteCount <= 0 {
		return "0" + fileSizeUnits[0]
	}
	scaled := float64(byteCount)
	unitIndex := 0
	for scaled >= 1024 && unitIndex < len(fileSizeUnits)-1 {
		scaled /= 1024
		unitIndex++
	}
	unit := fileSizeUnits[unitIndex]
	switch {
	case unitIndex == 0:
		return strconv.FormatInt(byteCount, 10) + unit
	case scaled < 10:
		return strconv.FormatFloat(math.Round(scaled*10)/10, 'f', -1, 64) + unit
	default:
		return strconv.FormatFloat(math.Round(scaled), 'f', 0, 64) + unit
	}
}

// FormatTimestamp renders a file modification time in the host time zone at
// minute precision. The zero time renders as an empty string.
func FormatTimestamp(modifiedAt time.Time) string {
	if modifiedAt.IsZero() {
		return ""
	}
	return modifiedAt.Local().Format(fileTimestampLayout)
}
