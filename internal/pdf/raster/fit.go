package raster

import (
	"math"
)

// MinFontSize is the smallest size the fit search will consider legible
const MinFontSize = 8

// Fits reports whether text measured at size fits inside the padded box
func Fits(m Measurer, text string, size int, boxW, boxH, padding float64) (bool, error) {
	w, h, err := m.Measure(text, float64(size))
	if err != nil {
		return false, err
	}
	return w <= boxW-padding && h <= boxH-padding, nil
}

// FitFontSize returns the largest integer size in [MinFontSize, floor(boxH-padding)]
// at which text fits the padded box. When even MinFontSize does not fit, it
// returns MinFontSize. The search takes O(log boxH) measurements.
func FitFontSize(m Measurer, text string, boxW, boxH, padding float64) (int, error) {
	low := MinFontSize
	high := int(math.Floor(boxH - padding))
	if high < low {
		return low, nil
	}

	best := low
	for low <= high {
		mid := low + (high-low)/2
		ok, err := Fits(m, text, mid, boxW, boxH, padding)
		if err != nil {
			return 0, err
		}
		if ok {
			best = mid
			low = mid + 1
		} else {
			high = mid - 1
		}
	}
	return best, nil
}
