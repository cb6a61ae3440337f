package frame

// AdjustImage returns img at the given brightness level.
//
// Unset returns img itself, MaxBrightness returns an independent copy, and
// any other level scales every channel linearly by level/MaxBrightness.
func AdjustImage(img *Image, level int) *Image {
	switch {
	case level == Unset:
		return img
	case level >= MaxBrightness:
		return img.Clone()
	default:
		return img.Scale(level, MaxBrightness)
	}
}

// ApplyBrightness brings f.Adjusted to level. It reports whether the image
// had to be recomputed; a frame already tagged with level is left alone.
func ApplyBrightness(f *Frame, level int) bool {
	if f.Brightness == level && f.Adjusted != nil {
		return false
	}
	f.Adjusted = AdjustImage(f.Image, level)
	f.Brightness = level
	return true
}
