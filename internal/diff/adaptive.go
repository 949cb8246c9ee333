package diff

import "image"

// Fraction of local variance folded into the per-pixel threshold. Intensity
// variance over a 3x3 window reaches into the thousands on hard texture
// edges, so the divisor keeps the adjustment within the 8-bit range.
const varianceDivisor = 64

// adaptiveThresholds derives a per-pixel threshold grid from the before
// image: base + variance(3x3 gray neighborhood)/varianceDivisor, clamped
// to 255.
func adaptiveThresholds(before *image.RGBA, base int) []int {
	bounds := before.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	gray := make([]int, width*height)
	for y := 0; y < height; y++ {
		row := before.PixOffset(bounds.Min.X, bounds.Min.Y+y)
		for x := 0; x < width; x++ {
			i := row + x*4
			gray[y*width+x] = (int(before.Pix[i]) + int(before.Pix[i+1]) + int(before.Pix[i+2])) / 3
		}
	}

	thresholds := make([]int, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			sum, sumSq, n := 0, 0, 0
			for dy := -1; dy <= 1; dy++ {
				yy := y + dy
				if yy < 0 || yy >= height {
					continue
				}
				for dx := -1; dx <= 1; dx++ {
					xx := x + dx
					if xx < 0 || xx >= width {
						continue
					}
					v := gray[yy*width+xx]
					sum += v
					sumSq += v * v
					n++
				}
			}
			mean := sum / n
			variance := sumSq/n - mean*mean
			if variance < 0 {
				variance = 0
			}

			thr := base + variance/varianceDivisor
			if thr > 255 {
				thr = 255
			}
			thresholds[y*width+x] = thr
		}
	}
	return thresholds
}
