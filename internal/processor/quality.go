// quality.go - Cheap brightness/contrast quality estimate for diagnostics

package processor

import "math"

// AnalyzeQuality returns a 0-100 score from sampled brightness and contrast.
// Ideal: average brightness near 128 and a wide min/max spread.
func AnalyzeQuality(img RasterImage) float64 {
	if img.validate() != nil {
		return 0
	}

	var totalBrightness float64
	minBrightness := 255.0
	maxBrightness := 0.0
	pixelCount := 0

	// Sample every 10th pixel in both directions
	for y := 0; y < img.Height(); y += 10 {
		for x := 0; x < img.Width(); x += 10 {
			p := img.Pix[y*img.Stride+x*4:]
			brightness := (float64(p[0]) + float64(p[1]) + float64(p[2])) / 3.0

			totalBrightness += brightness
			minBrightness = math.Min(minBrightness, brightness)
			maxBrightness = math.Max(maxBrightness, brightness)
			pixelCount++
		}
	}

	avgBrightness := totalBrightness / float64(pixelCount)
	contrast := maxBrightness - minBrightness

	brightnessScore := 100.0 - math.Abs(avgBrightness-128.0)/1.28
	contrastScore := math.Min(contrast/2.0, 100.0)

	// Weight: 40% brightness, 60% contrast
	return brightnessScore*0.4 + contrastScore*0.6
}
