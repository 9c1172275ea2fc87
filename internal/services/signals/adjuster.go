package signals

// NeutralAccuracy is the accuracy assumed for a slot with no resolved history.
const NeutralAccuracy = 50.0

// AdjustConfidence damps base by historical accuracy (percent) and clamps the
// result to [MinConfidence, MaxConfidence].
func AdjustConfidence(base int, accuracy float64) int {
	return clampConfidence(float64(base) * (0.5 + 0.5*accuracy/100))
}
