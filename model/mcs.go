package model

// MCSClass is one rung of the modulation-and-coding-scheme ladder the
// interference-aware capacity constraints convex-combine over: the
// minimum SNR (dB) a link must clear to sustain the paired throughput.
// Mirrors the default ladder a device falls back to when its
// mcs_map_file names no override (CSV loading itself is out of scope,
// see DESIGN.md).
type MCSClass struct {
	Level          int
	SNRThresholdDB float64
	CapacityGbps   float64
}

// DefaultMCSClasses returns the built-in SNR/capacity ladder, ascending
// by SNR threshold. Calibrated to 60 GHz mmWave backhaul radios, in the
// same MCS-index range graphutil.maxMCSLevelForCost treats as the top
// of the cost curve. Deliberately coarse (low/mid/high) rather than the
// full per-index ladder: every rung adds one more binary class variable
// per link per channel in the capacity convex combination, and the
// reference brute-force solver's tractable variable budget is the
// limiting factor for this ladder's granularity, not the model.
func DefaultMCSClasses() []MCSClass {
	return []MCSClass{
		{Level: 5, SNRThresholdDB: 2, CapacityGbps: 0.6},
		{Level: 9, SNRThresholdDB: 8, CapacityGbps: 1.5},
		{Level: 12, SNRThresholdDB: 18, CapacityGbps: 4.6},
	}
}
