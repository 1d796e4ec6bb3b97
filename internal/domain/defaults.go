package domain

// ClampBand is a closed [Min, Max] interval used to bound a value.
type ClampBand struct {
	Min float64
	Max float64
}

// Clamp bounds v to the band.
func (b ClampBand) Clamp(v float64) float64 {
	if v < b.Min {
		return b.Min
	}
	if v > b.Max {
		return b.Max
	}
	return v
}

// AvailableWindows are the supported trailing-window lengths in days.
var AvailableWindows = []int{3, 5, 7, 10, 15, 30}

// ValidWindow reports whether w is a supported window length.
func ValidWindow(w int) bool {
	for _, v := range AvailableWindows {
		if v == w {
			return true
		}
	}
	return false
}

// Engine defaults. Thresholds and bands are configuration with these values
// as the shipped defaults; the clamp bands in particular are a capital
// protection mechanism and must not be changed without product sign-off.
const (
	DefaultRosterSize      = 16
	DefaultWindowDays      = 7
	DefaultMinAUM          = 0.01
	DefaultDeclineExitDays = 3
	DefaultReturnFloor     = -0.10
	DefaultStopLoss        = -0.10
	DefaultMaxMoveFraction = 0.30
	DefaultAccountPool     = 1000
	DefaultInitialCapital  = 1000.0
	DefaultRebalanceEvery  = 7 // days between periodic rebalances

	// CandidateTopN is how deep into the previous day's ranked list the
	// selector looks for candidates beyond the current roster.
	CandidateTopN = 30
)

// Default clamp bands for the two-stage capital update:
// each agent return is clamped to DefaultAgentReturnBand before being turned
// into a multiplier, and the resulting balance-change factor is clamped to
// DefaultFactorBand before touching account capital.
var (
	DefaultAgentReturnBand = ClampBand{Min: -0.90, Max: 2.00}
	DefaultFactorBand      = ClampBand{Min: 0.05, Max: 4.00}
)
