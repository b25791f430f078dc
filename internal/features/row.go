package features

import "math"

// Missing is the sentinel written into a Row when a feature cannot be
// computed from the available trailing window (spec §3: "a real number or
// a sentinel 'missing'").
var Missing = math.NaN()

// IsMissing reports whether v is the missing sentinel.
func IsMissing(v float64) bool {
	return math.IsNaN(v)
}

// Row is a feature-set row: an ordered mapping from feature name to value.
// Keys are exactly Names() (spec §4.1 "output: feature row whose keys are
// exactly the feature-set's declared names").
type Row map[string]float64

// Matrix is the bulk-materialisation result: one Row per input bar, in
// series order, plus the schema version used to compute it.
type Matrix struct {
	Version string
	Rows    []Row
}
