// Package classify holds the risk classification strategy. It is pure: no
// ledger state, no I/O, so a real scoring model can replace the reference
// heuristic without touching the reveal state machine.
package classify

// RiskLevel labels a revealed screening entry.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskModerate RiskLevel = "moderate"
	RiskHigh     RiskLevel = "high"
)

// IsValid checks if the risk level is one of the supported enum values.
func (r RiskLevel) IsValid() bool {
	switch r {
	case RiskLow, RiskModerate, RiskHigh:
		return true
	}
	return false
}

// Classifier maps revealed feature values to a risk level.
type Classifier interface {
	Classify(textFeature, voiceFeature string) RiskLevel
}

// Func adapts a plain function to the Classifier interface.
type Func func(textFeature, voiceFeature string) RiskLevel

func (f Func) Classify(textFeature, voiceFeature string) RiskLevel {
	return f(textFeature, voiceFeature)
}

// LengthSum is the placeholder heuristic: High when the combined feature
// length exceeds the threshold, Low otherwise. The boundary value itself is
// Low. Moderate is reserved for real scoring models.
type LengthSum struct {
	Threshold int
}

// NewLengthSum returns the reference classifier with the default threshold.
func NewLengthSum() LengthSum {
	return LengthSum{Threshold: 100}
}

func (c LengthSum) Classify(textFeature, voiceFeature string) RiskLevel {
	if len(textFeature)+len(voiceFeature) > c.Threshold {
		return RiskHigh
	}
	return RiskLow
}
