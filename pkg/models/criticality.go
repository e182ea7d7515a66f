package models

// Criticality is the severity band shared by complexity fragments and defect issues.
type Criticality string

const (
	CriticalityLow     Criticality = "low"
	CriticalityMedium  Criticality = "medium"
	CriticalityHigh    Criticality = "high"
	CriticalityUnknown Criticality = "unknown" // only produced for issues
)

// String implements fmt.Stringer.
func (c Criticality) String() string { return string(c) }

// Weight returns the error-score weight of the band (high=3, medium=2, low=1).
// Unknown criticality has no weight.
func (c Criticality) Weight() int {
	switch c {
	case CriticalityHigh:
		return 3
	case CriticalityMedium:
		return 2
	case CriticalityLow:
		return 1
	default:
		return 0
	}
}

// IsPriority reports whether the band takes part in priority counting.
func (c Criticality) IsPriority() bool {
	return c.Weight() > 0
}
