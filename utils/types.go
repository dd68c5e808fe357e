package utils

// RawMatch is a single regex hit inside scanned content, before any
// false-positive filtering has been applied.
type RawMatch struct {
	// Match location information
	StartIndex int
	EndIndex   int
	Value      string

	// LineNumber is 1-based, 0 when the source has no line structure
	LineNumber int

	// Context holds the matched line plus the surrounding window
	Context string

	// Classification information
	RuleID string
	Source string
}

// Len returns the byte length of the matched value.
func (m RawMatch) Len() int {
	return m.EndIndex - m.StartIndex
}
