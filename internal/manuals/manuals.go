// Package manuals maintains a searchable library of aviation reference
// manuals. Manuals are ingested from markdown, chunked along heading
// boundaries, and retrieved by embedding similarity.
package manuals

import (
	"fmt"
	"strings"
)

// Manual identifies one reference manual in the fixed library set.
type Manual string

const (
	ManualFARAIM Manual = "far_aim" // Federal Aviation Regulations / Aeronautical Information Manual
	ManualPHAK   Manual = "phak"    // Pilot's Handbook of Aeronautical Knowledge
	ManualAFH    Manual = "afh"     // Airplane Flying Handbook
	ManualPOH    Manual = "poh"     // Pilot's Operating Handbook
)

// Manuals returns the full library set in stable order.
func Manuals() []Manual {
	return []Manual{ManualFARAIM, ManualPHAK, ManualAFH, ManualPOH}
}

// DisplayName returns the human-readable title of the manual.
func (m Manual) DisplayName() string {
	switch m {
	case ManualFARAIM:
		return "FAR/AIM"
	case ManualPHAK:
		return "Pilot's Handbook of Aeronautical Knowledge"
	case ManualAFH:
		return "Airplane Flying Handbook"
	case ManualPOH:
		return "Pilot's Operating Handbook"
	default:
		return string(m)
	}
}

// ParseManual validates a manual identifier.
func ParseManual(id string) (Manual, error) {
	m := Manual(strings.ToLower(strings.TrimSpace(id)))
	for _, known := range Manuals() {
		if m == known {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown manual %q (valid: far_aim, phak, afh, poh)", id)
}

// Chunk is one passage of a manual, bounded by heading structure.
type Chunk struct {
	ID        string
	Manual    Manual
	Section   string
	Ordinal   int
	Content   string
	Embedding []float32
}

// Excerpt is a ranked search result.
type Excerpt struct {
	Manual  Manual  `json:"manual"`
	Section string  `json:"section"`
	Content string  `json:"content"`
	Score   float32 `json:"score"`
}
