// Package matcher classifies a vector against a centroid model and moves the
// matched centroid toward it.
package matcher

import (
	"fmt"

	"railog/internal/domain"
	"railog/internal/model"
	"railog/internal/vecmath"
)

// Match is the nearest centroid and its distance.
type Match struct {
	ID       int
	Distance float64
}

// Nearest scans every centroid and returns the closest one. Ties go to the lowest id.
func Nearest(m *model.Model, v domain.Vector) (Match, error) {
	centroids := m.Centroids()
	if len(centroids) == 0 {
		return Match{}, domain.ErrNoCentroids
	}
	best := Match{ID: -1}
	for _, c := range centroids {
		d, err := vecmath.Distance(c.Vector, v)
		if err != nil {
			return Match{}, err
		}
		// Centroids are id-ascending, so strict < keeps the lowest id on ties.
		if best.ID < 0 || d < best.Distance {
			best = Match{ID: c.ID, Distance: d}
		}
	}
	return best, nil
}

// ValidateRate rejects learning rates outside (0, 1].
func ValidateRate(rate float64) error {
	if !(rate > 0 && rate <= 1) {
		return fmt.Errorf("%w: learning rate must be in (0, 1], got %v", domain.ErrInvalidParameter, rate)
	}
	return nil
}

// ValidateThreshold rejects non-positive thresholds.
func ValidateThreshold(threshold float64) error {
	if !(threshold > 0) {
		return fmt.Errorf("%w: threshold must be > 0, got %v", domain.ErrInvalidParameter, threshold)
	}
	return nil
}

// Update applies the online update to centroid id:
// new = old*(1-rate) + v*rate, and increments its count.
func Update(m *model.Model, id int, v domain.Vector, rate float64) error {
	if err := ValidateRate(rate); err != nil {
		return err
	}
	c, ok := m.Centroid(id)
	if !ok {
		return fmt.Errorf("%w: no centroid with id %d", domain.ErrInvalidParameter, id)
	}
	next, err := vecmath.Lerp(c.Vector, v, rate)
	if err != nil {
		return err
	}
	return m.Replace(id, next, 1)
}
