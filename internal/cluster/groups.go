package cluster

import (
	"railog/internal/domain"
	"railog/internal/vecmath"
)

// Group is one discovered cluster reduced to its mean.
type Group struct {
	Label   domain.ClusterLabel
	Members []int
	Mean    domain.Vector
}

// Groups computes the mean of each cluster in label order. Noise points are dropped.
func Groups(vectors []domain.Vector, r Result) ([]Group, error) {
	members := r.Members()
	groups := make([]Group, 0, len(members))
	for label, idxs := range members {
		pts := make([]domain.Vector, len(idxs))
		for k, i := range idxs {
			pts[k] = vectors[i]
		}
		mean, err := vecmath.Mean(pts)
		if err != nil {
			return nil, err
		}
		groups = append(groups, Group{Label: domain.ClusterLabel(label), Members: idxs, Mean: mean})
	}
	return groups, nil
}
