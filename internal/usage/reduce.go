package usage

import (
	"errors"
	"math"
)

var ErrNoSnapshots = errors.New("usage: no snapshots to reduce")

// Stats summarises one Snapshot per rank.
type Stats struct {
	Ranks int
	Min   Snapshot
	Max   Snapshot
	Mean  Snapshot
	// Std is the population standard deviation.
	Std Snapshot
}

func Reduce(snaps []Snapshot) (Stats, error) {
	if len(snaps) == 0 {
		return Stats{}, ErrNoSnapshots
	}
	st := Stats{Ranks: len(snaps), Min: snaps[0], Max: snaps[0]}
	n := float64(len(snaps))

	for _, s := range snaps {
		for j, v := range s {
			st.Min[j] = math.Min(st.Min[j], v)
			st.Max[j] = math.Max(st.Max[j], v)
			st.Mean[j] += v
		}
	}
	for j := range st.Mean {
		st.Mean[j] /= n
	}
	for _, s := range snaps {
		for j, v := range s {
			d := v - st.Mean[j]
			st.Std[j] += d * d / n
		}
	}
	for j := range st.Std {
		st.Std[j] = math.Sqrt(st.Std[j])
	}
	return st, nil
}
