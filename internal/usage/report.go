package usage

import (
	"context"
	"fmt"
	"io"
)

// Report level bits.
const (
	LevelRanks = 0x1
	LevelTable = 0x2
)

// Gatherer collects one snapshot from every rank. Only the root rank gets
// the full set back; other ranks get root == false and nil.
type Gatherer interface {
	Gather(ctx context.Context, local Snapshot) (all []Snapshot, root bool, err error)
}

// Local is a single-rank Gatherer.
type Local struct{}

func (Local) Gather(_ context.Context, local Snapshot) ([]Snapshot, bool, error) {
	return []Snapshot{local}, true, nil
}

// Report collects this rank's snapshot, gathers it with g, and on the root
// rank prints per-rank lines (LevelRanks) and the reduced table
// (LevelTable). A level without either bit does nothing, not even the
// gather, so every rank must pass the same level.
func Report(ctx context.Context, src Source, g Gatherer, w io.Writer, level int, where string) error {
	if level&(LevelRanks|LevelTable) == 0 {
		return nil
	}
	s, err := Collect(src)
	if err != nil {
		return err
	}
	all, root, err := g.Gather(ctx, s)
	if err != nil {
		return fmt.Errorf("gather usage: %w", err)
	}
	if !root {
		return nil
	}

	if level&LevelRanks != 0 {
		if err := WriteRanks(w, all, where); err != nil {
			return err
		}
	}
	if level&LevelTable != 0 {
		st, err := Reduce(all)
		if err != nil {
			return err
		}
		return WriteTable(w, st, where)
	}
	return nil
}
