package node

// CellDistributor assigns cells to ranks. MPI itself is external; the
// partitioning mirrors what each rank would own so plans can be inspected
// and exported without a parallel runtime.
type CellDistributor struct {
	ranks [][]uint64
}

// SplitRoundRobin deals gids across n buckets in order, the same split used
// for subtargets and model building steps.
func SplitRoundRobin(gids []uint64, n int) [][]uint64 {
	if n < 1 {
		n = 1
	}
	out := make([][]uint64, n)
	for i, gid := range gids {
		out[i%n] = append(out[i%n], gid)
	}
	return out
}

// NewCellDistributor partitions gids across ranks round-robin.
func NewCellDistributor(gids []uint64, ranks int) *CellDistributor {
	return &CellDistributor{ranks: SplitRoundRobin(gids, ranks)}
}

// RankCount is the number of ranks in the partition.
func (d *CellDistributor) RankCount() int {
	return len(d.ranks)
}

// RankGIDs returns the cells owned by one rank.
func (d *CellDistributor) RankGIDs(rank int) []uint64 {
	if rank < 0 || rank >= len(d.ranks) {
		return nil
	}
	return d.ranks[rank]
}

// AllGIDs returns every distributed gid, rank by rank.
func (d *CellDistributor) AllGIDs() []uint64 {
	var out []uint64
	for _, gids := range d.ranks {
		out = append(out, gids...)
	}
	return out
}

// TotalCells is the number of distributed cells.
func (d *CellDistributor) TotalCells() int {
	n := 0
	for _, gids := range d.ranks {
		n += len(gids)
	}
	return n
}
