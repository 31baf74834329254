// Package upload implements the local-file upload pipeline: planning
// size/count-bounded batches, pushing file bytes to signed URLs with the
// two-phase resumable protocol, and orchestrating batches across a bounded
// worker pool with per-file success/failure accounting.
package upload

import (
	"os"
)

// Batch is an ordered group of local file paths whose cumulative size and
// count stay under the planner's ceilings. A single file larger than the
// size ceiling still becomes a batch of its own; files are never split.
type Batch struct {
	Paths []string
	Size  int64
}

// Plan is the result of partitioning an input file list: the batches to
// upload plus the files that could not be stat-ed and are failed up front.
type Plan struct {
	Batches  []Batch
	Rejected []Failure
}

// PlanBatches greedily partitions paths in input order. A file is appended
// to the running batch while the cumulative size stays within maxBytes and
// the count stays below maxCount; otherwise the batch is closed and a new
// one started. The partition is deterministic for a given input.
func PlanBatches(paths []string, maxBytes int64, maxCount int) Plan {
	var plan Plan

	var current Batch
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			plan.Rejected = append(plan.Rejected, Failure{Path: path, Reason: err.Error()})
			continue
		}
		size := info.Size()

		if len(current.Paths) > 0 && (current.Size+size > maxBytes || len(current.Paths) >= maxCount) {
			plan.Batches = append(plan.Batches, current)
			current = Batch{}
		}
		current.Paths = append(current.Paths, path)
		current.Size += size
	}
	if len(current.Paths) > 0 {
		plan.Batches = append(plan.Batches, current)
	}

	return plan
}
