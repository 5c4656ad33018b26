// Package partition splits an entity population into contiguous, 1-indexed work ranges.
package partition

import (
	"fmt"
	"math"
	"runtime"

	"github.com/socialseed/graphseed/internal/common/seederrors"
)

// MaxBatchSize is the exclusive upper bound on the size of a single range.
const MaxBatchSize = 30000

// Range is an inclusive, 1-indexed span of identifiers.
type Range struct {
	Start int64
	End   int64
}

func (r Range) Len() int64 {
	return r.End - r.Start + 1
}

func (r Range) String() string {
	return fmt.Sprintf("[%d,%d]", r.Start, r.End)
}

// Workers resolves a configured worker count, zero or less meaning one per cpu.
func Workers(configured int) int {
	if configured > 0 {
		return configured
	}
	return runtime.NumCPU()
}

// CalculateBatchSize divides total by the worker count, then keeps dividing while the result is at or above
// MaxBatchSize. The divisor is never less than two.
func CalculateBatchSize(total int64, workers int) int64 {
	divisor := float64(Workers(workers))
	if divisor < 2 {
		divisor = 2
	}
	quotient := float64(total) / divisor
	if quotient < divisor {
		return 1
	}
	for quotient >= MaxBatchSize {
		quotient = quotient / divisor
	}
	batchSize := int64(math.Floor(quotient))
	if batchSize < 1 {
		return 1
	}
	return batchSize
}

// CalculateRanges partitions [1, total] using a batch size derived from the worker count.
func CalculateRanges(total int64, workers int) ([]Range, error) {
	if total <= 0 {
		return nil, &seederrors.ErrInvalidArgument{Name: "total", Value: total, Message: "must be positive"}
	}
	return RangesForBatchSize(total, CalculateBatchSize(total, workers))
}

// RangesForBatchSize partitions [1, total] into ranges of batchSize. A start landing exactly on total yields
// [total, total] and an end at or past total is clamped to it.
func RangesForBatchSize(total, batchSize int64) ([]Range, error) {
	if total <= 0 {
		return nil, &seederrors.ErrInvalidArgument{Name: "total", Value: total, Message: "must be positive"}
	}
	if batchSize <= 0 {
		return nil, &seederrors.ErrInvalidArgument{Name: "batchSize", Value: batchSize, Message: "must be positive"}
	}
	ranges := make([]Range, 0, total/batchSize+1)
	start := int64(1)
	for start <= total {
		if start == total {
			ranges = append(ranges, Range{Start: total, End: total})
			break
		}
		end := start + batchSize - 1
		if end >= total {
			ranges = append(ranges, Range{Start: start, End: total})
			break
		}
		ranges = append(ranges, Range{Start: start, End: end})
		start = end + 1
	}
	return ranges, nil
}
