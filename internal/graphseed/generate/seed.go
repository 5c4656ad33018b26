package generate

import (
	"encoding/binary"

	"github.com/spaolacci/murmur3"
)

// TaskSeed derives the random seed of one generation task from the run seed, so a run is reproducible no matter
// in which order its tasks complete.
func TaskSeed(base int64, phase string, index int) int64 {
	buf := make([]byte, 16, 16+len(phase))
	binary.LittleEndian.PutUint64(buf[:8], uint64(base))
	binary.LittleEndian.PutUint64(buf[8:], uint64(index))
	return int64(murmur3.Sum64(append(buf, phase...)))
}
