package seeder

import (
	"fmt"
	"time"

	"github.com/socialseed/graphseed/internal/common/util"
	"github.com/socialseed/graphseed/internal/graphseed/generate"
	"github.com/socialseed/graphseed/internal/graphseed/load"
)

type PhaseReport struct {
	Name       string
	Generation *generate.Report
	Load       *load.Result
	// Rows stored for the phase's label or edge type once it has loaded.
	Rows int64
}

type Report struct {
	Seed     int64
	Phases   []PhaseReport
	Duration time.Duration
}

// String renders the report as an aligned table, one line per phase.
func (r *Report) String() string {
	w := util.NewTabbedStringBuilder(1, 1, 2, ' ', 0)
	w.Row("PHASE", "RANGES", "GENERATED", "FAILED", "LOADED", "RETRIES", "DEAD", "ROWS", "DURATION")
	for _, p := range r.Phases {
		ranges, generated, failed := "-", "-", "-"
		loaded, retries, dead := "-", "-", "-"
		duration := time.Duration(0)
		if g := p.Generation; g != nil {
			ranges, generated, failed = fmt.Sprint(g.Ranges), fmt.Sprint(g.Generated), fmt.Sprint(len(g.Failures))
			duration += g.Duration
		}
		if l := p.Load; l != nil {
			loaded = fmt.Sprintf("%d/%d", l.Loaded, l.Total)
			retries, dead = fmt.Sprint(l.Retries), fmt.Sprint(len(l.DeadLettered))
			duration += l.Duration
		}
		w.Row(p.Name, ranges, generated, failed, loaded, retries, dead, p.Rows, duration.Round(time.Millisecond))
	}
	w.Writef("\nseed %d, total %s\n", r.Seed, r.Duration.Round(time.Millisecond))
	return w.String()
}
