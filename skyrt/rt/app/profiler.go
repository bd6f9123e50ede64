package app

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/gekko3d/clouds"
)

// Profiler accumulates CPU time per named scope across frames and reports
// averages at a fixed interval.
type Profiler struct {
	Interval time.Duration

	totals  map[string]time.Duration
	starts  map[string]time.Time
	counts  map[string]int
	order   []string
	frames  int
	lastOut time.Time
	now     func() time.Time
}

func NewProfiler(interval time.Duration) *Profiler {
	return &Profiler{
		Interval: interval,
		totals:   make(map[string]time.Duration),
		starts:   make(map[string]time.Time),
		counts:   make(map[string]int),
		now:      time.Now,
	}
}

func (p *Profiler) BeginScope(name string) {
	if _, seen := p.totals[name]; !seen {
		p.order = append(p.order, name)
		p.totals[name] = 0
	}
	p.starts[name] = p.now()
}

// EndScope adds the time since the matching BeginScope. Unmatched calls are ignored.
func (p *Profiler) EndScope(name string) {
	start, ok := p.starts[name]
	if !ok {
		return
	}
	delete(p.starts, name)
	p.totals[name] += p.now().Sub(start)
}

func (p *Profiler) SetCount(name string, count int) {
	p.counts[name] = count
}

// EndFrame marks a frame boundary. When Interval has elapsed since the last
// report it logs the stats at debug level, clears the totals and returns true.
func (p *Profiler) EndFrame(logger clouds.Logger) bool {
	p.frames++
	now := p.now()
	if p.lastOut.IsZero() {
		p.reset(now)
		return false
	}
	elapsed := now.Sub(p.lastOut)
	if elapsed < p.Interval {
		return false
	}
	logger = clouds.OrNop(logger)
	if logger.DebugEnabled() {
		logger.Debugf("%.1f fps\n%s", float64(p.frames)/elapsed.Seconds(), p.StatsString())
	}
	p.reset(now)
	return true
}

func (p *Profiler) reset(now time.Time) {
	for k := range p.totals {
		p.totals[k] = 0
	}
	p.frames = 0
	p.lastOut = now
}

// Average is the mean per-frame time of a scope since the last report.
func (p *Profiler) Average(name string) time.Duration {
	if p.frames == 0 {
		return p.totals[name]
	}
	return p.totals[name] / time.Duration(p.frames)
}

func (p *Profiler) StatsString() string {
	var sb strings.Builder

	sb.WriteString("Timings (CPU, avg/frame):\n")
	for _, name := range p.order {
		ms := float64(p.Average(name).Microseconds()) / 1000.0
		fmt.Fprintf(&sb, "  %-15s: %.2f ms\n", name, ms)
	}

	if len(p.counts) == 0 {
		return sb.String()
	}
	sb.WriteString("Stats:\n")
	keys := make([]string, 0, len(p.counts))
	for k := range p.counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&sb, "  %-15s: %d\n", k, p.counts[k])
	}
	return sb.String()
}
