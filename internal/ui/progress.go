package ui

import (
	"sync"
	"time"

	"github.com/Aman-CERP/ragindex/internal/index"
)

const (
	// rateInterval is the minimum spacing between throughput samples.
	rateInterval = 500 * time.Millisecond
	// rateWeight is the weight of a new sample in the running average.
	rateWeight = 0.2
	// etaWeight is the weight of a new estimate in the smoothed ETA.
	etaWeight = 0.3
	// historySize is the number of throughput samples kept for the chart.
	historySize = 60
)

// SpeedStats holds throughput in resources per second.
type SpeedStats struct {
	Current float64
	Avg     float64
	Peak    float64
}

// ProgressStats is a point-in-time view of a run for display.
type ProgressStats struct {
	Stage    Stage
	Current  int
	Total    int
	Progress float64
	ETA      time.Duration
	Indexed  int
	Skipped  int
	Failed   int
	Removed  int
	Segments int
	Speed    SpeedStats
}

// rateMeter turns processed counts into throughput samples.
type rateMeter struct {
	speed      SpeedStats
	samples    int
	lastCount  int
	lastSample time.Time
	history    *Sparkline
}

// observe samples throughput when rateInterval has passed since the last
// sample.
func (m *rateMeter) observe(count int, now time.Time) {
	elapsed := now.Sub(m.lastSample)
	if elapsed < rateInterval {
		return
	}
	if delta := count - m.lastCount; delta > 0 {
		v := float64(delta) / elapsed.Seconds()
		m.samples++
		if m.samples == 1 {
			m.speed.Avg = v
		} else {
			m.speed.Avg = rateWeight*v + (1-rateWeight)*m.speed.Avg
		}
		m.speed.Current = v
		m.speed.Peak = max(m.speed.Peak, v)
		m.history.Add(v)
	}
	m.lastCount = count
	m.lastSample = now
}

// restart begins a new stage. Peak, average and history survive unless
// full is set.
func (m *rateMeter) restart(now time.Time, full bool) {
	m.lastCount = 0
	m.lastSample = now
	m.speed.Current = 0
	if full {
		m.speed = SpeedStats{}
		m.samples = 0
		m.history.Reset()
	}
}

// ProgressTracker derives display figures from progress snapshots. It is
// safe for concurrent use.
type ProgressTracker struct {
	mu         sync.Mutex
	now        func() time.Time
	began      time.Time
	stage      Stage
	stageBegan time.Time
	last       index.IndexProgress
	rate       rateMeter
	eta        time.Duration
}

// NewProgressTracker returns a tracker on the wall clock.
func NewProgressTracker() *ProgressTracker {
	return newProgressTracker(time.Now)
}

func newProgressTracker(now func() time.Time) *ProgressTracker {
	t := now()
	return &ProgressTracker{
		now:        now,
		began:      t,
		stage:      StageScanning,
		stageBegan: t,
		rate:       rateMeter{lastSample: t, history: NewSparkline(historySize)},
	}
}

// Update records a snapshot. Entering a new stage restarts rate and ETA
// tracking; going back to scanning also clears the history.
func (p *ProgressTracker) Update(snap index.IndexProgress) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	if stage := StageOf(snap); stage != p.stage {
		p.stage = stage
		p.stageBegan = now
		p.eta = 0
		p.rate.restart(now, stage == StageScanning)
	}
	p.last = snap
	p.rate.observe(snap.ProcessedFiles, now)
}

// Progress returns the completed fraction in [0, 1].
func (p *ProgressTracker) Progress() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fraction()
}

func (p *ProgressTracker) fraction() float64 {
	if p.last.TotalFiles == 0 {
		return 0
	}
	return min(float64(p.last.ProcessedFiles)/float64(p.last.TotalFiles), 1)
}

// ETA returns the smoothed time remaining in the current stage.
func (p *ProgressTracker) ETA() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.estimate()
}

// estimate extrapolates the stage duration from the completed fraction
// and blends it with the previous estimate. Callers hold p.mu.
func (p *ProgressTracker) estimate() time.Duration {
	done := p.fraction()
	if done <= 0 || done >= 1 {
		return 0
	}
	spent := p.now().Sub(p.stageBegan)
	left := time.Duration(float64(spent)/done) - spent
	if left < 0 {
		return 0
	}
	if p.eta > 0 {
		left = time.Duration(etaWeight*float64(left) + (1-etaWeight)*float64(p.eta))
	}
	p.eta = left
	return left
}

// Elapsed returns the time since the tracker was created.
func (p *ProgressTracker) Elapsed() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.now().Sub(p.began)
}

// Stats returns a snapshot of every display figure.
func (p *ProgressTracker) Stats() ProgressStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return ProgressStats{
		Stage:    p.stage,
		Current:  p.last.ProcessedFiles,
		Total:    p.last.TotalFiles,
		Progress: p.fraction(),
		ETA:      p.estimate(),
		Indexed:  p.last.IndexedFiles,
		Skipped:  p.last.SkippedFiles,
		Failed:   p.last.FailedFiles,
		Removed:  p.last.RemovedFiles,
		Segments: p.last.Segments,
		Speed:    p.rate.speed,
	}
}

// SpeedStats returns the current throughput figures.
func (p *ProgressTracker) SpeedStats() SpeedStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rate.speed
}

// RenderSparkline draws the throughput history width glyphs wide.
func (p *ProgressTracker) RenderSparkline(width int) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rate.history.Render(width)
}
