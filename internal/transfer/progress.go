package transfer

import (
	"sync"
	"time"
)

// Snapshot is a point-in-time view of transfer progress.
type Snapshot struct {
	Phase          State
	ProcessedBytes int64
	TotalBytes     int64
	Percent        float64
	RateBps        float64
	ETA            time.Duration
}

// Progress counts processed bytes for the active phase and keeps a smoothed
// rate. Add is safe to call from concurrent chunk uploads.
type Progress struct {
	mu       sync.Mutex
	phase    State
	total    int64
	done     int64
	lastAt   time.Time
	lastDone int64
	rateBps  float64
	alpha    float64
	now      func() time.Time
	notify   func(Snapshot)
}

// NewProgress returns a Progress that reports every change to notify.
func NewProgress(notify func(Snapshot)) *Progress {
	return &Progress{alpha: 0.2, now: time.Now, notify: notify}
}

// Reset starts a new phase at zero processed bytes.
func (p *Progress) Reset(phase State, total int64) {
	p.mu.Lock()
	p.phase = phase
	p.total = total
	p.done = 0
	p.lastAt = p.now()
	p.lastDone = 0
	p.rateBps = 0
	snap := p.snapshotLocked()
	p.mu.Unlock()

	if p.notify != nil {
		p.notify(snap)
	}
}

// Add increments the processed byte count. Non-positive values are ignored
// so the counter never decreases within a phase.
func (p *Progress) Add(n int64) {
	if n <= 0 {
		return
	}
	p.mu.Lock()
	now := p.now()
	p.done += n
	if dt := now.Sub(p.lastAt).Seconds(); dt > 0 {
		inst := float64(p.done-p.lastDone) / dt
		if p.rateBps == 0 {
			p.rateBps = inst
		} else {
			p.rateBps = p.alpha*inst + (1-p.alpha)*p.rateBps
		}
		p.lastAt = now
		p.lastDone = p.done
	}
	snap := p.snapshotLocked()
	p.mu.Unlock()

	if p.notify != nil {
		p.notify(snap)
	}
}

// Finish moves the counter to phase with all bytes processed and reports the
// final snapshot.
func (p *Progress) Finish(phase State) {
	p.mu.Lock()
	p.phase = phase
	p.done = p.total
	p.rateBps = 0
	snap := p.snapshotLocked()
	p.mu.Unlock()

	if p.notify != nil {
		p.notify(snap)
	}
}

// Snapshot returns the current progress.
func (p *Progress) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked()
}

func (p *Progress) snapshotLocked() Snapshot {
	s := Snapshot{
		Phase:          p.phase,
		ProcessedBytes: p.done,
		TotalBytes:     p.total,
		RateBps:        p.rateBps,
	}
	if p.total > 0 {
		s.Percent = float64(p.done) / float64(p.total) * 100
	}
	if p.rateBps > 0 && p.total > p.done {
		s.ETA = time.Duration(float64(p.total-p.done) / p.rateBps * float64(time.Second))
	}
	return s
}
