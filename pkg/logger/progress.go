package logger

import (
	"fmt"
	"sync"
	"time"
)

// ProgressTracker logs periodic progress for a long-running batch stage.
// It is safe for concurrent use by worker goroutines.
type ProgressTracker struct {
	logger      Logger
	stage       string
	total       int64
	current     int64
	startTime   time.Time
	lastLogTime time.Time
	logInterval time.Duration
	now         func() time.Time
	mutex       sync.Mutex
}

// ProgressConfig configures progress tracking behavior
type ProgressConfig struct {
	Stage       string
	Total       int64
	LogInterval time.Duration
	Logger      Logger
}

// ProgressStats is a point-in-time view of a tracker
type ProgressStats struct {
	Stage      string        `json:"stage"`
	Total      int64         `json:"total"`
	Current    int64         `json:"current"`
	Percentage float64       `json:"percentage"`
	Duration   time.Duration `json:"duration"`
	Rate       float64       `json:"rate"`
}

// NewProgressTracker creates a new progress tracker
func NewProgressTracker(config ProgressConfig) *ProgressTracker {
	if config.Logger == nil {
		config.Logger = GetGlobalLogger()
	}
	if config.LogInterval == 0 {
		config.LogInterval = 5 * time.Second
	}

	start := time.Now()
	tracker := &ProgressTracker{
		logger:      config.Logger.WithComponent("progress"),
		stage:       config.Stage,
		total:       config.Total,
		startTime:   start,
		lastLogTime: start,
		logInterval: config.LogInterval,
		now:         time.Now,
	}

	tracker.logger.WithFields(Fields{
		"stage": config.Stage,
		"total": config.Total,
	}).Debug("Starting stage")

	return tracker
}

// Increment advances the counter by one
func (p *ProgressTracker) Increment() {
	p.Add(1)
}

// Add advances the counter by delta and logs if the interval has elapsed
func (p *ProgressTracker) Add(delta int64) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.current += delta
	now := p.now()
	if now.Sub(p.lastLogTime) >= p.logInterval {
		p.logger.WithFields(p.fields(now)).Info("Progress update")
		p.lastLogTime = now
	}
}

// Complete logs final statistics for the stage
func (p *ProgressTracker) Complete() {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.logger.WithFields(p.fields(p.now())).Info("Stage completed")
}

// CompleteWithError logs final statistics together with the failure
func (p *ProgressTracker) CompleteWithError(err error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.logger.WithError(err).WithFields(p.fields(p.now())).Error("Stage completed with error")
}

// GetStats returns current progress statistics
func (p *ProgressTracker) GetStats() ProgressStats {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	duration := p.now().Sub(p.startTime)
	stats := ProgressStats{
		Stage:    p.stage,
		Total:    p.total,
		Current:  p.current,
		Duration: duration,
	}
	if duration > 0 {
		stats.Rate = float64(p.current) / duration.Seconds()
	}
	if p.total > 0 {
		stats.Percentage = float64(p.current) / float64(p.total) * 100
	}
	return stats
}

func (p *ProgressTracker) fields(now time.Time) Fields {
	duration := now.Sub(p.startTime)
	var rate float64
	if duration > 0 {
		rate = float64(p.current) / duration.Seconds()
	}

	fields := Fields{
		"stage":     p.stage,
		"processed": p.current,
		"duration":  duration.String(),
		"rate":      fmt.Sprintf("%.2f/sec", rate),
	}
	if p.total > 0 {
		fields["total"] = p.total
		fields["percentage"] = fmt.Sprintf("%.1f%%", float64(p.current)/float64(p.total)*100)
	}
	return fields
}
