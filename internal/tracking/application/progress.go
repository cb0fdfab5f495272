package application

import (
	"log"
	"time"
)

// progressMeter logs run progress on whole-percent increments,
// including throughput in scenario-steps per second.
type progressMeter struct {
	runID        string
	totalSteps   int
	combinations int
	clock        Clock
	logger       *log.Logger

	lastPercent int
	lastSteps   int
	markedAt    time.Time
}

func newProgressMeter(runID string, totalSteps, combinations int, clock Clock, logger *log.Logger) *progressMeter {
	return &progressMeter{
		runID:        runID,
		totalSteps:   totalSteps,
		combinations: combinations,
		clock:        clock,
		logger:       logger,
		markedAt:     clock.Now(),
	}
}

// Observe records that steps timesteps have been processed so far.
func (p *progressMeter) Observe(steps int) {
	if p.totalSteps <= 0 {
		return
	}
	percent := steps * 100 / p.totalSteps
	if percent > 100 {
		percent = 100
	}
	if percent <= p.lastPercent {
		return
	}
	p.lastPercent = percent

	now := p.clock.Now()
	elapsed := now.Sub(p.markedAt)
	if elapsed > 0 {
		speed := float64((steps-p.lastSteps)*p.combinations) / elapsed.Seconds()
		p.logger.Printf("run %s: %d%% complete, %.0f scenario-steps/s", p.runID, percent, speed)
	} else {
		p.logger.Printf("run %s: %d%% complete", p.runID, percent)
	}
	p.lastSteps = steps
	p.markedAt = now
}
