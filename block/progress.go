package block

import (
	"errors"
	"fmt"

	"github.com/mezonai/dpos/logx"
)

var ErrProgressOverLimit = errors.New("Cannot apply transaction over the limit")

// ProgressLogger reports long replays at the first item, every step and the last one.
type ProgressLogger struct {
	target  int
	step    int
	applied int
	message string
}

func NewProgressLogger(target, times int, message string) *ProgressLogger {
	step := 1
	if times > 0 && target/times > 0 {
		step = target / times
	}
	return &ProgressLogger{target: target, step: step, message: message}
}

func (p *ProgressLogger) Reset() { p.applied = 0 }

func (p *ProgressLogger) Applied() int { return p.applied }

// ApplyNext counts one more applied item and logs when it falls on a reporting point.
func (p *ProgressLogger) ApplyNext() error {
	if p.applied >= p.target {
		return ErrProgressOverLimit
	}
	p.applied++
	if p.applied == 1 || p.applied == p.target || p.applied%p.step == 1 {
		logx.Info("CHAIN", p.message, " ", p.progress())
	}
	return nil
}

func (p *ProgressLogger) progress() string {
	pct := float64(p.applied) / float64(p.target) * 100
	return fmt.Sprintf("%.1f%%: applied %d of %d items", pct, p.applied, p.target)
}
