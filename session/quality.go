package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// QualityLevel is a coarse assessment of call quality.
type QualityLevel int

const (
	// QualityUnknown means no connection statistics have arrived yet.
	QualityUnknown QualityLevel = iota
	// QualityExcellent indicates optimal call quality
	QualityExcellent
	// QualityGood indicates good call quality with minor issues
	QualityGood
	// QualityFair indicates acceptable call quality with noticeable issues
	QualityFair
	// QualityPoor indicates poor call quality with significant problems
	QualityPoor
	// QualityUnacceptable indicates unacceptable call quality
	QualityUnacceptable
)

// String returns the string representation of QualityLevel.
func (q QualityLevel) String() string {
	switch q {
	case QualityUnknown:
		return "Unknown"
	case QualityExcellent:
		return "Excellent"
	case QualityGood:
		return "Good"
	case QualityFair:
		return "Fair"
	case QualityPoor:
		return "Poor"
	case QualityUnacceptable:
		return "Unacceptable"
	default:
		return fmt.Sprintf("Unknown(%d)", int(q))
	}
}

// QualityThresholds defines thresholds for quality level assessment.
//
// Packet loss is the primary indicator; last-mile delay refines the level
// when loss is low.
type QualityThresholds struct {
	// Packet loss thresholds (percentage)
	ExcellentPacketLoss float64 // < 1.0%
	GoodPacketLoss      float64 // < 3.0%
	FairPacketLoss      float64 // < 8.0%
	PoorPacketLoss      float64 // < 15.0%

	// Last-mile delay thresholds
	ExcellentDelay time.Duration // < 50ms
	GoodDelay      time.Duration // < 100ms
	FairDelay      time.Duration // < 200ms
	PoorDelay      time.Duration // < 400ms
}

// DefaultQualityThresholds returns sensible default quality thresholds.
func DefaultQualityThresholds() *QualityThresholds {
	return &QualityThresholds{
		ExcellentPacketLoss: 1.0,
		GoodPacketLoss:      3.0,
		FairPacketLoss:      8.0,
		PoorPacketLoss:      15.0,
		ExcellentDelay:      50 * time.Millisecond,
		GoodDelay:           100 * time.Millisecond,
		FairDelay:           200 * time.Millisecond,
		PoorDelay:           400 * time.Millisecond,
	}
}

// QualityMonitor tracks the quality level of one call from its connection
// statistics.
type QualityMonitor struct {
	mu         sync.RWMutex
	thresholds *QualityThresholds
	level      QualityLevel
}

// NewQualityMonitor creates a monitor. A nil thresholds value selects
// DefaultQualityThresholds.
func NewQualityMonitor(thresholds *QualityThresholds) *QualityMonitor {
	if thresholds == nil {
		thresholds = DefaultQualityThresholds()
	}
	return &QualityMonitor{thresholds: thresholds}
}

// Level returns the latest assessed level.
func (qm *QualityMonitor) Level() QualityLevel {
	qm.mu.RLock()
	defer qm.mu.RUnlock()
	return qm.level
}

// Reset forgets the latest level.
func (qm *QualityMonitor) Reset() {
	qm.mu.Lock()
	defer qm.mu.Unlock()
	qm.level = QualityUnknown
}

// Observe assesses a connection sample and reports whether the level
// changed.
func (qm *QualityMonitor) Observe(stats NetworkStats) (QualityLevel, bool) {
	level := qm.Assess(stats)

	qm.mu.Lock()
	changed := level != qm.level
	prev := qm.level
	qm.level = level
	qm.mu.Unlock()

	if changed {
		logrus.WithFields(logrus.Fields{
			"function":    "QualityMonitor.Observe",
			"previous":    prev.String(),
			"quality":     level.String(),
			"packet_loss": packetLoss(stats),
			"delay":       stats.LastmileDelay,
		}).Debug("Call quality changed")
	}
	return level, changed
}

// Assess categorizes a connection sample without recording it.
func (qm *QualityMonitor) Assess(stats NetworkStats) QualityLevel {
	qm.mu.RLock()
	t := qm.thresholds
	qm.mu.RUnlock()

	if level := assessPacketLoss(packetLoss(stats), stats.LastmileDelay, t); level != QualityExcellent {
		return level
	}
	return assessDelay(stats.LastmileDelay, t)
}

// packetLoss is the worse of the send and receive loss rates.
func packetLoss(stats NetworkStats) float64 {
	if stats.RxPacketLossRate > stats.TxPacketLossRate {
		return stats.RxPacketLossRate
	}
	return stats.TxPacketLossRate
}

func assessPacketLoss(loss float64, delay time.Duration, t *QualityThresholds) QualityLevel {
	switch {
	case loss >= t.PoorPacketLoss:
		return QualityUnacceptable
	case loss >= t.FairPacketLoss:
		return QualityPoor
	case loss >= t.GoodPacketLoss:
		return QualityFair
	case loss >= t.ExcellentPacketLoss:
		if delay >= t.GoodDelay {
			return QualityFair
		}
		return QualityGood
	default:
		return QualityExcellent
	}
}

// assessDelay refines the level of a sample with excellent packet loss.
func assessDelay(delay time.Duration, t *QualityThresholds) QualityLevel {
	switch {
	case delay >= t.PoorDelay:
		return QualityPoor
	case delay >= t.FairDelay:
		return QualityFair
	case delay >= t.ExcellentDelay:
		return QualityGood
	default:
		return QualityExcellent
	}
}
