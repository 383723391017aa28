package logger

import (
	"fmt"
	"sync"
	"time"
)

// ProgressTracker counts finished units of a batch operation (files, pages)
// and periodically logs how far along the batch is. It is safe for use from
// several worker goroutines.
type ProgressTracker struct {
	logger      Logger
	operation   string
	total       int64
	succeeded   int64
	failed      int64
	startTime   time.Time
	lastLogTime time.Time
	logInterval time.Duration
	mutex       sync.RWMutex
}

// ProgressConfig configures progress tracking behavior
type ProgressConfig struct {
	Operation   string        `json:"operation"`
	Total       int64         `json:"total"`
	LogInterval time.Duration `json:"log_interval"`
	Logger      Logger        `json:"-"`
}

// NewProgressTracker creates a new progress tracker
func NewProgressTracker(config ProgressConfig) *ProgressTracker {
	if config.Logger == nil {
		config.Logger = GetGlobalLogger()
	}
	if config.LogInterval <= 0 {
		config.LogInterval = 2 * time.Second
	}

	now := time.Now()
	tracker := &ProgressTracker{
		logger:      config.Logger.WithComponent("progress").WithField("operation", config.Operation),
		operation:   config.Operation,
		total:       config.Total,
		startTime:   now,
		lastLogTime: now,
		logInterval: config.LogInterval,
	}

	tracker.logger.WithField("total", config.Total).Info("Starting operation")
	return tracker
}

// Succeed records one successfully finished unit.
func (p *ProgressTracker) Succeed() {
	p.record(1, 0)
}

// Fail records one unit that finished with an error.
func (p *ProgressTracker) Fail() {
	p.record(0, 1)
}

func (p *ProgressTracker) record(ok, bad int64) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.succeeded += ok
	p.failed += bad

	now := time.Now()
	if now.Sub(p.lastLogTime) >= p.logInterval || p.succeeded+p.failed == p.total {
		p.logger.WithFields(p.fieldsLocked(now)).Info("Progress update")
		p.lastLogTime = now
	}
}

// Complete logs the final counters of the operation.
func (p *ProgressTracker) Complete() {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	p.logger.WithFields(p.fieldsLocked(time.Now())).Info("Operation completed")
}

// CompleteWithError logs the final counters together with the terminal error.
func (p *ProgressTracker) CompleteWithError(err error) {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	p.logger.WithError(err).WithFields(p.fieldsLocked(time.Now())).Error("Operation completed with error")
}

// GetStats returns current progress statistics
func (p *ProgressTracker) GetStats() ProgressStats {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	done := p.succeeded + p.failed
	stats := ProgressStats{
		Operation: p.operation,
		Total:     p.total,
		Succeeded: p.succeeded,
		Failed:    p.failed,
		Duration:  time.Since(p.startTime),
	}
	if p.total > 0 {
		stats.Percentage = float64(done) / float64(p.total) * 100
	}
	return stats
}

func (p *ProgressTracker) fieldsLocked(now time.Time) Fields {
	done := p.succeeded + p.failed
	fields := Fields{
		"succeeded": p.succeeded,
		"failed":    p.failed,
		"elapsed":   now.Sub(p.startTime).Round(time.Millisecond).String(),
	}
	if p.total > 0 {
		fields["total"] = p.total
		fields["percentage"] = fmt.Sprintf("%.1f%%", float64(done)/float64(p.total)*100)
	}
	return fields
}

// ProgressStats contains progress statistics
type ProgressStats struct {
	Operation  string        `json:"operation"`
	Total      int64         `json:"total"`
	Succeeded  int64         `json:"succeeded"`
	Failed     int64         `json:"failed"`
	Percentage float64       `json:"percentage"`
	Duration   time.Duration `json:"duration"`
}

// Done is the number of finished units regardless of outcome.
func (ps ProgressStats) Done() int64 {
	return ps.Succeeded + ps.Failed
}

func (ps ProgressStats) String() string {
	if ps.Total > 0 {
		return fmt.Sprintf("%s: %d/%d done (%d failed, %.1f%%) in %v",
			ps.Operation, ps.Done(), ps.Total, ps.Failed, ps.Percentage, ps.Duration)
	}
	return fmt.Sprintf("%s: %d done (%d failed) in %v",
		ps.Operation, ps.Done(), ps.Failed, ps.Duration)
}

// OperationLogger logs the steps of one named operation with shared fields
// and the elapsed time at completion.
type OperationLogger struct {
	logger    Logger
	operation string
	startTime time.Time
}

// NewOperationLogger creates a new operation logger
func NewOperationLogger(operation string, logger Logger) *OperationLogger {
	if logger == nil {
		logger = GetGlobalLogger()
	}

	ol := &OperationLogger{
		logger:    logger.WithField("operation", operation),
		operation: operation,
		startTime: time.Now(),
	}
	ol.logger.Debug("Starting operation")
	return ol
}

// WithFields adds fields to every subsequent entry of the operation
func (ol *OperationLogger) WithFields(fields Fields) *OperationLogger {
	ol.logger = ol.logger.WithFields(fields)
	return ol
}

// Step logs a step within the operation
func (ol *OperationLogger) Step(step string) {
	ol.logger.WithField("step", step).Debug("Operation step")
}

// Warning logs a warning during the operation
func (ol *OperationLogger) Warning(message string) {
	ol.logger.Warn(message)
}

// Success completes the operation successfully
func (ol *OperationLogger) Success(message string) {
	ol.logger.WithFields(Fields{
		"duration": time.Since(ol.startTime).String(),
		"status":   "success",
	}).Info(message)
}

// Error completes the operation with an error
func (ol *OperationLogger) Error(err error, message string) {
	ol.logger.WithError(err).WithFields(Fields{
		"duration": time.Since(ol.startTime).String(),
		"status":   "error",
	}).Error(message)
}

// TimedOperation executes fn and logs its outcome and duration
func TimedOperation(operation string, logger Logger, fn func() error) error {
	ol := NewOperationLogger(operation, logger)

	err := fn()
	if err != nil {
		ol.Error(err, "Operation failed")
	} else {
		ol.Success("Operation completed")
	}
	return err
}
