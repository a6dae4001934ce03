package diagnostics

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/RackSec/srslog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// AccessResult is one observation of a Token Memory access: the IR it
// targeted, the model/encoding it was materializing for (empty for a
// plain IR lookup), the reason recorded, and when it happened.
type AccessResult struct {
	Hash      string
	ModelID   string
	Encoding  string
	Reason    MissReason
	Timestamp time.Time
}

// Sink receives every Token Memory access so callers can observe cache
// behavior in tests or production telemetry (spec §9: "must allow the
// caller to inject a custom sink").
type Sink interface {
	Record(AccessResult)
}

// SlogSink is the default process-wide sink: a JSON handler over stdout,
// one structured log line per access. Library code never calls
// slog.SetDefault; this sink owns its own *slog.Logger instance instead.
type SlogSink struct {
	logger *slog.Logger
}

// NewSlogSink builds the default sink. A nil logger falls back to a JSON
// handler over os.Stdout, matching the teacher's AuditLogger default.
func NewSlogSink(logger *slog.Logger) *SlogSink {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return &SlogSink{logger: logger}
}

// Record implements Sink.
func (s *SlogSink) Record(r AccessResult) {
	level := slog.LevelInfo
	if !r.Reason.IsHit() {
		level = slog.LevelDebug
	}
	s.logger.Log(context.Background(), level, "token_memory_access",
		slog.String("hash", r.Hash),
		slog.String("model_id", r.ModelID),
		slog.String("encoding", r.Encoding),
		slog.String("reason", string(r.Reason)),
		slog.Time("timestamp", r.Timestamp),
	)
}

// DiskDiagnosticsSink writes one JSON line per access to a rotating log
// file via lumberjack, for deployments that want miss telemetry on disk
// rather than (or in addition to) stdout.
type DiskDiagnosticsSink struct {
	logger *slog.Logger
	writer *lumberjack.Logger
	mu     sync.Mutex
}

// NewDiskDiagnosticsSink opens (creating if needed) a rotating log file at
// path. maxSizeMB, maxBackups, and maxAgeDays are forwarded to lumberjack;
// zero values use lumberjack's own defaults (rotate at 100 MB, keep every
// backup, no age limit).
func NewDiskDiagnosticsSink(path string, maxSizeMB, maxBackups, maxAgeDays int) *DiskDiagnosticsSink {
	w := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		MaxAge:     maxAgeDays,
		Compress:   true,
	}
	return &DiskDiagnosticsSink{
		logger: slog.New(slog.NewJSONHandler(w, nil)),
		writer: w,
	}
}

// Record implements Sink.
func (s *DiskDiagnosticsSink) Record(r AccessResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger.Info("token_memory_access",
		slog.String("hash", r.Hash),
		slog.String("model_id", r.ModelID),
		slog.String("encoding", r.Encoding),
		slog.String("reason", string(r.Reason)),
		slog.Time("timestamp", r.Timestamp),
	)
}

// Close releases the underlying log file.
func (s *DiskDiagnosticsSink) Close() error {
	return s.writer.Close()
}

// SyslogDiagnosticsSink forwards access events to a syslog daemon,
// matching the teacher's go.mod commitment to srslog as an alternative
// audit transport.
type SyslogDiagnosticsSink struct {
	writer *srslog.Writer
	mu     sync.Mutex
}

// NewSyslogDiagnosticsSink dials network (e.g. "udp", "tcp") to raddr
// (empty for the local syslog daemon) and tags every line with tag.
func NewSyslogDiagnosticsSink(network, raddr, tag string) (*SyslogDiagnosticsSink, error) {
	w, err := srslog.Dial(network, raddr, srslog.LOG_INFO|srslog.LOG_DAEMON, tag)
	if err != nil {
		return nil, fmt.Errorf("diagnostics: dial syslog: %w", err)
	}
	return &SyslogDiagnosticsSink{writer: w}, nil
}

// Record implements Sink.
func (s *SyslogDiagnosticsSink) Record(r AccessResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	line := fmt.Sprintf("hash=%s model=%s encoding=%s reason=%s ts=%s",
		r.Hash, r.ModelID, r.Encoding, r.Reason, r.Timestamp.Format(time.RFC3339))
	if r.Reason.IsHit() {
		_ = s.writer.Info(line)
	} else {
		_ = s.writer.Debug(line)
	}
}

// Close releases the syslog connection.
func (s *SyslogDiagnosticsSink) Close() error {
	return s.writer.Close()
}

// MultiSink fans one access out to several sinks, e.g. stdout plus disk.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink combines sinks into one.
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

// Record implements Sink.
func (m *MultiSink) Record(r AccessResult) {
	for _, s := range m.sinks {
		s.Record(r)
	}
}
