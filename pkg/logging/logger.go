// Package logging provides structured logging with trace ID support.
package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ContextKey namespaces values this package stores on a context.Context so
// they don't collide with keys set by unrelated packages.
type ContextKey string

const (
	TraceIDKey   ContextKey = "trace_id"
	NodeIDKey    ContextKey = "node_id"
	MemberIDKey  ContextKey = "member_id"
	SubsystemKey ContextKey = "subsystem"
)

// contextField pairs a context key with the log field name it's exposed
// under, so WithContext can walk one list instead of one if-block per key.
type contextField struct {
	key   ContextKey
	field string
}

var contextFields = []contextField{
	{TraceIDKey, "trace_id"},
	{NodeIDKey, "node_id"},
	{MemberIDKey, "member_id"},
	{SubsystemKey, "subsystem"},
}

// Logger wraps logrus.Logger, tagging every entry with the owning service
// name and exposing the engine's audit/numeric logging vocabulary.
type Logger struct {
	*logrus.Logger
	service string
}

func formatterFor(format string) logrus.Formatter {
	if format == "json" {
		return &logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		}
	}
	return &logrus.TextFormatter{
		TimestampFormat: time.RFC3339,
		FullTimestamp:   true,
	}
}

// New builds a Logger for service, writing format-encoded entries at level
// to stdout. An unparsable level falls back to info rather than failing
// construction.
func New(service, level, format string) *Logger {
	base := logrus.New()
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	base.SetLevel(parsed)
	base.SetFormatter(formatterFor(format))
	base.SetOutput(os.Stdout)
	return &Logger{Logger: base, service: service}
}

func envOrDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// NewFromEnv builds a Logger from LOG_LEVEL/LOG_FORMAT, defaulting to
// info/json when either is unset.
func NewFromEnv(service string) *Logger {
	return New(service, envOrDefault("LOG_LEVEL", "info"), envOrDefault("LOG_FORMAT", "json"))
}

// WithContext returns an entry carrying this logger's service name plus
// whichever of trace/node/member/subsystem id the context carries.
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	entry := l.Logger.WithField("service", l.service)
	for _, cf := range contextFields {
		if v := ctx.Value(cf.key); v != nil {
			entry = entry.WithField(cf.field, v)
		}
	}
	return entry
}

// WithFields returns an entry carrying fields plus the service name. The
// caller's map is left untouched.
func (l *Logger) WithFields(fields map[string]interface{}) *logrus.Entry {
	tagged := make(logrus.Fields, len(fields)+1)
	for k, v := range fields {
		tagged[k] = v
	}
	tagged["service"] = l.service
	return l.Logger.WithFields(tagged)
}

// WithError returns an entry carrying err's message plus the service name.
func (l *Logger) WithError(err error) *logrus.Entry {
	return l.Logger.WithFields(logrus.Fields{
		"service": l.service,
		"error":   err.Error(),
	})
}

// SetOutput redirects where this logger writes entries.
func (l *Logger) SetOutput(output io.Writer) {
	l.Logger.SetOutput(output)
}

// NewTraceID returns a fresh random trace identifier.
func NewTraceID() string {
	return uuid.New().String()
}

func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

func GetTraceID(ctx context.Context) string {
	traceID, _ := ctx.Value(TraceIDKey).(string)
	return traceID
}

func WithNodeID(ctx context.Context, nodeID string) context.Context {
	return context.WithValue(ctx, NodeIDKey, nodeID)
}

func WithMemberID(ctx context.Context, memberID string) context.Context {
	return context.WithValue(ctx, MemberIDKey, memberID)
}

func WithSubsystem(ctx context.Context, subsystem string) context.Context {
	return context.WithValue(ctx, SubsystemKey, subsystem)
}

// LogLedgerAppend logs a ledger append (spec.md §4.A): every mutation the
// engine performs passes through here exactly once.
func (l *Logger) LogLedgerAppend(ctx context.Context, entryType, entryID string, err error) {
	entry := l.WithContext(ctx).WithFields(logrus.Fields{
		"entry_type": entryType,
		"entry_id":   entryID,
	})
	if err != nil {
		entry.WithError(err).Error("ledger append failed")
		return
	}
	entry.Debug("ledger entry appended")
}

// LogStateTransition logs a subsystem entity moving between states.
func (l *Logger) LogStateTransition(ctx context.Context, entity, id, from, to string) {
	l.WithContext(ctx).WithFields(logrus.Fields{
		"entity": entity,
		"id":     id,
		"from":   from,
		"to":     to,
	}).Info("state transition")
}

// LogNumericPolicy logs the inputs/outputs of a deterministic numeric
// policy (consensus score, weighted hours, decay, valuation, bottleneck
// severity, autonomy/fragility) for audit replay.
func (l *Logger) LogNumericPolicy(ctx context.Context, policy string, inputs, outputs map[string]interface{}) {
	fields := logrus.Fields{"policy": policy}
	for k, v := range inputs {
		fields["in_"+k] = v
	}
	for k, v := range outputs {
		fields["out_"+k] = v
	}
	l.WithContext(ctx).WithFields(fields).Debug("numeric policy evaluated")
}

// LogFederationEnvelope logs an inbound or outbound federation envelope.
func (l *Logger) LogFederationEnvelope(ctx context.Context, direction, messageType, envelopeID string, err error) {
	entry := l.WithContext(ctx).WithFields(logrus.Fields{
		"direction":    direction,
		"message_type": messageType,
		"envelope_id":  envelopeID,
	})
	if err != nil {
		entry.WithError(err).Warn("federation envelope rejected")
		return
	}
	entry.Info("federation envelope processed")
}

func (l *Logger) Debug(ctx context.Context, message string, fields map[string]interface{}) {
	l.WithContext(ctx).WithFields(fields).Debug(message)
}

func (l *Logger) Info(ctx context.Context, message string, fields map[string]interface{}) {
	l.WithContext(ctx).WithFields(fields).Info(message)
}

func (l *Logger) Warn(ctx context.Context, message string, fields map[string]interface{}) {
	l.WithContext(ctx).WithFields(fields).Warn(message)
}

func (l *Logger) Error(ctx context.Context, message string, err error, fields map[string]interface{}) {
	entry := l.WithContext(ctx)
	if err != nil {
		entry = entry.WithError(err)
	}
	entry.WithFields(fields).Error(message)
}

var defaultLogger *Logger

// InitDefault sets the package-level default logger returned by Default.
func InitDefault(service, level, format string) {
	defaultLogger = New(service, level, format)
}

// Default returns the package-level logger, lazily building a plain info
// logger for "engine" if InitDefault was never called.
func Default() *Logger {
	if defaultLogger == nil {
		defaultLogger = New("engine", "info", "json")
	}
	return defaultLogger
}

// FormatDuration renders d as milliseconds with two decimal places, the
// unit every HTTP and numeric-policy log line in this engine uses.
func FormatDuration(d time.Duration) string {
	return fmt.Sprintf("%.2fms", float64(d.Nanoseconds())/1e6)
}
