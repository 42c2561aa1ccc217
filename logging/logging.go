// Package logging provides the structured logging facility shared by every
// component: router, flow engine, adapters, scheduler and HTTP handlers.
// It follows the teacher's OutputSplitter/ContextLogger pattern: error-level
// lines go to stderr, everything else to stdout, and callers build up a
// logger with fields rather than calling the bare logrus package logger.
package logging

import (
	"bytes"
	"context"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// OutputSplitter routes "level=error" formatted lines to stderr and
// everything else to stdout, so container log collectors can split streams.
type OutputSplitter struct{}

func (OutputSplitter) Write(p []byte) (int, error) {
	if bytes.Contains(p, []byte("level=error")) {
		return os.Stderr.Write(p)
	}
	return os.Stdout.Write(p)
}

// Logger is the process-wide logrus instance; individual components should
// build a ContextLogger from it rather than logging through it directly.
var Logger = logrus.New()

func init() {
	Logger.SetOutput(OutputSplitter{})
}

// Configure applies level and format to the global logger. format is either
// "json" or "text".
func Configure(level, format string) {
	switch level {
	case "debug":
		Logger.SetLevel(logrus.DebugLevel)
	case "warn":
		Logger.SetLevel(logrus.WarnLevel)
	case "error":
		Logger.SetLevel(logrus.ErrorLevel)
	default:
		Logger.SetLevel(logrus.InfoLevel)
	}

	if format == "json" {
		Logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	} else {
		Logger.SetFormatter(&logrus.TextFormatter{TimestampFormat: time.RFC3339, FullTimestamp: true})
	}
}

// ContextLogger is a WithField/WithFields/WithError builder over the global
// logger, used everywhere instead of calling logrus directly.
type ContextLogger struct {
	fields logrus.Fields
}

// New starts a ContextLogger with the given base fields, typically a
// component name.
func New(fields map[string]interface{}) *ContextLogger {
	f := make(logrus.Fields, len(fields))
	for k, v := range fields {
		f[k] = v
	}
	return &ContextLogger{fields: f}
}

func (cl *ContextLogger) clone() logrus.Fields {
	f := make(logrus.Fields, len(cl.fields))
	for k, v := range cl.fields {
		f[k] = v
	}
	return f
}

// WithField returns a derived logger carrying one additional field.
func (cl *ContextLogger) WithField(key string, value interface{}) *ContextLogger {
	f := cl.clone()
	f[key] = value
	return &ContextLogger{fields: f}
}

// WithFields returns a derived logger carrying additional fields.
func (cl *ContextLogger) WithFields(fields map[string]interface{}) *ContextLogger {
	f := cl.clone()
	for k, v := range fields {
		f[k] = v
	}
	return &ContextLogger{fields: f}
}

// WithError attaches an error field.
func (cl *ContextLogger) WithError(err error) *ContextLogger {
	if err == nil {
		return cl
	}
	return cl.WithField("error", err.Error())
}

// WithContext extracts a request id from ctx, when the HTTP middleware set one.
func (cl *ContextLogger) WithContext(ctx context.Context) *ContextLogger {
	if requestID, ok := ctx.Value(requestIDKey{}).(string); ok {
		return cl.WithField("request_id", requestID)
	}
	return cl
}

type requestIDKey struct{}

// WithRequestID returns a context carrying a request id for WithContext.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func (cl *ContextLogger) Debug(msg string) { Logger.WithFields(cl.fields).Debug(msg) }
func (cl *ContextLogger) Info(msg string)  { Logger.WithFields(cl.fields).Info(msg) }
func (cl *ContextLogger) Warn(msg string)  { Logger.WithFields(cl.fields).Warn(msg) }
func (cl *ContextLogger) Error(msg string) { Logger.WithFields(cl.fields).Error(msg) }

func (cl *ContextLogger) Debugf(format string, args ...interface{}) {
	Logger.WithFields(cl.fields).Debugf(format, args...)
}
func (cl *ContextLogger) Infof(format string, args ...interface{}) {
	Logger.WithFields(cl.fields).Infof(format, args...)
}
func (cl *ContextLogger) Warnf(format string, args ...interface{}) {
	Logger.WithFields(cl.fields).Warnf(format, args...)
}
func (cl *ContextLogger) Errorf(format string, args ...interface{}) {
	Logger.WithFields(cl.fields).Errorf(format, args...)
}
