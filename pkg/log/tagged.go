package log

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

// Fields is free-form context attached to a log entry.
type Fields = logrus.Fields

// Tags locate the code that emitted a log entry.
type Tags struct {
	File     string
	Function string
}

// Logger is the structured logger handed to components that log on behalf
// of a caller. Use Nop when logging is not wanted.
type Logger interface {
	Info(tags Tags, msg string, extra Fields)
	Warn(tags Tags, msg string, extra Fields)
	Error(tags Tags, msg string, extra Fields)
}

type nopLogger struct{}

func (nopLogger) Info(Tags, string, Fields)  {}
func (nopLogger) Warn(Tags, string, Fields)  {}
func (nopLogger) Error(Tags, string, Fields) {}

// Nop returns a Logger that drops everything.
func Nop() Logger {
	return nopLogger{}
}

type taggedLogger struct{}

// Tagged returns a Logger writing through the package logger. Tags and extra
// fields are rendered after the message since the formatter prints %msg% only.
func Tagged() Logger {
	return taggedLogger{}
}

func (taggedLogger) Info(tags Tags, msg string, extra Fields) {
	logger.Info(render(tags, msg, extra))
}

func (taggedLogger) Warn(tags Tags, msg string, extra Fields) {
	logger.Warn(render(tags, msg, extra))
}

func (taggedLogger) Error(tags Tags, msg string, extra Fields) {
	logger.Error(render(tags, msg, extra))
}

func render(tags Tags, msg string, extra Fields) string {
	var b strings.Builder
	if tags.File != "" || tags.Function != "" {
		fmt.Fprintf(&b, "[%s.%s] ", tags.File, tags.Function)
	}
	b.WriteString(msg)
	if len(extra) == 0 {
		return b.String()
	}
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, extra[k])
	}
	return b.String()
}
