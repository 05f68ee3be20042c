// logger.go - Process-wide structured logger

package common

import (
	"context"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

var log = logrus.New()

func init() {
	log.SetOutput(os.Stdout)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}

// ConfigureLogger applies LOG_LEVEL / LOG_FORMAT style settings.
// Unknown levels fall back to info; format is "json" or "text".
func ConfigureLogger(level, format string) {
	lvl, err := logrus.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)

	if strings.EqualFold(format, "json") {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}

// Logger returns the process logger.
func Logger() *logrus.Logger {
	return log
}

type requestContextKey struct{}

// WithRequestContext attaches rc to ctx so deeper layers log with its request id.
func WithRequestContext(ctx context.Context, rc *RequestContext) context.Context {
	return context.WithValue(ctx, requestContextKey{}, rc)
}

// RequestContextFrom returns the RequestContext stored in ctx, or nil.
func RequestContextFrom(ctx context.Context) *RequestContext {
	if ctx == nil {
		return nil
	}
	rc, _ := ctx.Value(requestContextKey{}).(*RequestContext)
	return rc
}

// EntryFrom returns a log entry scoped to the request in ctx, falling back to
// the process logger.
func EntryFrom(ctx context.Context) *logrus.Entry {
	if rc := RequestContextFrom(ctx); rc != nil {
		return rc.Entry()
	}
	return logrus.NewEntry(log)
}
