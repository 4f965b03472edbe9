// Package logger provides the process-wide structured logger.
// Components should take an hclog.Logger in their constructor and derive
// named children; this package only owns root logger construction.
package logger

import (
	"os"
	"sync"

	"github.com/hashicorp/go-hclog"
)

var (
	root hclog.Logger
	once sync.Once
)

// Options controls root logger construction
type Options struct {
	Level string
	JSON  bool
}

// Init builds the root logger. Safe to call once at startup; later calls
// are ignored.
func Init(opts Options) hclog.Logger {
	once.Do(func() {
		root = hclog.New(&hclog.LoggerOptions{
			Name:       "mediaforge",
			Level:      parseLevel(opts.Level),
			JSONFormat: opts.JSON,
			Output:     os.Stderr,
		})
	})
	return root
}

// Root returns the root logger, initializing with defaults if needed
func Root() hclog.Logger {
	if root == nil {
		return Init(Options{Level: "info"})
	}
	return root
}

// Named returns a child of the root logger
func Named(name string) hclog.Logger {
	return Root().Named(name)
}

func parseLevel(level string) hclog.Level {
	switch level {
	case "trace":
		return hclog.Trace
	case "debug":
		return hclog.Debug
	case "warn":
		return hclog.Warn
	case "error":
		return hclog.Error
	default:
		return hclog.Info
	}
}
