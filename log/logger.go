// Package log is a thin subsystem-tagged facade over zerolog. The library
// logs through it everywhere; host applications may swap in their own
// zerolog.Logger via SetLogger.
package log

import (
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

// SubLogger tags log lines with the emitting subsystem
type SubLogger string

// Subsystem tags
const (
	Global       SubLogger = "LOG"
	ExchangeSys  SubLogger = "EXCHANGE"
	RequestSys   SubLogger = "REQUEST"
	WebsocketMgr SubLogger = "WEBSOCKET"
)

var (
	mu     sync.RWMutex
	logger = zerolog.New(os.Stderr).Level(zerolog.InfoLevel).With().Timestamp().Logger()
)

// SetLogger replaces the package logger. Safe for concurrent use.
func SetLogger(l zerolog.Logger) {
	mu.Lock()
	logger = l
	mu.Unlock()
}

// SetLevel adjusts the package logger level in place
func SetLevel(level zerolog.Level) {
	mu.Lock()
	logger = logger.Level(level)
	mu.Unlock()
}

func get() zerolog.Logger {
	mu.RLock()
	l := logger
	mu.RUnlock()
	return l
}

// Debugf logs a formatted debug line for a subsystem
func Debugf(sl SubLogger, format string, a ...interface{}) {
	l := get()
	l.Debug().Str("sys", string(sl)).Msgf(format, a...)
}

// Infof logs a formatted info line for a subsystem
func Infof(sl SubLogger, format string, a ...interface{}) {
	l := get()
	l.Info().Str("sys", string(sl)).Msgf(format, a...)
}

// Warnf logs a formatted warning line for a subsystem
func Warnf(sl SubLogger, format string, a ...interface{}) {
	l := get()
	l.Warn().Str("sys", string(sl)).Msgf(format, a...)
}

// Errorf logs a formatted error line for a subsystem
func Errorf(sl SubLogger, format string, a ...interface{}) {
	l := get()
	l.Error().Str("sys", string(sl)).Msgf(format, a...)
}

// Errorln logs arguments as a single error line for a subsystem
func Errorln(sl SubLogger, a ...interface{}) {
	l := get()
	l.Error().Str("sys", string(sl)).Msg(fmt.Sprint(a...))
}

// Warnln logs arguments as a single warning line for a subsystem
func Warnln(sl SubLogger, a ...interface{}) {
	l := get()
	l.Warn().Str("sys", string(sl)).Msg(fmt.Sprint(a...))
}

// Debugln logs arguments as a single debug line for a subsystem
func Debugln(sl SubLogger, a ...interface{}) {
	l := get()
	l.Debug().Str("sys", string(sl)).Msg(fmt.Sprint(a...))
}

// Infoln logs arguments as a single info line for a subsystem
func Infoln(sl SubLogger, a ...interface{}) {
	l := get()
	l.Info().Str("sys", string(sl)).Msg(fmt.Sprint(a...))
}
