package chart

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rustyeddy/bdschart/internal/logx"
)

type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// DefaultMaxEntries bounds the log when NewLog is given no limit.
const DefaultMaxEntries = 1000

// Entry is one line of the user-visible log.
type Entry struct {
	Time    time.Time
	Level   Level
	Message string
}

func (e Entry) String() string {
	return fmt.Sprintf("[%s] %s", e.Time.Format("15:04:05"), e.Message)
}

// Log is the activity log shown next to the chart. Every entry is mirrored
// to the zap logger. Safe for concurrent use; a nil *Log discards entries.
type Log struct {
	mu      sync.Mutex
	entries []Entry
	max     int
	now     func() time.Time
	logger  *zap.Logger
	onEntry func(Entry)
}

func NewLog(logger *zap.Logger, max int) *Log {
	if max <= 0 {
		max = DefaultMaxEntries
	}
	return &Log{
		max:    max,
		now:    time.Now,
		logger: logx.OrNop(logger),
	}
}

// OnEntry registers fn to be called, outside the lock, for every new entry.
func (l *Log) OnEntry(fn func(Entry)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onEntry = fn
}

func (l *Log) Info(msg string, fields ...zap.Field) {
	l.add(LevelInfo, msg, fields)
}

func (l *Log) Warn(msg string, fields ...zap.Field) {
	l.add(LevelWarn, msg, fields)
}

func (l *Log) Error(msg string, fields ...zap.Field) {
	l.add(LevelError, msg, fields)
}

func (l *Log) add(level Level, msg string, fields []zap.Field) {
	if l == nil {
		return
	}
	l.mu.Lock()
	e := Entry{Time: l.now(), Level: level, Message: msg}
	l.entries = append(l.entries, e)
	if over := len(l.entries) - l.max; over > 0 {
		l.entries = append(l.entries[:0], l.entries[over:]...)
	}
	fn := l.onEntry
	l.mu.Unlock()

	switch level {
	case LevelError:
		l.logger.Error(msg, fields...)
	case LevelWarn:
		l.logger.Warn(msg, fields...)
	default:
		l.logger.Info(msg, fields...)
	}

	if fn != nil {
		fn(e)
	}
}

// Entries returns a copy of the retained entries, oldest first.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Entry(nil), l.entries...)
}

// Count returns the number of retained entries at level.
func (l *Log) Count(level Level) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.entries {
		if e.Level == level {
			n++
		}
	}
	return n
}
