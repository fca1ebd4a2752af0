package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"
)

const timestampFormat = "2006-01-02 15:04:05.000"

// Logger writes one line per message:
//
//	2019-06-01 12:00:00.000 I/link[session.go:120] connected to tcp://...
//
// Loggers derived with WithTag share the destination and its lock.
type Logger struct {
	// Messages more verbose than this are dropped.
	Level

	Tag string

	out io.Writer
	mu  *sync.Mutex
}

var DefaultLogger = New(os.Stderr, defaultLevel)

// Replaced in tests.
var exit = os.Exit

// New returns a root logger writing to out at the given level.
func New(out io.Writer, level Level) *Logger {
	return &Logger{Level: level, out: out, mu: new(sync.Mutex)}
}

func (log *Logger) SetDestination(out io.Writer) {
	log.mu.Lock()
	log.out = out
	log.mu.Unlock()
}

// WithTag derives a logger for one package. FRAMELINK_LOG may set a level
// for the tag; otherwise the parent's level applies.
func (log *Logger) WithTag(tag string) *Logger {
	return &Logger{determineLevel(tag, log.Level), tag, log.out, log.mu}
}

// WithDefaultLevel derives a logger whose level applies unless FRAMELINK_LOG
// names its tag.
func (log *Logger) WithDefaultLevel(level Level) *Logger {
	return &Logger{determineLevel(log.Tag, level), log.Tag, log.out, log.mu}
}

var lines = sync.Pool{
	New: func() interface{} {
		b := make([]byte, 0, 256)
		return &b
	},
}

// Log formats a message at level, attributed to the caller calldepth frames
// above Log.
func (log *Logger) Log(level Level, calldepth int, format string, a ...interface{}) {
	if level > log.Level {
		return
	}

	_, file, line, ok := runtime.Caller(calldepth + 1)
	if !ok {
		file = "?"
	}
	st := level.style()

	p := lines.Get().(*[]byte)
	b := append((*p)[:0], paint(stampColor, time.Now().Format(timestampFormat))...)
	b = fmt.Appendf(b, " %s[%s:%d] ", paint(st.color, string(st.letter)+"/"+log.Tag), filepath.Base(file), line)
	b = fmt.Appendf(b, format, a...)
	if b[len(b)-1] != '\n' {
		b = append(b, '\n')
	}

	log.mu.Lock()
	_, err := log.out.Write(b)
	log.mu.Unlock()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: write to %v failed: %v\n", log.out, err)
	}

	*p = b
	lines.Put(p)
}

func (log *Logger) Error(format string, a ...interface{}) {
	log.Log(Error, 1, format, a...)
}

func (log *Logger) Warn(format string, a ...interface{}) {
	log.Log(Warn, 1, format, a...)
}

func (log *Logger) Info(format string, a ...interface{}) {
	log.Log(Info, 1, format, a...)
}

func (log *Logger) Debug(format string, a ...interface{}) {
	log.Log(Debug, 1, format, a...)
}

// Trace logs at numeric level n, above Debug.
func (log *Logger) Trace(n int, format string, a ...interface{}) {
	log.Log(Level(n), 1, format, a...)
}
