package logging

import (
	"fmt"
	"strings"
)

// Printer exposes a Logger at a fixed level through the Println/Printf pair
// that third-party libraries (e.g. paho's mqtt.Logger) expect.
type Printer struct {
	log   *Logger
	level Level
}

// AtLevel returns a Printer that logs everything at the given level.
func (log *Logger) AtLevel(level Level) Printer {
	return Printer{log, level}
}

func (p Printer) Println(v ...interface{}) {
	p.log.Log(p.level, 1, "%s", strings.TrimSuffix(fmt.Sprintln(v...), "\n"))
}

func (p Printer) Printf(format string, v ...interface{}) {
	p.log.Log(p.level, 1, format, v...)
}

func (log *Logger) Fatalf(format string, v ...interface{}) {
	log.Log(Error, 1, format, v...)
	exit(1)
}
