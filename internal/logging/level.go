package logging

import (
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/pkg/errors"
)

// Level orders verbosity. Error is the quietest; numeric levels above Debug
// are trace levels used with Logger.Trace.
type Level int

const (
	Error Level = iota - 2
	Warn
	Info
	Debug

	MaxLevel Level = 9
)

// Overridden by FRAMELINK_LOG.
var defaultLevel = Info

type style struct {
	name   string
	letter byte
	color  *color.Color
}

// Named levels, starting at Error.
var styles = [...]style{
	{"Error", 'E', color.New(color.FgRed, color.Bold)},
	{"Warn", 'W', color.New(color.FgRed)},
	{"Info", 'I', nil},
	{"Debug", 'D', color.New(color.FgGreen)},
}

var traceColor = color.New(color.FgYellow)

func (l Level) style() style {
	if l >= Error && l <= Debug {
		return styles[l-Error]
	}
	return style{strconv.Itoa(int(l)), byte('0' + l), traceColor}
}

func (l Level) String() string {
	return l.style().name
}

// parseLevel accepts a level name, its initial, "trace", or a number.
func parseLevel(s string) (Level, error) {
	switch up := strings.ToUpper(s); up {
	case "T", "TRACE":
		return MaxLevel, nil
	default:
		for i, st := range styles {
			if up == strings.ToUpper(st.name) || up == string(st.letter) {
				return Error + Level(i), nil
			}
		}
	}

	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.Errorf("unknown level %q", s)
	}
	if l := Level(n); l >= Error && l <= MaxLevel {
		return l, nil
	}
	return 0, errors.Errorf("numeric level out of range: %s", s)
}
