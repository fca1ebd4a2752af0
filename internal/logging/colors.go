package logging

import "github.com/fatih/color"

var stampColor = color.New(color.FgWhite)

// paint wraps s in c's escape sequences. fatih/color leaves them out when
// stderr is not a terminal or NO_COLOR is set.
func paint(c *color.Color, s string) string {
	if c == nil {
		return s
	}
	return c.Sprint(s)
}
