package logging

import (
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// Comma-separated "tag=level" directives. A bare level sets the default.
const envVar = "FRAMELINK_LOG"

type tagLevel struct {
	tag   string
	level Level
}

var tagLevels []tagLevel

func init() {
	if err := configure(os.Getenv(envVar)); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %s\n", envVar, err)
	}

	DefaultLogger.Level = defaultLevel
}

// Parse directives into the package-level table. Invalid directives are
// skipped; the first problem is reported.
func configure(directives string) (err error) {
	for _, d := range strings.Split(directives, ",") {
		d = strings.TrimSpace(d)
		if d == "" {
			continue
		}
		v := strings.SplitN(d, "=", 2)
		level, perr := parseLevel(v[len(v)-1])
		if perr != nil {
			if err == nil {
				err = errors.Wrapf(perr, "invalid directive %q", d)
			}
			continue
		}
		if len(v) == 1 {
			defaultLevel = level
		} else {
			tagLevels = append(tagLevels, tagLevel{v[0], level})
		}
	}
	return
}

func determineLevel(tag string, fallback Level) Level {
	for _, e := range tagLevels {
		if e.tag == tag {
			return e.level
		}
	}
	return fallback
}
