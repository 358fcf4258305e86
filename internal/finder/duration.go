package finder

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that yaml.v3 can round-trip. Config files write
// it as a Go duration string ("20s", "1m30s"); a bare integer is accepted and
// read as seconds.
type Duration time.Duration

func (d Duration) String() string {
	return time.Duration(d).String()
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("parse duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}

	var secs int64
	if err := value.Decode(&secs); err != nil {
		return fmt.Errorf("duration must be a string like %q or a number of seconds", "20s")
	}
	*d = Duration(time.Duration(secs) * time.Second)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}
