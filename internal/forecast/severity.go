package forecast

import "fmt"

// Severity is an ordered alert level: Gray < Green < Yellow < Red < RedBlink.
type Severity int

const (
	Gray Severity = iota
	Green
	Yellow
	Red
	RedBlink
)

var severityNames = [...]string{"Gray", "Green", "Yellow", "Red", "RedBlink"}

func (s Severity) String() string {
	if s < Gray || s > RedBlink {
		return fmt.Sprintf("Severity(%d)", int(s))
	}
	return severityNames[s]
}

func (s Severity) MarshalText() ([]byte, error) {
	if s < Gray || s > RedBlink {
		return nil, fmt.Errorf("invalid severity %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *Severity) UnmarshalText(text []byte) error {
	for i, name := range severityNames {
		if name == string(text) {
			*s = Severity(i)
			return nil
		}
	}
	return fmt.Errorf("unknown severity %q", text)
}

// Indicator returns a short status word for the severity.
func (s Severity) Indicator() string {
	switch s {
	case RedBlink:
		return "over limit"
	case Red:
		return "at risk"
	case Yellow:
		return "tight"
	case Green:
		return "on track"
	default:
		return "unknown"
	}
}

// NeedsAttention reports whether the severity should drive a blinking indicator.
func (s Severity) NeedsAttention() bool {
	return s == RedBlink
}
