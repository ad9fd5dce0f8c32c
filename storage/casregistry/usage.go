package casregistry

import "strings"

// Usage is the set of programs a backend is offered in.
type Usage uint8

const (
	// UsageCLI offers the backend to signet.
	UsageCLI Usage = 1 << iota
	// UsageDaemon offers the backend to signet-casd.
	UsageDaemon
)

func (u Usage) allows(want Usage) bool { return u&want != 0 }

func (u Usage) String() string {
	var parts []string
	if u&UsageCLI != 0 {
		parts = append(parts, "cli")
	}
	if u&UsageDaemon != 0 {
		parts = append(parts, "daemon")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "+")
}
