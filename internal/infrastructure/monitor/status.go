package monitor

import "time"

// Probe is the state of one dependency.
type Probe string

const (
	ProbeUp       Probe = "up"
	ProbeDown     Probe = "down"
	ProbeDisabled Probe = "disabled"
)

func probeOf(configured, ok bool) Probe {
	switch {
	case !configured:
		return ProbeDisabled
	case ok:
		return ProbeUp
	default:
		return ProbeDown
	}
}

type Status struct {
	PostgreSQL Probe     `json:"postgresql"`
	Redis      Probe     `json:"redis"`
	Outbox     Probe     `json:"outbox"`
	OutboxSize int       `json:"outbox_size"`
	LastCheck  time.Time `json:"last_check"`
}
