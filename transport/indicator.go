package transport

// Status is what the hub's status light shows.
type Status uint8

const (
	StatusOff Status = iota
	StatusOnline
	StatusOffline
	StatusPending
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusOff:
		return "off"
	case StatusOnline:
		return "online"
	case StatusOffline:
		return "offline"
	case StatusPending:
		return "pending"
	case StatusError:
		return "error"
	}
	return "unknown"
}

// Indicator drives the status light. Set may be called from several goroutines.
type Indicator interface {
	Set(s Status)
}

// NopIndicator ignores every status change.
type NopIndicator struct{}

func (NopIndicator) Set(Status) {}
