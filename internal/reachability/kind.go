package reachability

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownKind is returned by ParseKind for unrecognized names.
var ErrUnknownKind = errors.New("unknown network kind")

// Kind is the kind of network path currently available.
type Kind int

const (
	NoNetwork Kind = iota
	Mobile
	Wifi
)

func (k Kind) String() string {
	switch k {
	case NoNetwork:
		return "none"
	case Mobile:
		return "mobile"
	case Wifi:
		return "wifi"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Available reports whether the kind represents a usable network path.
func (k Kind) Available() bool {
	return k == Mobile || k == Wifi
}

// ParseKind parses a kind name as used in configuration files.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "no_network", "offline":
		return NoNetwork, nil
	case "mobile", "cellular":
		return Mobile, nil
	case "wifi", "ethernet", "":
		return Wifi, nil
	default:
		return NoNetwork, fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

// Subscriber receives reachability changes.
type Subscriber interface {
	OnNetworkChanged(kind Kind)
}

// SubscriberFunc is a function adapter for Subscriber.
type SubscriberFunc func(Kind)

func (f SubscriberFunc) OnNetworkChanged(kind Kind) {
	f(kind)
}
