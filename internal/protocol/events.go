package protocol

import "fmt"

// EventKind is the broad class of an inbound notification.
type EventKind int

const (
	EventUnknown EventKind = iota
	EventHeartbeat
	EventPhysicalState
	EventInteraction
	EventBattery
	EventDevice
	EventResponse
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventHeartbeat:
		return "heartbeat"
	case EventPhysicalState:
		return "physical-state"
	case EventInteraction:
		return "interaction"
	case EventBattery:
		return "battery"
	case EventDevice:
		return "device"
	case EventResponse:
		return "response"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is a classified inbound notification.
type Event struct {
	Kind  EventKind
	Code  byte
	Label string
	Raw   []byte
}

// Physical state codes carried in 0xF5 frames.
var physicalStates = map[byte]string{
	0x06: "wearing",
	0x07: "transitioning",
	0x08: "cradle open",
	0x09: "charged in cradle",
	0x0b: "cradle closed",
}

var interactions = map[byte]string{
	0x00: "double tap",
	0x01: "single tap",
	0x02: "open dashboard start",
	0x03: "close dashboard start",
	0x04: "silent mode enabled",
	0x05: "silent mode disabled",
	0x17: "long press",
	0x1e: "open dashboard confirmed",
	0x1f: "close dashboard confirmed",
}

var batteryStates = map[byte]string{
	0x0e: "cradle charging cable state changed",
	0x0f: "cradle fully charged",
}

var deviceStates = map[byte]string{
	0x11: "connected",
}

// Classify decodes one inbound frame. Unnamed codes still come back with the
// right kind where the category byte identifies it.
func Classify(raw []byte) Event {
	if len(raw) == 0 {
		return Event{Kind: EventUnknown, Raw: raw}
	}
	ev := Event{Code: raw[0], Raw: raw}

	switch raw[0] {
	case EvtHeartbeat:
		ev.Kind = EventHeartbeat
		ev.Label = "heartbeat"
	case EvtResponse:
		ev.Kind = EventResponse
		ev.Label = "response"
	case EvtError:
		ev.Kind = EventError
		ev.Label = "error"
	case EvtStateChange:
		if len(raw) < 2 {
			ev.Kind = EventUnknown
			ev.Label = "truncated state event"
			return ev
		}
		ev.Code = raw[1]
		if label, ok := physicalStates[raw[1]]; ok {
			ev.Kind = EventPhysicalState
			ev.Label = label
		} else if label, ok := interactions[raw[1]]; ok {
			ev.Kind = EventInteraction
			ev.Label = label
		} else if label, ok := batteryStates[raw[1]]; ok {
			ev.Kind = EventBattery
			ev.Label = label
		} else if label, ok := deviceStates[raw[1]]; ok {
			ev.Kind = EventDevice
			ev.Label = label
		} else {
			ev.Kind = EventDevice
			ev.Label = fmt.Sprintf("device state 0x%02x", raw[1])
		}
	default:
		ev.Kind = EventUnknown
		ev.Label = fmt.Sprintf("category 0x%02x", raw[0])
	}
	return ev
}
