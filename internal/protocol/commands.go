// Package protocol defines the serial-tunnel wire format the lens units speak
// and a small command layer that serializes outbound writes.
package protocol

// Command opcodes (first byte of an outbound frame).
const (
	CmdBrightness    = 0x01
	CmdSilentModeOn  = 0x04
	CmdSilentModeOff = 0x05
	CmdHeartbeat     = 0x25
)

// Inbound frame categories (first byte of a notification).
const (
	EvtResponse    = 0x03
	EvtError       = 0x04
	EvtDashboard   = 0x22
	EvtHeartbeat   = 0x25
	EvtStateChange = 0xF5
)

// HeartbeatFrame builds the fixed-layout keep-alive frame. The sequence byte
// appears twice; the same frame goes to both sides within one round.
func HeartbeatFrame(seq byte) []byte {
	return []byte{CmdHeartbeat, 0x06, 0x00, seq, 0x04, seq}
}

// SilentModeFrame builds the silent-mode toggle command.
func SilentModeFrame(on bool) []byte {
	if on {
		return []byte{CmdSilentModeOn, 0x01}
	}
	return []byte{CmdSilentModeOff, 0x01}
}
