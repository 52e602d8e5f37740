// Package midimsg decomposes raw MIDI wire bytes into the
// status-nibble/channel/data-byte triple macro.MIDIMessage carries for
// wildcard catchers.
package midimsg

import "fmt"

// FromBytes decomposes a raw channel-voice MIDI message (status byte
// plus up to two data bytes) into its nibble/channel/data parts. ok is
// false for a status byte outside the channel-voice range (0x80-0xEF)
// a listener never forwards anyway.
func FromBytes(status, data1, data2 byte, timeNanos int64) (nibble, channel, d1, d2 int, ok bool) {
	if status < 0x80 || status > 0xEF {
		return 0, 0, 0, 0, false
	}
	return int(status >> 4), int(status & 0x0F), int(data1), int(data2), true
}

// ToBytes is the inverse of FromBytes, for building a wire message out
// of a MIDIMessage (used by tests).
func ToBytes(nibble, channel, d1, d2 int) (status, data1, data2 byte, err error) {
	if nibble < 0x8 || nibble > 0xE {
		return 0, 0, 0, fmt.Errorf("midimsg: status nibble %d out of channel-voice range", nibble)
	}
	if channel < 0 || channel > 15 {
		return 0, 0, 0, fmt.Errorf("midimsg: channel %d out of range", channel)
	}
	return byte(nibble<<4) | byte(channel), byte(d1), byte(d2), nil
}

// Names for the status nibbles the dispatch engine distinguishes.
const (
	NoteOff           = 0x8
	NoteOn            = 0x9
	PolyAftertouch    = 0xA
	ControlChange     = 0xB
	ProgramChange     = 0xC
	ChannelAftertouch = 0xD
	PitchBend         = 0xE
)

// SustainControllerNumber is MIDI CC 64, the physical sustain pedal.
const SustainControllerNumber = 64
