// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ownet

// Speed is the timing mode of the bus.
type Speed int

const (
	// SpeedStandard is the default timing every device supports.
	SpeedStandard Speed = iota
	// SpeedOverdrive is the faster timing negotiated with OverdriveAccess.
	SpeedOverdrive
)

func (s Speed) String() string {
	switch s {
	case SpeedStandard:
		return "standard"
	case SpeedOverdrive:
		return "overdrive"
	default:
		return "unknown"
	}
}

// Level is the electrical drive level of the bus.
type Level int

const (
	// LevelNormal is the passive or active weak pull-up.
	LevelNormal Level = iota
	// LevelStrongPullup delivers power to parasitically powered devices, for
	// example during a temperature conversion or an EEPROM write.
	LevelStrongPullup
	// LevelProgram is the 12V EPROM programming pulse.
	LevelProgram
)

func (l Level) String() string {
	switch l {
	case LevelNormal:
		return "normal"
	case LevelStrongPullup:
		return "strong pull-up"
	case LevelProgram:
		return "program"
	default:
		return "unknown"
	}
}

// LinkLayer is implemented by a host adapter driving the physical bus.
//
// Bits are the low bit of a byte. TouchByte sends the byte least significant
// bit first and returns what the open-drain line carried during each slot: a
// 1 written by the host reads back 0 when any device holds the line low.
//
// Errors returned by a LinkLayer are faults of the adapter itself unless they
// implement onewire.BusError.
type LinkLayer interface {
	// Reset issues a reset pulse and reports whether any device answered with
	// a presence pulse.
	Reset() (bool, error)
	// ReadBit issues a read slot.
	ReadBit() (byte, error)
	// WriteBit issues a write slot.
	WriteBit(bit byte) error
	// TouchByte writes 8 slots and returns the bits seen on the line.
	TouchByte(b byte) (byte, error)
	// SetSpeed switches the timing and returns the speed now in effect.
	SetSpeed(s Speed) (Speed, error)
	// SetLevel switches the drive level and returns the level now in effect.
	SetLevel(l Level) (Level, error)

	HasPowerDelivery() bool
	HasOverdrive() bool
	HasProgramPulse() bool
}

// Tripleter is implemented by adapters that perform a search step in
// hardware: two read slots followed by the write of the chosen branch.
//
// direction is the branch to take when the two reads are both 0. When the
// reads differ the adapter takes the branch given by id.
type Tripleter interface {
	Triplet(direction byte) (id, cmp, taken byte, err error)
}

// PowerToucher is implemented by adapters that arm the strong pull-up before
// a byte and switch it on at the end of its last slot, as the pull-up must
// follow the byte without a gap.
type PowerToucher interface {
	TouchBytePower(b byte) (byte, error)
}
