// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package ownettest is meant to be used to test drivers over a fake 1-Wire
// bus.
//
// Bus is an ownet.LinkLayer that simulates the open-drain data line slot by
// slot: every Device answers ROM commands (search, alarm search, match,
// overdrive match, skip, read) from its address and, once selected, runs its
// Reply function. The line carries the AND of what the host and every device
// drive, as on the real wire.
package ownettest

import (
	"periph.io/x/conn/v3/onewire"

	"github.com/GermanBionicSystems/onewire/ownet"
)

// Bus is a simulated 1-Wire bus. The zero value is an empty bus whose
// adapter supports every capability.
//
// Bus is not safe for concurrent use; ownet.Session serializes access.
type Bus struct {
	Devices []*Device

	// Shorted makes Reset report a short circuit.
	Shorted bool
	// Glitch pulls the line low during the listed slots, counted from 0 after
	// each reset.
	Glitch map[int]bool

	NoPowerDelivery bool
	NoOverdrive     bool
	NoProgramPulse  bool

	// Resets counts reset pulses, Slots counts bit slots since the last reset
	// and Pulses counts programming pulses.
	Resets int
	Slots  int
	Pulses int

	speed ownet.Speed
	level ownet.Level
}

// New returns a bus with the given devices attached.
func New(devices ...*Device) *Bus {
	return &Bus{Devices: devices}
}

func (b *Bus) String() string {
	return "ownettest"
}

// Speed returns the speed in effect.
func (b *Bus) Speed() ownet.Speed {
	return b.speed
}

// Level returns the level in effect.
func (b *Bus) Level() ownet.Level {
	return b.level
}

// Reset implements ownet.LinkLayer.
func (b *Bus) Reset() (bool, error) {
	if b.Shorted {
		return false, ownet.ErrShorted
	}
	b.Resets++
	b.Slots = 0
	present := false
	for _, d := range b.Devices {
		if d.reset(b.speed) {
			present = true
		}
	}
	return present, nil
}

// TouchBit runs one slot in which the host drives bit and returns the state
// of the line.
func (b *Bus) TouchBit(bit byte) byte {
	line := bit & 1
	for _, d := range b.Devices {
		if d.listening(b.speed) && d.drive() == 0 {
			line = 0
		}
	}
	if b.Glitch[b.Slots] {
		line = 0
	}
	b.Slots++
	for _, d := range b.Devices {
		if d.listening(b.speed) {
			d.sample(line)
		}
	}
	return line
}

// ReadBit implements ownet.LinkLayer.
func (b *Bus) ReadBit() (byte, error) {
	return b.TouchBit(1), nil
}

// WriteBit implements ownet.LinkLayer.
func (b *Bus) WriteBit(bit byte) error {
	b.TouchBit(bit)
	return nil
}

// TouchByte implements ownet.LinkLayer.
func (b *Bus) TouchByte(v byte) (byte, error) {
	var r byte
	for i := 0; i < 8; i++ {
		r |= b.TouchBit(v>>uint(i)) << uint(i)
	}
	return r, nil
}

// SetSpeed implements ownet.LinkLayer.
func (b *Bus) SetSpeed(s ownet.Speed) (ownet.Speed, error) {
	if s == ownet.SpeedOverdrive && b.NoOverdrive {
		return b.speed, nil
	}
	b.speed = s
	return s, nil
}

// SetLevel implements ownet.LinkLayer.
func (b *Bus) SetLevel(l ownet.Level) (ownet.Level, error) {
	switch {
	case l == ownet.LevelStrongPullup && b.NoPowerDelivery:
		return b.level, nil
	case l == ownet.LevelProgram && b.NoProgramPulse:
		return b.level, nil
	case l == ownet.LevelProgram:
		b.Pulses++
	}
	b.level = l
	return l, nil
}

// HasPowerDelivery implements ownet.LinkLayer.
func (b *Bus) HasPowerDelivery() bool { return !b.NoPowerDelivery }

// HasOverdrive implements ownet.LinkLayer.
func (b *Bus) HasOverdrive() bool { return !b.NoOverdrive }

// HasProgramPulse implements ownet.LinkLayer.
func (b *Bus) HasProgramPulse() bool { return !b.NoProgramPulse }

// Sorted returns the addresses of the attached devices in the order a search
// finds them.
func (b *Bus) Sorted() []ownet.Address {
	out := make([]ownet.Address, 0, len(b.Devices))
	for _, d := range b.Devices {
		if !d.Detached {
			out = append(out, d.Addr)
		}
	}
	SortSearchOrder(out)
	return out
}

var _ ownet.LinkLayer = &Bus{}

// Addresses converts periph addresses for comparison in tests.
func Addresses(in []onewire.Address) []ownet.Address {
	out := make([]ownet.Address, len(in))
	for i, a := range in {
		out[i] = ownet.Address(a)
	}
	return out
}
