// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ownettest

import (
	"math/bits"
	"sort"

	"github.com/GermanBionicSystems/onewire/ownet"
)

type devState int

const (
	stIdle     devState = iota // silent until the next reset
	stCommand                  // receiving a ROM command
	stSearch                   // taking part in a search pass
	stMatch                    // comparing a match rom address
	stReadROM                  // sending its address
	stSelected                 // running function commands
)

// Device is a simulated 1-Wire device.
type Device struct {
	Addr ownet.Address
	// Alarm makes the device answer alarm searches.
	Alarm bool
	// Overdrive makes the device accept overdrive match and skip.
	Overdrive bool
	// Detached devices ignore the bus.
	Detached bool

	// Flip inverts bit Flip-1 of the address the device answers searches
	// with, during the next FlipPasses search passes.
	Flip       int
	FlipPasses int

	// Reply is called each time the selected device completes receiving a
	// byte, with every byte received since it was selected. The returned
	// bytes are sent in the following read slots.
	Reply func(rx []byte) []byte
	// Received holds the bytes received since the device was last selected.
	Received []byte

	state    devState
	od       bool
	pos      int // bit position in the address
	phase    int // search slot within a triplet
	flipping bool
	cmd      byte
	in       byte
	inBits   int
	out      []byte
	outBit   int
}

// NewDevice returns a device of the given family with a valid address.
func NewDevice(family byte, serial uint64) *Device {
	return &Device{Addr: ownet.NewAddress(family, serial)}
}

// Selected reports whether the device is addressed and receiving function
// commands.
func (d *Device) Selected() bool {
	return d.state == stSelected
}

// InOverdrive reports whether the device runs at overdrive speed.
func (d *Device) InOverdrive() bool {
	return d.od
}

// reset handles a reset pulse at the given speed and returns the presence
// answer. A standard speed reset also drops overdrive.
func (d *Device) reset(s ownet.Speed) bool {
	d.state = stIdle
	if d.Detached {
		return false
	}
	if s == ownet.SpeedStandard {
		d.od = false
	} else if !d.od {
		return false
	}
	d.state = stCommand
	d.cmd = 0
	d.pos = 0
	return true
}

// listening reports whether the device decodes slots at speed s.
func (d *Device) listening(s ownet.Speed) bool {
	return !d.Detached && d.state != stIdle && d.od == (s == ownet.SpeedOverdrive)
}

func (d *Device) searchBit(i int) byte {
	b := d.Addr.Bit(i)
	if d.flipping && d.Flip == i+1 {
		b ^= 1
	}
	return b
}

// drive returns what the device puts on the line in the current slot, 1
// meaning released.
func (d *Device) drive() byte {
	switch d.state {
	case stSearch:
		switch d.phase {
		case 0:
			return d.searchBit(d.pos)
		case 1:
			return d.searchBit(d.pos) ^ 1
		}
	case stReadROM:
		return d.Addr.Bit(d.pos)
	case stSelected:
		if len(d.out) != 0 {
			return d.out[0] >> uint(d.outBit) & 1
		}
	}
	return 1
}

// sample consumes the state of the line at the end of a slot.
func (d *Device) sample(line byte) {
	switch d.state {
	case stCommand:
		d.cmd |= line << uint(d.pos)
		d.pos++
		if d.pos == 8 {
			d.pos = 0
			d.command(d.cmd)
		}
	case stSearch:
		if d.phase < 2 {
			d.phase++
			return
		}
		if line != d.searchBit(d.pos) {
			d.state = stIdle
			return
		}
		d.phase = 0
		d.pos++
		if d.pos == 64 {
			d.selected()
		}
	case stMatch:
		if line != d.Addr.Bit(d.pos) {
			d.state = stIdle
			return
		}
		d.pos++
		if d.pos == 64 {
			d.selected()
		}
	case stReadROM:
		d.pos++
		if d.pos == 64 {
			d.selected()
		}
	case stSelected:
		if len(d.out) != 0 {
			d.outBit++
			if d.outBit == 8 {
				d.out = d.out[1:]
				d.outBit = 0
			}
			return
		}
		d.in |= line << uint(d.inBits)
		d.inBits++
		if d.inBits == 8 {
			d.Received = append(d.Received, d.in)
			d.in, d.inBits = 0, 0
			if d.Reply != nil {
				d.out = append(d.out, d.Reply(d.Received)...)
			}
		}
	}
}

func (d *Device) command(c byte) {
	switch c {
	case 0xf0, 0xec:
		if c == 0xec && !d.Alarm {
			d.state = stIdle
			return
		}
		d.state = stSearch
		d.phase = 0
		d.flipping = d.FlipPasses > 0
		if d.flipping {
			d.FlipPasses--
		}
	case 0x55:
		d.state = stMatch
	case 0x69:
		if !d.Overdrive {
			d.state = stIdle
			return
		}
		d.od = true
		d.state = stMatch
	case 0x33:
		d.state = stReadROM
	case 0xcc:
		d.selected()
	case 0x3c:
		if !d.Overdrive {
			d.state = stIdle
			return
		}
		d.od = true
		d.selected()
	default:
		d.state = stIdle
	}
}

func (d *Device) selected() {
	d.state = stSelected
	d.Received = nil
	d.in, d.inBits = 0, 0
	d.out, d.outBit = nil, 0
}

// SortSearchOrder sorts addresses in the order a search finds them: by
// their bits compared from bit 0 of the family code upwards, 0 first.
func SortSearchOrder(a []ownet.Address) {
	sort.Slice(a, func(i, j int) bool {
		return bits.Reverse64(uint64(a[i])) < bits.Reverse64(uint64(a[j]))
	})
}
