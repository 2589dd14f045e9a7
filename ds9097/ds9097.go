// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package ds9097 drives a 1-Wire bus through a passive serial adapter, a
// DS9097 or any UART wired to the data line with a diode or an open-drain
// buffer.
//
// The UART generates the slots: a 0xf0 character at 9600 baud is a reset
// pulse and, at 115200 baud, a 0xff character is a read or write-1 slot and
// a 0x00 character a write-0 slot. Each character sent reads back as the
// line carried it.
//
// # More details
//
// https://www.analog.com/en/resources/technical-articles/using-a-uart-to-implement-a-1wire-bus-master.html
package ds9097

import (
	"errors"
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"

	"github.com/GermanBionicSystems/onewire/ownet"
)

// Port is the part of serial.Port the adapter uses.
type Port interface {
	io.ReadWriter
	SetMode(mode *serial.Mode) error
	ResetInputBuffer() error
}

// Opts contains options to pass to the constructor.
type Opts struct {
	ResetBaud   int           // baud rate of the reset character
	SlotBaud    int           // baud rate of the slot characters
	ReadTimeout time.Duration // how long to wait for a character to come back, used by Open
}

// DefaultOpts is the recommended default options.
var DefaultOpts = Opts{
	ResetBaud:   9600,
	SlotBaud:    115200,
	ReadTimeout: 100 * time.Millisecond,
}

// Open opens the serial port name and returns the adapter on it.
func Open(name string, opts *Opts) (*Dev, error) {
	if opts == nil {
		opts = &DefaultOpts
	}
	p, err := serial.Open(name, &serial.Mode{BaudRate: opts.SlotBaud})
	if err != nil {
		return nil, fmt.Errorf("ds9097: %w", err)
	}
	if err := p.SetReadTimeout(opts.ReadTimeout); err != nil {
		p.Close()
		return nil, fmt.Errorf("ds9097: %w", err)
	}
	d, err := New(p, opts)
	if err != nil {
		p.Close()
		return nil, err
	}
	d.name = name
	return d, nil
}

// New returns the adapter on an open port.
func New(p Port, opts *Opts) (*Dev, error) {
	if opts == nil {
		opts = &DefaultOpts
	}
	if opts.ResetBaud <= 0 || opts.SlotBaud <= 0 {
		return nil, errors.New("ds9097: invalid baud rate")
	}
	d := &Dev{port: p, opts: *opts}
	if err := d.setBaud(opts.SlotBaud); err != nil {
		return nil, err
	}
	return d, nil
}

// Dev is a passive serial 1-Wire adapter. It implements ownet.LinkLayer.
//
// It supports neither overdrive, strong pull-up nor programming pulses.
// Dev is not safe for concurrent use; ownet.Session serializes access.
type Dev struct {
	port Port
	opts Opts
	name string
	mode serial.Mode
}

func (d *Dev) String() string {
	if d.name == "" {
		return "DS9097"
	}
	return "DS9097{" + d.name + "}"
}

// Halt implements conn.Resource.
func (d *Dev) Halt() error {
	return nil
}

// Close closes the port when it can be closed.
func (d *Dev) Close() error {
	if c, ok := d.port.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Reset implements ownet.LinkLayer.
//
// A line held low for the whole reset character is reported as
// ownet.ErrShorted.
func (d *Dev) Reset() (bool, error) {
	if err := d.setBaud(d.opts.ResetBaud); err != nil {
		return false, err
	}
	var r [1]byte
	err := d.exchange([]byte{0xf0}, r[:])
	if err2 := d.setBaud(d.opts.SlotBaud); err == nil {
		err = err2
	}
	if err != nil {
		return false, err
	}
	switch r[0] {
	case 0xf0:
		return false, nil
	case 0x00:
		return false, ownet.ErrShorted
	}
	return true, nil
}

// ReadBit implements ownet.LinkLayer.
func (d *Dev) ReadBit() (byte, error) {
	var r [1]byte
	if err := d.exchange([]byte{0xff}, r[:]); err != nil {
		return 0, err
	}
	return slotBit(r[0]), nil
}

// WriteBit implements ownet.LinkLayer.
func (d *Dev) WriteBit(bit byte) error {
	var r [1]byte
	return d.exchange([]byte{slotChar(bit)}, r[:])
}

// TouchByte implements ownet.LinkLayer.
func (d *Dev) TouchByte(b byte) (byte, error) {
	var w, r [8]byte
	for i := range w {
		w[i] = slotChar(b >> uint(i))
	}
	if err := d.exchange(w[:], r[:]); err != nil {
		return 0, err
	}
	var v byte
	for i, c := range r {
		v |= slotBit(c) << uint(i)
	}
	return v, nil
}

// SetSpeed implements ownet.LinkLayer. Only standard speed is available.
func (d *Dev) SetSpeed(ownet.Speed) (ownet.Speed, error) {
	return ownet.SpeedStandard, nil
}

// SetLevel implements ownet.LinkLayer. Only the normal level is available.
func (d *Dev) SetLevel(ownet.Level) (ownet.Level, error) {
	return ownet.LevelNormal, nil
}

// HasPowerDelivery implements ownet.LinkLayer.
func (d *Dev) HasPowerDelivery() bool { return false }

// HasOverdrive implements ownet.LinkLayer.
func (d *Dev) HasOverdrive() bool { return false }

// HasProgramPulse implements ownet.LinkLayer.
func (d *Dev) HasProgramPulse() bool { return false }

//

func (d *Dev) setBaud(baud int) error {
	if d.mode.BaudRate == baud {
		return nil
	}
	m := serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	if err := d.port.SetMode(&m); err != nil {
		return fmt.Errorf("ds9097: set %d baud: %w", baud, err)
	}
	d.mode = m
	return nil
}

// exchange sends w and reads back len(r) characters.
func (d *Dev) exchange(w, r []byte) error {
	if err := d.port.ResetInputBuffer(); err != nil {
		return fmt.Errorf("ds9097: %w", err)
	}
	if _, err := d.port.Write(w); err != nil {
		return fmt.Errorf("ds9097: %w", err)
	}
	for n := 0; n < len(r); {
		// A serial port returns no data and no error on timeout.
		m, err := d.port.Read(r[n:])
		if err != nil {
			return fmt.Errorf("ds9097: %w", err)
		}
		if m == 0 {
			return errTimeout
		}
		n += m
	}
	return nil
}

// slotChar is the character that makes a slot writing bit.
func slotChar(bit byte) byte {
	if bit&1 != 0 {
		return 0xff
	}
	return 0x00
}

// slotBit decodes the character read back from a slot. Any device holding
// the line low corrupts the character.
func slotBit(c byte) byte {
	if c == 0xff {
		return 1
	}
	return 0
}

var errTimeout = errors.New("ds9097: no echo from the adapter")

var _ ownet.LinkLayer = &Dev{}
