// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ds248x

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/i2c"

	"github.com/GermanBionicSystems/onewire/ownet"
)

// PupOhm controls the strength of the passive pull-up resistor
// on the 1-wire data line. The default value is 1000Ω.
type PupOhm uint8

const (
	// R500Ω passive pull-up resistor.
	R500Ω = 4
	// R1000Ω passive pull-up resistor.
	R1000Ω = 6
)

// Opts contains options to pass to the constructor.
type Opts struct {
	PassivePullup bool // false:use active pull-up, true: disable active pullup

	// The following options are only available on the ds2483 (not ds2482-100).
	// The actual value used is the closest possible value (rounded up or down).
	ResetLow       time.Duration // reset low time, range 440μs..740μs
	PresenceDetect time.Duration // presence detect sample time, range 58μs..76μs
	Write0Low      time.Duration // write zero low time, range 52μs..70μs
	Write0Recovery time.Duration // write zero recovery time, range 2750ns..25250ns
	PullupRes      PupOhm        // passive pull-up resistance, true: 500Ω, false: 1kΩ
}

// DefaultOpts is the recommended default options.
var DefaultOpts = Opts{
	PassivePullup:  false,
	ResetLow:       560 * time.Microsecond,
	PresenceDetect: 68 * time.Microsecond,
	Write0Low:      64 * time.Microsecond,
	Write0Recovery: 5250 * time.Nanosecond,
	PullupRes:      R1000Ω,
}

// New returns a link layer that drives a 1-Wire bus through a DS2482/DS2483
// controller over I²C.
//
// Pass it to ownet.New to access the devices on the bus.
//
// Valid I²C addresses are 0x18, 0x19, 0x20 and 0x21.
func New(i i2c.Bus, addr uint16, opts *Opts) (*Dev, error) {
	switch addr {
	case 0x18, 0x19, 0x20, 0x21:
	default:
		return nil, errors.New("ds248x: given address not supported by device")
	}
	if opts == nil {
		opts = &DefaultOpts
	}
	d := &Dev{i2c: &i2c.Dev{Bus: i, Addr: addr}}
	if err := d.makeDev(opts); err != nil {
		return nil, err
	}
	return d, nil
}

// Dev is a handle to a ds248x device and it implements ownet.LinkLayer,
// ownet.Tripleter and ownet.PowerToucher.
//
// Dev implements a persistent error model: if a fatal error is encountered it
// places itself into an error state and immediately returns the last error on
// all subsequent calls. A fresh Dev, which reinitializes the hardware, must be
// created to proceed.
//
// A persistent error is only set when there is a problem with the ds248x
// device itself (or the I²C bus used to access it). A short on the 1-wire bus
// does not cause a persistent error and is reported as ownet.ErrShorted.
type Dev struct {
	sync.Mutex               // serializes I²C sequences
	i2c        conn.Conn     // i2c device handle for the ds248x
	isDS248x   int           // 0: ds2482-100 1: ds2482-800 2: ds2483,
	cfg        byte          // configuration register, lower nibble
	tReset     time.Duration // time to perform a 1-wire reset
	tSlot      time.Duration // time to perform a 1-bit 1-wire read/write
	err        error         // persistent error, device will no longer operate
}

func (d *Dev) String() string {
	switch d.isDS248x {
	case isDS2482x100:
		return fmt.Sprintf("DS2482-100{%s}", d.i2c)
	case isDS2482x800:
		return fmt.Sprintf("DS2482-800{%s}", d.i2c)
	case isDS2483:
		return fmt.Sprintf("DS2483{%s}", d.i2c)
	default:
		return fmt.Sprintf("Undefined{%s}", d.i2c)
	}
}

// Halt implements conn.Resource.
//
// It drops the strong pull-up.
func (d *Dev) Halt() error {
	d.Lock()
	defer d.Unlock()
	d.writeConfig(d.cfg &^ cfgSPU)
	return d.err
}

// Reset implements ownet.LinkLayer.
func (d *Dev) Reset() (bool, error) {
	d.Lock()
	defer d.Unlock()
	d.i2cTx([]byte{cmd1WReset}, nil)
	status := d.waitIdle(d.tReset)
	if d.err != nil {
		return false, d.err
	}
	// The reset ends any strong pull-up.
	d.cfg &^= cfgSPU
	if status&statusSD != 0 {
		return false, ownet.ErrShorted
	}
	return status&statusPPD != 0, nil
}

// ReadBit implements ownet.LinkLayer.
func (d *Dev) ReadBit() (byte, error) {
	d.Lock()
	defer d.Unlock()
	b := d.bit(1)
	return b, d.err
}

// WriteBit implements ownet.LinkLayer.
func (d *Dev) WriteBit(bit byte) error {
	d.Lock()
	defer d.Unlock()
	d.bit(bit)
	return d.err
}

// TouchByte implements ownet.LinkLayer.
//
// 0xff is sent as a byte read and 0x00 as a byte write. Any other byte is
// sent one slot at a time, so that its read slots report the line.
func (d *Dev) TouchByte(b byte) (byte, error) {
	d.Lock()
	defer d.Unlock()
	r := d.touch(b, false)
	return r, d.err
}

// TouchBytePower implements ownet.PowerToucher.
func (d *Dev) TouchBytePower(b byte) (byte, error) {
	d.Lock()
	defer d.Unlock()
	r := d.touch(b, true)
	return r, d.err
}

// Triplet implements ownet.Tripleter.
func (d *Dev) Triplet(direction byte) (id, cmp, taken byte, err error) {
	d.Lock()
	defer d.Unlock()
	var dir byte
	if direction != 0 {
		dir = 0x80
	}
	d.i2cTx([]byte{cmd1WTriplet, dir}, nil)
	// In theory 3*tSlot but it's actually overlapped.
	status := d.waitIdle(0)
	if d.err != nil {
		return 0, 0, 0, d.err
	}
	if status&statusSBR != 0 {
		id = 1
	}
	if status&statusTSB != 0 {
		cmp = 1
	}
	return id, cmp, status >> 7, nil
}

// SetSpeed implements ownet.LinkLayer.
func (d *Dev) SetSpeed(s ownet.Speed) (ownet.Speed, error) {
	d.Lock()
	defer d.Unlock()
	c := d.cfg &^ cfg1WS
	if s == ownet.SpeedOverdrive {
		c |= cfg1WS
	}
	d.writeConfig(c)
	if d.cfg&cfg1WS != 0 {
		return ownet.SpeedOverdrive, d.err
	}
	return ownet.SpeedStandard, d.err
}

// SetLevel implements ownet.LinkLayer.
//
// A strong pull-up set here starts at the end of the next slot. Program
// pulses are not supported.
func (d *Dev) SetLevel(l ownet.Level) (ownet.Level, error) {
	d.Lock()
	defer d.Unlock()
	switch l {
	case ownet.LevelNormal:
		d.writeConfig(d.cfg &^ cfgSPU)
	case ownet.LevelStrongPullup:
		d.writeConfig(d.cfg | cfgSPU)
	}
	if d.cfg&cfgSPU != 0 {
		return ownet.LevelStrongPullup, d.err
	}
	return ownet.LevelNormal, d.err
}

// HasPowerDelivery implements ownet.LinkLayer.
func (d *Dev) HasPowerDelivery() bool { return true }

// HasOverdrive implements ownet.LinkLayer.
func (d *Dev) HasOverdrive() bool { return true }

// HasProgramPulse implements ownet.LinkLayer.
func (d *Dev) HasProgramPulse() bool { return false }

// ChannelSelect function is for selecting one of eight 1-w channels on DS2482-800.
// On other chips it does nothing. Function silently limits channel selection between
// 0 and 7. It is expected that application keeps track of
// with 1-w device is connected to with channel.
//
// Communication error is returned if present.
func (d *Dev) ChannelSelect(ch int) (err error) {
	if d.isDS248x != isDS2482x800 {
		return nil
	}
	d.Lock()
	defer d.Unlock()
	ch = min(max(ch, 0), 7)
	if err = d.i2c.Tx([]byte{cmdChannelSelect, cscWrite[ch]}, nil); err != nil {
		return fmt.Errorf("ds2482-800: error while selecting channel: %s", err)
	}
	return nil
}

// SelectedChannel function is to read with 1-w channel selected on DS2482-800.
// On other chips it always returns 0.
//
// On error returns 255.
func (d *Dev) SelectedChannel() int {
	if d.isDS248x != isDS2482x800 {
		return 0
	}
	d.Lock()
	defer d.Unlock()
	var sch [1]byte
	if err := d.i2c.Tx([]byte{cmdSetReadPtr, regCSR}, sch[:]); err != nil {
		return 255
	}
	if ch := bytes.IndexByte(cscRead[:], sch[0]); ch >= 0 {
		return ch
	}
	return 255
}

//

// bit performs a single bit slot and returns the line it sampled.
func (d *Dev) bit(b byte) byte {
	var v byte
	if b&1 != 0 {
		v = 0x80
	}
	d.i2cTx([]byte{cmd1WBit, v}, nil)
	status := d.waitIdle(d.tSlot)
	if status&statusSBR != 0 {
		return 1
	}
	return 0
}

// touch sends b, arming the strong pull-up before the last slot when power
// is set.
func (d *Dev) touch(b byte, power bool) byte {
	switch b {
	case 0xff:
		if power {
			d.writeConfig(d.cfg | cfgSPU)
		}
		var r [1]byte
		d.i2cTx([]byte{cmd1WRead}, nil)
		d.waitIdle(7 * d.tSlot)
		d.i2cTx([]byte{cmdSetReadPtr, regRDR}, r[:])
		return r[0]
	case 0x00:
		if power {
			d.writeConfig(d.cfg | cfgSPU)
		}
		d.i2cTx([]byte{cmd1WWrite, b}, nil)
		d.waitIdle(7 * d.tSlot)
		return 0
	}
	var r byte
	for i := 0; i < 8; i++ {
		if power && i == 7 {
			d.writeConfig(d.cfg | cfgSPU)
		}
		r |= d.bit(b>>uint(i)) << uint(i)
	}
	return r
}

// writeConfig writes the lower nibble c to the configuration register and
// checks the value read back.
func (d *Dev) writeConfig(c byte) {
	var dcr [1]byte
	d.i2cTx([]byte{cmdWriteConfig, c&0x0f | ^c<<4}, dcr[:])
	if d.err != nil {
		return
	}
	if dcr[0] != c&0x0f {
		d.err = fmt.Errorf("ds248x: failure to write device config register, wrote %#x got %#x back", c, dcr[0])
		return
	}
	d.cfg = c & 0x0f
}

// i2cTx is a helper function to call i2c.Tx and handle the error by persisting
// it.
func (d *Dev) i2cTx(w, r []byte) {
	if d.err != nil {
		return
	}
	d.err = d.i2c.Tx(w, r)
}

// waitIdle waits for the one wire bus to be idle.
//
// It initially sleeps for the delay and then polls the status register and
// sleeps for a tenth of the delay each time the status register indicates that
// the bus is still busy. The last read status byte is returned.
//
// An overall timeout of 3ms is applied to the whole procedure. waitIdle uses
// the persistent error model and returns 0 if there is an error.
func (d *Dev) waitIdle(delay time.Duration) byte {
	if d.err != nil {
		return 0
	}
	// Overall timeout.
	tOut := time.Now().Add(3 * time.Millisecond)
	sleep(delay)
	for {
		// Read status register.
		var status [1]byte
		d.i2cTx(nil, status[:])
		// If bus idle complete, return status. This also returns if d.err!=nil
		// because in that case status[0]==0.
		if status[0]&status1WB == 0 {
			return status[0]
		}
		// If we're timing out return error. This is an error with the ds248x, not with
		// devices on the 1-wire bus, hence it is persistent.
		if time.Now().After(tOut) {
			d.err = errors.New("ds248x: timeout waiting for bus cycle to finish")
			return 0
		}
		// Try not to hog the kernel thread.
		sleep(delay / 10)
	}
}

func (d *Dev) makeDev(opts *Opts) error {
	d.tReset = 2 * opts.ResetLow
	d.tSlot = opts.Write0Low + opts.Write0Recovery

	// Issue a reset command.
	if err := d.i2c.Tx([]byte{cmdReset}, nil); err != nil {
		return fmt.Errorf("ds248x: error while resetting: %s", err)
	}

	// Read the status register to confirm that we have a responding ds248x
	var stat [1]byte
	if err := d.i2c.Tx([]byte{cmdSetReadPtr, regStatus}, stat[:]); err != nil {
		return fmt.Errorf("ds248x: error while reading status register: %s", err)
	}
	if stat[0] != 0x18 {
		return fmt.Errorf("ds248x: invalid status register value: %#x, expected 0x18", stat[0])
	}

	// Get the chip out of reset state at standard speed, without strong
	// pull-up.
	c := byte(cfgAPU)
	if opts.PassivePullup {
		c = 0
	}
	d.writeConfig(c)
	if d.err != nil {
		err := d.err
		d.err = nil
		return err
	}

	// Set the read ptr to the port configuration register to determine whether we have a
	// ds2483 vs ds2482-100. This will fail on devices that do not have a port config
	// register, such as the ds2482-100.
	if d.i2c.Tx([]byte{cmdSetReadPtr, regPCR}, nil) == nil {
		d.isDS248x = isDS2483
		buf := []byte{cmdAdjPort,
			byte(0x00 + ((opts.ResetLow/time.Microsecond - 430) / 20 & 0x0f)),
			byte(0x20 + ((opts.PresenceDetect/time.Microsecond - 55) / 2 & 0x0f)),
			byte(0x40 + ((opts.Write0Low/time.Microsecond - 51) / 2 & 0x0f)),
			byte(0x60 + (((opts.Write0Recovery-1250)/2500 + 5) & 0x0f)),
			byte(0x80 + (opts.PullupRes & 0x0f)),
		}
		if err := d.i2c.Tx(buf, nil); err != nil {
			return fmt.Errorf("ds248x: error while setting port config values: %s", err)
		}
	} else if d.i2c.Tx([]byte{cmdSetReadPtr, regCSR}, nil) == nil {
		d.isDS248x = isDS2482x800
		if err := d.i2c.Tx([]byte{cmdChannelSelect, cscWrite[0]}, nil); err != nil {
			return fmt.Errorf("ds2482-800: error while selecting channel: %s", err)
		}
	} else {
		d.isDS248x = isDS2482x100
	}
	return nil
}

var sleep = time.Sleep

var _ conn.Resource = &Dev{}
var _ ownet.LinkLayer = &Dev{}
var _ ownet.Tripleter = &Dev{}
var _ ownet.PowerToucher = &Dev{}

const (
	cmdReset         = 0xf0 // reset ds248x
	cmdSetReadPtr    = 0xe1 // set the read pointer
	cmdWriteConfig   = 0xd2 // write the device configuration
	cmdAdjPort       = 0xc3 // adjust 1-wire port (ds2483)
	cmdChannelSelect = 0xc3 // channel select (ds2482-800)
	cmd1WReset       = 0xb4 // reset the 1-wire bus
	cmd1WBit         = 0x87 // perform a single-bit transaction on the 1-wire bus
	cmd1WWrite       = 0xa5 // perform a byte write on the 1-wire bus
	cmd1WRead        = 0x96 // perform a byte read on the 1-wire bus
	cmd1WTriplet     = 0x78 // perform a triplet operation (2 bit reads, a bit write)

	regStatus = 0xf0 // read ptr for status register
	regRDR    = 0xe1 // read ptr for read-data register
	regPCR    = 0xb4 // read ptr for port configuration register
	regCSR    = 0xd2 // read ptr for channel selection register

	// Status register bits.
	status1WB = 0x01 // 1-wire busy
	statusPPD = 0x02 // presence pulse detected
	statusSD  = 0x04 // short detected
	statusSBR = 0x20 // single bit result
	statusTSB = 0x40 // triplet second bit

	// Configuration register bits.
	cfgAPU = 0x01 // active pull-up
	cfgSPU = 0x04 // strong pull-up
	cfg1WS = 0x08 // overdrive speed

	isDS2482x100 = 0 // DS2482-100 selected
	isDS2482x800 = 1 // DS2482-800 selected
	isDS2483     = 2 // DS2483 selected
)

// ds2482-800 channel selection codes to be written and read back.
var (
	cscWrite = [8]byte{0xf0, 0xe1, 0xd2, 0xc3, 0xb4, 0xa5, 0x96, 0x87}
	cscRead  = [8]byte{0xb8, 0xb1, 0xaa, 0xa3, 0x9c, 0x95, 0x8e, 0x87}
)
