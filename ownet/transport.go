// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ownet

import (
	"bytes"
	"errors"

	"github.com/GermanBionicSystems/onewire/crc"
)

// verifyThreshold is the number of address bits that must read back as
// expected for Verify to report the device present. It is a heuristic taken
// as is: a hint, not a proof of presence.
const verifyThreshold = 8

// CRCKind selects the checksum a device returns after a program byte
// command.
type CRCKind int

const (
	CRC8 CRCKind = iota
	CRC16
)

// Reset issues a reset pulse and reports whether any device answered.
func (s *Session) Reset() (bool, error) {
	return s.reset()
}

func (s *Session) reset() (bool, error) {
	present, err := s.link.Reset()
	return present, linkErr("reset", err)
}

// Access resets the bus and selects the device at the selected address with
// a match rom command. The device is then ready for its own command bytes.
func (s *Session) Access() error {
	present, err := s.reset()
	if err != nil {
		return err
	}
	if !present {
		return ErrNoDevices
	}
	buf := make([]byte, 9)
	buf[0] = cmdMatch
	copy(buf[1:], s.state.rom.Bytes())
	sent := append([]byte(nil), buf...)
	if err := s.touch(buf); err != nil {
		return err
	}
	if !bytes.Equal(buf, sent) {
		return ErrEchoMismatch
	}
	return nil
}

// Verify reports whether the device at the selected address is still on the
// bus, or still on the bus and in alarm state when alarmOnly is set.
//
// It runs one search pass that follows the selected address without
// backtracking and counts the bits for which the bus answered as expected.
// The count is only required to reach a small fixed threshold, so Verify is a
// presence hint rather than a guarantee.
func (s *Session) Verify(alarmOnly bool) (bool, error) {
	// Search command followed by 64 triplets: two read slots and the
	// expected bit.
	pkt := make([]byte, 1+24)
	pkt[0] = cmdSearch
	if alarmOnly {
		pkt[0] = cmdAlarmSearch
	}
	v := bitVector(pkt[1:])
	for i := range pkt[1:] {
		pkt[1+i] = 0xff
	}
	rom := s.state.rom
	for i := 0; i < 64; i++ {
		v.set(3*i+2, rom.Bit(i))
	}

	present, err := s.reset()
	if err != nil || !present {
		return false, err
	}
	if err := s.touch(pkt); err != nil {
		return false, err
	}

	good := 0
	for i := 0; i < 64; i++ {
		tst := v.get(3*i)<<1 | v.get(3*i+1)
		if tst == 3 {
			// No device on the line.
			good = 0
			break
		}
		if b := rom.Bit(i); (b == 1 && tst == 2) || (b == 0 && tst == 1) {
			good++
		}
	}
	return good >= verifyThreshold, nil
}

// OverdriveAccess selects the device at the selected address with an
// overdrive match rom command, leaving the bus at overdrive speed.
//
// On failure the bus is put back to standard speed.
func (s *Session) OverdriveAccess() error {
	if !s.link.HasOverdrive() {
		return ErrUnsupported
	}
	err := s.overdriveAccess()
	if err != nil {
		if _, err2 := s.link.SetSpeed(SpeedStandard); err2 != nil {
			err = errors.Join(err, linkErr("set speed", err2))
		}
	}
	return err
}

func (s *Session) overdriveAccess() error {
	if _, err := s.link.SetLevel(LevelNormal); err != nil {
		return linkErr("set level", err)
	}
	if _, err := s.link.SetSpeed(SpeedStandard); err != nil {
		return linkErr("set speed", err)
	}
	present, err := s.reset()
	if err != nil {
		return err
	}
	if !present {
		return ErrNoDevices
	}
	if err := s.WriteByte(cmdOverdriveMatch); err != nil {
		return err
	}
	sp, err := s.link.SetSpeed(SpeedOverdrive)
	if err != nil {
		return linkErr("set speed", err)
	}
	if sp != SpeedOverdrive {
		return ErrUnsupported
	}
	buf := s.state.rom.Bytes()
	if err := s.touch(buf); err != nil {
		return err
	}
	if !bytes.Equal(buf, s.state.rom.Bytes()) {
		return ErrEchoMismatch
	}
	return nil
}

// Exchange optionally resets the bus, then sends every byte of buf and
// replaces it with the byte seen on the bus. To read n bytes, fill buf with
// 0xff: devices answer by pulling bits low.
//
// buf may hold at most MaxBlock bytes.
func (s *Session) Exchange(buf []byte, doReset bool) error {
	if len(buf) > s.opts.MaxBlock {
		return ErrBlockTooLong
	}
	if doReset {
		present, err := s.reset()
		if err != nil {
			return err
		}
		if !present {
			return ErrNoDevices
		}
	}
	return s.touch(buf)
}

func (s *Session) touch(buf []byte) error {
	for i, b := range buf {
		r, err := s.link.TouchByte(b)
		if err != nil {
			return linkErr("touch byte", err)
		}
		buf[i] = r
	}
	return nil
}

// TouchBit sends one bit and returns the bit seen on the bus. Sending 1 is a
// read slot.
func (s *Session) TouchBit(bit byte) (byte, error) {
	if bit&1 != 0 {
		return s.ReadBit()
	}
	return 0, s.WriteBit(0)
}

// ReadBit issues a read slot.
func (s *Session) ReadBit() (byte, error) {
	b, err := s.link.ReadBit()
	return b, linkErr("read bit", err)
}

// WriteBit issues a write slot.
func (s *Session) WriteBit(bit byte) error {
	return linkErr("write bit", s.link.WriteBit(bit&1))
}

// TouchByte sends b and returns the byte seen on the bus.
func (s *Session) TouchByte(b byte) (byte, error) {
	r, err := s.link.TouchByte(b)
	return r, linkErr("touch byte", err)
}

// ReadByte reads one byte.
func (s *Session) ReadByte() (byte, error) {
	return s.TouchByte(0xff)
}

// WriteByte sends b and checks its echo.
func (s *Session) WriteByte(b byte) error {
	r, err := s.TouchByte(b)
	if err != nil {
		return err
	}
	if r != b {
		return ErrEchoMismatch
	}
	return nil
}

// WriteBytePower sends b then switches the bus to strong pull-up to power a
// device for its next operation. Use SetLevel(LevelNormal) to end it.
func (s *Session) WriteBytePower(b byte) error {
	r, err := s.touchPower(b)
	if err != nil {
		return err
	}
	if r != b {
		return ErrEchoMismatch
	}
	return nil
}

// ReadBytePower reads one byte then switches the bus to strong pull-up.
func (s *Session) ReadBytePower() (byte, error) {
	return s.touchPower(0xff)
}

// TouchBytePower sends b, returns the byte seen on the bus and leaves the bus
// in strong pull-up after its last slot. Use SetLevel(LevelNormal) to end it.
func (s *Session) TouchBytePower(b byte) (byte, error) {
	return s.touchPower(b)
}

// ReadBitPower issues a read slot and switches the bus to strong pull-up if
// the bit read equals applyPowerResponse. The bit read is returned either
// way; the bus stays at its current level on a different answer.
func (s *Session) ReadBitPower(applyPowerResponse byte) (byte, error) {
	if !s.link.HasPowerDelivery() {
		return 0, ErrUnsupported
	}
	b, err := s.ReadBit()
	if err != nil {
		return 0, err
	}
	if b != applyPowerResponse&1 {
		return b, nil
	}
	return b, s.strongPullup()
}

// touchPower sends b and leaves the bus in strong pull-up after its last
// slot.
func (s *Session) touchPower(b byte) (byte, error) {
	if !s.link.HasPowerDelivery() {
		return 0, ErrUnsupported
	}
	if p, ok := s.link.(PowerToucher); ok {
		r, err := p.TouchBytePower(b)
		return r, linkErr("touch byte power", err)
	}
	r, err := s.TouchByte(b)
	if err != nil {
		return 0, err
	}
	return r, s.strongPullup()
}

func (s *Session) strongPullup() error {
	l, err := s.link.SetLevel(LevelStrongPullup)
	if err != nil {
		return linkErr("set level", err)
	}
	if l != LevelStrongPullup {
		return ErrUnsupported
	}
	return nil
}

// SetSpeed switches the bus timing and returns the speed in effect.
func (s *Session) SetSpeed(sp Speed) (Speed, error) {
	r, err := s.link.SetSpeed(sp)
	return r, linkErr("set speed", err)
}

// SetLevel switches the bus drive level and returns the level in effect.
func (s *Session) SetLevel(l Level) (Level, error) {
	r, err := s.link.SetLevel(l)
	return r, linkErr("set level", err)
}

// ProgramPulse sends an EPROM programming pulse.
func (s *Session) ProgramPulse() error {
	if !s.link.HasProgramPulse() {
		return ErrUnsupported
	}
	l, err := s.link.SetLevel(LevelProgram)
	if err != nil {
		return linkErr("set level", err)
	}
	if l != LevelProgram {
		return ErrUnsupported
	}
	sleep(s.opts.ProgramPulse)
	_, err = s.link.SetLevel(LevelNormal)
	return linkErr("set level", err)
}

// ProgramByte writes data at addr of an EPROM device and returns the byte
// read back after the programming pulse.
//
// With doAccess the device is selected and sent cmd and addr first; without
// it the device must already be in a write sequence and the checksum is
// seeded with addr, as EPROMs do for the following bytes. The checksum the
// device returns is checked before the pulse is applied.
func (s *Session) ProgramByte(data byte, addr uint16, cmd byte, kind CRCKind, doAccess bool) (byte, error) {
	if doAccess {
		if err := s.Access(); err != nil {
			return 0, err
		}
		for _, b := range []byte{cmd, byte(addr), byte(addr >> 8)} {
			if err := s.WriteByte(b); err != nil {
				return 0, err
			}
		}
	}
	if err := s.WriteByte(data); err != nil {
		return 0, err
	}

	switch kind {
	case CRC8:
		var c crc.CRC8
		if doAccess {
			c.Write([]byte{cmd, byte(addr), byte(addr >> 8)})
		} else {
			c.Reset(byte(addr))
		}
		c.Update(data)
		r, err := s.ReadByte()
		if err != nil {
			return 0, err
		}
		if c.Update(r) != 0 {
			return 0, ErrCRC
		}
	default:
		var c crc.CRC16
		if doAccess {
			c.Write([]byte{cmd, byte(addr), byte(addr >> 8)})
		} else {
			c.Reset(addr)
		}
		c.Update(data)
		var r [2]byte
		for i := range r {
			b, err := s.ReadByte()
			if err != nil {
				return 0, err
			}
			r[i] = b
		}
		if c.Write(r[:]) != crc.Residue16 {
			return 0, ErrCRC
		}
	}

	if err := s.ProgramPulse(); err != nil {
		return 0, err
	}
	return s.ReadByte()
}
