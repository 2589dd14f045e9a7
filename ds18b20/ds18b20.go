// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package ds18b20 reads DS18B20 and DS18S20 temperature sensors selected
// through an ownet.Session.
package ds18b20

import (
	"bytes"
	"errors"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/physic"

	"github.com/GermanBionicSystems/onewire/crc"
	"github.com/GermanBionicSystems/onewire/ownet"
)

// Family code of the specific device type
type Family byte

func (f Family) String() string {
	switch f {
	case DS18S20:
		return "DS18S20"
	case DS18B20:
		return "DS18B20"
	default:
		return "unknown"
	}
}

const DS18B20 Family = 0x28
const DS18S20 Family = 0x10

const (
	cmdSkipROM         = 0xcc
	cmdConvert         = 0x44
	cmdReadScratchpad  = 0xbe
	cmdWriteScratchpad = 0x4e
	cmdCopyScratchpad  = 0x48
)

// ConvertAll performs a conversion on all DS18B20 devices on the bus.
//
// During the conversion it places the bus in strong pull-up mode, when the
// adapter can, to power parasitic devices and returns when the conversions
// have completed. This time period is determined by the maximum resolution of
// all devices on the bus and must be provided.
//
// ConvertAll holds the session lock and sleeps for the conversion, which
// takes from 94ms to 752ms.
func ConvertAll(s *ownet.Session, maxResolutionBits int) error {
	if maxResolutionBits < 9 || maxResolutionBits > 12 {
		return errors.New("ds18b20: invalid maxResolutionBits")
	}
	s.Lock()
	defer s.Unlock()
	if err := skipROM(s); err != nil {
		return err
	}
	return powered(s, cmdConvert, conversionTime(maxResolutionBits))
}

// StartAll starts a conversion on all DS18B20 devices on the bus.
// Similar to ConvertAll but returns without waiting for conversion to finish.
// To be used in conjunction with LastTemp() function. Conversion timing must be
// handled by other means.
//
// The bus is left in strong pull-up when the adapter can deliver power; call
// s.SetLevel(ownet.LevelNormal) once the conversion time has elapsed.
func StartAll(s *ownet.Session) error {
	s.Lock()
	defer s.Unlock()
	if err := skipROM(s); err != nil {
		return err
	}
	if !s.Link().HasPowerDelivery() {
		return s.WriteByte(cmdConvert)
	}
	return s.WriteBytePower(cmdConvert)
}

// skipROM resets the bus and addresses every device at once.
func skipROM(s *ownet.Session) error {
	present, err := s.Reset()
	if err != nil {
		return err
	}
	if !present {
		return ownet.ErrNoDevices
	}
	return s.WriteByte(cmdSkipROM)
}

// New returns an object that communicates over 1-wire to the DS18B20 sensor
// with the specified 64-bit address.
//
// resolutionBits must be in the range 9..12 and determines how many bits of
// precision the readings have. The resolution affects the conversion time:
// 9bits:94ms, 10bits:188ms, 11bits:375ms, 12bits:750ms.
func New(s *ownet.Session, addr ownet.Address, resolutionBits int) (*Dev, error) {
	if resolutionBits < 9 || resolutionBits > 12 {
		return nil, errors.New("ds18b20: invalid resolutionBits")
	}
	f := Family(addr.Family())
	if f != DS18B20 && f != DS18S20 {
		return nil, errors.New("ds18b20: address is not a temperature sensor")
	}

	d := &Dev{s: s, addr: addr, resolution: resolutionBits}

	// Reading the scratchpad tells whether we can talk to the device and how
	// it is configured.
	spad, err := d.readScratchpad()
	if err != nil {
		return nil, err
	}

	// Change the resolution, if necessary (datasheet p.6). The DS18S20 has a
	// fixed resolution.
	if f == DS18B20 && int(spad[4]>>5) != resolutionBits-9 {
		if err := d.tx([]byte{cmdWriteScratchpad, 0, 0, byte((resolutionBits-9)<<5) | 0x1f}, nil); err != nil {
			return nil, err
		}
		// Copy the scratchpad to EEPROM; the write needs power for 10ms.
		if err := d.power(cmdCopyScratchpad, 10*time.Millisecond); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// Dev is a handle to a Dallas Semi / Maxim DS18B20 temperature sensor on a
// 1-wire bus.
type Dev struct {
	s          *ownet.Session
	addr       ownet.Address
	resolution int // resolution in bits (9..12)
}

func (d *Dev) Family() Family {
	return Family(d.addr.Family())
}

func (d *Dev) String() string {
	return d.Family().String() + "{" + d.addr.String() + "}"
}

// Halt implements conn.Resource.
func (d *Dev) Halt() error {
	return nil
}

// Sense implements physic.SenseEnv.
func (d *Dev) Sense(e *physic.Env) error {
	if err := d.power(cmdConvert, conversionTime(d.resolution)); err != nil {
		return err
	}
	t, err := d.LastTemp()
	if err != nil {
		return err
	}
	e.Temperature = t
	return nil
}

// SenseContinuous implements physic.SenseEnv.
func (d *Dev) SenseContinuous(time.Duration) (<-chan physic.Env, error) {
	return nil, errors.New("ds18b20: not implemented")
}

// Precision implements physic.SenseEnv.
func (d *Dev) Precision(e *physic.Env) {
	e.Temperature = physic.Kelvin / 16
}

// LastTemp reads the temperature resulting from the last conversion from the
// device.
//
// It is useful in combination with ConvertAll.
func (d *Dev) LastTemp() (physic.Temperature, error) {
	spad, err := d.readScratchpad()
	if err != nil {
		return 0, err
	}

	c := d.parseTemperature(spad)

	// The device powers up with a value of 85°C, so if we read that odds are
	// very high that either no conversion was performed or that the conversion
	// failed due to lack of power.
	if c == 85*physic.Celsius+physic.ZeroCelsius {
		return 0, errors.New("ds18b20: has not performed a temperature conversion (insufficient pull-up?)")
	}
	return c, nil
}

// parseTemperature from scratchpad and handle special calculation for DS18S20
func (d *Dev) parseTemperature(spad []byte) physic.Temperature {
	// spad[1] is MSB and spad[0] is LSB of the raw temperature value
	rawTemp := int16(spad[1])<<8 | int16(spad[0])

	if d.Family() == DS18S20 && spad[7] != 0 {
		// TEMPERATURE = TEMP_READ - 0,25 + (COUNT_PER_C-COUNT_REMAIN)/COUNT_PER_C
		// with COUNT_PER_C = spad[7] = 16 and COUNT_REMAIN = spad[6], scaled
		// to 1/16°C.
		rawTemp = ((rawTemp & ^int16(1)) << 3) + 12 - int16(spad[6])
	}
	// rawTemp has 4 fractional bits.
	v := physic.Temperature(rawTemp)
	return v*physic.Kelvin/16 + physic.ZeroCelsius
}

// tx selects the device, writes w with echo checking then reads len(r)
// bytes.
func (d *Dev) tx(w, r []byte) error {
	d.s.Lock()
	defer d.s.Unlock()
	if err := d.access(); err != nil {
		return err
	}
	buf := make([]byte, len(w)+len(r))
	copy(buf, w)
	for i := len(w); i < len(buf); i++ {
		buf[i] = 0xff
	}
	for off := 0; off < len(buf); off += d.s.MaxBlock() {
		end := min(off+d.s.MaxBlock(), len(buf))
		if err := d.s.Exchange(buf[off:end], false); err != nil {
			return err
		}
	}
	if !bytes.Equal(buf[:len(w)], w) {
		return ownet.ErrEchoMismatch
	}
	copy(r, buf[len(w):])
	return nil
}

// power selects the device and sends cmd, keeping the bus powered for wait.
func (d *Dev) power(cmd byte, wait time.Duration) error {
	d.s.Lock()
	defer d.s.Unlock()
	if err := d.access(); err != nil {
		return err
	}
	return powered(d.s, cmd, wait)
}

func (d *Dev) access() error {
	d.s.Select(d.addr)
	return d.s.Access()
}

// powered sends cmd followed by strong pull-up for wait. Adapters without
// power delivery just wait, which works for externally powered sensors.
func powered(s *ownet.Session, cmd byte, wait time.Duration) error {
	if !s.Link().HasPowerDelivery() {
		if err := s.WriteByte(cmd); err != nil {
			return err
		}
		sleep(wait)
		return nil
	}
	if err := s.WriteBytePower(cmd); err != nil {
		return err
	}
	sleep(wait)
	_, err := s.SetLevel(ownet.LevelNormal)
	return err
}

// conversionTime is the time a conversion takes, which depends on the
// resolution:
// 9bits:94ms, 10bits:188ms, 11bits:376ms, 12bits:752ms, datasheet p.6.
func conversionTime(bits int) time.Duration {
	return (94 << uint(bits-9)) * time.Millisecond
}

// readScratchpad reads the 9 bytes of scratchpad and checks the CRC.
// It returns the 8 bytes of scratchpad data (excluding the CRC byte).
func (d *Dev) readScratchpad() ([]byte, error) {
	var spad [9]byte
	if err := d.tx([]byte{cmdReadScratchpad}, spad[:]); err != nil {
		return nil, err
	}
	if !crc.Check8(spad[:]) {
		for _, s := range spad {
			if s != 0xff {
				return nil, ownet.ErrCRC
			}
		}
		return nil, errors.New("ds18b20: device did not respond")
	}
	return spad[:8], nil
}

var sleep = time.Sleep

var _ conn.Resource = &Dev{}
var _ physic.SenseEnv = &Dev{}
