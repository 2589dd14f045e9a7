// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package crc implements the two checksums used on a 1-Wire bus.
//
// CRC8 (x⁸+x⁵+x⁴+1, reflected) protects the 64-bit device addresses and
// most scratchpads. CRC16 (x¹⁶+x¹⁵+x²+1, reflected) protects memory pages and
// application records: the sender accumulates over the payload and appends the
// complement of the result, low byte first; the receiver accumulates over the
// payload and the two trailer bytes and must land on Residue16.
package crc

// Residue16 is the value a CRC16 accumulator holds after it has consumed a
// payload followed by its complemented checksum.
const Residue16 uint16 = 0xB001

var (
	table8  [256]byte
	table16 [256]uint16
)

func init() {
	for i := range 256 {
		c8 := byte(i)
		c16 := uint16(i)
		for range 8 {
			if c8&1 != 0 {
				c8 = c8>>1 ^ 0x8C
			} else {
				c8 >>= 1
			}
			if c16&1 != 0 {
				c16 = c16>>1 ^ 0xA001
			} else {
				c16 >>= 1
			}
		}
		table8[i] = c8
		table16[i] = c16
	}
}

// CRC8 is a running 1-Wire CRC8 accumulator. The zero value is seeded with 0.
type CRC8 struct {
	v byte
}

// Reset seeds the accumulator.
func (c *CRC8) Reset(seed byte) {
	c.v = seed
}

// Update feeds one byte and returns the running value.
func (c *CRC8) Update(b byte) byte {
	c.v = table8[c.v^b]
	return c.v
}

// Write feeds all of buf and returns the running value.
func (c *CRC8) Write(buf []byte) byte {
	for _, b := range buf {
		c.v = table8[c.v^b]
	}
	return c.v
}

// Sum returns the running value.
func (c *CRC8) Sum() byte {
	return c.v
}

// Checksum8 returns the CRC8 of buf seeded with 0.
func Checksum8(buf []byte) byte {
	var c CRC8
	return c.Write(buf)
}

// Check8 reports whether buf ends with the CRC8 of the bytes before it, that
// is whether the running CRC8 over all of buf is zero.
//
// An empty buffer is rejected.
func Check8(buf []byte) bool {
	if len(buf) == 0 {
		return false
	}
	return Checksum8(buf) == 0
}

// CRC16 is a running 1-Wire CRC16 accumulator. The zero value is seeded with
// 0.
type CRC16 struct {
	v uint16
}

// Reset seeds the accumulator. Protocols seed with 0 or with a page number.
func (c *CRC16) Reset(seed uint16) {
	c.v = seed
}

// Update feeds one byte and returns the running value.
func (c *CRC16) Update(b byte) uint16 {
	c.v = c.v>>8 ^ table16[byte(c.v)^b]
	return c.v
}

// Write feeds all of buf and returns the running value.
func (c *CRC16) Write(buf []byte) uint16 {
	for _, b := range buf {
		c.v = c.v>>8 ^ table16[byte(c.v)^b]
	}
	return c.v
}

// Sum returns the running value.
func (c *CRC16) Sum() uint16 {
	return c.v
}

// Checksum16 returns the CRC16 of buf for the given seed.
func Checksum16(seed uint16, buf []byte) uint16 {
	c := CRC16{v: seed}
	return c.Write(buf)
}

// Append16 appends the complemented CRC16 of buf, low byte first, and
// returns the extended slice.
func Append16(seed uint16, buf []byte) []byte {
	s := ^Checksum16(seed, buf)
	return append(buf, byte(s), byte(s>>8))
}

// Check16 reports whether buf, a payload followed by its two complemented
// checksum bytes, leaves the accumulator on Residue16.
func Check16(seed uint16, buf []byte) bool {
	if len(buf) < 2 {
		return false
	}
	return Checksum16(seed, buf) == Residue16
}
