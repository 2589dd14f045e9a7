// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ownet

import (
	"encoding/binary"
	"fmt"

	"github.com/GermanBionicSystems/onewire/crc"
)

// Address is the 64-bit ROM code of a 1-Wire device.
//
// It is stored in wire order as a little-endian integer: the family code is
// the low byte, the 48-bit serial follows and the CRC8 of the first seven
// bytes is the high byte. This is the same layout as onewire.Address.
type Address uint64

// NewAddress builds an address from a family code and the low 48 bits of
// serial, computing the CRC8 trailer.
func NewAddress(family byte, serial uint64) Address {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], serial<<8|uint64(family))
	b[7] = crc.Checksum8(b[:7])
	return Address(binary.LittleEndian.Uint64(b[:]))
}

// AddressFromBytes converts 8 bytes in wire order into an Address and checks
// the CRC8 trailer.
func AddressFromBytes(b []byte) (Address, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("ownet: invalid address length %d", len(b))
	}
	if !crc.Check8(b) {
		return 0, ErrCRC
	}
	return Address(binary.LittleEndian.Uint64(b)), nil
}

// Family returns the family code, which identifies the device type.
func (a Address) Family() byte {
	return byte(a)
}

// Serial returns the 48-bit serial number.
func (a Address) Serial() uint64 {
	return uint64(a) >> 8 & 0xffffffffffff
}

// CRC returns the CRC8 trailer.
func (a Address) CRC() byte {
	return byte(a >> 56)
}

// Bytes returns the address in wire order.
func (a Address) Bytes() []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, uint64(a))
	return b
}

// Valid reports whether the family code is not zero and the CRC8 trailer
// matches. Only valid addresses are ever returned by a search.
func (a Address) Valid() bool {
	return a.Family() != 0 && crc.Check8(a.Bytes())
}

// Bit returns bit i (0..63) in the order it travels on the wire.
func (a Address) Bit(i int) byte {
	return byte(a>>uint(i)) & 1
}

// WithBit returns a copy of a with bit i set to the low bit of v.
func (a Address) WithBit(i int, v byte) Address {
	if v&1 != 0 {
		return a | 1<<uint(i)
	}
	return a &^ (1 << uint(i))
}

func (a Address) String() string {
	return fmt.Sprintf("%#016x", uint64(a))
}

// bitVector addresses individual bits of a byte slice, least significant
// bit of each byte first, which is the order bits travel on the bus.
type bitVector []byte

func (v bitVector) get(i int) byte {
	return v[i>>3] >> uint(i&7) & 1
}

func (v bitVector) set(i int, b byte) {
	if b&1 != 0 {
		v[i>>3] |= 1 << uint(i&7)
	} else {
		v[i>>3] &^= 1 << uint(i&7)
	}
}
