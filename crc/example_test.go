// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package crc_test

import (
	"fmt"

	"github.com/GermanBionicSystems/onewire/crc"
)

func Example() {
	// A memory page framed the way 1-Wire EEPROMs frame it: the page number
	// seeds the accumulator.
	page := []byte{0x01, 0x02, 0x03, 0x04}
	framed := crc.Append16(5, page)
	fmt.Printf("% x\n", framed)
	fmt.Println(crc.Check16(5, framed))

	// A device address is valid when the running CRC8 ends on zero.
	fmt.Println(crc.Check8([]byte{0x02, 0x1c, 0xb8, 0x01, 0x00, 0x00, 0x00, 0xa2}))
	// Output:
	// 01 02 03 04 5e 3c
	// true
	// true
}
