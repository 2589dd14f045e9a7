// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package crc

import "testing"

// crc8Bitwise is the shift register form of the same polynomial.
func crc8Bitwise(buf []byte) byte {
	var crc byte
	for _, val := range buf {
		for range 8 {
			mix := (crc ^ val) & 1
			crc >>= 1
			if mix != 0 {
				crc ^= 0x8C
			}
			val >>= 1
		}
	}
	return crc
}

func TestChecksum8(t *testing.T) {
	var tests = []struct {
		bytes  []byte
		result byte
	}{
		{bytes: []byte("123456789"), result: 0xa1},
		{bytes: []byte{0x02, 0x1c, 0xb8, 0x01, 0x00, 0x00, 0x00}, result: 0xa2},
		{bytes: []byte{0x28, 0xac, 0x41, 0x0e, 0x07, 0x00, 0x00}, result: 0x74},
		{bytes: nil, result: 0},
	}
	for _, test := range tests {
		if res := Checksum8(test.bytes); res != test.result {
			t.Errorf("Checksum8(%#v)=%#x, expected %#x", test.bytes, res, test.result)
		}
	}
}

func TestCRC8_table(t *testing.T) {
	buf := make([]byte, 0, 256)
	for i := range 256 {
		buf = append(buf, byte(i*7+3))
		if got, want := Checksum8(buf), crc8Bitwise(buf); got != want {
			t.Fatalf("len %d: table %#x, bitwise %#x", len(buf), got, want)
		}
	}
}

func TestCRC8_running(t *testing.T) {
	var c CRC8
	c.Reset(0)
	addr := []byte{0x02, 0x1c, 0xb8, 0x01, 0x00, 0x00, 0x00, 0xa2}
	var last byte
	for _, b := range addr {
		last = c.Update(b)
	}
	if last != 0 || c.Sum() != 0 {
		t.Fatalf("running crc over a valid address should be 0, got %#x", last)
	}
	if !Check8(addr) {
		t.Fatal("Check8 rejected a valid address")
	}
	addr[3] ^= 0x10
	if Check8(addr) {
		t.Fatal("Check8 accepted a corrupted address")
	}
	if Check8(nil) {
		t.Fatal("Check8 accepted an empty buffer")
	}
}

func TestChecksum16(t *testing.T) {
	if res := Checksum16(0, []byte("123456789")); res != 0xbb3d {
		t.Fatalf("Checksum16=%#x, expected 0xbb3d", res)
	}
	var c CRC16
	c.Reset(0)
	c.Write([]byte("1234"))
	if res := c.Write([]byte("56789")); res != 0xbb3d {
		t.Fatalf("split Write=%#x, expected 0xbb3d", res)
	}
}

func TestCheck16(t *testing.T) {
	tests := []struct {
		seed    uint16
		payload []byte
	}{
		{0, []byte{0xaa}},
		{0, []byte("123456789")},
		{3, []byte{0xf0, 0x60, 0x00, 0x55, 0x55, 0x55}},
		{0x1f, make([]byte, 32)},
	}
	for _, test := range tests {
		buf := Append16(test.seed, append([]byte(nil), test.payload...))
		if len(buf) != len(test.payload)+2 {
			t.Fatalf("Append16 added %d bytes", len(buf)-len(test.payload))
		}
		if !Check16(test.seed, buf) {
			t.Errorf("seed %d %#v: residue %#x", test.seed, test.payload, Checksum16(test.seed, buf))
		}
		buf[0] ^= 1
		if Check16(test.seed, buf) {
			t.Errorf("seed %d %#v: corrupted payload accepted", test.seed, test.payload)
		}
		buf[0] ^= 1
		if Check16(test.seed+1, buf) {
			t.Errorf("seed %d %#v: wrong seed accepted", test.seed, test.payload)
		}
	}
	if Check16(0, []byte{1}) {
		t.Fatal("short buffer accepted")
	}
}
