// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package onewire is a container for the 1-Wire network layer and the
// drivers built on it.
//
// ownet implements the bus protocol on top of any adapter providing reset
// and time slots: enumeration, selection, block exchange, power delivery and
// EPROM programming. ds248x and ds9097 are such adapters, and ds18b20 a
// device driver using a session. The crc package holds the 1-Wire CRC8 and
// CRC16.
package onewire
