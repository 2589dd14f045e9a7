// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package ownet implements the network layer of a 1-Wire bus: discovery of
// the 64-bit addresses of every device on the bus, selection of a single
// device and byte exchanges with it.
//
// A Session binds one LinkLayer, the physical host adapter, to the state of
// one search and one selected address. Adapters only provide the primitive
// slots (reset, bit read/write, byte touch, speed and level switches); the
// search algorithm, the match and verify sequences are implemented once here.
//
// # Enumeration
//
// First and Next walk the binary tree of addresses: at each of the 64 bit
// positions every active device answers with its bit and its complement on
// the open-drain line, the host picks a branch and writes it back, and the
// devices that disagree drop out until the next reset. Discrepancies are
// resolved by taking 0 first and coming back for 1 on a later pass, so
// addresses come out in ascending order of their bits read from bit 0 of the
// family code outwards.
//
// A pass that reads back an impossible pattern or an address with a bad CRC8
// ends the enumeration as if no device was left; the state is reset so the
// next First starts clean.
//
// # Locking
//
// The bus is one shared electrical medium. Session embeds a sync.Mutex that
// callers hold across multi-step sequences such as Access followed by
// Exchange. The onewire.Bus methods (Tx, Search) take the lock themselves.
//
// Session implements onewire.Bus and onewire.BusSearcher from
// periph.io/x/conn/v3/onewire so that periph device drivers run on any
// LinkLayer.
package ownet
