// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ownet

import (
	"errors"

	"periph.io/x/conn/v3/onewire"
)

var (
	// ErrNoDevices is returned when a reset got no presence pulse.
	ErrNoDevices error = busError("ownet: no device present")
	// ErrShorted is returned when the adapter sees the data line held low.
	ErrShorted error = shortedBusError("ownet: bus has a short")
	// ErrEchoMismatch is returned when a driven byte did not read back
	// identical, which signals a collision, a device dropping out or noise.
	ErrEchoMismatch error = busError("ownet: echo mismatch")
	// ErrCRC is returned when an address or a block fails its CRC check.
	ErrCRC error = busError("ownet: crc mismatch")

	// ErrBlockTooLong is returned by Exchange for a buffer larger than the
	// adapter accepts in one call.
	ErrBlockTooLong = errors.New("ownet: block exceeds adapter limit")
	// ErrUnsupported is returned when the adapter lacks a capability.
	ErrUnsupported = errors.New("ownet: not supported by adapter")
)

// AdapterError is a failure of the host adapter, independent of the state of
// the bus.
type AdapterError struct {
	Op  string
	Err error
}

func (e *AdapterError) Error() string {
	return "ownet: adapter " + e.Op + ": " + e.Err.Error()
}

func (e *AdapterError) Unwrap() error {
	return e.Err
}

// linkErr passes bus errors through and wraps everything else.
func linkErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var be onewire.BusError
	if errors.As(err, &be) && be.BusError() {
		return err
	}
	return &AdapterError{Op: op, Err: err}
}

// busError implements error and onewire.BusError.
type busError string

func (e busError) Error() string  { return string(e) }
func (e busError) BusError() bool { return true }

// shortedBusError implements error and onewire.ShortedBusError.
type shortedBusError string

func (e shortedBusError) Error() string   { return string(e) }
func (e shortedBusError) IsShorted() bool { return true }
func (e shortedBusError) BusError() bool  { return true }
