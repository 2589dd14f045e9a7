// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ownet

import (
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/onewire"
)

// Halt implements conn.Resource.
//
// It drops any strong pull-up and returns the bus to standard speed.
func (s *Session) Halt() error {
	s.Lock()
	defer s.Unlock()
	if _, err := s.link.SetLevel(LevelNormal); err != nil {
		return linkErr("set level", err)
	}
	_, err := s.link.SetSpeed(SpeedStandard)
	return linkErr("set speed", err)
}

// Tx implements onewire.Bus.
//
// It resets the bus, writes w with echo checking, reads len(r) bytes and,
// when power is onewire.StrongPullup, leaves the bus in strong pull-up after
// the last byte. The pull-up is dropped at the start of the next Tx.
func (s *Session) Tx(w, r []byte, power onewire.Pullup) error {
	s.Lock()
	defer s.Unlock()

	if s.powered {
		if _, err := s.link.SetLevel(LevelNormal); err != nil {
			return linkErr("set level", err)
		}
		s.powered = false
	}

	present, err := s.reset()
	if err != nil {
		return err
	}
	if !present {
		return ErrNoDevices
	}

	// The last byte of the transaction carries the pull-up.
	last := len(w) + len(r) - 1
	pull := power == onewire.StrongPullup
	for i, b := range w {
		if pull && i == last {
			if err := s.WriteBytePower(b); err != nil {
				return err
			}
			s.powered = true
			break
		}
		if err := s.WriteByte(b); err != nil {
			return err
		}
	}
	for i := range r {
		var err error
		if pull && len(w)+i == last {
			r[i], err = s.ReadBytePower()
			s.powered = err == nil
		} else {
			r[i], err = s.ReadByte()
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Search implements onewire.Bus.
//
// It restarts the enumeration of this session.
func (s *Session) Search(alarmOnly bool) ([]onewire.Address, error) {
	s.Lock()
	defer s.Unlock()
	addrs, err := s.SearchAll(alarmOnly)
	out := make([]onewire.Address, len(addrs))
	for i, a := range addrs {
		out[i] = onewire.Address(a)
	}
	return out, err
}

// SearchTriplet implements onewire.BusSearcher.
//
// SearchTriplet should not be used directly, use Search or First and Next
// instead.
func (s *Session) SearchTriplet(direction byte) (onewire.TripletResult, error) {
	id, cmp, taken, err := s.triplet(direction)
	if err != nil {
		return onewire.TripletResult{}, err
	}
	return onewire.TripletResult{
		GotZero: id == 0,
		GotOne:  cmp == 0,
		Taken:   taken,
	}, nil
}

var _ conn.Resource = &Session{}
var _ onewire.Bus = &Session{}
var _ onewire.BusSearcher = &Session{}
