// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ownet

import "errors"

const (
	cmdSearch         = 0xf0 // search rom
	cmdAlarmSearch    = 0xec // search rom, devices in alarm state only
	cmdMatch          = 0x55 // match rom
	cmdOverdriveMatch = 0x69 // overdrive match rom

	// resetSentinel marks a search state that was wiped after a corrupted
	// pass: no branch is forced on the next pass.
	resetSentinel = 0xff

	// alarmClockFamily devices (DS1994, DS2404) need an extra reset before a
	// search when they were the last device addressed.
	alarmClockFamily = 0x04
)

// searchState is where the enumeration stands between two passes.
type searchState struct {
	lastDiscrepancy       int // 1-based bit of the last 0 taken at a discrepancy, or resetSentinel
	lastFamilyDiscrepancy int // same, restricted to the family code
	lastDevice            bool
	rom                   Address
	family                byte // restrict the pass to this family when familyOnly
	familyOnly            bool
}

// rewind prepares the state for a new enumeration.
func (st *searchState) rewind() {
	st.lastDiscrepancy = 0
	st.lastFamilyDiscrepancy = 0
	st.lastDevice = false
	st.familyOnly = false
}

// wipe empties the state after a corrupted pass.
func (st *searchState) wipe() {
	st.rewind()
	st.lastDiscrepancy = resetSentinel
	st.rom = 0
}

// path returns the branches to take at discrepancies during the next pass:
// the previous address up to the last discrepancy, 1 at the last discrepancy
// and 0 everywhere after it.
func (st *searchState) path() Address {
	p := st.rom
	if st.lastDiscrepancy == resetSentinel {
		return p
	}
	if st.lastDiscrepancy > 0 {
		p = p.WithBit(st.lastDiscrepancy-1, 1)
	}
	for i := st.lastDiscrepancy; i < 64; i++ {
		p = p.WithBit(i, 0)
	}
	return p
}

// First starts a new enumeration and returns the first device found.
//
// doReset issues a bus reset before the search command. alarmOnly limits the
// search to devices in an alarm state.
//
// ok is false when there is no device to report. err is ErrNoDevices when the
// reset got no presence pulse, or describes an adapter failure.
func (s *Session) First(doReset, alarmOnly bool) (a Address, ok bool, err error) {
	s.state.rewind()
	return s.Next(doReset, alarmOnly)
}

// Next continues the enumeration and returns the next device found.
//
// After the last device Next returns ok == false once and the following call
// starts over. A pass corrupted by noise or a device leaving the bus also
// returns ok == false, with LastSearchCorrupted reporting it.
func (s *Session) Next(doReset, alarmOnly bool) (a Address, ok bool, err error) {
	st := &s.state
	s.corrupted = false
	if st.lastDevice {
		st.rewind()
		return 0, false, nil
	}

	if doReset {
		if st.rom.Family()&0x7f == alarmClockFamily {
			if _, err := s.reset(); err != nil {
				return 0, false, err
			}
		}
		present, err := s.reset()
		if err != nil {
			return 0, false, err
		}
		if !present {
			st.lastDiscrepancy = 0
			st.lastFamilyDiscrepancy = 0
			return 0, false, ErrNoDevices
		}
	}

	cmd := byte(cmdSearch)
	if alarmOnly {
		cmd = cmdAlarmSearch
	}
	if echo, err := s.link.TouchByte(cmd); err != nil {
		return 0, false, linkErr("search command", err)
	} else if echo != cmd {
		return s.corrupt()
	}

	path := st.path()
	lastZero := 0
	var found Address
	for i := 0; i < 64; i++ {
		id, cmp, taken, err := s.triplet(path.Bit(i))
		if err != nil {
			return 0, false, err
		}
		if id == 1 && cmp == 1 {
			if i == 0 {
				// Nobody takes part, e.g. no device is in alarm.
				st.rewind()
				return 0, false, nil
			}
			// The bus emptied during the pass.
			return s.corrupt()
		}
		if id == 0 && cmp == 0 && taken == 0 {
			lastZero = i + 1
			if i < 8 {
				st.lastFamilyDiscrepancy = i + 1
			}
		}
		found = found.WithBit(i, taken)
	}
	if !found.Valid() {
		return s.corrupt()
	}

	st.rom = found
	st.lastDiscrepancy = lastZero
	if lastZero == 0 {
		st.lastDevice = true
	}
	if st.familyOnly && found.Family() != st.family {
		// The requested family is exhausted.
		st.rewind()
		return 0, false, nil
	}
	return found, true, nil
}

// FamilySearchSetup positions the search so that the next Next call finds
// the first device of the given family. The enumeration ends at the first
// device of another family.
func (s *Session) FamilySearchSetup(family byte) {
	st := &s.state
	st.rom = Address(family)
	st.lastDiscrepancy = 64
	st.lastFamilyDiscrepancy = 0
	st.lastDevice = false
	st.family = family
	st.familyOnly = true
}

// SkipFamily makes the next Next call skip the remaining devices of the
// family of the last device found.
func (s *Session) SkipFamily() {
	st := &s.state
	st.lastDiscrepancy = st.lastFamilyDiscrepancy
	st.lastFamilyDiscrepancy = 0
	if st.lastDiscrepancy == 0 {
		st.lastDevice = true
	}
}

// SearchAll enumerates the bus and returns every address found.
//
// An empty bus returns no address and no error. If an error occurs during the
// search the already-discovered devices are returned with the error.
func (s *Session) SearchAll(alarmOnly bool) ([]Address, error) {
	var out []Address
	a, ok, err := s.First(true, alarmOnly)
	for ; ok; a, ok, err = s.Next(true, alarmOnly) {
		out = append(out, a)
	}
	if errors.Is(err, ErrNoDevices) && len(out) == 0 {
		return nil, nil
	}
	return out, err
}

// corrupt wipes the search state and reports the end of the enumeration.
func (s *Session) corrupt() (Address, bool, error) {
	s.state.wipe()
	s.corrupted = true
	return 0, false, nil
}

// triplet reads a bit and its complement from the active devices and writes
// the branch taken back. direction is the branch wanted at a discrepancy.
func (s *Session) triplet(direction byte) (id, cmp, taken byte, err error) {
	if t, ok := s.link.(Tripleter); ok {
		id, cmp, taken, err = t.Triplet(direction)
		return id, cmp, taken, linkErr("triplet", err)
	}
	if id, err = s.link.ReadBit(); err != nil {
		return 0, 0, 0, linkErr("read bit", err)
	}
	if cmp, err = s.link.ReadBit(); err != nil {
		return 0, 0, 0, linkErr("read bit", err)
	}
	if id == 1 && cmp == 1 {
		return 1, 1, 1, nil
	}
	taken = direction & 1
	if id != cmp {
		taken = id
	}
	if err = s.link.WriteBit(taken); err != nil {
		return 0, 0, 0, linkErr("write bit", err)
	}
	return id, cmp, taken, nil
}
