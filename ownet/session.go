// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ownet

import (
	"errors"
	"sync"
	"time"
)

// Opts contains options to pass to the constructor.
type Opts struct {
	// MaxBlock is the largest buffer Exchange accepts in one call. It is a
	// property of the host adapter: serial and USB bridges buffer between a
	// few tens and 192 bytes.
	MaxBlock int
	// ProgramPulse is how long LevelProgram is held by ProgramPulse.
	ProgramPulse time.Duration
}

// DefaultOpts is the recommended default options.
var DefaultOpts = Opts{
	MaxBlock:     64,
	ProgramPulse: 512 * time.Microsecond,
}

// New returns a Session on the bus driven by l.
//
// The session starts with an empty search state and no selected address.
func New(l LinkLayer, opts *Opts) (*Session, error) {
	if l == nil {
		return nil, errors.New("ownet: nil link layer")
	}
	if opts == nil {
		opts = &DefaultOpts
	}
	if opts.MaxBlock <= 0 {
		return nil, errors.New("ownet: MaxBlock must be positive")
	}
	return &Session{link: l, opts: *opts}, nil
}

// Session is a handle to one 1-Wire bus.
//
// It owns the search state used by First and Next and the selected address
// used by Access, Verify and OverdriveAccess. Both share one register, as on
// the devices: a search leaves the last address found selected and Select
// moves the search position.
//
// Session methods do not lock; hold the embedded mutex for the whole of a
// multi-step sequence.
type Session struct {
	sync.Mutex // lock for the bus while a transaction is in progress

	link      LinkLayer
	opts      Opts
	state     searchState
	corrupted bool // last pass ended on inconsistent bits
	powered   bool // strong pull-up left on by Tx
}

func (s *Session) String() string {
	if st, ok := s.link.(interface{ String() string }); ok {
		return "ownet{" + st.String() + "}"
	}
	return "ownet"
}

// Link returns the adapter the session drives.
func (s *Session) Link() LinkLayer {
	return s.link
}

// MaxBlock returns the largest buffer Exchange accepts.
func (s *Session) MaxBlock() int {
	return s.opts.MaxBlock
}

// Address returns the selected address.
func (s *Session) Address() Address {
	return s.state.rom
}

// Select sets the address used by Access, Verify and OverdriveAccess.
func (s *Session) Select(a Address) {
	s.state.rom = a
}

// LastSearchCorrupted reports whether the last First or Next call ended
// because the pass read back inconsistent bits or an invalid address rather
// than because the enumeration was complete.
func (s *Session) LastSearchCorrupted() bool {
	return s.corrupted
}

var sleep = time.Sleep
