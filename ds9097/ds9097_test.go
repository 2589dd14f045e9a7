// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ds9097

import (
	"errors"
	"reflect"
	"testing"

	"go.bug.st/serial"

	"github.com/GermanBionicSystems/onewire/ownet"
	"github.com/GermanBionicSystems/onewire/ownet/ownettest"
)

// wire is a serial port wired to a simulated bus.
type wire struct {
	bus   *ownettest.Bus
	baud  int
	modes int
	rx    []byte
	mute  bool // swallow characters, as an unplugged adapter does
}

func (w *wire) SetMode(m *serial.Mode) error {
	w.baud = m.BaudRate
	w.modes++
	return nil
}

func (w *wire) ResetInputBuffer() error {
	w.rx = w.rx[:0]
	return nil
}

func (w *wire) Write(p []byte) (int, error) {
	if w.mute {
		return len(p), nil
	}
	for _, c := range p {
		if w.baud == DefaultOpts.ResetBaud {
			w.rx = append(w.rx, w.reset(c))
			continue
		}
		if w.bus.TouchBit(slotBit(c)) == 1 {
			w.rx = append(w.rx, c)
		} else {
			// The line went low during the data bits.
			w.rx = append(w.rx, c&0xfe)
		}
	}
	return len(p), nil
}

func (w *wire) reset(c byte) byte {
	present, err := w.bus.Reset()
	switch {
	case err != nil:
		return 0x00
	case present:
		return 0xe0
	}
	return c
}

func (w *wire) Read(p []byte) (int, error) {
	n := copy(p, w.rx)
	w.rx = w.rx[n:]
	return n, nil
}

func newDev(t *testing.T, bus *ownettest.Bus) (*Dev, *wire) {
	w := &wire{bus: bus}
	d, err := New(w, nil)
	if err != nil {
		t.Fatal(err)
	}
	if w.baud != DefaultOpts.SlotBaud {
		t.Fatalf("port left at %d baud", w.baud)
	}
	return d, w
}

func TestNew_invalid(t *testing.T) {
	if _, err := New(&wire{}, &Opts{}); err == nil {
		t.Fatal("invalid baud rates")
	}
}

func TestReset(t *testing.T) {
	bus := ownettest.New()
	d, w := newDev(t, bus)
	if present, err := d.Reset(); err != nil || present {
		t.Fatal(present, err)
	}
	bus.Devices = append(bus.Devices, ownettest.NewDevice(0x28, 1))
	if present, err := d.Reset(); err != nil || !present {
		t.Fatal(present, err)
	}
	if w.baud != DefaultOpts.SlotBaud {
		t.Fatalf("port left at %d baud", w.baud)
	}
	bus.Shorted = true
	if _, err := d.Reset(); !errors.Is(err, ownet.ErrShorted) {
		t.Fatalf("want ErrShorted, got %v", err)
	}
}

func TestReset_timeout(t *testing.T) {
	d, w := newDev(t, ownettest.New())
	w.mute = true
	if _, err := d.Reset(); err != errTimeout {
		t.Fatalf("want timeout, got %v", err)
	}
	if w.baud != DefaultOpts.SlotBaud {
		t.Fatalf("port left at %d baud", w.baud)
	}
}

func TestTouchByte(t *testing.T) {
	dev := ownettest.NewDevice(0x28, 0x0102030405)
	bus := ownettest.New(dev)
	d, _ := newDev(t, bus)
	if present, err := d.Reset(); err != nil || !present {
		t.Fatal(present, err)
	}
	// Read ROM: the device answers with its address.
	if r, err := d.TouchByte(0x33); err != nil || r != 0x33 {
		t.Fatal(r, err)
	}
	got := make([]byte, 8)
	for i := range got {
		b, err := d.TouchByte(0xff)
		if err != nil {
			t.Fatal(err)
		}
		got[i] = b
	}
	if want := dev.Addr.Bytes(); !reflect.DeepEqual(got, want) {
		t.Fatalf("got % x, want % x", got, want)
	}
}

func TestCapabilities(t *testing.T) {
	d, _ := newDev(t, ownettest.New())
	if d.HasOverdrive() || d.HasPowerDelivery() || d.HasProgramPulse() {
		t.Fatal("passive adapter")
	}
	if s, err := d.SetSpeed(ownet.SpeedOverdrive); err != nil || s != ownet.SpeedStandard {
		t.Fatal(s, err)
	}
	if l, err := d.SetLevel(ownet.LevelStrongPullup); err != nil || l != ownet.LevelNormal {
		t.Fatal(l, err)
	}
	if s := d.String(); s != "DS9097" {
		t.Fatal(s)
	}
}

func TestSearch(t *testing.T) {
	bus := ownettest.New(
		ownettest.NewDevice(0x28, 0x0000070e41ac),
		ownettest.NewDevice(0x10, 0x000801b7ec14),
		ownettest.NewDevice(0x28, 0x0000070e41ad),
		ownettest.NewDevice(0x01, 0x00001a2b3c4d),
	)
	d, _ := newDev(t, bus)
	s, err := ownet.New(d, nil)
	if err != nil {
		t.Fatal(err)
	}
	got, err := s.SearchAll(false)
	if err != nil {
		t.Fatal(err)
	}
	if want := bus.Sorted(); !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}
