// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/GermanBionicSystems/onewire/crc"
	"github.com/GermanBionicSystems/onewire/ds18b20"
	"github.com/GermanBionicSystems/onewire/ownet"
	"github.com/GermanBionicSystems/onewire/ownet/ownettest"
)

// run executes the command line args against bus and returns what it printed.
func run(t *testing.T, bus ownet.LinkLayer, args ...string) (string, error) {
	old := openLink
	t.Cleanup(func() { openLink = old })
	released := false
	openLink = func() (ownet.LinkLayer, func() error, error) {
		return bus, func() error { released = true; return nil }, nil
	}
	scanAlarm, scanFamily, verifyAlarm, tempResolution = false, 0, false, 12

	var out, stderr bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	if err == nil && !released {
		t.Fatal("the adapter was not released")
	}
	return out.String(), err
}

func testBus() *ownettest.Bus {
	return ownettest.New(
		ownettest.NewDevice(0x28, 0x070e41ac),
		ownettest.NewDevice(0x10, 0x0801b7ec),
		ownettest.NewDevice(0x01, 0x1a2b3c4d),
	)
}

func TestScan(t *testing.T) {
	bus := testBus()
	out, err := run(t, bus, "scan")
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != len(bus.Devices) {
		t.Fatalf("got %q", out)
	}
	for i, a := range bus.Sorted() {
		if !strings.HasPrefix(lines[i], a.String()+"  ") {
			t.Fatalf("line %d: %q, want %s", i, lines[i], a)
		}
	}
	if !strings.Contains(out, "0x740000070e41ac28  0x28 DS18B20\n") {
		t.Fatalf("got %q", out)
	}
}

func TestScan_family(t *testing.T) {
	out, err := run(t, testBus(), "scan", "--family", "0x10")
	if err != nil {
		t.Fatal(err)
	}
	if out != "0x1b00000801b7ec10  0x10 DS18S20\n" {
		t.Fatalf("got %q", out)
	}
}

func TestScan_alarm(t *testing.T) {
	bus := testBus()
	bus.Devices[2].Alarm = true
	out, err := run(t, bus, "scan", "-a")
	if err != nil {
		t.Fatal(err)
	}
	if want := bus.Devices[2].Addr.String() + "  0x01 DS2401\n"; out != want {
		t.Fatalf("got %q, want %q", out, want)
	}
}

func TestScan_empty(t *testing.T) {
	out, err := run(t, ownettest.New(), "scan")
	if err != nil || out != "" {
		t.Fatalf("got %q %v", out, err)
	}
}

func TestScan_shorted(t *testing.T) {
	bus := testBus()
	bus.Shorted = true
	if _, err := run(t, bus, "scan"); !errors.Is(err, ownet.ErrShorted) {
		t.Fatalf("want ErrShorted, got %v", err)
	}
}

// fadingBus loses every device at a given reset, or one device right before
// a given read slot.
type fadingBus struct {
	*ownettest.Bus
	resetAt int
	leaving *ownettest.Device
	readAt  int
	reads   int
}

func (b *fadingBus) Reset() (bool, error) {
	if b.Resets+1 == b.resetAt {
		for _, d := range b.Devices {
			d.Detached = true
		}
	}
	return b.Bus.Reset()
}

func (b *fadingBus) ReadBit() (byte, error) {
	b.reads++
	if b.reads == b.readAt {
		b.leaving.Detached = true
	}
	return b.Bus.ReadBit()
}

func TestScan_partial(t *testing.T) {
	// Family 0x28 is found on the first search pass, 0x01 on the second.
	first := ownettest.NewDevice(0x28, 0x070e41ac)
	second := ownettest.NewDevice(0x01, 0x1a2b3c4d)
	want := first.Addr.String() + "  0x28 DS18B20\n"

	// Both devices are gone at the reset of the second pass.
	bus := &fadingBus{Bus: ownettest.New(first, second), resetAt: 2}
	out, err := run(t, bus, "scan")
	if !errors.Is(err, ownet.ErrNoDevices) || out != want {
		t.Fatalf("got %q %v", out, err)
	}

	// The second device leaves at bit 10 of the second pass.
	first.Detached, second.Detached = false, false
	bus = &fadingBus{Bus: ownettest.New(first, second), leaving: second, readAt: 128 + 21}
	out, err = run(t, bus, "scan")
	if err == nil || !strings.Contains(err.Error(), "corrupted") || out != want {
		t.Fatalf("got %q %v", out, err)
	}
}

func TestPrinter(t *testing.T) {
	var buf bytes.Buffer
	p := newStyledPrinter(&buf, lipgloss.NewRenderer(&buf))
	if s := p.good.Render("present"); s != "present" {
		t.Fatalf("plain output expected, got %q", s)
	}

	r := lipgloss.NewRenderer(&buf)
	r.SetColorProfile(termenv.ANSI)
	p = newStyledPrinter(&buf, r)
	for _, s := range []string{p.family.Render("0x28"), p.good.Render("present"), p.bad.Render("missing")} {
		if !strings.HasPrefix(s, "\x1b[") {
			t.Fatalf("expected a styled string, got %q", s)
		}
	}
	if p.good.Render("x") == p.bad.Render("x") {
		t.Fatal("present and missing look the same")
	}
}

func TestVerify(t *testing.T) {
	bus := testBus()
	out, err := run(t, bus, "verify", "0x740000070e41ac28", "1b00000801b7ec10")
	if err != nil {
		t.Fatal(err)
	}
	want := "0x740000070e41ac28  present\n0x1b00000801b7ec10  present\n"
	if out != want {
		t.Fatalf("got %q", out)
	}

	bus.Devices[0].Detached = true
	out, err = run(t, bus, "verify", "0x740000070e41ac28")
	if err == nil || out != "0x740000070e41ac28  missing\n" {
		t.Fatalf("got %q %v", out, err)
	}
}

func TestVerify_bad_address(t *testing.T) {
	if _, err := run(t, testBus(), "verify", "0x750000070e41ac28"); !errors.Is(err, ownet.ErrCRC) {
		t.Fatalf("want ErrCRC, got %v", err)
	}
	if _, err := run(t, testBus(), "verify", "bogus"); err == nil {
		t.Fatal("expected a parse error")
	}
	if _, err := run(t, testBus(), "verify"); err == nil {
		t.Fatal("an address is required")
	}
}

func TestTemp(t *testing.T) {
	// 30°C at 9 bits.
	spad := []byte{0xe0, 0x01, 0x00, 0x00, 0x1f, 0xff, 0x10, 0x10, 0x00}
	spad[8] = crc.Checksum8(spad[:8])
	dev := ownettest.NewDevice(0x28, 0x070e41ac)
	dev.Reply = func(rx []byte) []byte {
		if len(rx) == 1 && rx[0] == 0xbe {
			return spad
		}
		return nil
	}
	bus := ownettest.New(dev, ownettest.NewDevice(0x01, 0x1a2b3c4d))
	out, err := run(t, bus, "temp", "-r", "9")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "DS18B20{0x740000070e41ac28}: 30") || strings.Count(out, "\n") != 1 {
		t.Fatalf("got %q", out)
	}
}

func TestConversionBits(t *testing.T) {
	// 85°C, the power-on value.
	spad := []byte{0xaa, 0x00, 0x4b, 0x46, 0xff, 0xff, 0x0c, 0x10, 0x00}
	spad[8] = crc.Checksum8(spad[:8])
	dev := ownettest.NewDevice(0x10, 0x0801b7ec)
	dev.Reply = func(rx []byte) []byte {
		if len(rx) == 1 && rx[0] == 0xbe {
			return spad
		}
		return nil
	}
	s, err := ownet.New(ownettest.New(dev), nil)
	if err != nil {
		t.Fatal(err)
	}
	d, err := ds18b20.New(s, dev.Addr, 9)
	if err != nil {
		t.Fatal(err)
	}
	if b := conversionBits(nil, 9); b != 9 {
		t.Fatal(b)
	}
	if b := conversionBits([]*ds18b20.Dev{d}, 9); b != 12 {
		t.Fatalf("a DS18S20 needs a full conversion, got %d bits", b)
	}
}

func TestTemp_none(t *testing.T) {
	out, err := run(t, ownettest.New(ownettest.NewDevice(0x01, 1)), "temp")
	if err != nil || out != "" {
		t.Fatalf("got %q %v", out, err)
	}
}

func TestTemp_bad_resolution(t *testing.T) {
	if _, err := run(t, testBus(), "temp", "-r", "13"); err == nil {
		t.Fatal("expected an error")
	}
}

func TestParseAddress(t *testing.T) {
	data := []struct {
		in   string
		want ownet.Address
		err  bool
	}{
		{"0x740000070e41ac28", 0x740000070e41ac28, false},
		{"740000070E41AC28", 0x740000070e41ac28, false},
		{"0x740000070e41ac29", 0, true},
		{"0x1740000070e41ac28", 0, true},
		{"", 0, true},
	}
	for _, line := range data {
		a, err := parseAddress(line.in)
		if (err != nil) != line.err || a != line.want {
			t.Fatalf("%q: got %s %v", line.in, a, err)
		}
	}
}

func TestFamilyName(t *testing.T) {
	if n := familyName(0x28); n != "DS18B20" {
		t.Fatal(n)
	}
	if n := familyName(0x7f); n != "unknown" {
		t.Fatal(n)
	}
}
