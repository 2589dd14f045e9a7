// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/GermanBionicSystems/onewire/ownet"
)

var (
	scanAlarm  bool
	scanFamily uint8
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "List the devices on the bus",
	Long: `List the devices on the bus in search order.

With --family only the devices of that family are listed, and with --alarm
only the devices in alarm state.`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

func init() {
	scanCmd.Flags().BoolVarP(&scanAlarm, "alarm", "a", false, "list only the devices in alarm state")
	scanCmd.Flags().Uint8VarP(&scanFamily, "family", "f", 0, "list only this family code")
}

// families names the family codes of common parts.
var families = map[byte]string{
	0x01: "DS2401",
	0x05: "DS2405",
	0x10: "DS18S20",
	0x12: "DS2406",
	0x1d: "DS2423",
	0x20: "DS2450",
	0x22: "DS1822",
	0x23: "DS2433",
	0x26: "DS2438",
	0x28: "DS18B20",
	0x29: "DS2408",
	0x2d: "DS2431",
	0x3a: "DS2413",
	0x3b: "DS1825",
	0x42: "DS28EA00",
}

func familyName(f byte) string {
	if n, ok := families[f]; ok {
		return n
	}
	return "unknown"
}

func runScan(cmd *cobra.Command, args []string) error {
	s, done, err := openSession()
	if err != nil {
		return err
	}
	defer done()
	addrs, err := enumerate(s, scanFamily, scanAlarm)
	p := newPrinter(cmd)
	for _, a := range addrs {
		p.printf("%s  %s\n", a, p.family.Render(fmt.Sprintf("%#04x %s", a.Family(), familyName(a.Family()))))
	}
	if err != nil {
		return err
	}
	logger.Info("scan done", "devices", len(addrs))
	return nil
}

// enumerate lists the devices of family, or of every family when family is
// 0. An empty bus is not an error. On error the devices found so far are
// returned with it.
func enumerate(s *ownet.Session, family byte, alarmOnly bool) ([]ownet.Address, error) {
	s.Lock()
	defer s.Unlock()
	var out []ownet.Address
	var a ownet.Address
	var ok bool
	var err error
	if family != 0 {
		s.FamilySearchSetup(family)
		a, ok, err = s.Next(true, alarmOnly)
	} else {
		a, ok, err = s.First(true, alarmOnly)
	}
	for ; ok; a, ok, err = s.Next(true, alarmOnly) {
		logger.Debug("found", "addr", a)
		out = append(out, a)
	}
	if errors.Is(err, ownet.ErrNoDevices) && len(out) == 0 {
		return nil, nil
	}
	if err != nil {
		return out, err
	}
	if s.LastSearchCorrupted() {
		return out, errors.New("search ended on corrupted bits, check the wiring")
	}
	return out, nil
}
