// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/GermanBionicSystems/onewire/ownet"
)

var verifyAlarm bool

var verifyCmd = &cobra.Command{
	Use:   "verify address...",
	Short: "Check that devices are on the bus",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runVerify,
}

func init() {
	verifyCmd.Flags().BoolVarP(&verifyAlarm, "alarm", "a", false, "also require the alarm state")
}

func runVerify(cmd *cobra.Command, args []string) error {
	addrs := make([]ownet.Address, len(args))
	for i, arg := range args {
		a, err := parseAddress(arg)
		if err != nil {
			return err
		}
		addrs[i] = a
	}
	s, done, err := openSession()
	if err != nil {
		return err
	}
	defer done()

	p := newPrinter(cmd)
	missing := 0
	for _, a := range addrs {
		s.Lock()
		s.Select(a)
		ok, err := s.Verify(verifyAlarm)
		s.Unlock()
		if err != nil && !errors.Is(err, ownet.ErrNoDevices) {
			return err
		}
		if ok {
			p.printf("%s  %s\n", a, p.good.Render("present"))
		} else {
			p.printf("%s  %s\n", a, p.bad.Render("missing"))
			missing++
		}
	}
	if missing != 0 {
		logger.Debug("verify", "missing", missing)
		return errors.New("some devices are missing")
	}
	return nil
}
