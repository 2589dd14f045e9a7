// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/GermanBionicSystems/onewire/ds18b20"
)

var tempResolution int

var tempCmd = &cobra.Command{
	Use:   "temp",
	Short: "Read the DS18B20 and DS18S20 temperature sensors",
	Long: `Read the DS18B20 and DS18S20 temperature sensors.

All the sensors convert at once, with the strong pull-up on when the adapter
has one, then each one is read in turn.`,
	Args: cobra.NoArgs,
	RunE: runTemp,
}

func init() {
	tempCmd.Flags().IntVarP(&tempResolution, "resolution", "r", 12, "DS18B20 resolution in bits, 9 to 12")
}

func runTemp(cmd *cobra.Command, args []string) error {
	if tempResolution < 9 || tempResolution > 12 {
		return errors.New("resolution must be between 9 and 12 bits")
	}
	s, done, err := openSession()
	if err != nil {
		return err
	}
	defer done()

	var devs []*ds18b20.Dev
	for _, f := range []ds18b20.Family{ds18b20.DS18B20, ds18b20.DS18S20} {
		addrs, err := enumerate(s, byte(f), false)
		if err != nil {
			return err
		}
		for _, a := range addrs {
			d, err := ds18b20.New(s, a, tempResolution)
			if err != nil {
				return err
			}
			devs = append(devs, d)
		}
	}
	if len(devs) == 0 {
		logger.Info("no temperature sensor found")
		return nil
	}
	bits := conversionBits(devs, tempResolution)
	logger.Debug("converting", "sensors", len(devs), "resolution", bits)
	if err := ds18b20.ConvertAll(s, bits); err != nil {
		return err
	}
	p := newPrinter(cmd)
	for _, d := range devs {
		t, err := d.LastTemp()
		if err != nil {
			p.printf("%s: %s\n", d, p.bad.Render(err.Error()))
			continue
		}
		p.printf("%s: %s\n", d, p.good.Render(t.String()))
	}
	return nil
}

// conversionBits is the resolution ConvertAll must wait for. A DS18S20
// conversion always takes as long as a 12 bits one.
func conversionBits(devs []*ds18b20.Dev, resolution int) int {
	for _, d := range devs {
		if d.Family() == ds18b20.DS18S20 {
			return 12
		}
	}
	return resolution
}
