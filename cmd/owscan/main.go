// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// owscan enumerates and probes the devices on a 1-Wire bus.
//
// The bus is driven through a DS2482/DS2483 I²C bridge by default, or through
// a passive serial adapter with --serial.
//
//	owscan scan
//	owscan scan --family 0x28
//	owscan verify 0x740000070e41ac28
//	owscan temp --resolution 10
//	owscan --serial /dev/ttyUSB0 scan --alarm
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "owscan: %s.\n", err)
		os.Exit(1)
	}
}
