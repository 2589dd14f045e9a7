// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ds248x_test

import (
	"fmt"
	"log"

	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/GermanBionicSystems/onewire/ds248x"
	"github.com/GermanBionicSystems/onewire/ownet"
)

func Example() {
	// Make sure periph is initialized.
	if _, err := host.Init(); err != nil {
		log.Fatal(err)
	}

	// Use i2creg I²C bus registry to find the first available I²C bus.
	b, err := i2creg.Open("")
	if err != nil {
		log.Fatalf("failed to open I²C: %v", err)
	}
	defer b.Close()

	d, err := ds248x.New(b, 0x18, &ds248x.DefaultOpts)
	if err != nil {
		log.Fatalf("failed to initialize ds248x: %v", err)
	}
	s, err := ownet.New(d, nil)
	if err != nil {
		log.Fatal(err)
	}

	// The hardware triplet runs the search.
	addrs, err := s.Search(false)
	if err != nil {
		log.Fatal(err)
	}
	for _, a := range addrs {
		fmt.Println(ownet.Address(a))
	}
}
