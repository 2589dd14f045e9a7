// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package ds248x drives a 1-Wire bus through a Maxim DS2482-100, DS2482-800
// or DS2483 I²C bridge.
//
// Dev is an ownet.LinkLayer: the bridge generates the slots, the search
// triplet and the strong pull-up in hardware.
//
// # Datasheets
//
// https://www.analog.com/media/en/technical-documentation/data-sheets/DS2482-100.pdf
//
// https://www.analog.com/media/en/technical-documentation/data-sheets/DS2482-800.pdf
//
// https://www.analog.com/media/en/technical-documentation/data-sheets/DS2483.pdf
package ds248x
