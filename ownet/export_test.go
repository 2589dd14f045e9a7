// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ownet

import "time"

// SetSleep replaces the sleep used for programming pulses and returns a
// function that restores it.
func SetSleep(f func(time.Duration)) func() {
	old := sleep
	sleep = f
	return func() { sleep = old }
}
