// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/GermanBionicSystems/onewire/ds248x"
	"github.com/GermanBionicSystems/onewire/ds9097"
	"github.com/GermanBionicSystems/onewire/ownet"
)

var (
	// I²C bridge flags
	i2cName string
	i2cAddr uint16
	channel int
	passive bool

	// Serial adapter flags
	portName string

	verbose bool
)

var logger = slog.New(slog.NewTextHandler(os.Stderr, nil))

var rootCmd = &cobra.Command{
	Use:   "owscan",
	Short: "1-Wire bus scanner",
	Long: `owscan enumerates and probes the devices on a 1-Wire bus.

Adapters:
  I²C bridge:     [--i2c name] [--addr 0x18] [--channel n]
  Serial adapter: --serial /dev/ttyUSB0`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		lvl := slog.LevelInfo
		if verbose {
			lvl = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: lvl}))
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&i2cName, "i2c", "", "I²C bus to use")
	rootCmd.PersistentFlags().Uint16Var(&i2cAddr, "addr", 0x18, "I²C address of the DS248x")
	rootCmd.PersistentFlags().IntVar(&channel, "channel", -1, "DS2482-800 channel to select")
	rootCmd.PersistentFlags().BoolVar(&passive, "passive", false, "disable the DS248x active pull-up")
	rootCmd.PersistentFlags().StringVarP(&portName, "serial", "s", "", "serial port of a passive adapter")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")

	rootCmd.AddCommand(scanCmd, verifyCmd, tempCmd)
}

// openLink opens the adapter selected on the command line. The returned
// function releases it.
var openLink = func() (ownet.LinkLayer, func() error, error) {
	if portName != "" {
		d, err := ds9097.Open(portName, nil)
		if err != nil {
			return nil, nil, err
		}
		return d, d.Close, nil
	}
	if _, err := host.Init(); err != nil {
		return nil, nil, err
	}
	b, err := i2creg.Open(i2cName)
	if err != nil {
		return nil, nil, err
	}
	opts := ds248x.DefaultOpts
	opts.PassivePullup = passive
	d, err := ds248x.New(b, i2cAddr, &opts)
	if err != nil {
		b.Close()
		return nil, nil, err
	}
	if channel >= 0 {
		if err := d.ChannelSelect(channel); err != nil {
			b.Close()
			return nil, nil, err
		}
		logger.Debug("channel selected", "channel", d.SelectedChannel())
	}
	return d, b.Close, nil
}

// openSession opens the adapter and starts a session on it.
func openSession() (*ownet.Session, func(), error) {
	l, release, err := openLink()
	if err != nil {
		return nil, nil, err
	}
	s, err := ownet.New(l, nil)
	if err != nil {
		release()
		return nil, nil, err
	}
	logger.Debug("session opened", "adapter", s.String(),
		"power", l.HasPowerDelivery(), "overdrive", l.HasOverdrive())
	return s, func() {
		if err := s.Halt(); err != nil {
			logger.Warn("halt", "err", err)
		}
		if err := release(); err != nil {
			logger.Warn("close", "err", err)
		}
	}, nil
}

// printer writes the results, highlighting them on a terminal.
type printer struct {
	w      io.Writer
	family lipgloss.Style
	good   lipgloss.Style
	bad    lipgloss.Style
}

func newPrinter(cmd *cobra.Command) *printer {
	out := cmd.OutOrStdout()
	// The renderer picks the colour profile of the output: plain text unless
	// it is a terminal.
	r := lipgloss.NewRenderer(out)
	if f, ok := out.(*os.File); ok && f == os.Stdout {
		if isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()) {
			out = colorable.NewColorableStdout()
		}
	}
	return newStyledPrinter(out, r)
}

func newStyledPrinter(w io.Writer, r *lipgloss.Renderer) *printer {
	return &printer{
		w:      w,
		family: r.NewStyle().Foreground(lipgloss.Color("14")),
		good:   r.NewStyle().Foreground(lipgloss.Color("10")),
		bad:    r.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
	}
}

func (p *printer) printf(format string, args ...interface{}) {
	fmt.Fprintf(p.w, format, args...)
}

// parseAddress parses a 64-bit address as printed by scan.
func parseAddress(s string) (ownet.Address, error) {
	v, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(s), "0x"), 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q", s)
	}
	a := ownet.Address(v)
	if !a.Valid() {
		return 0, fmt.Errorf("address %s: %w", a, ownet.ErrCRC)
	}
	return a, nil
}
