// Command hamctl drives one rotator or rig from the terminal, in the
// spirit of rotctl and rigctl.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/peterh/liner"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"hamlink/internal/caps"
	"hamlink/internal/config"
	"hamlink/internal/discovery/serial"
	"hamlink/internal/driver"
	"hamlink/internal/model"
	"hamlink/internal/protocol"
	"hamlink/internal/protocol/fake"
	"hamlink/internal/session"
	"hamlink/internal/utils"
)

type options struct {
	model    string
	port     string
	baud     int
	address  int
	list     bool
	models   bool
	dumpCaps bool
	dryRun   bool
	verbose  bool
}

func main() {
	var opts options
	flag.StringVar(&opts.model, "m", "YAAN/YL3040", "device as BRAND/MODEL")
	flag.StringVar(&opts.port, "r", "/dev/ttyUSB0", "serial port")
	flag.IntVar(&opts.baud, "s", 0, "baud rate (model default when 0)")
	flag.IntVar(&opts.address, "a", 0, "bus address (model default when 0)")
	flag.BoolVar(&opts.list, "l", false, "list serial ports and exit")
	flag.BoolVar(&opts.models, "L", false, "list supported models and exit")
	flag.BoolVar(&opts.dumpCaps, "d", false, "dump model capabilities as YAML and exit")
	flag.BoolVar(&opts.dryRun, "n", false, "talk to a simulated device instead of the port")
	flag.BoolVar(&opts.verbose, "v", false, "log every transaction")
	flag.Parse()

	if err := run(opts, flag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "hamctl: %v\n", err)
		os.Exit(1)
	}
}

func newLogger(verbose bool) (*zap.Logger, error) {
	level := "warn"
	if verbose {
		level = "debug"
	}
	return utils.NewLogger(&config.LoggingConfig{Level: level, Format: "console", Output: "stderr"})
}

func run(opts options, args []string) error {
	logger, err := newLogger(opts.verbose)
	if err != nil {
		return err
	}
	defer logger.Sync()

	registry := driver.NewRegistry(logger)
	if err := driver.RegisterDefaultDrivers(registry, logger); err != nil {
		return err
	}

	switch {
	case opts.list:
		return listPorts(os.Stdout, logger)
	case opts.models:
		return listModels(os.Stdout, registry)
	}

	brand, deviceModel, ok := strings.Cut(opts.model, "/")
	if !ok {
		return fmt.Errorf("-m wants BRAND/MODEL, got %q", opts.model)
	}
	entry, err := registry.Lookup(model.DeviceBrand(strings.ToUpper(brand)), deviceModel)
	if err != nil {
		return err
	}

	if opts.dumpCaps {
		return dumpCaps(os.Stdout, entry.Descriptor)
	}

	ctrl, closeFn, err := openDevice(registry, entry, opts, logger)
	if err != nil {
		return err
	}
	defer closeFn()

	// one-shot mode: hamctl -m ... P 180 10
	if len(args) > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return ctrl.run(ctx, args)
	}
	return interactive(ctrl)
}

// openDevice opens the port (or a simulator) and wraps it in the model's
// driver
func openDevice(registry *driver.Registry, entry *driver.Entry, opts options, logger *zap.Logger) (*controller, func(), error) {
	desc := entry.Descriptor
	if opts.address < 0 || opts.address > 255 {
		return nil, nil, fmt.Errorf("address %d out of range 0-255", opts.address)
	}

	var transport protocol.Transport
	if opts.dryRun {
		transport = simulator(desc, byte(opts.address))
	} else {
		cfg := map[string]interface{}{"port": opts.port}
		if opts.baud != 0 {
			cfg["baud_rate"] = opts.baud
		}
		t, err := protocol.CreateTransport(desc, cfg, logger)
		if err != nil {
			return nil, nil, err
		}
		transport = t
	}

	drv, sess, err := registry.CreateDriver(entry, transport, session.Options{
		Address: byte(opts.address),
		Port:    opts.port,
	})
	if err != nil {
		return nil, nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := drv.Open(ctx); err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", opts.port, err)
	}

	ctrl := &controller{
		drv:       drv,
		sessionID: sess.ID,
		family:    desc.DeviceType,
		out:       os.Stdout,
	}
	return ctrl, func() { drv.Close() }, nil
}

// simulator returns an in-memory device answering the model's protocol
func simulator(desc *caps.Descriptor, address byte) protocol.Transport {
	if desc.DeviceType == model.DeviceTypeRig {
		return fake.NewYaesuRig().Transport()
	}
	if address == 0 {
		address = desc.DefaultAddress
	}
	return fake.NewPelcoDevice(address).Transport()
}

func interactive(ctrl *controller) error {
	shell := liner.NewLiner()
	defer shell.Close()

	shell.SetCtrlCAborts(true)
	names := commandNames(ctrl.family)
	shell.SetCompleter(func(line string) (c []string) {
		for _, name := range names {
			if strings.HasPrefix(name, strings.ToLower(line)) {
				c = append(c, name)
			}
		}
		return
	})

	historyFile := historyPath()
	if f, err := os.Open(historyFile); err == nil {
		shell.ReadHistory(f)
		f.Close()
	}

	fmt.Println(`Type "?" for commands, Ctrl-D to quit.`)
	for {
		input, err := shell.Prompt(fmt.Sprintf("%s> ", strings.ToLower(string(ctrl.family))))
		if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
			fmt.Println()
			break
		}
		if err != nil {
			return err
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		shell.AppendHistory(input)

		switch input {
		case "?", "help":
			printHelp(os.Stdout, ctrl.family)
			continue
		case "q", "quit", "exit":
			return saveHistory(shell, historyFile)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := ctrl.run(ctx, strings.Fields(input)); err != nil {
			fmt.Printf("error: %v\n", err)
		}
		cancel()
	}

	return saveHistory(shell, historyFile)
}

func historyPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".hamctl_history"
	}
	return filepath.Join(home, ".hamctl_history")
}

func saveHistory(shell *liner.State, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	_, err = shell.WriteHistory(f)
	return err
}

func listPorts(w io.Writer, logger *zap.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	devices, err := serial.NewScanner(logger, nil).Scan(ctx)
	if err != nil {
		return err
	}
	for _, d := range devices {
		guess := "-"
		if d.Brand != "" {
			guess = fmt.Sprintf("%s %s", d.Brand, d.Model)
		}
		fmt.Fprintf(w, "%-20v %-24s %.1f  %s\n", d.ConnectionInfo["port"], guess, d.Confidence, d.Description)
	}
	return nil
}

func listModels(w io.Writer, registry *driver.Registry) error {
	for _, e := range registry.ListDrivers() {
		fmt.Fprintf(w, "%-8s %-8s %-10s %-24s %s\n",
			e.Key.Brand, e.Key.DeviceType, e.Key.Model, e.Descriptor.Model, e.Descriptor.Status)
	}
	return nil
}

// dumpCaps writes the descriptor the way --dump-caps does
func dumpCaps(w io.Writer, desc *caps.Descriptor) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(desc)
}
