package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/omnichip8/oc8/internal/hal"
	"github.com/omnichip8/oc8/internal/rom"
	"github.com/omnichip8/oc8/internal/vm"
	"github.com/omnichip8/oc8/internal/web"
	"github.com/spf13/cobra"
)

func main() {
	cmd := &cobra.Command{
		Use:           fmt.Sprintf("%s PATH_TO_ROM_FILE", filepath.Base(os.Args[0])),
		Short:         "Run emulator",
		Args:          cobra.ExactArgs(1),
		SilenceErrors: true,
	}

	verbose := cmd.Flags().BoolP("verbose", "v", false, "enable verbose logging")
	cycles := cmd.Flags().IntP("cycles", "c", 10, "instructions to execute per frame")
	serve := cmd.Flags().String("serve", "", "stream the display to browsers on this address, e.g. :8090")

	cmd.RunE = func(_ *cobra.Command, args []string) error {
		loggerOpts := &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}
		if *verbose {
			loggerOpts.Level = slog.LevelDebug
		}

		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, loggerOpts)))

		r, err := rom.Read(args[0])
		if err != nil {
			return err
		}
		slog.Info("loaded rom", "name", r.Name(), "n", r.Size())

		h, err := hal.New()
		if err != nil {
			return fmt.Errorf("unable to initialize hal: %w", err)
		}
		defer h.Shutdown()

		var server *web.Server
		if *serve != "" {
			server = web.NewServer(*serve)
			if err := server.Start(); err != nil {
				return err
			}
		}

		for {
			err = run(h, server, r.Data, *cycles)

			if errors.Is(err, hal.ErrQuit) {
				return nil
			}

			if errors.Is(err, hal.ErrReboot) {
				slog.Info("reboot")
				continue
			}

			return err
		}
	}

	cmd.SetArgs(os.Args[1:])
	if err := cmd.Execute(); err != nil {
		slog.Error("fatal error", "err", err)
		os.Exit(1)
	}
}

// run owns the machine for one power-on: fresh state, font and program
// image, then the 60 Hz frame loop until a frontend interrupts it.
func run(h *hal.HAL, server *web.Server, image []byte, cycles int) error {
	machine := vm.New()

	if err := machine.LoadFont(vm.FontSet); err != nil {
		return err
	}
	if err := machine.Load(image); err != nil {
		return err
	}

	faulted := false
	for {
		if err := h.ReadInput(machine.KeyDown, machine.KeyUp); err != nil {
			return err
		}

		if server != nil {
			drainWebEvents(server, machine)
		}

		if err := machine.Step(cycles); err != nil && !faulted {
			// the machine stays frozen on its fault; leave the last frame up
			slog.Error("machine halted", "err", err)
			faulted = true
		}

		machine.TickTimers()

		if machine.DrawFlag() {
			if err := h.Draw(machine.Screen()); err != nil {
				return err
			}
			if server != nil {
				server.Publish(machine.Screen())
			}
			machine.ClearDrawFlag()
		}

		h.SetBeeping(machine.SoundActive())

		if err := h.WaitForNextFrame(); err != nil {
			return err
		}
	}
}

func drainWebEvents(server *web.Server, machine *vm.VM) {
	for {
		select {
		case ev := <-server.Events():
			if ev.Down {
				machine.KeyDown(ev.Key)
			} else {
				machine.KeyUp(ev.Key)
			}
		default:
			return
		}
	}
}
