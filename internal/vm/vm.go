// Package vm implements the CHIP-8 interpreter core: a flat 4k memory image,
// sixteen 8-bit registers, a call stack and a 64x32 monochrome framebuffer,
// stepped by an external loop that batches fetch-decode-execute cycles.
package vm

import (
	"context"
	"fmt"
	"log/slog"
)

const (
	MemorySize    = 4096
	StackSize     = 16
	RegisterCount = 16
	ScreenWidth   = 64
	ScreenHeight  = 32
	KeyCount      = 16

	ProgramStart    = uint16(0x200)
	InstructionSize = 2

	// AddrMask wraps runtime-derived addresses into the 12-bit space.
	AddrMask = uint16(0x0FFF)
)

// MaxROMSize is the number of memory bytes available to a program image.
const MaxROMSize = MemorySize - int(ProgramStart)

// Status tells whether the machine may execute further instructions.
type Status uint8

const (
	// StatusRunning is the initial state, re-entered only via Reset.
	StatusRunning Status = iota
	// StatusError is terminal: Step executes nothing until Reset.
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusError:
		return "error"
	default:
		return fmt.Sprintf("Status(%d)", uint8(s))
	}
}

// VM owns all mutable interpreter state. A single goroutine must serialize
// every call to Reset, Load, Step and TickTimers on one instance.
type VM struct {
	memory    []uint8 // Memory (4k)
	registers []uint8 // V registers (V0-VF)

	stack []uint16 // Stack
	sp    uint16   // Stack pointer

	pc    uint16 // Program counter
	index uint16 // Index register

	delayTimer uint8 // Delay timer
	soundTimer uint8 // Sound timer

	gfx      []uint8 // Graphics buffer
	keypad   []uint8 // Keypad
	drawFlag bool    // Indicates a draw has occurred

	status  Status
	fault   *Fault
	romSize int
}

// New returns a machine in its reset state. The caller installs the font and
// loads a program before the first Step.
func New() *VM {
	vm := &VM{
		memory:    make([]uint8, MemorySize),
		registers: make([]uint8, RegisterCount),
		stack:     make([]uint16, StackSize),
		gfx:       make([]uint8, ScreenWidth*ScreenHeight),
		keypad:    make([]uint8, KeyCount),
	}
	vm.Reset()
	return vm
}

// Reset returns every piece of owned state to the power-on configuration:
// zeroed memory, registers, stack, timers and screen, PC at ProgramStart,
// status running. It is idempotent and is the only way back to StatusRunning
// once the machine has faulted.
func (vm *VM) Reset() {
	vm.pc = ProgramStart
	vm.index = 0
	vm.sp = 0

	// Clear the display
	for i := range vm.gfx {
		vm.gfx[i] = 0
	}
	vm.drawFlag = true

	// Clear the stack, keypad, and V registers
	slog.Debug("clear stack", "n", len(vm.stack))
	for i := range vm.stack {
		vm.stack[i] = 0
	}

	slog.Debug("clear keypad", "n", len(vm.keypad))
	for i := range vm.keypad {
		vm.keypad[i] = 0
	}

	slog.Debug("clear registers", "n", len(vm.registers))
	for i := range vm.registers {
		vm.registers[i] = 0
	}

	// Clear memory
	slog.Debug("clear memory", "n", len(vm.memory))
	for i := range vm.memory {
		vm.memory[i] = 0
	}

	// Reset timers
	vm.delayTimer = 0
	vm.soundTimer = 0

	vm.romSize = 0
	vm.fault = nil
	vm.status = StatusRunning
}

// LoadFont copies an 80-byte hex glyph table to FontStartAddr. The bootstrap
// calls it right after Reset; FontSet is the canonical table.
func (vm *VM) LoadFont(font []uint8) error {
	if len(font) != FontSize {
		return fmt.Errorf("font table must be %d bytes, got %d", FontSize, len(font))
	}

	slog.Debug("load font", "at", fmt.Sprintf("0x%04x", FontStartAddr), "n", len(font))
	copy(vm.memory[FontStartAddr:], font)
	return nil
}

// Load copies a program image to ProgramStart and records its byte count.
func (vm *VM) Load(rom []byte) error {
	if len(rom) > MaxROMSize {
		return fmt.Errorf("program is %d bytes, memory fits %d", len(rom), MaxROMSize)
	}

	slog.Info("load program", "at", fmt.Sprintf("0x%04x", ProgramStart), "n", len(rom))
	copy(vm.memory[ProgramStart:], rom)
	vm.romSize = len(rom)
	return nil
}

// Step runs up to cycles fetch-decode-execute iterations. It stops at the
// first fault; the fault is sticky, so later calls return the same value
// without touching any state until Reset.
func (vm *VM) Step(cycles int) error {
	for i := 0; i < cycles; i++ {
		if vm.status == StatusError {
			return vm.fault
		}

		if err := vm.cycle(); err != nil {
			return err
		}
	}

	return nil
}

// cycle is one fetch-decode-execute iteration.
func (vm *VM) cycle() error {
	if int(vm.pc)+1 >= MemorySize {
		return vm.fail(0, ErrBadAddress)
	}

	hi := vm.memory[vm.pc]
	lo := vm.memory[vm.pc+1]
	opcode := uint16(hi)<<8 | uint16(lo) // Op code is two bytes, big-endian

	in := decode(opcode)

	if slog.Default().Enabled(context.Background(), slog.LevelDebug) {
		slog.Debug(
			"exec",
			"pc", fmt.Sprintf("0x%04x", vm.pc),
			"opcode", fmt.Sprintf("0x%04x", opcode),
			"instr", in.String(),
		)
	}

	return vm.execute(in)
}

// fail records the fault and freezes the machine. PC still points at the
// faulting instruction afterwards.
func (vm *VM) fail(opcode uint16, cause error) error {
	vm.fault = &Fault{PC: vm.pc, Opcode: opcode, Err: cause}
	vm.status = StatusError

	slog.Error(
		"execution fault",
		"pc", fmt.Sprintf("0x%04x", vm.pc),
		"opcode", fmt.Sprintf("0x%04x", opcode),
		"err", cause,
	)
	return vm.fault
}

// TickTimers advances the 60 Hz timer domain by one tick. Timer decay is
// driven by the caller's clock, never by Step's instruction rate.
func (vm *VM) TickTimers() {
	if vm.status != StatusRunning {
		return
	}

	if vm.delayTimer > 0 {
		vm.delayTimer--
	}

	if vm.soundTimer > 0 {
		vm.soundTimer--
	}
}

// Key selects one of the sixteen keypad keys.
type Key uint8

const (
	Key0 = Key(iota)
	Key1
	Key2
	Key3
	Key4
	Key5
	Key6
	Key7
	Key8
	Key9
	KeyA
	KeyB
	KeyC
	KeyD
	KeyE
	KeyF
)

// KeyDown marks a keypad key as held.
func (vm *VM) KeyDown(key Key) {
	vm.keypad[int(key)&0x0F] = 1
}

// KeyUp marks a keypad key as released.
func (vm *VM) KeyUp(key Key) {
	vm.keypad[int(key)&0x0F] = 0
}

// PC returns the program counter.
func (vm *VM) PC() uint16 { return vm.pc }

// SP returns the number of live stack entries.
func (vm *VM) SP() uint16 { return vm.sp }

// Index returns the I register.
func (vm *VM) Index() uint16 { return vm.index }

// Register returns V[i&0xF].
func (vm *VM) Register(i int) uint8 { return vm.registers[i&0x0F] }

// Registers returns the live V register file. The caller must not write
// through it.
func (vm *VM) Registers() []uint8 { return vm.registers }

// Screen returns the live framebuffer, row-major, one byte per pixel (0 or
// 1). The caller must not write through it.
func (vm *VM) Screen() []uint8 { return vm.gfx }

// Pixel returns the framebuffer value at wrapped screen coordinates.
func (vm *VM) Pixel(x, y int) uint8 {
	return vm.gfx[screenAddr(uint16(x), uint16(y))]
}

// DelayTimer returns the delay timer value.
func (vm *VM) DelayTimer() uint8 { return vm.delayTimer }

// SoundTimer returns the sound timer value.
func (vm *VM) SoundTimer() uint8 { return vm.soundTimer }

// SoundActive reports whether the frontend should be producing tone.
func (vm *VM) SoundActive() bool { return vm.soundTimer > 0 }

// Status reports whether the machine may keep executing.
func (vm *VM) Status() Status { return vm.status }

// Fault returns the fault that stopped the machine, or nil while running.
func (vm *VM) Fault() *Fault { return vm.fault }

// ROMSize returns the byte count recorded by the last Load.
func (vm *VM) ROMSize() int { return vm.romSize }

// DrawFlag reports whether the framebuffer changed since ClearDrawFlag.
func (vm *VM) DrawFlag() bool { return vm.drawFlag }

// ClearDrawFlag acknowledges a presented frame.
func (vm *VM) ClearDrawFlag() { vm.drawFlag = false }
