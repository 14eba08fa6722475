package vm

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/retroenv/retrogolib/assert"
)

func TestFaultUnknownOpcode(t *testing.T) {
	vm := boot(t, program(0xFFFF))

	err := vm.Step(1)
	assert.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownOpcode))
	assert.Equal(t, StatusError, vm.Status())

	fault := vm.Fault()
	assert.NotNil(t, fault)
	assert.Equal(t, ProgramStart, fault.PC)
	assert.Equal(t, uint16(0xFFFF), fault.Opcode)
}

func TestUndecodableOpcodes(t *testing.T) {
	opcodes := []uint16{
		0x0000, // machine-code call, unsupported
		0x0123,
		0x01E0, // machine-code calls sharing the low byte of cls/rts
		0x02EE,
		0x0FE0,
		0x0FEE,
		0x5121, // skip variants with a nonzero low nibble
		0x9ABF,
		0x8008, // unassigned alu selectors
		0x800F,
		0xE09F,
		0xE0A0,
		0xF000,
		0xF0FF,
	}

	for _, opcode := range opcodes {
		t.Run(fmt.Sprintf("0x%04X", opcode), func(t *testing.T) {
			vm := boot(t, program(opcode))

			err := vm.Step(1)
			assert.Error(t, err)
			assert.True(t, errors.Is(err, ErrUnknownOpcode))
			assert.Equal(t, StatusError, vm.Status())
			assert.Equal(t, opcode, vm.Fault().Opcode)
			assert.Equal(t, ProgramStart, vm.Fault().PC)
		})
	}
}

func TestSysCallDoesNotReturn(t *testing.T) {
	// a machine-code call whose low byte matches rts must not pop the frame
	vm := boot(t, program(0x2204, 0x0000, 0x02EE))

	assert.NoError(t, vm.Step(1))
	assert.Equal(t, uint16(1), vm.SP())

	err := vm.Step(1)
	assert.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownOpcode))
	assert.Equal(t, uint16(1), vm.SP())
	assert.Equal(t, uint16(0x204), vm.Fault().PC)
	assert.Equal(t, uint16(0x02EE), vm.Fault().Opcode)
}

func TestFaultStackOverflow(t *testing.T) {
	// a chain of 17 calls, each into the next slot; the 17th has no room
	var opcodes []uint16
	for i := 0; i < StackSize+1; i++ {
		target := ProgramStart + uint16(2*i) + 2
		opcodes = append(opcodes, 0x2000|target)
	}
	vm := boot(t, program(opcodes...))

	err := vm.Step(StackSize + 1)
	assert.Error(t, err)
	assert.True(t, errors.Is(err, ErrStackOverflow))
	assert.Equal(t, uint16(StackSize), vm.SP())
	assert.Equal(t, uint16(0x220), vm.Fault().PC)
}

func TestFaultStackUnderflow(t *testing.T) {
	vm := boot(t, program(0x00EE))

	err := vm.Step(1)
	assert.Error(t, err)
	assert.True(t, errors.Is(err, ErrStackUnderflow))
	assert.Equal(t, ProgramStart, vm.PC())
	assert.Equal(t, uint16(0), vm.SP())
}

func TestFaultPCOutOfMemory(t *testing.T) {
	vm := boot(t, program(0x1FFF))

	assert.NoError(t, vm.Step(1))
	assert.Equal(t, uint16(0xFFF), vm.PC())

	err := vm.Step(1)
	assert.Error(t, err)
	assert.True(t, errors.Is(err, ErrBadAddress))
	assert.Equal(t, uint16(0xFFF), vm.Fault().PC)
	assert.Equal(t, uint16(0), vm.Fault().Opcode)
}

func TestFaultIndirectJumpPastMemory(t *testing.T) {
	vm := boot(t, program(0x60FF, 0xBFFF))

	err := vm.Step(3)
	assert.Error(t, err)
	assert.True(t, errors.Is(err, ErrBadAddress))
	assert.Equal(t, uint16(0x10FE), vm.Fault().PC)
}

func TestFaultSticky(t *testing.T) {
	vm := boot(t, program(0xFFFF, 0x6101))

	first := vm.Step(1)
	assert.Error(t, first)

	vm.delayTimer = 5
	regs := make([]uint8, RegisterCount)
	copy(regs, vm.Registers())

	again := vm.Step(10)
	assert.True(t, again == first)
	assert.Equal(t, ProgramStart, vm.PC())
	assert.Equal(t, StatusError, vm.Status())

	// a frozen machine ignores timer ticks too
	vm.TickTimers()
	assert.Equal(t, uint8(5), vm.DelayTimer())

	if diff := cmp.Diff(regs, vm.Registers()); diff != "" {
		t.Errorf("registers changed while frozen (-want +got):\n%s", diff)
	}
}

func TestFaultStopsBatch(t *testing.T) {
	vm := boot(t, program(0x6101, 0x6202, 0xFFFF, 0x6303))

	err := vm.Step(10)
	assert.Error(t, err)

	// work before the fault sticks, nothing after it runs
	assert.Equal(t, uint8(1), vm.Register(1))
	assert.Equal(t, uint8(2), vm.Register(2))
	assert.Equal(t, uint8(0), vm.Register(3))
	assert.Equal(t, uint16(0x204), vm.PC())
}

func TestResetClearsFault(t *testing.T) {
	vm := boot(t, program(0xFFFF))
	assert.Error(t, vm.Step(1))
	assert.Equal(t, StatusError, vm.Status())

	vm.Reset()
	assert.Equal(t, StatusRunning, vm.Status())
	assert.Nil(t, vm.Fault())
	assert.Equal(t, ProgramStart, vm.PC())

	assert.NoError(t, vm.Load(program(0x6101)))
	assert.NoError(t, vm.Step(1))
	assert.Equal(t, uint8(1), vm.Register(1))
	assert.Equal(t, StatusRunning, vm.Status())
}

func TestFaultError(t *testing.T) {
	fault := &Fault{PC: 0x0234, Opcode: 0xABCD, Err: ErrUnknownOpcode}

	assert.Equal(t, "execution fault at 0x0234 (opcode 0xabcd): unknown opcode", fault.Error())
	assert.True(t, errors.Is(fault, ErrUnknownOpcode))
}
