package vm

import (
	"errors"
	"fmt"
)

// Fault causes. A Fault wraps exactly one of these.
var (
	ErrUnknownOpcode  = errors.New("unknown opcode")
	ErrStackOverflow  = errors.New("stack overflow")
	ErrStackUnderflow = errors.New("stack underflow")
	ErrBadAddress     = errors.New("program counter out of memory")
)

// Fault is the single error kind the interpreter raises. It pins down where
// execution stopped; the machine stays frozen on it until Reset.
type Fault struct {
	PC     uint16 // address of the faulting instruction
	Opcode uint16 // its encoding, zero when the fetch itself failed
	Err    error  // one of the causes above
}

func (f *Fault) Error() string {
	return fmt.Sprintf("execution fault at 0x%04x (opcode 0x%04x): %v", f.PC, f.Opcode, f.Err)
}

func (f *Fault) Unwrap() error { return f.Err }
