package vm

import (
	"fmt"
	"math/rand/v2"
)

// op tags every decodable instruction. opUnknown faults at execute time.
type op uint8

const (
	opUnknown op = iota
	opCls
	opRts
	opJmp
	opJsr
	opSkeq1
	opSkne1
	opSkeq2
	opMov1
	opAdd1
	opMov2
	opOr
	opAnd
	opXor
	opAdd2
	opSub
	opShr
	opRsb
	opShl
	opSkne2
	opMvi
	opJmi
	opRand
	opSprite
	opSkpr
	opSkup
	opGdelay
	opKey
	opSdelay
	opSsound
	opAdi
	opFont
	opBcd
	opStr
	opLdr
)

// instruction is one opcode with its operand fields extracted. decode fills
// every field once; execute dispatches on the tag alone.
type instruction struct {
	op     op
	opcode uint16 // raw encoding, kept for the trace log and fault reports
	x      uint8  // X register selector
	y      uint8  // Y register selector
	n      uint8  // low nibble (sprite height)
	kk     uint8  // immediate byte
	nnn    uint16 // 12-bit address
}

func decode(opcode uint16) instruction {
	in := instruction{
		op:     opUnknown,
		opcode: opcode,
		x:      uint8(opcode >> 8 & 0x0F),
		y:      uint8(opcode >> 4 & 0x0F),
		n:      uint8(opcode & 0x000F),
		kk:     uint8(opcode & 0x00FF),
		nnn:    opcode & AddrMask,
	}

	switch opcode & 0xF000 {
	case 0x0000:
		switch opcode {
		case 0x00E0:
			// 00E0 - Clear screen
			in.op = opCls

		case 0x00EE:
			// 00EE - Return from subroutine
			in.op = opRts
		}
		// Any other 0NNN is a machine-code call on the original hardware;
		// it stays undecoded and faults.

	case 0x1000:
		// 1NNN - Jumps to address NNN
		in.op = opJmp

	case 0x2000:
		// 2NNN - Calls subroutine at NNN
		in.op = opJsr

	case 0x3000:
		// 3XNN - Skips the next instruction if VX equals NN
		in.op = opSkeq1

	case 0x4000:
		// 4XNN - Skips the next instruction if VX does not equal NN
		in.op = opSkne1

	case 0x5000:
		// 5XY0 - Skips the next instruction if VX equals VY
		if opcode&0x000F == 0 {
			in.op = opSkeq2
		}

	case 0x6000:
		// 6XNN - Sets VX to NN
		in.op = opMov1

	case 0x7000:
		// 7XNN - Adds NN to VX
		in.op = opAdd1

	case 0x8000:
		// 8XY_
		switch opcode & 0x000F {
		case 0x0000:
			// 8XY0 - Sets VX to the value of VY
			in.op = opMov2

		case 0x0001:
			// 8XY1 - Sets VX to (VX OR VY)
			in.op = opOr

		case 0x0002:
			// 8XY2 - Sets VX to (VX AND VY)
			in.op = opAnd

		case 0x0003:
			// 8XY3 - Sets VX to (VX XOR VY)
			in.op = opXor

		case 0x0004:
			// 8XY4 - Adds VY to VX. VF is set to 1 when there's a carry, and to 0 when there isn't.
			in.op = opAdd2

		case 0x0005:
			// 8XY5 - VY is subtracted from VX. VF is set to 0 when there's a borrow, and 1 when there isn't.
			in.op = opSub

		case 0x0006:
			// 8XY6 - Shifts VX right by one. VF is set to the value of the least significant bit of VX before the shift.
			in.op = opShr

		case 0x0007:
			// 8XY7 - Sets VX to VY minus VX. VF is set to 0 when there's a borrow, and 1 when there isn't.
			in.op = opRsb

		case 0x000E:
			// 8XYE - Shifts VX left by one. VF is set to the value of the most significant bit of VX before the shift.
			in.op = opShl
		}

	case 0x9000:
		// 9XY0 - Skips the next instruction if VX doesn't equal VY
		if opcode&0x000F == 0 {
			in.op = opSkne2
		}

	case 0xA000:
		// ANNN - Sets I to the address NNN
		in.op = opMvi

	case 0xB000:
		// BNNN - Jumps to the address NNN plus V0
		in.op = opJmi

	case 0xC000:
		// CXNN - Sets VX to a random number, masked by NN
		in.op = opRand

	case 0xD000:
		// DXYN - Draws a sprite at coordinate (VX, VY) that has a width of 8
		// pixels and a height of N pixels.
		// Each row of 8 pixels is read as bit-coded starting from memory
		// location I;
		// I value doesn't change after the execution of this instruction.
		// VF is set to 1 if any screen pixels are flipped from set to unset
		// when the sprite is drawn, and to 0 if that doesn't happen.
		in.op = opSprite

	case 0xE000:
		switch opcode & 0x00FF {
		case 0x009E:
			// EX9E - Skips the next instruction if the key stored in VX is pressed
			in.op = opSkpr

		case 0x00A1:
			// EXA1 - Skips the next instruction if the key stored in VX isn't pressed
			in.op = opSkup
		}

	case 0xF000:
		switch opcode & 0x00FF {
		case 0x0007:
			// FX07 - Sets VX to the value of the delay timer
			in.op = opGdelay

		case 0x000A:
			// FX0A - A key press is awaited, and then stored in VX
			in.op = opKey

		case 0x0015:
			// FX15 - Sets the delay timer to VX
			in.op = opSdelay

		case 0x0018:
			// FX18 - Sets the sound timer to VX
			in.op = opSsound

		case 0x001E:
			// FX1E - Adds VX to I
			// VF is set to 1 when range overflow (I+VX>0xFFF), and 0
			// when there isn't.
			in.op = opAdi

		case 0x0029:
			// FX29 - Sets I to the location of the sprite for the
			// character in VX. Characters 0-F (in hexadecimal) are
			// represented by a 4x5 font
			in.op = opFont

		case 0x0033:
			// FX33 - Stores the Binary-coded decimal representation of VX
			// at the addresses I, I plus 1, and I plus 2
			in.op = opBcd

		case 0x0055:
			// FX55 - Stores V0 to VX in memory starting at address I
			in.op = opStr

		case 0x0065:
			// FX65 - Reads memory starting at address I into V0...VX
			in.op = opLdr
		}
	}

	return in
}

// String renders the instruction the way the trace log prints it.
func (in instruction) String() string {
	switch in.op {
	case opCls:
		return "cls"
	case opRts:
		return "rts"
	case opJmp:
		return fmt.Sprintf("jmp 0x%04x", in.nnn)
	case opJsr:
		return fmt.Sprintf("jsr 0x%04x", in.nnn)
	case opSkeq1:
		return fmt.Sprintf("skeq v%x, %d", in.x, in.kk)
	case opSkne1:
		return fmt.Sprintf("skne v%x, %d", in.x, in.kk)
	case opSkeq2:
		return fmt.Sprintf("skeq v%x, v%x", in.x, in.y)
	case opMov1:
		return fmt.Sprintf("mov v%x, %d", in.x, in.kk)
	case opAdd1:
		return fmt.Sprintf("add v%x, %d", in.x, in.kk)
	case opMov2:
		return fmt.Sprintf("mov v%x, v%x", in.x, in.y)
	case opOr:
		return fmt.Sprintf("or v%x, v%x", in.x, in.y)
	case opAnd:
		return fmt.Sprintf("and v%x, v%x", in.x, in.y)
	case opXor:
		return fmt.Sprintf("xor v%x, v%x", in.x, in.y)
	case opAdd2:
		return fmt.Sprintf("add v%x, v%x", in.x, in.y)
	case opSub:
		return fmt.Sprintf("sub v%x, v%x", in.x, in.y)
	case opShr:
		return fmt.Sprintf("shr v%x", in.x)
	case opRsb:
		return fmt.Sprintf("rsb v%x, v%x", in.x, in.y)
	case opShl:
		return fmt.Sprintf("shl v%x", in.x)
	case opSkne2:
		return fmt.Sprintf("skne v%x, v%x", in.x, in.y)
	case opMvi:
		return fmt.Sprintf("mvi 0x%04x", in.nnn)
	case opJmi:
		return fmt.Sprintf("jmi 0x%04x", in.nnn)
	case opRand:
		return fmt.Sprintf("rand v%x", in.x)
	case opSprite:
		return fmt.Sprintf("sprite v%x, v%x, %d", in.x, in.y, in.n)
	case opSkpr:
		return fmt.Sprintf("skpr v%x", in.x)
	case opSkup:
		return fmt.Sprintf("skup v%x", in.x)
	case opGdelay:
		return fmt.Sprintf("gdelay v%x", in.x)
	case opKey:
		return fmt.Sprintf("key v%x", in.x)
	case opSdelay:
		return fmt.Sprintf("sdelay v%x", in.x)
	case opSsound:
		return fmt.Sprintf("ssound v%x", in.x)
	case opAdi:
		return fmt.Sprintf("adi v%x", in.x)
	case opFont:
		return fmt.Sprintf("font v%x", in.x)
	case opBcd:
		return fmt.Sprintf("bcd v%x", in.x)
	case opStr:
		return fmt.Sprintf("str %d", in.x)
	case opLdr:
		return fmt.Sprintf("ldr %d", in.x)
	default:
		return fmt.Sprintf("unknown 0x%04X", in.opcode)
	}
}

// execute runs one decoded instruction. Every arm that completes leaves PC
// on the next instruction to run; faulting arms leave all state untouched.
func (vm *VM) execute(in instruction) error {
	switch in.op {
	// 00e0	cls	Clear the screen
	case opCls:
		for i := range vm.gfx {
			vm.gfx[i] = 0
		}
		vm.drawFlag = true
		vm.pc += InstructionSize

	// 00ee	rts	return from subroutine call
	case opRts:
		if vm.sp == 0 {
			return vm.fail(in.opcode, ErrStackUnderflow)
		}
		vm.sp--
		vm.pc = vm.stack[vm.sp]

	// 1xxx	jmp xxx	jump to address xxx
	case opJmp:
		vm.pc = in.nnn

	// 2xxx	jsr xxx	jump to subroutine at address xxx
	case opJsr:
		if int(vm.sp) == len(vm.stack) {
			return vm.fail(in.opcode, ErrStackOverflow)
		}
		vm.stack[vm.sp] = vm.pc + InstructionSize
		vm.sp++
		vm.pc = in.nnn

	// 3rxx	skeq vr,xx	skip if register r = constant
	case opSkeq1:
		vm.skipIf(vm.registers[in.x] == in.kk)

	// 4rxx	skne vr,xx	skip if register r <> constant
	case opSkne1:
		vm.skipIf(vm.registers[in.x] != in.kk)

	// 5ry0	skeq vr,vy	skip if register r = register y
	case opSkeq2:
		vm.skipIf(vm.registers[in.x] == vm.registers[in.y])

	// 6rxx	mov vr,xx	move constant to register r
	case opMov1:
		vm.registers[in.x] = in.kk
		vm.pc += InstructionSize

	// 7rxx	add vr,vx	add constant to register r	No carry generated
	case opAdd1:
		vm.registers[in.x] += in.kk
		vm.pc += InstructionSize

	// 8ry0	mov vr,vy	move register vy into vr
	case opMov2:
		vm.registers[in.x] = vm.registers[in.y]
		vm.pc += InstructionSize

	// 8ry1	or rx,ry	or register vy into register vx
	case opOr:
		vm.registers[in.x] |= vm.registers[in.y]
		vm.pc += InstructionSize

	// 8ry2	and rx,ry	and register vy into register vx
	case opAnd:
		vm.registers[in.x] &= vm.registers[in.y]
		vm.pc += InstructionSize

	// 8ry3	xor rx,ry	exclusive or register ry into register rx
	case opXor:
		vm.registers[in.x] ^= vm.registers[in.y]
		vm.pc += InstructionSize

	// 8ry4	add vr,vy	add register vy to vr, carry in vf
	case opAdd2:
		x, y := vm.registers[in.x], vm.registers[in.y]
		vm.registers[in.x] = x + y
		if y > 0xFF-x {
			vm.registers[0x0F] = 1
		} else {
			vm.registers[0x0F] = 0
		}
		vm.pc += InstructionSize

	// 8ry5	sub vr,vy	subtract register vy from vr, borrow in vf	vf set to 1 if borrows
	case opSub:
		x, y := vm.registers[in.x], vm.registers[in.y]
		vm.registers[in.x] = x - y
		if y > x {
			vm.registers[0x0F] = 0
		} else {
			vm.registers[0x0F] = 1
		}
		vm.pc += InstructionSize

	// 8r06	shr vr	shift register vr right, bit 0 goes into register vf
	case opShr:
		x := vm.registers[in.x]
		vm.registers[in.x] = x >> 1
		vm.registers[0x0F] = x & 0x01
		vm.pc += InstructionSize

	// 8ry7	rsb vr,vy	subtract register vr from register vy, result in vr	vf set to 1 if borrows
	case opRsb:
		x, y := vm.registers[in.x], vm.registers[in.y]
		vm.registers[in.x] = y - x
		if x > y {
			vm.registers[0x0F] = 0
		} else {
			vm.registers[0x0F] = 1
		}
		vm.pc += InstructionSize

	// 8r0e	shl vr	shift register vr left, bit 7 goes into register vf
	case opShl:
		x := vm.registers[in.x]
		vm.registers[in.x] = x << 1
		vm.registers[0x0F] = x >> 7
		vm.pc += InstructionSize

	// 9ry0	skne rx,ry	skip if register rx <> register ry
	case opSkne2:
		vm.skipIf(vm.registers[in.x] != vm.registers[in.y])

	// axxx	mvi xxx	Load index register with constant xxx
	case opMvi:
		vm.index = in.nnn
		vm.pc += InstructionSize

	// bxxx	jmi xxx	Jump to address xxx + register v0
	case opJmi:
		vm.pc = in.nnn + uint16(vm.registers[0])

	// crxx	rand vr,xxx	vr = random number less than or equal to xxx
	case opRand:
		vm.registers[in.x] = uint8(rand.IntN(256)) & in.kk
		vm.pc += InstructionSize

	// drys	sprite rx,ry,s	Draw sprite at screen location rx,ry height s
	case opSprite:
		vm.sprite(in)
		vm.pc += InstructionSize

	// ek9e	skpr k	skip if key (register rk) pressed
	case opSkpr:
		vm.skipIf(vm.keypad[vm.registers[in.x]&0x0F] != 0)

	// eka1	skup k	skip if key (register rk) not pressed
	case opSkup:
		vm.skipIf(vm.keypad[vm.registers[in.x]&0x0F] == 0)

	// fr07	gdelay vr	get delay timer into vr
	case opGdelay:
		vm.registers[in.x] = vm.delayTimer
		vm.pc += InstructionSize

	// fr0a	key vr	wait for for keypress, put key in register vr
	case opKey:
		// PC holds until a key is down, so the wait re-executes each cycle.
		for i := range vm.keypad {
			if vm.keypad[i] != 0 {
				vm.registers[in.x] = uint8(i)
				vm.pc += InstructionSize
				break
			}
		}

	// fr15	sdelay vr	set the delay timer to vr
	case opSdelay:
		vm.delayTimer = vm.registers[in.x]
		vm.pc += InstructionSize

	// fr18	ssound vr	set the sound timer to vr
	case opSsound:
		vm.soundTimer = vm.registers[in.x]
		vm.pc += InstructionSize

	// fr1e	adi vr	add register vr to the index register
	case opAdi:
		x := uint16(vm.registers[in.x])
		if vm.index+x > AddrMask {
			vm.registers[0x0F] = 1
		} else {
			vm.registers[0x0F] = 0
		}
		vm.index += x
		vm.pc += InstructionSize

	// fr29	font vr	point I to the sprite for hexadecimal character in vr	Sprite is 5 bytes high
	case opFont:
		digit := uint16(vm.registers[in.x] & 0x0F)
		vm.index = FontStartAddr + digit*5
		vm.pc += InstructionSize

	// fr33	bcd vr	store the bcd representation of register vr at location I,I+1,I+2	Doesn't change I
	case opBcd:
		x := vm.registers[in.x]
		vm.memory[vm.index&AddrMask] = x / 100
		vm.memory[(vm.index+1)&AddrMask] = (x / 10) % 10
		vm.memory[(vm.index+2)&AddrMask] = x % 10
		vm.pc += InstructionSize

	// fr55	str v0-vr	store registers v0-vr at location I onwards	I is incremented to point to the next location on. e.g. I = I + r + 1
	case opStr:
		for i := uint16(0); i <= uint16(in.x); i++ {
			vm.memory[(vm.index+i)&AddrMask] = vm.registers[i]
		}

		// On the original interpreter, when the operation is done, I = I + X + 1.
		vm.index += uint16(in.x) + 1

		vm.pc += InstructionSize

	// fr65	ldr v0-vr	load registers v0-vr from location I onwards
	case opLdr:
		for i := uint16(0); i <= uint16(in.x); i++ {
			vm.registers[i] = vm.memory[(vm.index+i)&AddrMask]
		}

		// On the original interpreter, when the operation is done, I = I + X + 1.
		vm.index += uint16(in.x) + 1

		vm.pc += InstructionSize

	default:
		return vm.fail(in.opcode, ErrUnknownOpcode)
	}

	return nil
}

// skipIf applies the conditional-skip advance: two instructions when the
// condition holds, one otherwise.
func (vm *VM) skipIf(skip bool) {
	if skip {
		vm.pc += 2 * InstructionSize
	} else {
		vm.pc += InstructionSize
	}
}

// sprite xor-draws an n-row sprite from memory[I] at (VX, VY). Coordinates
// wrap at the screen edges; VF records whether any pixel flipped to unset.
func (vm *VM) sprite(in instruction) {
	xLocation, yLocation := uint16(vm.registers[in.x]), uint16(vm.registers[in.y])

	hasCollision := uint8(0)
	for y := uint16(0); y < uint16(in.n); y++ {
		pixel := vm.memory[(vm.index+y)&AddrMask]

		const width = uint16(8)
		for x := uint16(0); x < width; x++ {
			mask := uint8(0x80 >> x)
			if pixel&mask == 0 {
				continue
			}

			addr := screenAddr(x+xLocation, y+yLocation)
			if vm.gfx[addr] != 0 {
				hasCollision = 1
			}

			vm.gfx[addr] ^= 1
		}
	}

	vm.registers[0x0F] = hasCollision
	vm.drawFlag = true
}

func screenAddr(x, y uint16) uint16 {
	x %= ScreenWidth
	y %= ScreenHeight

	return ScreenWidth*y + x
}
