// Package hal renders the machine's framebuffer in an SDL2 window, maps the
// host keyboard onto the 16-key pad and drives the buzzer.
package hal

import (
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unsafe"

	"github.com/omnichip8/oc8/internal/vm"
	"github.com/veandco/go-sdl2/sdl"
)

const (
	WindowWidth  = 1024
	WindowHeight = 512

	audioFreq = 44100
	beepFreq  = 440
)

type HAL struct {
	window          *sdl.Window
	renderer        *sdl.Renderer
	texture         *sdl.Texture
	backBuffer      []uint32
	backBufferPitch int

	audio   sdl.AudioDeviceID
	wave    []byte
	beeping bool

	lastFrame time.Time
}

var (
	ErrReboot = errors.New("reboot")
	ErrQuit   = errors.New("quit")
)

func New() (*HAL, error) {
	if err := sdl.Init(sdl.INIT_EVERYTHING); err != nil {
		return nil, fmt.Errorf("failed to init sdl: %w", err)
	}

	window, err := sdl.CreateWindow("CHIP-8", sdl.WINDOWPOS_UNDEFINED, sdl.WINDOWPOS_UNDEFINED, WindowWidth, WindowHeight, sdl.WINDOW_SHOWN|sdl.WINDOW_UTILITY)
	if err != nil {
		return nil, fmt.Errorf("failed to create sdl window: %w", err)
	}
	slog.Debug("hal: create window")
	window.Show()

	renderer, err := sdl.CreateRenderer(window, -1, sdl.RENDERER_ACCELERATED)
	if err != nil {
		return nil, fmt.Errorf("failed to create sdl renderer: %w", err)
	}
	err = renderer.SetLogicalSize(WindowWidth, WindowHeight)
	if err != nil {
		return nil, fmt.Errorf("failed to resize sdl renderer: %w", err)
	}
	slog.Debug("hal: create renderer")

	texture, err := renderer.CreateTexture(sdl.PIXELFORMAT_ARGB8888, sdl.TEXTUREACCESS_STREAMING, vm.ScreenWidth, vm.ScreenHeight)
	if err != nil {
		return nil, fmt.Errorf("failed to create sdl texture: %w", err)
	}
	slog.Debug("hal: create texture")

	// Run silent when no audio device is available.
	audio, err := openAudio()
	if err != nil {
		slog.Warn("hal: no audio device", "err", err)
		audio = 0
	} else {
		slog.Debug("hal: open audio device")
	}

	return &HAL{
		window:          window,
		renderer:        renderer,
		texture:         texture,
		backBuffer:      make([]uint32, vm.ScreenWidth*vm.ScreenHeight),
		backBufferPitch: int(vm.ScreenWidth) * int(unsafe.Sizeof(uint32(0))),
		audio:           audio,
		wave:            squareWave(),
		lastFrame:       time.Now(),
	}, nil
}

func openAudio() (sdl.AudioDeviceID, error) {
	want := sdl.AudioSpec{
		Freq:     audioFreq,
		Format:   sdl.AUDIO_U8,
		Channels: 1,
		Samples:  512,
	}

	var have sdl.AudioSpec
	audio, err := sdl.OpenAudioDevice("", false, &want, &have, 0)
	if err != nil {
		return 0, fmt.Errorf("failed to open sdl audio device: %w", err)
	}

	return audio, nil
}

// squareWave is one frame worth of the buzzer tone, 8-bit unsigned mono.
func squareWave() []byte {
	const (
		amplitude = 0x20
		period    = audioFreq / beepFreq
	)

	wave := make([]byte, audioFreq/60)
	for i := range wave {
		if i%period < period/2 {
			wave[i] = 0x80 + amplitude
		} else {
			wave[i] = 0x80 - amplitude
		}
	}
	return wave
}

func (hal *HAL) Shutdown() {
	if hal.audio != 0 {
		sdl.CloseAudioDevice(hal.audio)
	}

	if err := hal.texture.Destroy(); err != nil {
		slog.Error("failed to destroy sdl texture", "err", err)
	}

	if err := hal.renderer.Destroy(); err != nil {
		slog.Error("failed to destroy sdl renderer", "err", err)
	}

	if err := hal.window.Destroy(); err != nil {
		slog.Error("failed to destroy sdl window", "err", err)
	}

	sdl.Quit()
}

func (hal *HAL) ReadInput(keyDown func(vm.Key), keyUp func(vm.Key)) error {
	for e := sdl.PollEvent(); e != nil; e = sdl.PollEvent() {
		switch e.GetType() {
		case sdl.QUIT:
			slog.Debug("hal: exit requested")
			return ErrQuit
		case sdl.KEYDOWN:
			err := hal.processKeyDown(e.(*sdl.KeyboardEvent), keyDown)
			if err != nil {
				return err
			}

		case sdl.KEYUP:
			hal.processKeyUp(e.(*sdl.KeyboardEvent), keyUp)
		}
	}

	return nil
}

func (hal *HAL) processKeyDown(e *sdl.KeyboardEvent, callback func(vm.Key)) error {
	if e.Keysym.Scancode == sdl.SCANCODE_BACKSPACE {
		return ErrReboot
	}

	key, ok := keyMap(e)
	if ok {
		callback(key)
	}

	return nil
}

func (hal *HAL) processKeyUp(e *sdl.KeyboardEvent, callback func(vm.Key)) {
	key, ok := keyMap(e)
	if ok {
		callback(key)
	}
}

func keyMap(e *sdl.KeyboardEvent) (vm.Key, bool) {
	// Physical                Logical
	// ================        =================
	// | 1 | 2 | 3 | 4 |       | 1 | 2 | 3 | C |
	// | q | w | e | r |       | 4 | 5 | 6 | D |
	// | a | s | d | e |  <=>  | 7 | 8 | 9 | E |
	// | z | x | c | v |       | A | 0 | B | F |
	// ================        =================

	switch e.Keysym.Scancode {
	case sdl.SCANCODE_X:
		return vm.Key0, true
	case sdl.SCANCODE_1:
		return vm.Key1, true
	case sdl.SCANCODE_2:
		return vm.Key2, true
	case sdl.SCANCODE_3:
		return vm.Key3, true
	case sdl.SCANCODE_Q:
		return vm.Key4, true
	case sdl.SCANCODE_W:
		return vm.Key5, true
	case sdl.SCANCODE_E:
		return vm.Key6, true
	case sdl.SCANCODE_A:
		return vm.Key7, true
	case sdl.SCANCODE_S:
		return vm.Key8, true
	case sdl.SCANCODE_D:
		return vm.Key9, true
	case sdl.SCANCODE_Z:
		return vm.KeyA, true
	case sdl.SCANCODE_C:
		return vm.KeyB, true
	case sdl.SCANCODE_4:
		return vm.KeyC, true
	case sdl.SCANCODE_R:
		return vm.KeyD, true
	case sdl.SCANCODE_F:
		return vm.KeyE, true
	case sdl.SCANCODE_V:
		return vm.KeyF, true
	default:
		return 0, false
	}
}

func (hal *HAL) Draw(gfx []uint8) error {
	const (
		bgColor = uint32(0x000000)
		fgColor = uint32(0xbea700)
	)

	for y := 0; y < vm.ScreenHeight; y++ {

		for x := 0; x < vm.ScreenWidth; x++ {
			i := x + y*vm.ScreenWidth

			color := bgColor
			if gfx[i] != 0 {
				color = fgColor
			}

			hal.backBuffer[i] = color
		}
	}

	backBufferPtr := unsafe.Pointer(&hal.backBuffer[0])
	if err := hal.texture.Update(nil, backBufferPtr, hal.backBufferPitch); err != nil {
		return fmt.Errorf("failed to update sdl texture: %w", err)
	}

	if err := hal.renderer.Clear(); err != nil {
		return fmt.Errorf("failed to clear sdl renderer: %w", err)
	}

	if err := hal.renderer.Copy(hal.texture, nil, nil); err != nil {
		return fmt.Errorf("failed to copy sdl texture to renderer: %w", err)
	}

	hal.renderer.Present()
	hal.window.SetAlwaysOnTop(true)
	return nil
}

// SetBeeping turns the buzzer tone on or off. Calling it every frame keeps
// the audio queue topped up while the tone plays.
func (hal *HAL) SetBeeping(on bool) {
	if hal.audio == 0 {
		return
	}

	if !on {
		if hal.beeping {
			sdl.PauseAudioDevice(hal.audio, true)
			sdl.ClearQueuedAudio(hal.audio)
			hal.beeping = false
		}
		return
	}

	// keep about two frames of tone queued
	if sdl.GetQueuedAudioSize(hal.audio) < uint32(2*len(hal.wave)) {
		if err := sdl.QueueAudio(hal.audio, hal.wave); err != nil {
			slog.Error("failed to queue sdl audio", "err", err)
		}
	}

	if !hal.beeping {
		sdl.PauseAudioDevice(hal.audio, false)
		hal.beeping = true
	}
}

// WaitForNextFrame sleeps out the remainder of the 60 Hz frame slot.
func (hal *HAL) WaitForNextFrame() error {
	const frameDuration = time.Second / 60

	if wait := frameDuration - time.Since(hal.lastFrame); wait > 0 {
		time.Sleep(wait)
	}
	hal.lastFrame = time.Now()
	return nil
}
