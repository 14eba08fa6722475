package web

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/cespare/xxhash"
	"github.com/omnichip8/oc8/internal/vm"
)

// msgFrame tags a packed framebuffer message.
const msgFrame = 0x01

// KeyEvent is one key transition reported by a browser.
type KeyEvent struct {
	Key  vm.Key
	Down bool
}

// Server serves the canvas page on "/" and the websocket on "/ws".
type Server struct {
	addr string
	hub  *hub

	mu        sync.Mutex
	lastHash  uint64
	lastFrame []byte
}

func NewServer(addr string) *Server {
	return &Server{
		addr: addr,
		hub:  newHub(),
	}
}

// Start binds the listener and serves in the background. Bind errors are
// reported here; later serve errors are only logged.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("unable to listen on %q: %w", s.addr, err)
	}

	go s.hub.run()

	slog.Info("web display listening", "addr", ln.Addr().String())

	go func() {
		if err := http.Serve(ln, s.handler()); err != nil {
			slog.Error("web server stopped", "err", err)
		}
	}()

	return nil
}

func (s *Server) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/ws", s.handleSocket)
	return mux
}

// Events returns the stream of key transitions from all connected browsers.
func (s *Server) Events() <-chan KeyEvent {
	return s.hub.events
}

// Publish queues one framebuffer for broadcast. A frame identical to the
// previous one is dropped.
func (s *Server) Publish(screen []uint8) {
	frame := packFrame(screen)
	hash := xxhash.Sum64(frame)

	s.mu.Lock()
	if hash == s.lastHash {
		s.mu.Unlock()
		return
	}
	s.lastHash = hash
	s.lastFrame = frame
	s.mu.Unlock()

	s.hub.broadcast <- frame
}

// packFrame packs the one-byte-per-pixel framebuffer down to one bit per
// pixel, row-major, most significant bit first, behind the message tag.
func packFrame(screen []uint8) []byte {
	packed := make([]byte, 1+len(screen)/8)
	packed[0] = msgFrame

	for i, px := range screen {
		if px != 0 {
			packed[1+i/8] |= uint8(0x80 >> (i % 8))
		}
	}

	return packed
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, indexHTML)
}

func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "err", err)
		return
	}

	c := &client{
		hub:  s.hub,
		conn: conn,
		send: make(chan []byte, 64),
	}
	s.hub.register <- c

	go c.writePump()
	go c.readPump()

	// late joiners get the current screen right away
	s.mu.Lock()
	frame := s.lastFrame
	s.mu.Unlock()
	if frame != nil {
		c.send <- frame
	}

	slog.Info("web client connected", "remote", r.RemoteAddr)
}

const indexHTML = `<!doctype html>
<html>
<head>
<meta charset="utf-8">
<title>CHIP-8</title>
<style>
  body { background: #111; display: flex; justify-content: center; align-items: center; height: 100vh; margin: 0; }
  canvas { image-rendering: pixelated; border: 1px solid #333; width: 640px; height: 320px; }
</style>
</head>
<body>
<canvas id="screen" width="64" height="32"></canvas>
<script>
// Physical                Logical
// ================        =================
// | 1 | 2 | 3 | 4 |       | 1 | 2 | 3 | C |
// | q | w | e | r |       | 4 | 5 | 6 | D |
// | a | s | d | f |  <=>  | 7 | 8 | 9 | E |
// | z | x | c | v |       | A | 0 | B | F |
// ================        =================
const keymap = {
  Digit1: 0x1, Digit2: 0x2, Digit3: 0x3, Digit4: 0xC,
  KeyQ: 0x4, KeyW: 0x5, KeyE: 0x6, KeyR: 0xD,
  KeyA: 0x7, KeyS: 0x8, KeyD: 0x9, KeyF: 0xE,
  KeyZ: 0xA, KeyX: 0x0, KeyC: 0xB, KeyV: 0xF,
};

const ctx = document.getElementById("screen").getContext("2d");
const ws = new WebSocket("ws://" + location.host + "/ws");
ws.binaryType = "arraybuffer";

ws.onmessage = (ev) => {
  const data = new Uint8Array(ev.data);
  if (data[0] !== 1) return;

  const img = ctx.createImageData(64, 32);
  for (let i = 0; i < 64 * 32; i++) {
    const on = (data[1 + (i >> 3)] >> (7 - (i & 7))) & 1;
    img.data[i * 4] = on ? 0xbe : 0;
    img.data[i * 4 + 1] = on ? 0xa7 : 0;
    img.data[i * 4 + 2] = 0;
    img.data[i * 4 + 3] = 255;
  }
  ctx.putImageData(img, 0, 0);
};

function send(code, down) {
  if (!(code in keymap) || ws.readyState !== WebSocket.OPEN) return;
  ws.send(new Uint8Array([keymap[code], down ? 1 : 0]));
}
document.addEventListener("keydown", (e) => send(e.code, true));
document.addEventListener("keyup", (e) => send(e.code, false));
</script>
</body>
</html>
`
