// Package web streams the machine's framebuffer to browsers over websockets
// and feeds their key presses back as events. It never touches the machine
// itself: the driver publishes frames and drains the event channel.
package web

import (
	"net/http"

	"github.com/gorilla/websocket"
)

type hub struct {
	clients map[*client]bool

	broadcast  chan []byte
	register   chan *client
	unregister chan *client

	events chan KeyEvent
}

func newHub() *hub {
	return &hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan []byte, 16),
		register:   make(chan *client),
		unregister: make(chan *client),
		events:     make(chan KeyEvent, 64),
	}
}

func (h *hub) run() {
	for {
		select {
		case c := <-h.register:
			h.clients[c] = true

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}

		case message := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- message:
				default:
					close(c.send)
					delete(h.clients, c)
				}
			}
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(*http.Request) bool {
		return true
	},
}
