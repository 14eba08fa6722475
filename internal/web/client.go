package web

import (
	"github.com/gorilla/websocket"
	"github.com/omnichip8/oc8/internal/vm"
)

type client struct {
	hub  *hub
	conn *websocket.Conn
	send chan []byte
}

// readPump turns incoming 2-byte key messages into events. Anything else is
// ignored.
func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		if len(message) != 2 {
			continue
		}

		ev := KeyEvent{
			Key:  vm.Key(message[0] & 0x0F),
			Down: message[1] != 0,
		}

		select {
		case c.hub.events <- ev:
		default:
			// drop key events when the driver falls behind
		}
	}
}

// writePump forwards broadcast frames until the hub drops the client.
func (c *client) writePump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	for message := range c.send {
		if err := c.conn.WriteMessage(websocket.BinaryMessage, message); err != nil {
			return
		}
	}

	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
