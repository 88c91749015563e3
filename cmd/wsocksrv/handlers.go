package main

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/sockweave/wsock/pkg/websocket"
	"github.com/sockweave/wsock/pkg/wsmetrics"
)

// echoHandler answers every Text/Binary message with an identical
// reply and records connection-lifecycle metrics.
type echoHandler struct {
	websocket.NopHandler
	log zerolog.Logger
}

func (h *echoHandler) OnOpen(c *websocket.Conn) {
	wsmetrics.RecordOpen(h.log, time.Now(), c.ID(), c.Role().String())
}

func (h *echoHandler) OnMessage(c *websocket.Conn, msg websocket.Message) {
	wsmetrics.RecordMessage(h.log, time.Now(), c.ID(), msg.Opcode.String(), len(msg.Data))

	var err error
	switch msg.Opcode {
	case websocket.OpcodeText:
		err = c.SendText(string(msg.Data))
	case websocket.OpcodeBinary:
		err = c.SendBinary(msg.Data)
	}
	if err != nil {
		h.log.Error().Err(err).Str("conn_id", c.ID()).Msg("failed to echo message")
	}
}

func (h *echoHandler) OnClose(c *websocket.Conn, code websocket.StatusCode, _ string, wasClean bool) {
	wsmetrics.RecordClose(h.log, time.Now(), c.ID(), int(code), wasClean)
}

// printHandler prints every received message to the log; used by the
// "dial" command as a minimal interactive client.
type printHandler struct {
	websocket.NopHandler
	log zerolog.Logger
}

func (h *printHandler) OnOpen(c *websocket.Conn) {
	h.log.Info().Str("conn_id", c.ID()).Msg("connected")
}

func (h *printHandler) OnMessage(_ *websocket.Conn, msg websocket.Message) {
	h.log.Info().Str("opcode", msg.Opcode.String()).Str("data", string(msg.Data)).Msg("received")
}

func (h *printHandler) OnError(_ *websocket.Conn, err error) {
	h.log.Error().Err(err).Msg("connection error")
}
