// Wstest drives [pkg/websocket]'s client against the fuzzing server of
// the [Autobahn Testsuite], exercising every enabled protocol-compliance
// case as an echo client.
//
// [Autobahn Testsuite]: https://github.com/crossbario/autobahn-testsuite
package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/sockweave/wsock/pkg/websocket"
)

const (
	baseURL = "ws://127.0.0.1:9001"
	agent   = "wsock"
)

var log = zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Logger()

func main() {
	n := getCaseCount()
	log.Info().Int("n", n).Msg("case count")

	for i := 1; i <= n; i++ {
		runCase(i)
	}

	updateReports()
}

func dial(url string, h websocket.Handler) (*websocket.Conn, error) {
	return websocket.Dial(context.Background(), url, websocket.WithHandler(h), websocket.WithLogger(log))
}

// countHandler captures the single Text message the getCaseCount
// endpoint sends, then signals done.
type countHandler struct {
	websocket.NopHandler
	result chan []byte
}

func (h *countHandler) OnMessage(_ *websocket.Conn, msg websocket.Message) {
	h.result <- msg.Data
}

// getCaseCount retrieves the number of enabled test cases from the
// Autobahn fuzzing server, using a WebSocket request.
func getCaseCount() int {
	h := &countHandler{result: make(chan []byte, 1)}
	conn, err := dial(baseURL+"/getCaseCount", h)
	if err != nil {
		log.Fatal().Err(err).Msg("dial error")
	}

	data := <-h.result
	conn.Close()

	n, err := strconv.Atoi(string(data))
	if err != nil {
		log.Fatal().Err(err).Msg("invalid test case count")
	}
	return n
}

// echoHandler echoes every Text/Binary message back to the server,
// implementing the Autobahn echo-client contract for a single case.
type echoHandler struct {
	websocket.NopHandler
	caseNum int
}

func (h *echoHandler) OnMessage(c *websocket.Conn, msg websocket.Message) {
	l := log.With().Int("case", h.caseNum).Str("opcode", msg.Opcode.String()).Logger()
	l.Info().Int("length", len(msg.Data)).Msg("received message")

	var err error
	switch msg.Opcode {
	case websocket.OpcodeText:
		err = c.SendText(string(msg.Data))
	case websocket.OpcodeBinary:
		err = c.SendBinary(msg.Data)
	default:
		l.Error().Msg("unexpected opcode in data message")
		return
	}
	if err != nil {
		l.Error().Err(err).Msg("echo error")
		c.Close()
	}
}

func (h *echoHandler) OnClose(_ *websocket.Conn, code websocket.StatusCode, _ string, _ bool) {
	log.Debug().Int("case", h.caseNum).Stringer("code", code).Msg("connection closed")
}

func runCase(i int) {
	log.Info().Int("case", i).Msg("starting test")

	h := &echoHandler{caseNum: i}
	conn, err := dial(fmt.Sprintf("%s/runCase?case=%d&agent=%s", baseURL, i, agent), h)
	if err != nil {
		log.Fatal().Err(err).Int("case", i).Msg("dial error")
	}

	conn.Wait()
}

// updateReports instructs the Autobahn fuzzing server to generate/update
// all the HTML and JSON files for all the test-case results.
func updateReports() {
	log.Info().Msg("updating reports")

	url := fmt.Sprintf("%s/updateReports?agent=%s", baseURL, agent)
	conn, err := dial(url, websocket.NopHandler{})
	if err != nil {
		log.Fatal().Err(err).Msg("dial error")
	}
	conn.Wait()
}
