// Wsocksrv is a WebSocket echo server and client, for manual testing
// and demos of the [pkg/websocket] library.
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"runtime/debug"
	"time"

	altsrc "github.com/urfave/cli-altsrc/v3"
	"github.com/urfave/cli/v3"
	"github.com/rs/zerolog"
	"github.com/tzrikka/xdg"

	"github.com/sockweave/wsock/internal/wslog"
	"github.com/sockweave/wsock/pkg/websocket"
)

const (
	ConfigDirName  = "wsocksrv"
	ConfigFileName = "config.toml"
)

func main() {
	bi, _ := debug.ReadBuildInfo()
	path := configFile()

	cmd := &cli.Command{
		Name:    "wsocksrv",
		Usage:   "WebSocket echo server and client",
		Version: bi.Main.Version,
		Commands: []*cli.Command{
			serveCommand(path),
			dialCommand(path),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func serveCommand(path altsrc.StringSourcer) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run a WebSocket echo server",
		Flags: serveFlags(path),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := initLog(cmd.Bool("pretty-log"))
			ctx = wslog.InContext(ctx, log)

			hub := websocket.NewHub()
			mux := http.NewServeMux()
			mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
				c, err := websocket.Upgrade(ctx, w, r, websocket.ServerOptions{
					AllowDeflate: cmd.Bool("deflate"),
					Handler:      &echoHandler{log: log},
					Logger:       log,
				})
				if err != nil {
					log.Error().Err(err).Msg("upgrade failed")
					return
				}
				hub.Register(c)
			})

			addr := cmd.String("addr")
			log.Info().Str("addr", addr).Msg("listening")
			return http.ListenAndServe(addr, mux) //nolint:gosec // demo server, no read/write timeouts needed
		},
	}
}

func dialCommand(path altsrc.StringSourcer) *cli.Command {
	return &cli.Command{
		Name:  "dial",
		Usage: "connect to a WebSocket server and echo lines from stdin",
		Flags: dialFlags(path),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := initLog(cmd.Bool("pretty-log"))

			var opts []websocket.DialOpt
			opts = append(opts, websocket.WithLogger(log), websocket.WithHandler(&printHandler{log: log}))
			if cmd.Bool("deflate") {
				opts = append(opts, websocket.WithDeflate())
			}

			conn, err := websocket.Dial(ctx, cmd.String("url"), opts...)
			if err != nil {
				return fmt.Errorf("failed to dial %s: %w", cmd.String("url"), err)
			}

			go feedStdin(conn, log)

			code, reason, clean := conn.Wait()
			log.Info().Stringer("code", code).Str("reason", reason).Bool("clean", clean).Msg("connection closed")
			return nil
		},
	}
}

// feedStdin sends each line of standard input as a Text message, until
// stdin closes or the connection does.
func feedStdin(conn *websocket.Conn, log zerolog.Logger) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if !conn.IsOpen() {
			return
		}
		if err := conn.SendText(scanner.Text()); err != nil {
			log.Error().Err(err).Msg("failed to send message")
			return
		}
	}
	conn.Close()
}

// configFile returns the path to the app's configuration file.
// It also creates an empty file if it doesn't already exist.
func configFile() altsrc.StringSourcer {
	path, err := xdg.CreateFile(xdg.ConfigHome, ConfigDirName, ConfigFileName)
	if err != nil {
		fmt.Printf("failed to create config file: %v\n", err)
		os.Exit(1)
	}
	return altsrc.StringSourcer(path)
}

// initLog builds the process-wide logger, in JSON unless devMode asks
// for a human-readable console format.
func initLog(devMode bool) zerolog.Logger {
	var w io.Writer = os.Stderr
	if devMode {
		w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).With().Timestamp().Logger()
}
