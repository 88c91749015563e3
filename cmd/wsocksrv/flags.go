package main

import (
	altsrc "github.com/urfave/cli-altsrc/v3"
	"github.com/urfave/cli-altsrc/v3/toml"
	"github.com/urfave/cli/v3"
)

const (
	DefaultServeAddress = ":8080"
)

// serveFlags defines CLI flags to configure the echo server. These flags
// can also be set using environment variables and the configuration file.
func serveFlags(configFilePath altsrc.StringSourcer) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "addr",
			Usage: "local address to listen on",
			Value: DefaultServeAddress,
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("WSOCKSRV_ADDR"),
				toml.TOML("serve.addr", configFilePath),
			),
		},
		&cli.BoolFlag{
			Name:  "deflate",
			Usage: "negotiate permessage-deflate with clients that offer it",
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("WSOCKSRV_DEFLATE"),
				toml.TOML("serve.deflate", configFilePath),
			),
		},
		&cli.BoolFlag{
			Name:  "pretty-log",
			Usage: "human-readable console logging, instead of JSON",
		},
	}
}

// dialFlags defines CLI flags to configure the echo client.
func dialFlags(configFilePath altsrc.StringSourcer) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "url",
			Usage:    "WebSocket URL to connect to (ws:// or wss://)",
			Required: true,
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("WSOCKSRV_URL"),
				toml.TOML("dial.url", configFilePath),
			),
		},
		&cli.BoolFlag{
			Name:  "deflate",
			Usage: "offer permessage-deflate to the server",
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("WSOCKSRV_DEFLATE"),
				toml.TOML("dial.deflate", configFilePath),
			),
		},
		&cli.BoolFlag{
			Name:  "pretty-log",
			Usage: "human-readable console logging, instead of JSON",
		},
	}
}
