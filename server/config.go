// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package server

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"code.hybscloud.com/reactor/websocket"
	"github.com/sirupsen/logrus"
)

// Config configures a Server. Zero fields take the defaults below.
type Config struct {
	// Host is the listen address. Default 127.0.0.1.
	Host string
	// Port is the listen port. 0 picks a free one; see Server.Port.
	Port int
	// Root is the directory static files are served from.
	// Empty disables static files: every path but the upgrade one is 404.
	Root string
	// IndexFile is served for "/". Default index.html.
	IndexFile string
	// WebSocketPath is the upgrade endpoint. Default /ws.
	WebSocketPath string
	// Backlog is the listen queue length. Default 128.
	Backlog int
	// MaxMessageSize bounds inbound WebSocket messages. Default 16 MiB.
	MaxMessageSize int
	// OutboxSize is the outbound queue capacity. Default 256.
	OutboxSize int

	// OnConnect and OnDisconnect, when set, run on the reactor goroutine
	// as the WebSocket connection opens and ends.
	OnConnect    func(*websocket.Conn)
	OnDisconnect func(*websocket.Conn)

	Logger logrus.FieldLogger
}

func (c *Config) withDefaults() (config Config) {
	config = *c
	if config.Host == "" {
		config.Host = "127.0.0.1"
	}
	if config.IndexFile == "" {
		config.IndexFile = "index.html"
	}
	if config.WebSocketPath == "" {
		config.WebSocketPath = "/ws"
	}
	if config.Backlog <= 0 {
		config.Backlog = 128
	}
	if config.MaxMessageSize <= 0 {
		config.MaxMessageSize = 16 << 20
	}
	if config.OutboxSize <= 0 {
		config.OutboxSize = 256
	}
	if config.Logger == nil {
		config.Logger = logrus.StandardLogger()
	}
	return config
}

// Validate reports the first invalid field after defaults are applied.
func (c Config) Validate() error {
	config := c.withDefaults()
	if config.Port < 0 || config.Port > 65535 {
		return fmt.Errorf("server: port %d out of range", config.Port)
	}
	if !strings.HasPrefix(config.WebSocketPath, "/") {
		return fmt.Errorf("server: websocket path %q must start with /", config.WebSocketPath)
	}
	if strings.ContainsAny(config.IndexFile, `/\`) {
		return fmt.Errorf("server: index file %q must be a plain name", config.IndexFile)
	}
	if config.Root != "" {
		info, err := os.Stat(config.Root)
		if err != nil {
			return fmt.Errorf("server: root: %w", err)
		}
		if !info.IsDir() {
			return errors.New("server: root is not a directory")
		}
	}
	return nil
}
