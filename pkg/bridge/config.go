// Copyright 2024-2026 Aiku AI
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package bridge

import (
	_ "embed"
	"fmt"
	"os"
	"text/template"
	"time"

	"gopkg.in/yaml.v3"
	"maunium.net/go/mautrix/id"
)

//go:embed example-config.yaml
var ExampleConfig string

// DefaultAgeLimit applies when age_limit_seconds is unset. Events older
// than this are dropped to avoid acting on replays after a reconnect.
const DefaultAgeLimit = 5 * time.Minute

// SessionConfig describes one remote session to register at startup.
type SessionConfig struct {
	ConsumerMXID string `yaml:"consumer_mxid"`
	ServerURL    string `yaml:"server_url"`
	Token        string `yaml:"token"`
}

// Config holds the bridge configuration.
type Config struct {
	HomeserverAddress string `yaml:"homeserver_address"`
	HomeserverDomain  string `yaml:"homeserver_domain"`
	BotMXID           string `yaml:"bot_mxid"`
	ASToken           string `yaml:"as_token"`

	// UsernamePrefix is prepended to the encoded remote ID when minting
	// ghost MXIDs. It doubles as the echo-prevention marker: any local
	// user whose localpart starts with this prefix is treated as
	// bridge-owned.
	UsernamePrefix      string `yaml:"username_prefix"`
	DisplaynameTemplate string `yaml:"displayname_template"`
	// RoomNameSuffix is appended to the names of rooms the bridge creates.
	RoomNameSuffix string `yaml:"room_name_suffix"`
	BotDisplayname string `yaml:"bot_displayname"`

	AgeLimitSeconds int `yaml:"age_limit_seconds"`

	// AdminAPIAddr is the listen address for the admin HTTP API. Defaults
	// to ":29330".
	AdminAPIAddr string `yaml:"admin_api_addr"`

	Diagnostics struct {
		// ContactID is a remote contact that receives a transcript of every
		// routed message, for debugging. Empty disables forwarding.
		ContactID string `yaml:"contact_id"`
		// EchoRoomID is a local room that receives the same transcript.
		// Empty disables the echo.
		EchoRoomID string `yaml:"echo_room_id"`
	} `yaml:"diagnostics"`

	Database struct {
		// Path is the SQLite file holding correlation records. Empty keeps
		// correlations in memory only.
		Path string `yaml:"path"`
	} `yaml:"database"`

	Sessions []SessionConfig `yaml:"sessions"`

	displaynameTemplate *template.Template `yaml:"-"`
}

// DisplaynameParams holds the parameters for rendering the ghost
// displayname template.
type DisplaynameParams struct {
	ID   string
	Name string
}

func (c *Config) UnmarshalYAML(node *yaml.Node) error {
	type rawConfig Config
	return node.Decode((*rawConfig)(c))
}

// PostProcess compiles the displayname template and applies defaults.
func (c *Config) PostProcess() error {
	if c.AdminAPIAddr == "" {
		c.AdminAPIAddr = ":29330"
	}
	if c.DisplaynameTemplate == "" {
		c.DisplaynameTemplate = "{{.Name}}"
	}
	var err error
	c.displaynameTemplate, err = template.New("displayname").Parse(c.DisplaynameTemplate)
	if err != nil {
		return fmt.Errorf("parse displayname template: %w", err)
	}
	return nil
}

// AgeLimit returns the staleness cutoff for inbound events.
func (c *Config) AgeLimit() time.Duration {
	if c.AgeLimitSeconds <= 0 {
		return DefaultAgeLimit
	}
	return time.Duration(c.AgeLimitSeconds) * time.Second
}

// BotUserID returns the configured bridge bot MXID.
func (c *Config) BotUserID() id.UserID {
	return id.UserID(c.BotMXID)
}

// FormatDisplayname renders a ghost displayname from the template. Falls
// back to the raw name on render failure.
func (c *Config) FormatDisplayname(params DisplaynameParams) string {
	if c.displaynameTemplate == nil {
		return params.Name
	}
	var buf []byte
	err := c.displaynameTemplate.Execute((*templateBuffer)(&buf), params)
	if err != nil {
		return params.Name
	}
	return string(buf)
}

// templateBuffer is a simple io.Writer that appends to a byte slice.
type templateBuffer []byte

func (b *templateBuffer) Write(p []byte) (int, error) {
	*b = append(*b, p...)
	return len(p), nil
}

// LoadConfig reads and post-processes a YAML config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := config.PostProcess(); err != nil {
		return nil, err
	}
	return &config, nil
}
