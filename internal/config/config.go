// Package config loads the gateway's settings.ini file: a flat key/value
// file partitioned into sections logging, sip, telegram, other.
package config

import (
	"flag"
	"fmt"
	"time"

	"gopkg.in/ini.v1"
)

// Config holds every setting the gateway's core consults. The loader fills
// defaults for absent keys but does not range-check values; log level names
// are mapped to valid levels by logger.ParseLevel where they are used.
type Config struct {
	// [logging]
	ConsoleMinLevel string
	FileMinLevel    string
	LogDirectory    string

	// [sip]
	SIPPort        int
	IDUri          string
	CallbackUri    string // empty => SSP-originated calls only; core rejects PVP inbound
	PublicAddress  string
	LogSIPMessages bool

	// [telegram]
	APIID             int
	APIHash           string
	DatabaseFolder    string
	UDPP2P            bool
	UDPReflector      bool
	EnableAEC         bool
	EnableNS          bool
	EnableAGC         bool
	UseVoipProxy      bool
	VoipProxyAddress  string
	VoipProxyPort     int
	VoipProxyUsername string
	VoipProxyPassword string

	// [other]
	ExtraWaitTime  time.Duration
	PeerFloodTime  time.Duration
}

// Flags groups the command-line flags recognised by cmd/tg2sip.
type Flags struct {
	ConfigPath string
}

// ParseFlags parses the gateway's single command-line flag: the path to the
// settings.ini file. The original carries no further CLI surface and neither
// does this port (the one-shot auth/registration helper is out of scope,
// per spec.md §1).
func ParseFlags() Flags {
	var f Flags
	flag.StringVar(&f.ConfigPath, "config", "settings.ini", "path to settings.ini")
	flag.Parse()
	return f
}

// Load reads and validates settings.ini at path. It returns a
// local-configuration error — never routed through the state machine — when
// the file cannot be read/parsed or a required key is missing.
func Load(path string) (*Config, error) {
	f, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("config: load %s: %w", path, err)
	}

	cfg := &Config{
		ConsoleMinLevel: "info",
		FileMinLevel:    "debug",
		LogDirectory:    "logs",
		SIPPort:         5060,
		UDPP2P:          true,
		UDPReflector:    true,
		EnableAEC:       true,
		EnableNS:        true,
		EnableAGC:       true,
		ExtraWaitTime:   30 * time.Second,
		PeerFloodTime:   86400 * time.Second,
	}

	logging := f.Section("logging")
	cfg.ConsoleMinLevel = logging.Key("console_min_level").MustString(cfg.ConsoleMinLevel)
	cfg.FileMinLevel = logging.Key("file_min_level").MustString(cfg.FileMinLevel)
	cfg.LogDirectory = logging.Key("directory").MustString(cfg.LogDirectory)

	sip := f.Section("sip")
	cfg.SIPPort = sip.Key("port").MustInt(cfg.SIPPort)
	cfg.IDUri = sip.Key("id_uri").String()
	cfg.CallbackUri = sip.Key("callback_uri").String()
	cfg.PublicAddress = sip.Key("public_address").String()
	cfg.LogSIPMessages = sip.Key("log_sip_messages").MustBool(false)

	tg := f.Section("telegram")
	cfg.APIID = tg.Key("api_id").MustInt(0)
	cfg.APIHash = tg.Key("api_hash").String()
	cfg.DatabaseFolder = tg.Key("database_folder").MustString("tdlib-db")
	cfg.UDPP2P = tg.Key("udp_p2p").MustBool(cfg.UDPP2P)
	cfg.UDPReflector = tg.Key("udp_reflector").MustBool(cfg.UDPReflector)
	cfg.EnableAEC = tg.Key("enable_aec").MustBool(cfg.EnableAEC)
	cfg.EnableNS = tg.Key("enable_ns").MustBool(cfg.EnableNS)
	cfg.EnableAGC = tg.Key("enable_agc").MustBool(cfg.EnableAGC)
	cfg.UseVoipProxy = tg.Key("use_voip_proxy").MustBool(false)
	cfg.VoipProxyAddress = tg.Key("voip_proxy_address").String()
	cfg.VoipProxyPort = tg.Key("voip_proxy_port").MustInt(1080)
	cfg.VoipProxyUsername = tg.Key("voip_proxy_username").String()
	cfg.VoipProxyPassword = tg.Key("voip_proxy_password").String()

	other := f.Section("other")
	cfg.ExtraWaitTime = time.Duration(other.Key("extra_wait_time").MustInt(30)) * time.Second
	cfg.PeerFloodTime = time.Duration(other.Key("peer_flood_time").MustInt(86400)) * time.Second

	if cfg.APIID == 0 || cfg.APIHash == "" {
		return nil, fmt.Errorf("config: telegram.api_id and telegram.api_hash are required")
	}

	return cfg, nil
}

// HasCallbackUri reports whether PVP-originated calls are accepted.
func (c *Config) HasCallbackUri() bool {
	return c.CallbackUri != ""
}
