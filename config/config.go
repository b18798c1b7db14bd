// Package config defines the bridge's go-flags-tagged configuration
// structs, loaded once by cmd/judge-bridge and passed by value into
// constructors, mirroring the teacher's grouped mbp.AddressConfig /
// mbp.LogConfig struct-tag pattern in wordcountctl's Config var (no
// package-level config globals outside cmd/).
package config

import "time"

// ServerConfig controls the listener the bridge accepts worker
// connections on.
type ServerConfig struct {
	BindAddress    string   `long:"bind-address" env:"BIND_ADDRESS" default:":8090" description:"Address to accept worker connections on"`
	TrustedProxies []string `long:"trusted-proxy" env:"TRUSTED_PROXIES" env-delim:"," description:"CIDRs of reverse proxies trusted to supply a PROXY protocol header"`
}

// SessionConfig controls per-connection timeouts, mirroring
// session.Config's fields one-for-one.
type SessionConfig struct {
	HandshakeTimeout     time.Duration `long:"handshake-timeout" env:"HANDSHAKE_TIMEOUT" default:"15s" description:"Time allowed for the first frame after connect to be a valid handshake"`
	IdleTimeout          time.Duration `long:"idle-timeout" env:"IDLE_TIMEOUT" default:"60s" description:"Time allowed between frames from an authenticated worker"`
	AckTimeout           time.Duration `long:"ack-timeout" env:"ACK_TIMEOUT" default:"20s" description:"Time allowed for a worker to acknowledge a dispatched submission"`
	PingInterval         time.Duration `long:"ping-interval" env:"PING_INTERVAL" default:"10s" description:"Interval between ping packets on an idle or busy connection"`
	MaxFrameBytes        int           `long:"max-frame-bytes" env:"MAX_FRAME_BYTES" default:"16777216" description:"Maximum accepted declared frame length"`
	IgnoreProblemsPacket bool          `long:"ignore-problems-packet" env:"IGNORE_PROBLEMS_PACKET" description:"Ignore a worker's handshake problem set and attach the platform-wide set instead"`
}

// EventsConfig controls the testcase-update rate limiter.
type EventsConfig struct {
	UpdateRateLimit  int           `long:"update-rate-limit" env:"UPDATE_RATE_LIMIT" default:"5" description:"Maximum testcase-update events per submission per UpdateRateWindow"`
	UpdateRateWindow time.Duration `long:"update-rate-window" env:"UPDATE_RATE_WINDOW" default:"500ms" description:"Sliding window over which UpdateRateLimit applies"`
}

// StoreConfig controls the Postgres projection store connection.
type StoreConfig struct {
	DSN      string `long:"dsn" env:"STORE_DSN" description:"Postgres connection string; takes precedence over the individual fields below"`
	Host     string `long:"host" env:"STORE_HOST" description:"Postgres host"`
	Port     int    `long:"port" env:"STORE_PORT" default:"5432" description:"Postgres port"`
	Database string `long:"database" env:"STORE_DATABASE" description:"Postgres database name"`
	User     string `long:"user" env:"STORE_USER" description:"Postgres user"`
	Password string `long:"password" env:"STORE_PASSWORD" description:"Postgres password"`
	Schema   string `long:"schema" env:"STORE_SCHEMA" default:"public" description:"Postgres schema search_path"`
}

// Root is the top-level configuration the bridge's entrypoint parses,
// grouped the way go-flags renders subsection headers (one group per
// concern, same shape as the teacher's Config var).
type Root struct {
	Server  ServerConfig  `group:"Server" namespace:"server" env-namespace:"SERVER"`
	Session SessionConfig `group:"Session" namespace:"session" env-namespace:"SESSION"`
	Events  EventsConfig  `group:"Events" namespace:"events" env-namespace:"EVENTS"`
	Store   StoreConfig   `group:"Store" namespace:"store" env-namespace:"STORE"`

	TopicSecret string `long:"topic-secret" env:"TOPIC_SECRET" description:"HMAC key used to derive per-submission event topic names"`
}
