package config

import (
	"testing"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootParsesDocumentedDefaults(t *testing.T) {
	var root Root
	_, err := flags.NewParser(&root, flags.None).ParseArgs(nil)
	require.NoError(t, err)

	assert.Equal(t, ":8090", root.Server.BindAddress)
	assert.Equal(t, 15*time.Second, root.Session.HandshakeTimeout)
	assert.Equal(t, 60*time.Second, root.Session.IdleTimeout)
	assert.Equal(t, 20*time.Second, root.Session.AckTimeout)
	assert.Equal(t, 10*time.Second, root.Session.PingInterval)
	assert.Equal(t, 16777216, root.Session.MaxFrameBytes)
	assert.Equal(t, 5, root.Events.UpdateRateLimit)
	assert.Equal(t, 500*time.Millisecond, root.Events.UpdateRateWindow)
	assert.Equal(t, 5432, root.Store.Port)
	assert.Equal(t, "public", root.Store.Schema)
}

func TestRootOverridesFromFlags(t *testing.T) {
	var root Root
	_, err := flags.NewParser(&root, flags.None).ParseArgs([]string{
		"--server.bind-address", ":9999",
		"--store.dsn", "postgres://example",
		"--topic-secret", "s3cr3t",
	})
	require.NoError(t, err)

	assert.Equal(t, ":9999", root.Server.BindAddress)
	assert.Equal(t, "postgres://example", root.Store.DSN)
	assert.Equal(t, "s3cr3t", root.TopicSecret)
}
