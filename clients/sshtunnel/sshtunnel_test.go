package sshtunnel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEndpoint(t *testing.T) {
	tests := []struct {
		input string
		host  string
		port  int
		user  string
	}{
		{input: "node.example.org", host: "node.example.org"},
		{input: "node.example.org:2222", host: "node.example.org", port: 2222},
		{input: "ops@node.example.org:22", host: "node.example.org", port: 22, user: "ops"},
		{input: "[::1]:8545", host: "::1", port: 8545},
	}

	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			endpoint := NewEndpoint(tc.input)
			assert.Equal(t, tc.host, endpoint.Host)
			assert.Equal(t, tc.port, endpoint.Port)
			assert.Equal(t, tc.user, endpoint.User)
		})
	}
}

func TestTunnelListensOnRandomPort(t *testing.T) {
	callback, err := HostKeyCallback("")
	require.NoError(t, err)

	tunnel := NewSSHTunnel("ops@127.0.0.1", nil, callback, "127.0.0.1:8545")
	assert.Equal(t, 22, tunnel.Server.Port)
	assert.Equal(t, "ops", tunnel.Config.User)

	require.NoError(t, tunnel.Start())
	defer tunnel.Stop()
	assert.NotZero(t, tunnel.Local.Port)
	assert.Error(t, tunnel.Start())
}
