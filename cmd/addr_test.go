package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateAddr(t *testing.T) {
	tests := []struct {
		name    string
		addr    string
		wantErr bool
	}{
		{name: "loopback with port", addr: "127.0.0.1:3400"},
		{name: "localhost", addr: "localhost:8080"},
		{name: "all interfaces", addr: ":8080"},
		{name: "auto-assign port", addr: "127.0.0.1:0"},
		{name: "ipv6", addr: "[::1]:3400"},
		{name: "missing port", addr: "127.0.0.1", wantErr: true},
		{name: "non-numeric port", addr: "127.0.0.1:http", wantErr: true},
		{name: "port too large", addr: "127.0.0.1:70000", wantErr: true},
		{name: "whitespace host", addr: "bad host:80", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateAddr(tt.addr)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
