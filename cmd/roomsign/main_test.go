package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"roomsign/internal/config"
)

func TestKioskURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		listen, room, want string
	}{
		{"127.0.0.1:8080", "main", "http://127.0.0.1:8080/?r=main"},
		{":9000", "", "http://127.0.0.1:9000/"},
		{"0.0.0.0:80", "Side Room", "http://127.0.0.1:80/?r=Side+Room"},
		{"[::1]:8080", "main", "http://[::1]:8080/?r=main"},
		{"garbage", "", "http://127.0.0.1:8080/"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, kioskURL(tt.listen, tt.room), tt.listen)
	}
}

func TestApplyFlags(t *testing.T) {
	t.Parallel()

	conf := config.DefaultConfig()
	conf.Room = "main"
	applyFlags(conf, flagConfig{})
	assert.Equal(t, "main", conf.Room)
	assert.False(t, conf.ClockOnly)

	applyFlags(conf, flagConfig{
		listen:    ":9000",
		room:      "side",
		loadTime:  "2025-01-20T09:00:00Z",
		clockOnly: true,
		message:   "Back soon",
	})
	assert.Equal(t, ":9000", conf.Listen)
	assert.Equal(t, "side", conf.Room)
	assert.Equal(t, "2025-01-20T09:00:00Z", conf.LoadTime)
	assert.True(t, conf.ClockOnly)
	assert.Equal(t, "Back soon", conf.Message)
}
