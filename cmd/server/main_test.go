package main

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/carousel-dispenser/internal/config"
)

func testServerConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			ShutdownTimeout: time.Second,
		},
	}
}

func TestShutdownAlwaysAttemptsEStop(t *testing.T) {
	server := NewServer(testServerConfig())

	called := 0
	server.estop = func() error {
		called++
		return nil
	}

	require.NoError(t, server.Shutdown())
	assert.Equal(t, 1, called)
}

func TestShutdownContinuesWhenEStopFails(t *testing.T) {
	server := NewServer(testServerConfig())

	called := 0
	server.estop = func() error {
		called++
		return errors.New("串口不可用")
	}

	// 急停失败只记录日志，不阻断关闭流程
	require.NoError(t, server.Shutdown())
	assert.Equal(t, 1, called)
}
