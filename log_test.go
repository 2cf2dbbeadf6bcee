package main

import (
	"bytes"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestVerbosityLevel(t *testing.T) {
	assert.Equal(t, log.ErrorLevel, verbosityLevel(0))
	assert.Equal(t, log.WarnLevel, verbosityLevel(1))
	assert.Equal(t, log.InfoLevel, verbosityLevel(2))
	assert.Equal(t, log.DebugLevel, verbosityLevel(3))
	assert.Equal(t, log.TraceLevel, verbosityLevel(7))
}

func TestSetupLoggingWritesToGivenWriter(t *testing.T) {
	var buf bytes.Buffer
	setupLogging(&buf, 2)
	t.Cleanup(func() { setupLogging(&bytes.Buffer{}, 0) })

	log.Debug("hidden")
	log.WithField("device", "aa").Info("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "msg=shown device=aa")
	assert.False(t, isTerminal(&buf))
}
