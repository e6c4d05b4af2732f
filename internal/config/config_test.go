package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func validConfig() Config {
	return Config{
		DomainId:           0,
		MaxGoroutines:      1000,
		CPURejectThreshold: 75.0,
		CPUPauseThreshold:  80.0,
		LogLevel:           "info",
		LogFormat:          "json",
	}
}

func TestValidateAcceptsDefaultConfig(t *testing.T) {
	c := validConfig()
	assert.NoError(t, c.Validate())
}

func TestValidateRejectsDomainIdOutOfRange(t *testing.T) {
	c := validConfig()
	c.DomainId = 300
	assert.Error(t, c.Validate())
}

func TestValidateRejectsPauseBelowReject(t *testing.T) {
	c := validConfig()
	c.CPUPauseThreshold = 50.0
	assert.Error(t, c.Validate())
}

func TestValidateRejectsUnknownLogLevel(t *testing.T) {
	c := validConfig()
	c.LogLevel = "verbose"
	assert.Error(t, c.Validate())
}

func TestValidateRejectsUnknownLogFormat(t *testing.T) {
	c := validConfig()
	c.LogFormat = "xml"
	assert.Error(t, c.Validate())
}
