package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunFlags(t *testing.T) {
	assert.NoError(t, run([]string{"--version"}))
	assert.NoError(t, run([]string{"--help"}))
	assert.Error(t, run([]string{"--bogus"}))
	assert.Error(t, run([]string{"extra"}))
	assert.Error(t, run([]string{"--config", "/nonexistent/pairbot.yaml"}))
}
