package mapsafe

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGet(t *testing.T) {
	m := map[string]any{
		"alignment": 64,
		"ratio":     0.5,
		"count":     float64(3),
		"big":       int64(7),
		"name":      "llama",
		"enabled":   true,
	}

	assert.Equal(t, 64, Get(m, "alignment", 32))
	assert.Equal(t, 3, Get(m, "count", 0))
	assert.Equal(t, 7, Get(m, "big", 0))
	assert.Equal(t, 0.5, Get(m, "ratio", 1.0))
	assert.Equal(t, 64.0, Get(m, "alignment", 0.0))
	assert.Equal(t, "llama", Get(m, "name", ""))
	assert.True(t, Get(m, "enabled", false))

	assert.Equal(t, 32, Get(m, "missing", 32))
	assert.Equal(t, 32, Get(m, "name", 32))
	assert.Equal(t, "x", Get(m, "alignment", "x"))
}
