package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasAny(t *testing.T) {
	assert.True(t, HasAny("patchy light rain", "drizzle", "rain"))
	assert.False(t, HasAny("sunny", "rain", "snow"))
	assert.False(t, HasAny("sunny"))
}
