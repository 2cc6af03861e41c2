package signalinbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStringSlice_ExtractsStringsFromJSONArray(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, stringSlice([]any{"a", "b"}))
	assert.Nil(t, stringSlice(nil))
	assert.Nil(t, stringSlice("not-a-slice"))
}

func TestIntFromPayload_HandlesJSONNumberAndInt(t *testing.T) {
	assert.Equal(t, 3, intFromPayload(float64(3)))
	assert.Equal(t, 3, intFromPayload(3))
	assert.Equal(t, 0, intFromPayload("nope"))
}

func TestDerefString(t *testing.T) {
	s := "sha"
	assert.Equal(t, "sha", derefString(&s))
	assert.Equal(t, "", derefString(nil))
}
