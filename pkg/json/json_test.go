package json

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalString(t *testing.T) {
	s, err := MarshalString(map[string]interface{}{"a": "<b>"})
	require.NoError(t, err)
	assert.Equal(t, `{"a":"<b>"}`, s)
}

func TestDecodeText(t *testing.T) {
	v, ok := DecodeText(`{"plan":"pro","seats":3}`)
	require.True(t, ok)
	m := v.(map[string]interface{})
	assert.Equal(t, "pro", m["plan"])
	assert.Equal(t, float64(3), m["seats"])

	_, ok = DecodeText("not json")
	assert.False(t, ok)
	_, ok = DecodeText("   ")
	assert.False(t, ok)
}
