package entities

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePinState(t *testing.T) {
	tests := []struct {
		in   string
		want PinState
	}{
		{"up", PinUp},
		{"DOWN", PinDown},
		{" pull-up ", PinUp},
		{"pull-down", PinDown},
	}
	for _, tt := range tests {
		got, err := ParsePinState(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParsePinState("high")
	assert.Error(t, err)
}

func TestPinStateOpposite(t *testing.T) {
	assert.Equal(t, PinDown, PinUp.Opposite())
	assert.Equal(t, PinUp, PinDown.Opposite())
	assert.False(t, PinState("").Valid())
}

func TestEventString(t *testing.T) {
	assert.Equal(t, "transition(9,up)", Transition(9, PinUp).String())
	assert.Equal(t, "wait(30s)", Wait(30*time.Second).String())
	assert.Equal(t, "gate(1s)", Gate(time.Second).String())
}
