package pinbank

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeonardoBeccarini/trackside_sim/internal/model"
	"github.com/LeonardoBeccarini/trackside_sim/internal/testutil"
)

func TestResetDrivesEveryPinOnceInOrder(t *testing.T) {
	sink := testutil.NewRecordingSink(nil)
	b, err := New(4, sink)
	require.NoError(t, err)

	require.NoError(t, b.Reset())

	want := []testutil.Write{
		{Pin: 0, State: model.PinDown},
		{Pin: 1, State: model.PinDown},
		{Pin: 2, State: model.PinDown},
		{Pin: 3, State: model.PinDown},
	}
	assert.Equal(t, want, sink.Pairs())
}

func TestResetHonoursRestOverrides(t *testing.T) {
	sink := testutil.NewRecordingSink(nil)
	b, err := New(3, sink, WithRest(map[int]model.PinState{1: model.PinUp}))
	require.NoError(t, err)
	require.NoError(t, b.Reset())

	assert.Equal(t, []model.PinState{model.PinDown, model.PinUp, model.PinDown}, b.Snapshot())
	rest, err := b.Rest(1)
	require.NoError(t, err)
	assert.Equal(t, model.PinUp, rest)
}

func TestWriteUpdatesMirrorOnlyOnSuccess(t *testing.T) {
	boom := errors.New("line busy")
	sink := testutil.NewRecordingSink(nil)
	sink.FailAt = 2
	sink.Err = boom

	b, err := New(2, sink)
	require.NoError(t, err)

	require.NoError(t, b.Write(0, model.PinUp))
	st, _ := b.State(0)
	assert.Equal(t, model.PinUp, st)

	err = b.Write(1, model.PinUp)
	require.Error(t, err)
	var we *WriteError
	require.True(t, errors.As(err, &we))
	assert.Equal(t, 1, we.Pin)
	assert.Equal(t, model.PinUp, we.State)
	assert.ErrorIs(t, err, boom)

	st, _ = b.State(1)
	assert.Equal(t, model.PinDown, st)
}

func TestWriteRejectsBadRequests(t *testing.T) {
	sink := testutil.NewRecordingSink(nil)
	b, err := New(2, sink)
	require.NoError(t, err)

	assert.ErrorIs(t, b.Write(2, model.PinUp), ErrPinOutOfRange)
	assert.ErrorIs(t, b.Write(-1, model.PinUp), ErrPinOutOfRange)
	assert.ErrorIs(t, b.Write(0, "sideways"), ErrInvalidState)
	assert.Empty(t, sink.Writes())

	_, err = New(0, sink)
	assert.ErrorIs(t, err, ErrBankSize)
}

func TestGPIOSimSinkWritesPullAttribute(t *testing.T) {
	root := t.TempDir()
	s := NewGPIOSimSink(root, "3")
	dir := filepath.Dir(s.PullPath(7))
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(s.PullPath(7), nil, 0o644))

	require.NoError(t, s.Write(7, model.PinUp))
	got, err := os.ReadFile(s.PullPath(7))
	require.NoError(t, err)
	assert.Equal(t, "pull-up", string(got))

	require.NoError(t, s.Write(7, model.PinDown))
	got, _ = os.ReadFile(s.PullPath(7))
	assert.Equal(t, "pull-down", string(got))

	require.NoError(t, s.Write(7, model.PinUp))
	got, _ = os.ReadFile(s.PullPath(7))
	assert.Equal(t, "pull-up", string(got))

	assert.Equal(t, filepath.Join(root, "gpiochip3", "sim_gpio7", "pull"), s.PullPath(7))
	assert.Error(t, s.Write(8, model.PinUp), "missing line must fail")
}
