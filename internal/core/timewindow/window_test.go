package timewindow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(hour, minute int) time.Time {
	return time.Date(2024, 3, 10, hour, minute, 0, 0, time.Local)
}

func TestWindowWrapsMidnight(t *testing.T) {
	w, err := New("22:00", "06:00")
	require.NoError(t, err)

	assert.True(t, w.Active(at(23, 0)))
	assert.True(t, w.Active(at(5, 0)))
	assert.False(t, w.Active(at(12, 0)))
	assert.True(t, w.Active(at(22, 0)))
	assert.True(t, w.Active(at(6, 0)))
	assert.False(t, w.Active(time.Date(2024, 3, 10, 6, 0, 1, 0, time.Local)))
}

func TestWindowSameDay(t *testing.T) {
	w, err := New("08:00", "18:00")
	require.NoError(t, err)

	assert.True(t, w.Active(at(12, 0)))
	assert.False(t, w.Active(at(19, 0)))
	assert.False(t, w.Active(at(7, 59)))
	assert.True(t, w.Active(at(8, 0)))
	assert.True(t, w.Active(at(18, 0)))
}

func TestWindowEqualBoundsIsAlwaysActive(t *testing.T) {
	w, err := New("10:00", "10:00")
	require.NoError(t, err)

	for hour := 0; hour < 24; hour++ {
		assert.True(t, w.Active(at(hour, 30)), "hour %d", hour)
	}
}

func TestWindowAbsent(t *testing.T) {
	cases := []struct{ start, end string }{
		{"", ""},
		{"08:00", ""},
		{"", "18:00"},
	}
	for _, c := range cases {
		w, err := New(c.start, c.end)
		require.NoError(t, err)
		assert.Nil(t, w)
		assert.True(t, w.Active(at(3, 0)))
		assert.Equal(t, "[always]", w.String())
	}
}

func TestWindowInvalid(t *testing.T) {
	_, err := New("8am", "18:00")
	assert.Error(t, err)

	_, err = New("08:00", "25:00")
	assert.Error(t, err)
}

func TestWindowString(t *testing.T) {
	w, err := New("22:05", "06:30")
	require.NoError(t, err)
	assert.Equal(t, "[22:05, 06:30]", w.String())
}
