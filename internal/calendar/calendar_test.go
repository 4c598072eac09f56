package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsTradingDay(t *testing.T) {
	sat := time.Date(2026, 8, 1, 10, 0, 0, 0, time.Local)
	mon := time.Date(2026, 8, 3, 10, 0, 0, 0, time.Local)
	assert.False(t, IsTradingDay(sat))
	assert.True(t, IsTradingDay(mon))
}

func TestIsTradingTime(t *testing.T) {
	mon := time.Date(2026, 8, 3, 0, 0, 0, 0, time.Local)
	cases := []struct {
		h, m int
		want bool
	}{
		{9, 29, false},
		{9, 30, true},
		{10, 30, true},
		{11, 30, true},
		{11, 31, false},
		{12, 30, false},
		{13, 0, true},
		{15, 0, true},
		{15, 1, false},
	}
	for _, c := range cases {
		tt := mon.Add(time.Duration(c.h)*time.Hour + time.Duration(c.m)*time.Minute)
		assert.Equal(t, c.want, IsTradingTime(tt), "%02d:%02d", c.h, c.m)
	}
}

func TestIsForceUpdateDay(t *testing.T) {
	sat := time.Date(2026, 8, 1, 0, 0, 0, 0, time.Local)
	sun := time.Date(2026, 8, 2, 0, 0, 0, 0, time.Local)
	assert.True(t, IsForceUpdateDay(sat))
	assert.False(t, IsForceUpdateDay(sun))
}

func TestNormaliseDate(t *testing.T) {
	cases := map[string]string{
		"20260801":             "2026-08-01",
		"2026-08-01":           "2026-08-01",
		"2026-08-01T10:00:00Z": "2026-08-01",
	}
	for input, want := range cases {
		got, err := NormaliseDate(input)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := NormaliseDate("not-a-date")
	assert.Error(t, err)
}
