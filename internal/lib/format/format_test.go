package format

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/text/language"
)

func TestDistance(t *testing.T) {
	tests := []struct {
		meters   float64
		expected string
	}{
		{0, "0 m"},
		{-5, "0 m"},
		{42.4, "42 m"},
		{99.4, "99 m"},
		{100, "100 m"},
		{154, "150 m"},
		{156, "160 m"},
		{99.6, "100 m"},
		{994, "990 m"},
		{995, "1.0 km"},
		{999.9, "1.0 km"},
		{1000, "1.0 km"},
		{1260, "1.3 km"},
		{12345, "12.3 km"},
		{1234567, "1,234.6 km"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, Distance(tt.meters), "%v m", tt.meters)
	}
}

func TestDuration(t *testing.T) {
	assert.Equal(t, "<1 min", Duration(0))
	assert.Equal(t, "<1 min", Duration(59))
	assert.Equal(t, "1 min", Duration(60))
	assert.Equal(t, "12 min", Duration(12*60+10))
	assert.Equal(t, "1 h 05 min", Duration(65*60))
	assert.Equal(t, "3 h 00 min", Duration(3*3600))
}

func TestSpeed(t *testing.T) {
	assert.Equal(t, "18.0 km/h", Speed(5))
	assert.Equal(t, "0.0 km/h", Speed(-1))
}

func TestFormatter_Locale(t *testing.T) {
	de := New(language.German)
	assert.Equal(t, "1.234,6 km", de.Distance(1234567))
	assert.Equal(t, "18,0 km/h", de.Speed(5))

	assert.Equal(t, "1.3 km", NewFromString("not a tag!").Distance(1260))
}
