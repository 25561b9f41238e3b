package registry

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValueArms(t *testing.T) {
	f := FloatValue(21.54)
	got, ok := f.Float()
	assert.True(t, ok)
	assert.Equal(t, 21.54, got)
	_, ok = f.Int()
	assert.False(t, ok)
	_, ok = f.Bool()
	assert.False(t, ok)

	i := IntValue(-3)
	n, ok := i.Int()
	assert.True(t, ok)
	assert.Equal(t, int64(-3), n)
	_, ok = i.Float()
	assert.False(t, ok)

	b := BoolValue(true)
	v, ok := b.Bool()
	assert.True(t, ok)
	assert.True(t, v)
}

func TestValueString(t *testing.T) {
	tests := []struct {
		name  string
		value Value
		want  string
	}{
		{"float rounds to one decimal", FloatValue(21.54), "21.5"},
		{"float rounds up", FloatValue(40.06), "40.1"},
		{"int", IntValue(42), "42"},
		{"bool true", BoolValue(true), "yes"},
		{"bool false", BoolValue(false), "no"},
		{"no reading", NoReading(), ""},
		{"zero value", Value{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.value.String())
		})
	}
}

func TestValueValidity(t *testing.T) {
	assert.False(t, NoReading().Valid())
	assert.False(t, FloatValue(math.NaN()).Valid())
	assert.False(t, Value{}.Valid())
	assert.True(t, FloatValue(0).Valid())
	assert.True(t, BoolValue(false).Valid())

	assert.Nil(t, NoReading().Interface())
	assert.Equal(t, int64(7), IntValue(7).Interface())
	assert.Equal(t, "invalid", Value{}.Kind().String())
	assert.Equal(t, "float", NoReading().Kind().String())
}
