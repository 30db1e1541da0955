package bitset_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rockowitz/ddcutil-sub002/bitset"
)

func TestSetClearHas(t *testing.T) {
	var s bitset.BusSet
	assert.False(t, s.Has(6))
	s.Set(6)
	assert.True(t, s.Has(6))
	s.Clear(6)
	assert.False(t, s.Has(6))
}

func TestBoundary(t *testing.T) {
	var s bitset.BusSet
	s.Set(0)
	s.Set(255)
	assert.True(t, s.Has(0))
	assert.True(t, s.Has(255))
	assert.False(t, s.Has(256))
	assert.False(t, s.Has(-1))
}

func TestSetAlgebra(t *testing.T) {
	a := bitset.Of(1, 2, 3)
	b := bitset.Of(2, 3, 4)
	assert.Equal(t, []int{1, 2, 3, 4}, bitset.Or(a, b).Slice())
	assert.Equal(t, []int{2, 3}, bitset.And(a, b).Slice())
	assert.Equal(t, []int{1}, bitset.Sub(a, b).Slice())
	assert.Equal(t, []int{4}, bitset.Sub(b, a).Slice())
}

func TestEqual(t *testing.T) {
	a := bitset.Of(1, 5, 9)
	b := bitset.Of(9, 5, 1)
	assert.True(t, bitset.Equal(a, b))
	assert.False(t, bitset.Equal(a, bitset.Of(1, 5)))
}

func TestEmpty(t *testing.T) {
	var s bitset.BusSet
	assert.True(t, s.Empty())
	s.Set(42)
	assert.False(t, s.Empty())
}
