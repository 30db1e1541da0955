// Package bitset implements BusSet, the 256-bit set over I²C bus numbers
// that the sysfs probe and the connector reconciler use for
// all hot-plug set arithmetic.
package bitset

import "fmt"

// maxBus is the highest representable bus number.
const maxBus = 255

const words = (maxBus + 1) / 64

// BusSet is a fixed-size bitset over bus numbers 0..255. The zero value is
// the empty set.
type BusSet struct {
	w [words]uint64
}

func index(busno int) (int, uint64) {
	return busno / 64, uint64(1) << uint(busno%64)
}

// Set adds busno to the set. It panics if busno is out of range, the same
// way an out-of-bounds slice index would — bus numbers come from the kernel
// and are never negative or above 255 in practice.
func (b *BusSet) Set(busno int) {
	if busno < 0 || busno > maxBus {
		panic(fmt.Sprintf("bitset: busno %d out of range", busno))
	}
	i, m := index(busno)
	b.w[i] |= m
}

// Clear removes busno from the set.
func (b *BusSet) Clear(busno int) {
	if busno < 0 || busno > maxBus {
		return
	}
	i, m := index(busno)
	b.w[i] &^= m
}

// Has reports whether busno is a member of the set.
func (b BusSet) Has(busno int) bool {
	if busno < 0 || busno > maxBus {
		return false
	}
	i, m := index(busno)
	return b.w[i]&m != 0
}

// Empty reports whether the set has no members.
func (b BusSet) Empty() bool {
	for _, w := range b.w {
		if w != 0 {
			return false
		}
	}
	return true
}

// Slice returns the set's members in ascending order.
func (b BusSet) Slice() []int {
	var out []int
	for busno := 0; busno <= maxBus; busno++ {
		if b.Has(busno) {
			out = append(out, busno)
		}
	}
	return out
}

// Equal reports whether a and b have the same members.
func Equal(a, b BusSet) bool {
	return a.w == b.w
}

// Or returns the union of a and b.
func Or(a, b BusSet) BusSet {
	var out BusSet
	for i := range out.w {
		out.w[i] = a.w[i] | b.w[i]
	}
	return out
}

// And returns the intersection of a and b.
func And(a, b BusSet) BusSet {
	var out BusSet
	for i := range out.w {
		out.w[i] = a.w[i] & b.w[i]
	}
	return out
}

// Sub returns a \ b: members of a that are not in b.
func Sub(a, b BusSet) BusSet {
	var out BusSet
	for i := range out.w {
		out.w[i] = a.w[i] &^ b.w[i]
	}
	return out
}

// Of builds a BusSet from a list of bus numbers, for test fixtures and call
// sites that already have a slice in hand.
func Of(busnos ...int) BusSet {
	var out BusSet
	for _, n := range busnos {
		out.Set(n)
	}
	return out
}

func (b BusSet) String() string {
	return fmt.Sprintf("%v", b.Slice())
}
