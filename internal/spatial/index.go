// Package spatial maps quadtree cells of the unit square to integer addresses.
//
// A cell at refinement level l is the square of side 2^-l whose lower-left
// corner is (gx·2^-l, gy·2^-l). Its address interleaves the bits of gx and gy,
// most significant pair first, with gx on the odd bit positions. Parent, child,
// neighbor and interaction-list relations are pure arithmetic on addresses.
package spatial

import (
	"errors"
	"fmt"
	"math"
)

const (
	// AddressBits is the width of the address budget.
	AddressBits = 16
	// BitsPerLevel is the number of address bits consumed by one refinement level.
	BitsPerLevel = 2
	// MaxLevel is the deepest level whose addresses fit in AddressBits.
	MaxLevel = AddressBits / BitsPerLevel
	// MinInteractionLevel is the first level with a non-empty interaction list.
	MinInteractionLevel = 2
)

var (
	ErrLevelOutOfRange   = errors.New("spatial: level out of range")
	ErrCoordOutOfRange   = errors.New("spatial: grid coordinate out of range")
	ErrAddressOutOfRange = errors.New("spatial: address out of range")
	ErrPointOutOfDomain  = errors.New("spatial: point outside the unit square")
)

// CellsPerSide returns 2^level.
func CellsPerSide(level int) int {
	return 1 << uint(level)
}

// CellCount returns 4^level, the number of cells at a level.
func CellCount(level int) int {
	return 1 << uint(BitsPerLevel*level)
}

func checkLevel(level int) error {
	if level < 1 || level > MaxLevel {
		return fmt.Errorf("%w: %d not in [1,%d]", ErrLevelOutOfRange, level, MaxLevel)
	}
	return nil
}

// Interleave packs grid coordinates (gx, gy) at the given level into an address.
func Interleave(gx, gy, level int) (uint32, error) {
	if err := checkLevel(level); err != nil {
		return 0, err
	}
	side := CellsPerSide(level)
	if gx < 0 || gx >= side || gy < 0 || gy >= side {
		return 0, fmt.Errorf("%w: (%d,%d) at level %d", ErrCoordOutOfRange, gx, gy, level)
	}
	if gx == 0 && gy == 0 {
		return 0, nil
	}
	var a uint32
	for i := level - 1; i >= 0; i-- {
		a = a<<BitsPerLevel | uint32((gx>>uint(i))&1)<<1 | uint32((gy>>uint(i))&1)
	}
	return a, nil
}

// Uninterleave recovers the grid coordinates of an address at the given level.
func Uninterleave(address uint32, level int) (gx, gy int, err error) {
	if err := checkLevel(level); err != nil {
		return 0, 0, err
	}
	if int(address) >= CellCount(level) {
		return 0, 0, fmt.Errorf("%w: %d at level %d", ErrAddressOutOfRange, address, level)
	}
	for i := level - 1; i >= 0; i-- {
		pair := address >> uint(BitsPerLevel*i)
		gx = gx<<1 | int(pair>>1&1)
		gy = gy<<1 | int(pair&1)
	}
	return gx, gy, nil
}

// MustInterleave is Interleave for callers that already validated their input.
func MustInterleave(gx, gy, level int) uint32 {
	a, err := Interleave(gx, gy, level)
	if err != nil {
		panic(err)
	}
	return a
}

// MustUninterleave is Uninterleave for callers that already validated their input.
func MustUninterleave(address uint32, level int) (int, int) {
	gx, gy, err := Uninterleave(address, level)
	if err != nil {
		panic(err)
	}
	return gx, gy
}

// Parent returns the address of the enclosing cell one level up.
func Parent(address uint32) uint32 {
	return address >> BitsPerLevel
}

// Children returns the four addresses one level down.
func Children(address uint32) [4]uint32 {
	base := address << BitsPerLevel
	return [4]uint32{base, base + 1, base + 2, base + 3}
}

// Neighbors returns the same-level cells sharing an edge or corner with address.
// Order is fixed: dx outer, dy inner, each from -1 to 1.
func Neighbors(level int, address uint32) []uint32 {
	if level == 0 {
		return nil
	}
	x, y := MustUninterleave(address, level)
	side := CellsPerSide(level)
	out := make([]uint32, 0, 8)
	for dx := -1; dx <= 1; dx++ {
		for dy := -1; dy <= 1; dy++ {
			if dx == 0 && dy == 0 {
				continue
			}
			nx, ny := x+dx, y+dy
			if nx < 0 || nx >= side || ny < 0 || ny >= side {
				continue
			}
			out = append(out, MustInterleave(nx, ny, level))
		}
	}
	return out
}

// InteractionList returns the children of the parent's neighbors that are not
// themselves neighbors of address. Levels below MinInteractionLevel have none.
func InteractionList(level int, address uint32) []uint32 {
	if level < MinInteractionLevel {
		return nil
	}
	near := make(map[uint32]struct{}, 9)
	near[address] = struct{}{}
	for _, n := range Neighbors(level, address) {
		near[n] = struct{}{}
	}
	out := make([]uint32, 0, 27)
	for _, pn := range Neighbors(level-1, Parent(address)) {
		for _, c := range Children(pn) {
			if _, ok := near[c]; ok {
				continue
			}
			out = append(out, c)
		}
	}
	return out
}

// HalfSize returns half the side length of a cell at level.
func HalfSize(level int) float64 {
	return math.Ldexp(0.5, -level)
}

// Center returns the center of a cell as a complex coordinate.
func Center(level int, address uint32) complex128 {
	if level == 0 {
		return complex(0.5, 0.5)
	}
	gx, gy := MustUninterleave(address, level)
	size := math.Ldexp(1, -level)
	return complex((float64(gx)+0.5)*size, (float64(gy)+0.5)*size)
}

// LeafAddress returns the address of the level cell containing z.
// Coordinates equal to 1 fall into the last cell of their row or column.
func LeafAddress(z complex128, level int) (uint32, error) {
	if err := checkLevel(level); err != nil {
		return 0, err
	}
	x, y := real(z), imag(z)
	if !(x >= 0 && x <= 1 && y >= 0 && y <= 1) {
		return 0, fmt.Errorf("%w: (%g,%g)", ErrPointOutOfDomain, x, y)
	}
	side := CellsPerSide(level)
	return Interleave(gridCoord(x, side), gridCoord(y, side), level)
}

func gridCoord(v float64, side int) int {
	g := int(math.Floor(v * float64(side)))
	if g >= side {
		g = side - 1
	}
	return g
}
