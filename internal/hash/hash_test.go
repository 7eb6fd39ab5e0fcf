/*
Copyright © 2019 the AQSR authors.
This file is part of AQSR.

AQSR is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

AQSR is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with AQSR.  If not, see <http://www.gnu.org/licenses/>.
*/

package hash

import (
	"math"
	"testing"
)

type layer struct {
	Name    string
	In, Out int
}

type named struct{}

func (named) String() string { return "named" }

func TestHash(t *testing.T) {
	a := []layer{{"conv", 1, 64}, {"conv", 64, 64}}
	b := []layer{{"conv", 1, 64}, {"conv", 64, 64}}
	c := []layer{{"conv", 1, 64}, {"conv", 64, 32}}
	if Hash(a) != Hash(b) {
		t.Error("equal values have different hashes")
	}
	if Hash(a) == Hash(c) {
		t.Error("different values have the same hash")
	}
	if h := Hash(named{}); h != "named" {
		t.Errorf("Stringer: have %s, want named", h)
	}
}

func TestHashUnencodable(t *testing.T) {
	// Structs without exported fields cannot be gob encoded.
	type private struct {
		x float64
	}
	h1 := Hash(private{x: math.NaN()})
	h2 := Hash(private{x: math.NaN()})
	if h1 != h2 {
		t.Errorf("hashes differ: %s, %s", h1, h2)
	}
	if Hash(private{x: 1}) == h1 {
		t.Error("different values have the same hash")
	}
	if len(h1) != 32 {
		t.Errorf("hash %s has length %d, want 32", h1, len(h1))
	}
}
