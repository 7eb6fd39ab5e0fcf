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

// Package aqsr aligns coarse satellite air-quality rasters with ground
// station measurements and upsamples the rasters to a finer grid with
// a residual super-resolution network (package srnet).
package aqsr

import (
	"errors"
	"fmt"
)

// Version gives the version number.
const Version = "0.3.0"

// ErrCRSMismatch is returned when a raster and a set of stations do
// not share a coordinate reference system.
var ErrCRSMismatch = errors.New("aqsr: raster and stations have different coordinate reference systems")

// FormatError is returned when an input file cannot be parsed or lacks
// the required georeferencing information.
type FormatError struct {
	Path string
	Err  error
}

func (e *FormatError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("aqsr: invalid input: %v", e.Err)
	}
	return fmt.Sprintf("aqsr: invalid input file %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *FormatError) Unwrap() error { return e.Err }
