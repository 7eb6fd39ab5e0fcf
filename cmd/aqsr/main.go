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

// Command aqsr is a command-line interface for aligning satellite air
// quality rasters with ground measurements and upsampling them with a
// super-resolution network.
package main

import (
	"fmt"
	"os"

	"github.com/spatialmodel/aqsr/aqsrutil"
)

func main() {
	if err := aqsrutil.Root.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(-1)
	}
}
