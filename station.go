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

package aqsr

import (
	"fmt"
	"io/ioutil"
	"math"
	"strconv"
	"strings"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"
	"github.com/ctessum/geom/proj"
	goshp "github.com/jonas-p/go-shp"
)

// Station is a ground monitoring station with a single measurement.
type Station struct {
	ID          string
	Location    geom.Point
	Measurement float64
}

// StationSet is a collection of stations sharing a coordinate
// reference system.
type StationSet struct {
	Stations []Station

	// CRS is the stations' coordinate reference system in Proj4
	// or WKT format.
	CRS string
}

// LoadStations reads point stations from a shapefile. idField names
// the attribute holding the station identifier and valueField the
// attribute holding the measured value. The coordinate reference system
// is read from the accompanying .prj file. Records with a blank or
// non-numeric measurement are given a missing (NaN) measurement.
func LoadStations(path, idField, valueField string) (*StationSet, error) {
	d, err := shp.NewDecoder(path)
	if err != nil {
		return nil, &FormatError{Path: path, Err: err}
	}
	defer d.Close()

	prj := strings.TrimSuffix(path, ".shp") + ".prj"
	b, err := ioutil.ReadFile(prj)
	if err != nil {
		return nil, &FormatError{Path: path, Err: fmt.Errorf("reading coordinate reference system: %v", err)}
	}
	s := &StationSet{CRS: strings.TrimSpace(string(b))}
	if _, err = proj.Parse(s.CRS); err != nil {
		return nil, &FormatError{Path: prj, Err: err}
	}

	for {
		g, fields, more := d.DecodeRowFields(idField, valueField)
		if err := d.Error(); err != nil {
			return nil, &FormatError{Path: path, Err: err}
		}
		if !more {
			break
		}
		p, ok := g.(geom.Point)
		if !ok {
			return nil, &FormatError{Path: path, Err: fmt.Errorf("station geometry must be a point but is %T", g)}
		}
		s.Stations = append(s.Stations, Station{
			ID:          cleanField(fields[idField]),
			Location:    p,
			Measurement: parseMeasurement(fields[valueField]),
		})
	}
	return s, nil
}

// cleanField removes the padding the dBASE format adds to text values.
func cleanField(s string) string {
	return strings.TrimSpace(strings.Trim(s, "\x00"))
}

func parseMeasurement(s string) float64 {
	v, err := strconv.ParseFloat(cleanField(s), 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

// Reproject returns a copy of s with station locations transformed to
// the dst coordinate reference system.
func (s *StationSet) Reproject(dst string) (*StationSet, error) {
	src, err := proj.Parse(s.CRS)
	if err != nil {
		return nil, &FormatError{Err: fmt.Errorf("station coordinate reference system: %v", err)}
	}
	dstSR, err := proj.Parse(dst)
	if err != nil {
		return nil, &FormatError{Err: fmt.Errorf("destination coordinate reference system: %v", err)}
	}
	ct, err := src.NewTransform(dstSR)
	if err != nil {
		return nil, fmt.Errorf("aqsr: reprojecting stations: %v", err)
	}
	o := &StationSet{CRS: dst, Stations: make([]Station, len(s.Stations))}
	for i, st := range s.Stations {
		g, err := st.Location.Transform(ct)
		if err != nil {
			return nil, fmt.Errorf("aqsr: reprojecting station %s: %v", st.ID, err)
		}
		st.Location = g.(geom.Point)
		o.Stations[i] = st
	}
	return o, nil
}

// WriteStations writes s to a point shapefile at path along with a
// .prj file holding its coordinate reference system.
func WriteStations(path, idField, valueField string, s *StationSet) error {
	path = strings.TrimSuffix(path, ".shp")
	e, err := shp.NewEncoderFromFields(path+".shp", goshp.POINT,
		goshp.StringField(idField, 50), goshp.FloatField(valueField, 24, 8))
	if err != nil {
		return fmt.Errorf("aqsr: writing stations: %v", err)
	}
	for _, st := range s.Stations {
		if err = e.EncodeFields(st.Location, st.ID, st.Measurement); err != nil {
			e.Close()
			return fmt.Errorf("aqsr: writing station %s: %v", st.ID, err)
		}
	}
	e.Close()
	if err = ioutil.WriteFile(path+".prj", []byte(s.CRS), 0644); err != nil {
		return fmt.Errorf("aqsr: writing stations: %v", err)
	}
	return nil
}
