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
	"encoding/csv"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"
	goshp "github.com/jonas-p/go-shp"
	"github.com/tealeg/xlsx"
)

// DateFormat is the layout used for sample dates in output files.
const DateFormat = "2006-01-02"

// Sample is a satellite estimate paired with a ground measurement.
type Sample struct {
	StationID string

	// Latitude and Longitude are the station's y and x coordinates.
	Latitude, Longitude float64

	// SatelliteValue is the mean of the valid raster values around the
	// station.
	SatelliteValue float64

	// GroundValue is the station measurement.
	GroundValue float64

	// Date is the zero time for samples that are not part of a
	// time series.
	Date time.Time
}

// SampleTable holds aligned samples in the order they were produced.
type SampleTable struct {
	Samples []Sample

	// Stations is the number of stations considered and Skipped is
	// the number of those for which no sample could be produced.
	Stations, Skipped int

	// CRS is the coordinate reference system of the sample locations.
	CRS string
}

// Append adds the samples of o to the end of t.
func (t *SampleTable) Append(o *SampleTable) {
	t.Samples = append(t.Samples, o.Samples...)
	t.Stations += o.Stations
	t.Skipped += o.Skipped
	if t.CRS == "" {
		t.CRS = o.CRS
	}
}

// sampleColumns are the column names of tabular sample output.
var sampleColumns = []string{"station_id", "latitude", "longitude", "satellite_value", "ground_value", "date"}

func (s Sample) record() []string {
	var date string
	if !s.Date.IsZero() {
		date = s.Date.Format(DateFormat)
	}
	return []string{
		s.StationID,
		strconv.FormatFloat(s.Latitude, 'g', -1, 64),
		strconv.FormatFloat(s.Longitude, 'g', -1, 64),
		strconv.FormatFloat(s.SatelliteValue, 'g', -1, 64),
		strconv.FormatFloat(s.GroundValue, 'g', -1, 64),
		date,
	}
}

// Write writes the table to path in a format chosen by the file
// extension: ".csv", ".shp", or ".xlsx".
func (t *SampleTable) Write(path string) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("aqsr: writing samples: %v", err)
		}
		if err = t.WriteCSV(f); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	case ".shp":
		return t.writeShp(path)
	case ".xlsx":
		return t.writeXLSX(path)
	default:
		return fmt.Errorf("aqsr: unsupported sample output file type %q", filepath.Ext(path))
	}
}

// WriteCSV writes the table as comma-separated values with a header row.
func (t *SampleTable) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(sampleColumns); err != nil {
		return fmt.Errorf("aqsr: writing samples: %v", err)
	}
	for _, s := range t.Samples {
		if err := cw.Write(s.record()); err != nil {
			return fmt.Errorf("aqsr: writing samples: %v", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("aqsr: writing samples: %v", err)
	}
	return nil
}

// writeShp writes the samples as points. DBF field names are limited to
// 10 characters so the column names are shortened.
func (t *SampleTable) writeShp(path string) error {
	path = strings.TrimSuffix(path, filepath.Ext(path))
	e, err := shp.NewEncoderFromFields(path+".shp", goshp.POINT,
		goshp.StringField("station_id", 50),
		goshp.FloatField("satellite", 24, 8),
		goshp.FloatField("ground", 24, 8),
		goshp.StringField("date", 10),
	)
	if err != nil {
		return fmt.Errorf("aqsr: writing samples: %v", err)
	}
	for _, s := range t.Samples {
		r := s.record()
		err = e.EncodeFields(geom.Point{X: s.Longitude, Y: s.Latitude},
			s.StationID, s.SatelliteValue, s.GroundValue, r[5])
		if err != nil {
			e.Close()
			return fmt.Errorf("aqsr: writing sample for station %s: %v", s.StationID, err)
		}
	}
	e.Close()
	if t.CRS != "" {
		if err = ioutil.WriteFile(path+".prj", []byte(t.CRS), 0644); err != nil {
			return fmt.Errorf("aqsr: writing samples: %v", err)
		}
	}
	return nil
}

func (t *SampleTable) writeXLSX(path string) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("samples")
	if err != nil {
		return fmt.Errorf("aqsr: writing samples: %v", err)
	}
	row := sheet.AddRow()
	for _, c := range sampleColumns {
		row.AddCell().SetString(c)
	}
	for _, s := range t.Samples {
		row = sheet.AddRow()
		row.AddCell().SetString(s.StationID)
		row.AddCell().SetFloat(s.Latitude)
		row.AddCell().SetFloat(s.Longitude)
		row.AddCell().SetFloat(s.SatelliteValue)
		row.AddCell().SetFloat(s.GroundValue)
		row.AddCell().SetString(s.record()[5])
	}
	if err = f.Save(path); err != nil {
		return fmt.Errorf("aqsr: writing samples: %v", err)
	}
	return nil
}
