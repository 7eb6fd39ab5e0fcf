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
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

// daySource returns a constant raster whose value is the day of the
// month, with a single station.
type daySource struct {
	loads []time.Time
	fail  time.Time
}

func (s *daySource) Load(date time.Time) (*Raster, *StationSet, error) {
	s.loads = append(s.loads, date)
	if date.Equal(s.fail) {
		return nil, nil, fmt.Errorf("no data")
	}
	r, err := NewRaster(constantRasterData(4, 4, float64(date.Day())), identity, lonLat)
	if err != nil {
		return nil, nil, err
	}
	return r, &StationSet{CRS: lonLat, Stations: []Station{station("a", 1, 1, 0), station("b", 2, 2, 0)}}, nil
}

func day(d int) time.Time { return time.Date(2019, time.January, d, 0, 0, 0, 0, time.UTC) }

func TestProcessTimeSeries(t *testing.T) {
	src := new(daySource)
	table, err := ProcessTimeSeries(src, day(30).Add(15*time.Hour), day(33), 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(src.loads) != 4 {
		t.Fatalf("loaded %d dates; want 4", len(src.loads))
	}
	if len(table.Samples) != 8 || table.Stations != 8 || table.Skipped != 0 {
		t.Fatalf("have %d samples of %d stations", len(table.Samples), table.Stations)
	}
	for i, s := range table.Samples {
		d := day(30 + i/2)
		if !s.Date.Equal(d) {
			t.Errorf("sample %d: date %v, want %v", i, s.Date, d)
		}
		if s.SatelliteValue != float64(d.Day()) {
			t.Errorf("sample %d: value %g, want %d", i, s.SatelliteValue, d.Day())
		}
	}
}

func TestProcessTimeSeriesSingleDay(t *testing.T) {
	table, err := ProcessTimeSeries(new(daySource), day(5), day(5), DefaultRadius)
	if err != nil {
		t.Fatal(err)
	}
	if len(table.Samples) != 2 {
		t.Errorf("have %d samples, want 2", len(table.Samples))
	}
}

func TestProcessTimeSeriesErrors(t *testing.T) {
	if _, err := ProcessTimeSeries(new(daySource), day(5), day(4), DefaultRadius); err == nil {
		t.Error("expected an error when start is after end")
	}
	_, err := ProcessTimeSeries(&daySource{fail: day(6)}, day(5), day(7), DefaultRadius)
	if err == nil || !strings.Contains(err.Error(), "2019-01-06") {
		t.Errorf("err = %v; want an error naming 2019-01-06", err)
	}
}

func TestTemplateSource(t *testing.T) {
	dir := t.TempDir()
	for _, d := range []int{1, 2} {
		r := constantRaster(t, 4, 4, float64(d), identity)
		if err := r.WriteFile(filepath.Join(dir, fmt.Sprintf("pm25_201901%02d.nc", d)), "pm25"); err != nil {
			t.Fatal(err)
		}
	}
	s := &StationSet{CRS: lonLat, Stations: []Station{station("a", 1, 1, 3)}}
	if err := WriteStations(filepath.Join(dir, "stations.shp"), "id", "value", s); err != nil {
		t.Fatal(err)
	}

	log, hook := test.NewNullLogger()
	src := &TemplateSource{
		RasterTemplate:  filepath.Join(dir, "pm25_[DATE].nc"),
		RasterVariable:  "pm25",
		StationTemplate: filepath.Join(dir, "stations.shp"),
		IDField:         "id",
		ValueField:      "value",
		Log:             log,
	}
	table, err := ProcessTimeSeries(src, day(1), day(2), DefaultRadius)
	if err != nil {
		t.Fatal(err)
	}
	if len(table.Samples) != 2 {
		t.Fatalf("have %d samples, want 2", len(table.Samples))
	}
	for i, s := range table.Samples {
		if s.SatelliteValue != float64(i+1) || s.GroundValue != 3 {
			t.Errorf("sample %d: %+v", i, s)
		}
	}
	if len(hook.Entries) != 0 {
		t.Errorf("unexpected log entries: %v", hook.Entries)
	}

	// The same file for every date.
	src = &TemplateSource{
		RasterTemplate:  filepath.Join(dir, "pm25_20190102.nc"),
		RasterVariable:  "pm25",
		StationTemplate: filepath.Join(dir, "stations.shp"),
		IDField:         "id",
		ValueField:      "value",
		Log:             log,
	}
	table, err = ProcessTimeSeries(src, day(1), day(3), DefaultRadius)
	if err != nil {
		t.Fatal(err)
	}
	if len(table.Samples) != 3 || table.Samples[0].SatelliteValue != 2 {
		t.Errorf("samples = %+v", table.Samples)
	}
	if len(hook.Entries) != 1 || hook.LastEntry().Level != logrus.WarnLevel {
		t.Errorf("want one warning, have %v", hook.Entries)
	}

	// Missing date.
	src.RasterTemplate = filepath.Join(dir, "pm25_[DATE].nc")
	if _, err = ProcessTimeSeries(src, day(2), day(3), DefaultRadius); err == nil {
		t.Error("expected an error for a missing raster file")
	}
}

func TestTemplateSourceFetchMask(t *testing.T) {
	dir := t.TempDir()
	for _, d := range []int{1, 2} {
		r := constantRaster(t, 4, 4, float64(d), identity)
		if err := r.WriteFile(filepath.Join(dir, fmt.Sprintf("pm25_201901%02d.nc", d)), DefaultVariable); err != nil {
			t.Fatal(err)
		}
	}
	s := &StationSet{CRS: lonLat, Stations: []Station{station("a", 1, 1, 3)}}
	if err := WriteStations(filepath.Join(dir, "stations.shp"), "id", "value", s); err != nil {
		t.Fatal(err)
	}

	var fetched []string
	src := &TemplateSource{
		RasterTemplate:  "remote://data/pm25_[DATE].nc",
		StationTemplate: "remote://data/stations.shp",
		IDField:         "id",
		ValueField:      "value",
		Mask:            "value > 1.5",
		Fetch: func(path string) (string, error) {
			fetched = append(fetched, path)
			return filepath.Join(dir, strings.TrimPrefix(path, "remote://data/")), nil
		},
	}
	table, err := ProcessTimeSeries(src, day(1), day(2), DefaultRadius)
	if err != nil {
		t.Fatal(err)
	}
	// The second day is masked out entirely.
	if len(table.Samples) != 1 || table.Skipped != 1 || table.Samples[0].SatelliteValue != 1 {
		t.Errorf("have samples %+v, skipped %d", table.Samples, table.Skipped)
	}
	want := map[string]bool{
		"remote://data/pm25_20190101.nc": true,
		"remote://data/pm25_20190102.nc": true,
		"remote://data/stations.shp":     true,
	}
	if len(fetched) != len(want) {
		t.Errorf("fetched %v, want each of %v once", fetched, want)
	}
	for _, f := range fetched {
		if !want[f] {
			t.Errorf("unexpected fetch of %s", f)
		}
	}

	src = &TemplateSource{
		RasterTemplate:  "remote://data/pm25_[DATE].nc",
		StationTemplate: "remote://data/stations.shp",
		IDField:         "id",
		ValueField:      "value",
		Fetch: func(path string) (string, error) {
			return "", fmt.Errorf("unreachable: %s", path)
		},
	}
	if _, err = ProcessTimeSeries(src, day(1), day(1), DefaultRadius); err == nil {
		t.Error("expected an error when fetching fails")
	}
}

func TestTemplateSourceReproject(t *testing.T) {
	dir := t.TempDir()
	data := constantRasterData(3, 3, 7)
	r, err := NewRaster(data, FromOrigin(-1e5, 1e5, 1e5, 1e5), lcc)
	if err != nil {
		t.Fatal(err)
	}
	if err = r.WriteFile(filepath.Join(dir, "pm25.nc"), DefaultVariable); err != nil {
		t.Fatal(err)
	}
	// Longitude -97, latitude 40 is the origin of the projection,
	// the center of the raster.
	s := &StationSet{CRS: lonLat, Stations: []Station{station("a", -97, 40, 3)}}
	if err = WriteStations(filepath.Join(dir, "stations.shp"), "id", "value", s); err != nil {
		t.Fatal(err)
	}
	src := &TemplateSource{
		RasterTemplate:  filepath.Join(dir, "pm25.nc"),
		StationTemplate: filepath.Join(dir, "stations.shp"),
		IDField:         "id",
		ValueField:      "value",
	}
	if _, err = ProcessTimeSeries(src, day(1), day(1), 0); err == nil {
		t.Fatal("expected a coordinate reference system mismatch")
	}

	src.Reproject = true
	table, err := ProcessTimeSeries(src, day(1), day(1), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(table.Samples) != 1 || table.Samples[0].SatelliteValue != 7 {
		t.Errorf("samples = %+v", table.Samples)
	}
}
