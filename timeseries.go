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
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/ctessum/requestcache"
	"github.com/sirupsen/logrus"
)

// DateWildcard is replaced by the formatted date in TemplateSource
// file paths.
const DateWildcard = "[DATE]"

// Source supplies the raster and stations for a given date.
type Source interface {
	Load(date time.Time) (*Raster, *StationSet, error)
}

// TemplateSource loads rasters and stations from files whose paths are
// templates containing DateWildcard. A template without the wildcard
// refers to the same file for every date. Loaded files are cached, so
// returned rasters and station sets must not be modified.
type TemplateSource struct {
	// RasterTemplate is the path of the NetCDF raster file and
	// RasterVariable the variable to read from it.
	RasterTemplate, RasterVariable string

	// StationTemplate is the path of the station shapefile, and IDField
	// and ValueField are the names of its identifier and measurement
	// attributes.
	StationTemplate, IDField, ValueField string

	// DateFormat is the layout used to format dates in the templates.
	// The default is "20060102".
	DateFormat string

	// CacheSize is the number of loaded files kept in memory.
	// The default is 4.
	CacheSize int

	// Mask is an optional expression, as used by MaskWhere, marking
	// additional raster values as missing.
	Mask string

	// If Reproject is true, stations are transformed to the coordinate
	// reference system of the raster after loading.
	Reproject bool

	// Fetch, if not nil, is called with each expanded path before it is
	// loaded and returns the local path to read, for example after
	// downloading a remote file.
	Fetch func(path string) (string, error)

	// Log receives warnings. It may be nil.
	Log logrus.FieldLogger

	init  sync.Once
	warn  sync.Once
	cache *requestcache.Cache
}

type loadRequest struct {
	raster bool
	path   string
}

func (s *TemplateSource) setup() {
	s.init.Do(func() {
		if s.DateFormat == "" {
			s.DateFormat = "20060102"
		}
		if s.RasterVariable == "" {
			s.RasterVariable = DefaultVariable
		}
		size := s.CacheSize
		if size <= 0 {
			size = 4
		}
		s.cache = requestcache.NewCache(func(ctx context.Context, request interface{}) (interface{}, error) {
			r := request.(loadRequest)
			path := r.path
			if s.Fetch != nil {
				var err error
				if path, err = s.Fetch(path); err != nil {
					return nil, err
				}
			}
			if !r.raster {
				return LoadStations(path, s.IDField, s.ValueField)
			}
			rr, err := LoadRaster(path, s.RasterVariable)
			if err != nil {
				return nil, err
			}
			if s.Mask != "" {
				if _, err = rr.MaskWhere(s.Mask); err != nil {
					return nil, err
				}
			}
			return rr, nil
		}, runtime.GOMAXPROCS(-1), requestcache.Deduplicate(), requestcache.Memory(size))
	})
}

// expand returns template with the wildcard replaced by the date.
func (s *TemplateSource) expand(template string, date time.Time) string {
	return strings.Replace(template, DateWildcard, date.Format(s.DateFormat), -1)
}

// Load implements Source.
func (s *TemplateSource) Load(date time.Time) (*Raster, *StationSet, error) {
	s.setup()
	if !strings.Contains(s.RasterTemplate, DateWildcard) && !strings.Contains(s.StationTemplate, DateWildcard) {
		s.warn.Do(func() {
			if s.Log != nil {
				s.Log.WithFields(logrus.Fields{
					"raster":   s.RasterTemplate,
					"stations": s.StationTemplate,
				}).Warnf("aqsr: input paths do not contain %s; the same data will be used for every date", DateWildcard)
			}
		})
	}
	rPath := s.expand(s.RasterTemplate, date)
	sPath := s.expand(s.StationTemplate, date)

	ctx := context.TODO()
	rr := s.cache.NewRequest(ctx, loadRequest{raster: true, path: rPath}, "raster_"+rPath)
	sr := s.cache.NewRequest(ctx, loadRequest{path: sPath}, "stations_"+sPath)

	ri, err := rr.Result()
	if err != nil {
		return nil, nil, err
	}
	si, err := sr.Result()
	if err != nil {
		return nil, nil, err
	}
	r, stations := ri.(*Raster), si.(*StationSet)
	if s.Reproject {
		if stations, err = stations.Reproject(r.CRS()); err != nil {
			return nil, nil, err
		}
	}
	return r, stations, nil
}

// ProcessTimeSeries aligns the data supplied by src for each day from
// start through end, inclusive, and concatenates the results in date
// order. Each sample is stamped with its date. Times of day are
// ignored. Any failure to load or align the data for a date is
// returned as an error naming the date.
func ProcessTimeSeries(src Source, start, end time.Time, radius int) (*SampleTable, error) {
	start = truncateDay(start)
	end = truncateDay(end)
	if start.After(end) {
		return nil, fmt.Errorf("aqsr: time series start %s is after end %s",
			start.Format(DateFormat), end.Format(DateFormat))
	}
	o := new(SampleTable)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		r, s, err := src.Load(d)
		if err != nil {
			return nil, fmt.Errorf("aqsr: loading data for %s: %w", d.Format(DateFormat), err)
		}
		t, err := Align(r, s, radius)
		if err != nil {
			return nil, fmt.Errorf("aqsr: aligning data for %s: %w", d.Format(DateFormat), err)
		}
		for i := range t.Samples {
			t.Samples[i].Date = d
		}
		o.Append(t)
	}
	return o, nil
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
