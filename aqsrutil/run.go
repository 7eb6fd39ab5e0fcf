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

package aqsrutil

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/aqsr"
	"github.com/spatialmodel/aqsr/srnet"
)

// loadRaster reads a raster and applies the optional mask expression.
func loadRaster(path, variable, mask string) (*aqsr.Raster, error) {
	r, err := aqsr.LoadRaster(path, variable)
	if err != nil {
		return nil, err
	}
	if mask != "" {
		n, err := r.MaskWhere(mask)
		if err != nil {
			return nil, err
		}
		Log.WithFields(logrus.Fields{"file": path, "masked": n}).Info("applied mask expression")
	}
	return r, nil
}

// Align pairs the stations in stationFile with the raster in rasterFile.
// If reproject is true, the stations are first transformed to the
// coordinate reference system of the raster.
func Align(rasterFile, variable, mask, stationFile, idField, valueField string, reproject bool, radius int) (*aqsr.SampleTable, error) {
	r, err := loadRaster(rasterFile, variable, mask)
	if err != nil {
		return nil, err
	}
	s, err := aqsr.LoadStations(stationFile, idField, valueField)
	if err != nil {
		return nil, err
	}
	if reproject {
		if s, err = s.Reproject(r.CRS()); err != nil {
			return nil, err
		}
	}
	t, err := aqsr.Align(r, s, radius)
	if err != nil {
		return nil, err
	}
	logSkipped(t, logrus.Fields{"raster": rasterFile, "stations": stationFile})
	return t, nil
}

func logSkipped(t *aqsr.SampleTable, f logrus.Fields) {
	f["samples"] = len(t.Samples)
	f["skipped"] = t.Skipped
	if t.Skipped > 0 {
		Log.WithFields(f).Warn("stations skipped because their windows held no valid raster values")
		return
	}
	Log.WithFields(f).Info("aligned stations")
}

// TimeSeries aligns the data from src for each day from start
// through end.
func TimeSeries(src aqsr.Source, start, end time.Time, radius int) (*aqsr.SampleTable, error) {
	t, err := aqsr.ProcessTimeSeries(src, start, end, radius)
	if err != nil {
		return nil, err
	}
	logSkipped(t, logrus.Fields{
		"start": start.Format(aqsr.DateFormat),
		"end":   end.Format(aqsr.DateFormat),
	})
	return t, nil
}

// writeSamples writes t to path and, if plotPath is not empty, a
// calibration plot. Calibration statistics are logged when there are
// enough samples to compute them.
func writeSamples(t *aqsr.SampleTable, path, plotPath string) error {
	if err := t.Write(path); err != nil {
		return err
	}
	c, err := t.Calibrate()
	if err != nil {
		Log.WithField("samples", len(t.Samples)).Warn("not enough samples for calibration statistics")
		return nil
	}
	Log.WithFields(logrus.Fields{
		"n":         c.N,
		"slope":     c.Slope,
		"intercept": c.Intercept,
		"R2":        c.R2,
		"MB":        c.MB,
		"MFB":       c.MFB,
	}).Info("calibration")
	if plotPath != "" {
		return plotCalibration(t, c, plotPath)
	}
	return nil
}

// Grid plans a high resolution grid for the raster in rasterFile.
func Grid(rasterFile, variable string, targetRes float64) (*aqsr.GridSpec, error) {
	r, err := aqsr.LoadRaster(rasterFile, variable)
	if err != nil {
		return nil, err
	}
	return r.HighResGrid(targetRes)
}

// Train trains a new network as specified by cfg, saves it to
// cfg.ModelFile, and returns the result of each epoch. Diverged
// epochs are logged but do not stop training.
func Train(cfg *TrainConfig) ([]srnet.EpochResult, error) {
	rasters := make([]*aqsr.Raster, len(cfg.TrainingFiles))
	for i, f := range cfg.TrainingFiles {
		var err error
		if rasters[i], err = aqsr.LoadRaster(f, cfg.Variable); err != nil {
			return nil, err
		}
	}
	batches, err := aqsr.TrainingPairs(rasters, cfg.Net.Scale, cfg.Patch, cfg.BatchSize, cfg.Device)
	if err != nil {
		return nil, err
	}
	net, err := srnet.New(cfg.Net, cfg.Device, cfg.Seed)
	if err != nil {
		return nil, err
	}
	Log.WithFields(logrus.Fields{
		"batches":    len(batches),
		"parameters": net.Architecture().NumParams(),
		"scale":      cfg.Net.Scale,
	}).Info("starting training")

	nextEpoch, err := srnet.Train(net, batches, cfg.Loss, cfg.Optimizer, cfg.Epochs)
	if err != nil {
		return nil, err
	}
	var results []srnet.EpochResult
	for {
		r, err := nextEpoch()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		results = append(results, r)
		f := Log.WithFields(logrus.Fields{"epoch": r.Epoch, "loss": r.AvgLoss})
		if r.Diverged {
			f.Warn("training loss is not finite")
		} else {
			f.Info("finished epoch")
		}
	}

	w, err := os.Create(cfg.ModelFile)
	if err != nil {
		return nil, fmt.Errorf("aqsrutil: saving network: %v", err)
	}
	if err = net.Save(w); err != nil {
		w.Close()
		return nil, err
	}
	if err = w.Close(); err != nil {
		return nil, fmt.Errorf("aqsrutil: saving network: %v", err)
	}
	if cfg.LossPlot != "" {
		if err = plotLoss(results, cfg.LossPlot); err != nil {
			return nil, err
		}
	}
	return results, nil
}

// Predict upsamples the raster in rasterFile with the network saved in
// modelFile and writes the result to outputFile.
func Predict(modelFile, device, rasterFile, variable, mask, outputFile string) error {
	dev, err := srnet.ParseDevice(device)
	if err != nil {
		return err
	}
	f, err := os.Open(modelFile)
	if err != nil {
		return fmt.Errorf("aqsrutil: opening network: %v", err)
	}
	net, err := srnet.Load(f, dev)
	f.Close()
	if err != nil {
		return err
	}
	r, err := loadRaster(rasterFile, variable, mask)
	if err != nil {
		return err
	}
	o, err := aqsr.PredictRaster(net, r)
	if err != nil {
		return err
	}
	Log.WithFields(logrus.Fields{
		"rows": o.Rows(),
		"cols": o.Cols(),
		"file": outputFile,
	}).Info("writing upsampled raster")
	return o.WriteFile(outputFile, variable)
}
