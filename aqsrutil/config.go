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
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lnashier/viper"
	"github.com/spatialmodel/aqsr"
	"github.com/spatialmodel/aqsr/srnet"
	"github.com/spf13/cast"
)

// checkOutputFile expands environment variables in path and makes sure
// it has one of the given extensions, if any are given, and that its
// directory exists.
func checkOutputFile(path string, extensions ...string) (string, error) {
	path = os.ExpandEnv(path)
	if path == "" {
		return "", fmt.Errorf("aqsrutil: output file is not specified")
	}
	if len(extensions) > 0 {
		ext := strings.ToLower(filepath.Ext(path))
		var ok bool
		for _, e := range extensions {
			if ext == e {
				ok = true
				break
			}
		}
		if !ok {
			return "", fmt.Errorf("aqsrutil: output file %s must have one of the extensions %v", path, extensions)
		}
	}
	if strings.Contains(path, "://") {
		return path, nil
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, os.ModePerm); err != nil {
			return "", fmt.Errorf("aqsrutil: creating output directory: %v", err)
		}
	}
	return path, nil
}

// parseDate parses a date in YYYY-MM-DD format.
func parseDate(s string) (time.Time, error) {
	t, err := time.Parse(aqsr.DateFormat, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("aqsrutil: invalid date %q; use the format YYYY-MM-DD", s)
	}
	return t, nil
}

// expandStringSlice expands environment variables in each element
// of s.
func expandStringSlice(s []string) []string {
	o := make([]string, len(s))
	for i, v := range s {
		o[i] = os.ExpandEnv(v)
	}
	return o
}

// TrainConfig holds the settings for training a network.
type TrainConfig struct {
	// TrainingFiles are local NetCDF high resolution rasters and
	// Variable is the variable to read from them.
	TrainingFiles []string
	Variable      string

	// ModelFile is the local path where the trained network is saved.
	ModelFile string

	Device srnet.Device
	Net    srnet.Config

	Patch, BatchSize, Epochs int

	Loss      srnet.Loss
	Optimizer srnet.Optimizer
	Seed      int64

	// LossPlot is an optional image file for the loss curve.
	LossPlot string
}

// TrainConfigFromViper reads the training settings from cfg. Paths,
// including LossPlot, are not set.
func TrainConfigFromViper(cfg *viper.Viper) (*TrainConfig, error) {
	device, err := srnet.ParseDevice(cfg.GetString("Device"))
	if err != nil {
		return nil, err
	}
	loss, err := srnet.ParseLoss(cfg.GetString("Loss"))
	if err != nil {
		return nil, err
	}
	opt, err := srnet.ParseOptimizer(cfg.GetString("Optimizer"),
		cfg.GetFloat64("LearningRate"), cfg.GetFloat64("Momentum"))
	if err != nil {
		return nil, err
	}
	net := srnet.DefaultConfig()
	net.Scale = cfg.GetInt("Scale")
	net.Features = cfg.GetInt("Features")
	net.ResBlocks = cfg.GetInt("ResBlocks")
	if err = net.Validate(); err != nil {
		return nil, err
	}
	c := &TrainConfig{
		Variable:  cfg.GetString("RasterVariable"),
		Device:    device,
		Net:       net,
		Patch:     cfg.GetInt("PatchSize"),
		BatchSize: cfg.GetInt("BatchSize"),
		Epochs:    cfg.GetInt("Epochs"),
		Loss:      loss,
		Optimizer: opt,
		Seed:      cast.ToInt64(cfg.Get("Seed")),
	}
	if c.Epochs < 1 {
		return nil, fmt.Errorf("aqsrutil: Epochs must be at least 1 but is %d", c.Epochs)
	}
	return c, nil
}

// plotOutputFile checks an optional plot output path. Empty paths are
// returned unchanged. Blob storage paths are replaced with a temporary
// file that u will upload.
func plotOutputFile(u *uploader, path string) (string, error) {
	if path == "" {
		return "", nil
	}
	path, err := checkOutputFile(path, ".png", ".svg", ".pdf")
	if err != nil {
		return "", err
	}
	return u.maybeUpload(path), nil
}
