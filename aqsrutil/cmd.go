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

// Package aqsrutil contains the command-line interface for AQSR.
package aqsrutil

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/lnashier/viper"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/aqsr"
	"github.com/spf13/cast"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Cfg holds configuration information.
var Cfg *viper.Viper

// Log receives progress information from the commands.
var Log = logrus.StandardLogger()

var options []struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

func init() {
	// Options are the configuration options available to AQSR.
	options = []struct {
		name, usage, shorthand string
		defaultVal             interface{}
		flagsets               []*pflag.FlagSet
	}{
		{
			name: "config",
			usage: `
              config specifies the configuration file location.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "LogLevel",
			usage: `
              LogLevel is the minimum severity of log messages to print.
              Acceptable values are 'debug', 'info', 'warning', and 'error'.`,
			defaultVal: "info",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "RasterFile",
			usage: `
              RasterFile is the path to the NetCDF file holding the satellite
              air quality raster. The file must have global 'geotransform' and
              'crs' attributes. For the timeseries command, the path can contain
              the wildcard [DATE], which is replaced by each date in the
              format given by DateFormat. The path can include environment variables
              and can be a URL or a blob storage location.`,
			defaultVal: "pm25.nc",
			flagsets:   []*pflag.FlagSet{alignCmd.Flags(), timeseriesCmd.Flags(), gridCmd.Flags(), predictCmd.Flags()},
		},
		{
			name: "RasterVariable",
			usage: `
              RasterVariable is the name of the variable in RasterFile
              holding the air quality values.`,
			defaultVal: aqsr.DefaultVariable,
			flagsets:   []*pflag.FlagSet{alignCmd.Flags(), timeseriesCmd.Flags(), gridCmd.Flags(), predictCmd.Flags(), trainCmd.Flags()},
		},
		{
			name: "MaskExpression",
			usage: `
              MaskExpression is an optional expression such as 'value > 500' that
              marks additional raster values as missing. It can refer to the
              variables 'value', 'row', and 'col'. Negative values are always
              treated as missing.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{alignCmd.Flags(), timeseriesCmd.Flags(), predictCmd.Flags()},
		},
		{
			name: "StationFile",
			usage: `
              StationFile is the path to the point shapefile holding the ground
              station measurements. It must have an accompanying .prj file.
              For the timeseries command, the path can contain the wildcard [DATE].
              The path can include environment variables.`,
			defaultVal: "stations.shp",
			flagsets:   []*pflag.FlagSet{alignCmd.Flags(), timeseriesCmd.Flags()},
		},
		{
			name: "StationIDField",
			usage: `
              StationIDField is the name of the StationFile attribute holding
              the station identifiers.`,
			defaultVal: "id",
			flagsets:   []*pflag.FlagSet{alignCmd.Flags(), timeseriesCmd.Flags()},
		},
		{
			name: "StationValueField",
			usage: `
              StationValueField is the name of the StationFile attribute holding
              the measured values.`,
			defaultVal: "value",
			flagsets:   []*pflag.FlagSet{alignCmd.Flags(), timeseriesCmd.Flags()},
		},
		{
			name: "Reproject",
			usage: `
              If Reproject is true, stations are transformed to the coordinate
              reference system of the raster before alignment. Otherwise a
              difference in coordinate reference systems is an error.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{alignCmd.Flags(), timeseriesCmd.Flags()},
		},
		{
			name: "Radius",
			usage: `
              Radius is the half-width, in pixels, of the window of raster
              values averaged around each station.`,
			shorthand:  "r",
			defaultVal: aqsr.DefaultRadius,
			flagsets:   []*pflag.FlagSet{alignCmd.Flags(), timeseriesCmd.Flags()},
		},
		{
			name: "SampleFile",
			usage: `
              SampleFile is the path where the aligned samples should be written.
              The format is chosen by the extension: '.csv', '.shp', or '.xlsx'.
              It can include environment variables and can be a blob storage location.`,
			defaultVal: "samples.csv",
			flagsets:   []*pflag.FlagSet{alignCmd.Flags(), timeseriesCmd.Flags()},
		},
		{
			name: "CalibrationPlot",
			usage: `
              CalibrationPlot is an optional path to a '.png', '.svg', or '.pdf' file
              where a scatter plot of satellite against ground values should
              be saved. It can include environment variables and can be a
              blob storage location.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{alignCmd.Flags(), timeseriesCmd.Flags()},
		},
		{
			name: "StartDate",
			usage: `
              StartDate is the first date of the time series, in the format
              YYYY-MM-DD.`,
			defaultVal: "2019-01-01",
			flagsets:   []*pflag.FlagSet{timeseriesCmd.Flags()},
		},
		{
			name: "EndDate",
			usage: `
              EndDate is the last date (inclusive) of the time series, in the
              format YYYY-MM-DD.`,
			defaultVal: "2019-01-01",
			flagsets:   []*pflag.FlagSet{timeseriesCmd.Flags()},
		},
		{
			name: "DateFormat",
			usage: `
              DateFormat is the Go time layout used to replace the [DATE] wildcard
              in RasterFile and StationFile.`,
			defaultVal: "20060102",
			flagsets:   []*pflag.FlagSet{timeseriesCmd.Flags()},
		},
		{
			name: "TargetResolution",
			usage: `
              TargetResolution is the desired pixel size of the high resolution
              grid, in the units of the raster coordinate reference system.`,
			defaultVal: 0.01,
			flagsets:   []*pflag.FlagSet{gridCmd.Flags()},
		},
		{
			name: "TrainingFiles",
			usage: `
              TrainingFiles are the paths to high resolution NetCDF rasters used
              to train the super-resolution network. Low resolution inputs are
              created by averaging blocks of Scale x Scale pixels. The paths can
              include environment variables.`,
			defaultVal: []string{"pm25_hires.nc"},
			flagsets:   []*pflag.FlagSet{trainCmd.Flags()},
		},
		{
			name: "ModelFile",
			usage: `
              ModelFile is the location of the network checkpoint, written by
              train and read by predict. It can be a blob storage location.`,
			defaultVal: "srnet.gob",
			flagsets:   []*pflag.FlagSet{trainCmd.Flags(), predictCmd.Flags()},
		},
		{
			name: "Device",
			usage: `
              Device is the compute device for the network. 'cpu' is currently
              the only option.`,
			defaultVal: "cpu",
			flagsets:   []*pflag.FlagSet{trainCmd.Flags(), predictCmd.Flags()},
		},
		{
			name: "Scale",
			usage: `
              Scale is the upsampling factor of the network. It must be a power of 2.`,
			defaultVal: 4,
			flagsets:   []*pflag.FlagSet{trainCmd.Flags()},
		},
		{
			name: "Features",
			usage: `
              Features is the number of feature channels in the network.`,
			defaultVal: 64,
			flagsets:   []*pflag.FlagSet{trainCmd.Flags()},
		},
		{
			name: "ResBlocks",
			usage: `
              ResBlocks is the number of residual blocks in the network.`,
			defaultVal: 16,
			flagsets:   []*pflag.FlagSet{trainCmd.Flags()},
		},
		{
			name: "PatchSize",
			usage: `
              PatchSize is the width and height, in low resolution pixels, of
              the training tiles.`,
			defaultVal: 16,
			flagsets:   []*pflag.FlagSet{trainCmd.Flags()},
		},
		{
			name: "BatchSize",
			usage: `
              BatchSize is the number of training tiles in each batch.`,
			defaultVal: 8,
			flagsets:   []*pflag.FlagSet{trainCmd.Flags()},
		},
		{
			name: "Epochs",
			usage: `
              Epochs is the number of passes over the training data.`,
			shorthand:  "e",
			defaultVal: 10,
			flagsets:   []*pflag.FlagSet{trainCmd.Flags()},
		},
		{
			name: "Optimizer",
			usage: `
              Optimizer is the optimization algorithm: 'adam' or 'sgd'.`,
			defaultVal: "adam",
			flagsets:   []*pflag.FlagSet{trainCmd.Flags()},
		},
		{
			name: "Loss",
			usage: `
              Loss is the training loss function: 'mse' or 'l1'.`,
			defaultVal: "mse",
			flagsets:   []*pflag.FlagSet{trainCmd.Flags()},
		},
		{
			name: "LearningRate",
			usage: `
              LearningRate is the optimizer step size.`,
			defaultVal: 0.001,
			flagsets:   []*pflag.FlagSet{trainCmd.Flags()},
		},
		{
			name: "Momentum",
			usage: `
              Momentum is the momentum of the 'sgd' optimizer.`,
			defaultVal: 0.9,
			flagsets:   []*pflag.FlagSet{trainCmd.Flags()},
		},
		{
			name: "Seed",
			usage: `
              Seed initializes the random number generator used to set the
              initial network parameters.`,
			defaultVal: 1,
			flagsets:   []*pflag.FlagSet{trainCmd.Flags()},
		},
		{
			name: "LossPlot",
			usage: `
              LossPlot is an optional path to a '.png', '.svg', or '.pdf' file
              where the training loss for each epoch should be plotted.
              It can include environment variables and can be a blob
              storage location.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{trainCmd.Flags()},
		},
		{
			name: "OutputFile",
			usage: `
              OutputFile is the path where the upsampled NetCDF raster should be
              written. It can include environment variables and can be a blob
              storage location.`,
			defaultVal: "pm25_upsampled.nc",
			flagsets:   []*pflag.FlagSet{predictCmd.Flags()},
		},
	}

	Cfg = viper.New()

	// Set the prefix for configuration environment variables.
	Cfg.SetEnvPrefix("AQSR")
	Cfg.AutomaticEnv()

	for _, option := range options {
		for i, set := range option.flagsets {
			if i != 0 { // We don't want to create the same flag twice.
				set.AddFlag(option.flagsets[0].Lookup(option.name))
				continue
			}
			switch option.defaultVal.(type) {
			case string:
				if option.shorthand == "" {
					set.String(option.name, option.defaultVal.(string), option.usage)
				} else {
					set.StringP(option.name, option.shorthand, option.defaultVal.(string), option.usage)
				}
			case []string:
				if option.shorthand == "" {
					set.StringSlice(option.name, option.defaultVal.([]string), option.usage)
				} else {
					set.StringSliceP(option.name, option.shorthand, option.defaultVal.([]string), option.usage)
				}
			case bool:
				if option.shorthand == "" {
					set.Bool(option.name, option.defaultVal.(bool), option.usage)
				} else {
					set.BoolP(option.name, option.shorthand, option.defaultVal.(bool), option.usage)
				}
			case int:
				if option.shorthand == "" {
					set.Int(option.name, option.defaultVal.(int), option.usage)
				} else {
					set.IntP(option.name, option.shorthand, option.defaultVal.(int), option.usage)
				}
			case float64:
				if option.shorthand == "" {
					set.Float64(option.name, option.defaultVal.(float64), option.usage)
				} else {
					set.Float64P(option.name, option.shorthand, option.defaultVal.(float64), option.usage)
				}
			default:
				panic("invalid argument type")
			}
			Cfg.BindPFlag(option.name, set.Lookup(option.name))
		}
	}
}

func init() {
	// Link the commands together.
	Root.AddCommand(versionCmd)
	Root.AddCommand(alignCmd)
	Root.AddCommand(timeseriesCmd)
	Root.AddCommand(gridCmd)
	Root.AddCommand(trainCmd)
	Root.AddCommand(predictCmd)
}

// setConfig finds and reads in the configuration file, if there is one,
// and sets up logging.
func setConfig() error {
	if cfgpath := Cfg.GetString("config"); cfgpath != "" {
		Cfg.SetConfigFile(os.ExpandEnv(cfgpath))
		if err := Cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("aqsr: problem reading configuration file: %v", err)
		}
	}
	level, err := logrus.ParseLevel(Cfg.GetString("LogLevel"))
	if err != nil {
		return fmt.Errorf("aqsr: invalid LogLevel: %v", err)
	}
	Log.SetLevel(level)
	Log.Formatter = &logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
		DisableSorting:  true,
	}
	return nil
}

// Root is the main command.
var Root = &cobra.Command{
	Use:   "aqsr",
	Short: "Satellite air quality alignment and super-resolution.",
	Long: `AQSR pairs coarse satellite air quality rasters with ground station
measurements and trains a residual super-resolution network to upsample
the rasters to a finer grid.
Use the subcommands specified below to access the functionality.

Refer to the subcommand documentation for configuration options and default settings.
Configuration can be changed by using a configuration file (and providing the
path to the file using the --config flag), by using command-line arguments,
or by setting environment variables in the format 'AQSR_var' where 'var' is the
name of the variable to be set. Many configuration variables are additionally
allowed to contain environment variables within them.
Refer to https://github.com/spf13/viper for additional configuration information.`,
	DisableAutoGenTag: true,
	PersistentPreRunE: func(*cobra.Command, []string) error { return setConfig() },
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  "version prints the version number of this version of AQSR.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("AQSR v%s\n", aqsr.Version)
	},
	DisableAutoGenTag: true,
}

// alignCmd pairs stations with the raster.
var alignCmd = &cobra.Command{
	Use:   "align",
	Short: "Pair ground measurements with satellite values.",
	Long: `align pairs each ground station measurement in StationFile with the mean
of the valid values of RasterFile in a window around the station, and
writes the pairs to SampleFile. Stations with no valid raster values in
their window are skipped; the number of skipped stations is logged.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		var u uploader
		rasterFile, err := maybeDownload(ctx, os.ExpandEnv(Cfg.GetString("RasterFile")))
		if err != nil {
			return err
		}
		stationFile, err := maybeDownload(ctx, os.ExpandEnv(Cfg.GetString("StationFile")))
		if err != nil {
			return err
		}
		sampleFile, err := checkOutputFile(Cfg.GetString("SampleFile"), ".csv", ".shp", ".xlsx")
		if err != nil {
			return err
		}
		plotFile, err := plotOutputFile(&u, Cfg.GetString("CalibrationPlot"))
		if err != nil {
			return err
		}
		table, err := Align(
			rasterFile,
			Cfg.GetString("RasterVariable"),
			Cfg.GetString("MaskExpression"),
			stationFile,
			Cfg.GetString("StationIDField"),
			Cfg.GetString("StationValueField"),
			Cfg.GetBool("Reproject"),
			Cfg.GetInt("Radius"),
		)
		if err != nil {
			return err
		}
		if err = writeSamples(table, u.maybeUpload(sampleFile), plotFile); err != nil {
			return err
		}
		return u.upload(ctx)
	},
	DisableAutoGenTag: true,
}

// timeseriesCmd aligns over a range of dates.
var timeseriesCmd = &cobra.Command{
	Use:   "timeseries",
	Short: "Pair ground measurements with satellite values over a date range.",
	Long: `timeseries runs the align command for each day from StartDate through
EndDate, inclusive, and writes the combined samples, with a date column, to
SampleFile. RasterFile and StationFile can contain the wildcard [DATE] to read
different files for each date. If they do not, the same files are used for
every date and a warning is logged. Remote files are downloaded for each date
as needed. MaskExpression and Reproject are applied to the data for every
date as in the align command.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		var u uploader
		start, err := parseDate(Cfg.GetString("StartDate"))
		if err != nil {
			return err
		}
		end, err := parseDate(Cfg.GetString("EndDate"))
		if err != nil {
			return err
		}
		sampleFile, err := checkOutputFile(Cfg.GetString("SampleFile"), ".csv", ".shp", ".xlsx")
		if err != nil {
			return err
		}
		plotFile, err := plotOutputFile(&u, Cfg.GetString("CalibrationPlot"))
		if err != nil {
			return err
		}
		table, err := TimeSeries(&aqsr.TemplateSource{
			RasterTemplate:  os.ExpandEnv(Cfg.GetString("RasterFile")),
			RasterVariable:  Cfg.GetString("RasterVariable"),
			StationTemplate: os.ExpandEnv(Cfg.GetString("StationFile")),
			IDField:         Cfg.GetString("StationIDField"),
			ValueField:      Cfg.GetString("StationValueField"),
			DateFormat:      Cfg.GetString("DateFormat"),
			Mask:            Cfg.GetString("MaskExpression"),
			Reproject:       Cfg.GetBool("Reproject"),
			Fetch: func(path string) (string, error) {
				return maybeDownload(ctx, path)
			},
			Log: Log,
		}, start, end, Cfg.GetInt("Radius"))
		if err != nil {
			return err
		}
		if err = writeSamples(table, u.maybeUpload(sampleFile), plotFile); err != nil {
			return err
		}
		return u.upload(ctx)
	},
	DisableAutoGenTag: true,
}

// gridCmd plans a high resolution grid.
var gridCmd = &cobra.Command{
	Use:   "grid",
	Short: "Plan a high resolution grid.",
	Long: `grid prints the shape and geotransform of a grid covering RasterFile with
pixels of size TargetResolution.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		rasterFile, err := maybeDownload(context.Background(), os.ExpandEnv(Cfg.GetString("RasterFile")))
		if err != nil {
			return err
		}
		g, err := Grid(rasterFile, Cfg.GetString("RasterVariable"), Cfg.GetFloat64("TargetResolution"))
		if err != nil {
			return err
		}
		cmd.Printf("rows: %d\ncols: %d\nscale: %g\ngeotransform: %v\n",
			g.Rows, g.Cols, g.Scale, g.Transform.GDAL())
		return nil
	},
	DisableAutoGenTag: true,
}

// trainCmd trains the super-resolution network.
var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train the super-resolution network.",
	Long: `train fits a residual super-resolution network to the high resolution
rasters in TrainingFiles and saves it to ModelFile. The average loss for each
epoch is logged.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		var u uploader
		files := expandStringSlice(cast.ToStringSlice(Cfg.Get("TrainingFiles")))
		for i, f := range files {
			var err error
			if files[i], err = maybeDownload(ctx, f); err != nil {
				return err
			}
		}
		modelFile, err := checkOutputFile(Cfg.GetString("ModelFile"))
		if err != nil {
			return err
		}
		cfg, err := TrainConfigFromViper(Cfg)
		if err != nil {
			return err
		}
		if cfg.LossPlot, err = plotOutputFile(&u, Cfg.GetString("LossPlot")); err != nil {
			return err
		}
		cfg.TrainingFiles = files
		cfg.ModelFile = u.maybeUpload(modelFile)
		if _, err = Train(cfg); err != nil {
			return err
		}
		return u.upload(ctx)
	},
	DisableAutoGenTag: true,
}

// predictCmd upsamples a raster with a trained network.
var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Upsample a raster with a trained network.",
	Long: `predict loads the network saved in ModelFile, uses it to upsample
RasterFile, and writes the result to OutputFile. Missing raster values
are replaced with the raster mean before upsampling.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		var u uploader
		rasterFile, err := maybeDownload(ctx, os.ExpandEnv(Cfg.GetString("RasterFile")))
		if err != nil {
			return err
		}
		modelFile, err := maybeDownload(ctx, os.ExpandEnv(Cfg.GetString("ModelFile")))
		if err != nil {
			return err
		}
		outputFile, err := checkOutputFile(Cfg.GetString("OutputFile"), ".nc", ".ncf")
		if err != nil {
			return err
		}
		err = Predict(modelFile, Cfg.GetString("Device"), rasterFile,
			Cfg.GetString("RasterVariable"), Cfg.GetString("MaskExpression"),
			u.maybeUpload(outputFile))
		if err != nil {
			return err
		}
		return u.upload(ctx)
	},
	DisableAutoGenTag: true,
}
