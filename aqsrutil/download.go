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
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/aqsr/cloud"
)

// maybeDownload checks if the input is an existing file locally.
// If not, it checks if the file is a URL or a blob storage location.
// If it is, it downloads the file and
// returns the path to the downloaded file.
// For shapefiles, it downloads all associated files and
// returns the path to the file with the ".shp" extension.
// Paths containing the date wildcard are returned unchanged.
func maybeDownload(ctx context.Context, path string) (string, error) {
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		return path, nil
	}
	if strings.Contains(path, "[DATE]") {
		return path, nil
	}
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return downloadHTTP(path)
	}
	if cloud.IsBlob(path) {
		dir, err := ioutil.TempDir("", "aqsr")
		if err != nil {
			return "", fmt.Errorf("aqsrutil: creating temporary download directory: %v", err)
		}
		return cloud.Download(ctx, path, dir)
	}
	return path, nil
}

// downloadHTTP downloads a file from the specified URL and returns
// the path to the downloaded file. Failed requests are retried with
// exponential backoff.
func downloadHTTP(path string) (string, error) {
	dir, err := ioutil.TempDir("", "aqsr")
	if err != nil {
		return "", fmt.Errorf("aqsrutil: creating temporary download directory: %v", err)
	}
	fnames := cloud.ExpandShp(path)
	for _, fname := range fnames {
		local := filepath.Join(dir, filepath.Base(fname))
		b := backoff.NewExponentialBackOff()
		b.MaxElapsedTime = time.Minute
		// Client errors will not be fixed by retrying.
		var permanent error
		err := backoff.RetryNotify(
			func() error {
				retry, err := getHTTP(fname, local)
				if !retry {
					permanent = err
					return nil
				}
				return err
			},
			b,
			func(err error, d time.Duration) {
				Log.WithField("url", fname).Warnf("%v: retrying in %v", err, d)
			},
		)
		if err != nil {
			return "", err
		}
		if permanent != nil {
			return "", permanent
		}
	}
	Log.WithFields(logrus.Fields{"url": path, "dir": dir}).Debug("downloaded file")
	return filepath.Join(dir, filepath.Base(fnames[0])), nil
}

// getHTTP saves the contents of url to file local. retry reports
// whether a failed request might succeed if tried again.
func getHTTP(url, local string) (retry bool, err error) {
	resp, err := http.Get(url)
	if err != nil {
		return true, fmt.Errorf("aqsrutil: downloading %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("aqsrutil: downloading %s: %s", url, resp.Status)
		return resp.StatusCode >= 500, err
	}
	w, err := os.Create(local)
	if err != nil {
		return false, fmt.Errorf("aqsrutil: creating file for download: %v", err)
	}
	if _, err = io.Copy(w, resp.Body); err != nil {
		w.Close()
		return true, fmt.Errorf("aqsrutil: downloading %s: %v", url, err)
	}
	return false, w.Close()
}
