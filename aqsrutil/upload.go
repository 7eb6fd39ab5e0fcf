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
	"io/ioutil"
	"path/filepath"

	"github.com/spatialmodel/aqsr/cloud"
)

type uploader struct {
	// files is a set of file path pairs. The first of each pair
	// is a local file path and the second is a blob storage
	// path where it should be uploaded to.
	files [][2]string
	err   error
	dir   string
}

// upload copies the output files to blob storage.
func (u *uploader) upload(ctx context.Context) error {
	if u.err != nil {
		return u.err
	}
	for _, f := range u.files {
		if err := cloud.Upload(ctx, f[0], f[1]); err != nil {
			return fmt.Errorf("aqsrutil: %v", err)
		}
		Log.WithField("path", f[1]).Debug("uploaded file")
	}
	return nil
}

// maybeUpload checks whether the given output file path refers to
// a blob storage location. If it does, then a temporary file location
// is returned. The file will then be uploaded to blob storage when
// the upload method is run.
func (u *uploader) maybeUpload(path string) string {
	if u.err != nil {
		return ""
	}
	if !cloud.IsBlob(path) {
		return path
	}
	if u.dir == "" {
		u.dir, u.err = ioutil.TempDir("", "aqsr")
		if u.err != nil {
			return ""
		}
	}
	files := cloud.ExpandShp(path)
	for _, f := range files {
		u.files = append(u.files, [2]string{
			filepath.Join(u.dir, filepath.Base(f)),
			f,
		})
	}
	return filepath.Join(u.dir, filepath.Base(files[0]))
}
