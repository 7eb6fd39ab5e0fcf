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

package cloud

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/google/go-cloud/blob"
)

// ReadBlob reads the given blob from the given bucket.
func ReadBlob(ctx context.Context, bucket *blob.Bucket, key string) ([]byte, error) {
	var b bytes.Buffer
	r, err := bucket.NewReader(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("cloud: reading blob key %s: %v", key, err)
	}
	defer r.Close()
	_, err = io.Copy(&b, r)
	if err != nil {
		return nil, fmt.Errorf("cloud: reading blob key %s: %v", key, err)
	}
	return b.Bytes(), nil
}

// WriteBlob writes the given data to the given bucket.
func WriteBlob(ctx context.Context, bucket *blob.Bucket, key string, data []byte) error {
	b := bytes.NewBuffer(data)
	w, err := bucket.NewWriter(ctx, key, &blob.WriterOptions{})
	if err != nil {
		return fmt.Errorf("cloud: creating writer for blob %s: %v", key, err)
	}
	_, err = io.Copy(w, b)
	if err != nil {
		w.Close()
		return fmt.Errorf("cloud: copying blob %s: %v", key, err)
	}
	if err = w.Close(); err != nil {
		return fmt.Errorf("cloud: writing blob %s: %v", key, err)
	}
	return nil
}

// Download copies the blob at path, in the format
// 'provider://bucket/key', into directory dir and returns the local
// path. For shapefiles, the associated files are downloaded as well.
func Download(ctx context.Context, path, dir string) (string, error) {
	bucketName, key, err := SplitBlob(path)
	if err != nil {
		return "", err
	}
	bucket, err := OpenBucket(ctx, bucketName)
	if err != nil {
		return "", err
	}
	keys := ExpandShp(key)
	for _, k := range keys {
		b, err := ReadBlob(ctx, bucket, k)
		if err != nil {
			return "", err
		}
		if err = ioutil.WriteFile(filepath.Join(dir, filepath.Base(k)), b, 0644); err != nil {
			return "", fmt.Errorf("cloud: saving download: %v", err)
		}
	}
	return filepath.Join(dir, filepath.Base(keys[0])), nil
}

// Upload copies local file localPath to blob path remotePath, in the
// format 'provider://bucket/key'.
func Upload(ctx context.Context, localPath, remotePath string) error {
	bucketName, key, err := SplitBlob(remotePath)
	if err != nil {
		return err
	}
	bucket, err := OpenBucket(ctx, bucketName)
	if err != nil {
		return err
	}
	r, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("cloud: opening file '%s' for upload: %v", localPath, err)
	}
	defer r.Close()
	w, err := bucket.NewWriter(ctx, key, &blob.WriterOptions{})
	if err != nil {
		return fmt.Errorf("cloud: opening writer to upload file '%s': %v", remotePath, err)
	}
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return fmt.Errorf("cloud: uploading file '%s' to '%s': %v", localPath, remotePath, err)
	}
	return w.Close()
}

// ExpandShp returns the given file + associated [.dbf, .shx, .prj]
// files if the given file has the .shp extension, and returns the given
// file otherwise
func ExpandShp(filename string) []string {
	o := []string{filename}
	ext := filepath.Ext(filename)
	if ext != ".shp" {
		return o
	}
	for _, newExt := range []string{".dbf", ".shx", ".prj"} {
		o = append(o, filename[0:len(filename)-4]+newExt)
	}
	return o
}
