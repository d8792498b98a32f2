// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package lift

import (
	"bytes"
	"mime/multipart"
	"os"
	"path/filepath"
)

// buildMultipartBody encodes a Request's mime fields into a
// multipart/form-data body, reading each file field whole from disk. Fields
// are encoded in the order they were added, matching the original
// form-submission semantics of AddMimeField/AddMimeFileField.
func buildMultipartBody(fields []MimeField) (*bytes.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, f := range fields {
		if f.FilePath == "" {
			if err := w.WriteField(f.Name, f.Value); err != nil {
				return nil, "", err
			}
			continue
		}
		part, err := w.CreateFormFile(f.Name, filepath.Base(f.FilePath))
		if err != nil {
			return nil, "", err
		}
		data, err := os.ReadFile(f.FilePath)
		if err != nil {
			return nil, "", errMissingMimeFile(f.FilePath, err)
		}
		if _, err := part.Write(data); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return bytes.NewReader(buf.Bytes()), w.FormDataContentType(), nil
}
