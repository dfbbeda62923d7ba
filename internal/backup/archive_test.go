// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package backup

import (
	"archive/tar"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyPadded(t *testing.T) {
	tests := []struct {
		name string
		src  string
		size int64
		want string
	}{
		{"exact", "abc", 3, "abc"},
		{"shrunk", "abc", 5, "abc\x00\x00"},
		{"grown", "abcdef", 3, "abc"},
		{"emptied", "", 2, "\x00\x00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, copyPadded(&buf, strings.NewReader(tt.src), tt.size))
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestAddEntrySkipsVanishedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "latest.log")
	writeFile(t, path, "some output\n")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.NoError(t, os.Remove(path))

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	require.NoError(t, addEntry(tw, path, "latest.log", entries[0]))
	require.NoError(t, tw.Close())

	_, err = tar.NewReader(&buf).Next()
	assert.Equal(t, io.EOF, err)
}

func TestAddEntryUsesOpenedFileSize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "latest.log")
	writeFile(t, path, "a long line that will be cleared\n")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	// Truncated after the directory was read, as clearing the log does.
	writeFile(t, path, "[Logs cleared]\n")

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	require.NoError(t, addEntry(tw, path, "logs/latest.log", entries[0]))
	require.NoError(t, tw.Close())

	tr := tar.NewReader(&buf)
	hdr, err := tr.Next()
	require.NoError(t, err)
	assert.Equal(t, "logs/latest.log", hdr.Name)
	data, err := io.ReadAll(tr)
	require.NoError(t, err)
	assert.Equal(t, "[Logs cleared]\n", string(data))
}
