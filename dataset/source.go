// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dataset

import (
	"bufio"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Sample is a labelled image. Image, when set, takes precedence over Path.
type Sample struct {
	Path  string
	Text  string
	Image image.Image
}

// Source is an ordered list of samples.
type Source []Sample

// FromGlob returns a sample for every file matching pattern, labelled with
// the base name of the file up to the first "_" (or up to the extension).
func FromGlob(pattern string) (Source, error) {
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid glob pattern %q: %w", pattern, err)
	}
	sort.Strings(paths)
	samples := make(Source, 0, len(paths))
	for _, p := range paths {
		samples = append(samples, Sample{Path: p, Text: LabelFromFilename(p)})
	}
	return samples, nil
}

// LabelFromFilename returns the transcription encoded in an image file name.
func LabelFromFilename(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if i := strings.Index(base, "_"); i >= 0 {
		return base[:i]
	}
	return base
}

// FromManifest reads a manifest of tab separated "path<TAB>text" lines.
// Relative paths are resolved against the manifest directory. Empty lines
// and lines starting with "#" are ignored.
func FromManifest(manifestPath string) (_ Source, err error) {
	f, err := os.Open(manifestPath)
	if err != nil {
		return nil, err
	}
	defer func() {
		if e := f.Close(); e != nil && err == nil {
			err = e
		}
	}()

	dir := filepath.Dir(manifestPath)
	var samples Source
	scanner := bufio.NewScanner(f)
	for n := 1; scanner.Scan(); n++ {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}
		path, text, ok := strings.Cut(line, "\t")
		if !ok {
			return nil, fmt.Errorf("%s:%d: expected a tab separated path and text", manifestPath, n)
		}
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, path)
		}
		samples = append(samples, Sample{Path: path, Text: text})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return samples, nil
}
