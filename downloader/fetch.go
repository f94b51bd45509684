// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package downloader fetches trained models from a Hugging Face compatible
// hub and checks that they can be loaded.
package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/nlpodyssey/attentionocr/ocrmodel"
	"github.com/rs/zerolog/log"
)

// ErrVocabularyMismatch is returned when a fetched model does not read the
// requested characters, or when its configuration file and its parameters
// disagree on them.
var ErrVocabularyMismatch = errors.New("vocabulary mismatch")

const (
	// DefaultEndpoint is the file URL template of huggingface.co, filled
	// with the repository, the revision and the file name.
	DefaultEndpoint = "https://huggingface.co/%s/resolve/%s/%s"
	// DefaultRevision is the revision fetched when none is given.
	DefaultRevision = "main"
)

// partial marks a file still being written.
const partial = ".part"

// modelFiles are the files written by ocrmodel.Save.
var modelFiles = []string{ocrmodel.DefaultConfigFilename, ocrmodel.DefaultOutputFilename}

// Request describes the model to fetch.
type Request struct {
	// Repository is the "organization/model" identifier on the hub.
	Repository string
	// Revision defaults to DefaultRevision.
	Revision string
	// Dir receives the model files. Missing directories are created.
	Dir string
	// Vocabulary, if not empty, must be the vocabulary of the fetched model.
	Vocabulary string
	// Overwrite fetches the files even if they already exist in Dir.
	// Otherwise existing files are kept and only checked.
	Overwrite   bool
	AccessToken string
	// Endpoint defaults to DefaultEndpoint.
	Endpoint string
	// Client defaults to http.DefaultClient.
	Client *http.Client
}

// Fetch downloads the configuration and the parameters of a trained model,
// then loads them. Files are written under a temporary name and renamed
// when complete. If the model cannot be loaded or reads a different
// vocabulary, the files fetched by this call are removed.
func Fetch(ctx context.Context, r Request) (*ocrmodel.Model, error) {
	if r.Repository == "" {
		return nil, fmt.Errorf("missing model repository")
	}
	if r.Revision == "" {
		r.Revision = DefaultRevision
	}
	if r.Endpoint == "" {
		r.Endpoint = DefaultEndpoint
	}
	if r.Client == nil {
		r.Client = http.DefaultClient
	}
	if err := os.MkdirAll(r.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create model directory %q: %w", r.Dir, err)
	}

	var fetched []string
	for _, name := range modelFiles {
		ok, err := r.fetchFile(ctx, name)
		if err != nil {
			return nil, err
		}
		if ok {
			fetched = append(fetched, filepath.Join(r.Dir, name))
		}
	}

	m, err := r.check()
	if err != nil {
		for _, path := range fetched {
			if e := os.Remove(path); e != nil {
				log.Warn().Err(e).Str("file", path).Msg("failed to remove rejected model file")
			}
		}
		return nil, err
	}
	log.Info().Str("repository", r.Repository).Str("revision", r.Revision).Int("params", m.NumParams()).Msg("model ready")
	return m, nil
}

// check loads the model in Dir and compares its vocabularies.
func (r Request) check() (*ocrmodel.Model, error) {
	config, err := ocrmodel.LoadConfig(filepath.Join(r.Dir, ocrmodel.DefaultConfigFilename))
	if err != nil {
		return nil, err
	}
	m, err := ocrmodel.Load(r.Dir)
	if err != nil {
		return nil, fmt.Errorf("fetched model cannot be loaded: %w", err)
	}
	if config.Vocabulary != m.Config.Vocabulary {
		return nil, fmt.Errorf("%w: configuration file reads %q, parameters read %q",
			ErrVocabularyMismatch, config.Vocabulary, m.Config.Vocabulary)
	}
	if r.Vocabulary != "" && r.Vocabulary != m.Config.Vocabulary {
		return nil, fmt.Errorf("%w: expected %q, %s reads %q",
			ErrVocabularyMismatch, r.Vocabulary, r.Repository, m.Config.Vocabulary)
	}
	return m, nil
}

// fetchFile downloads a single file. It reports false when an existing
// file was kept.
func (r Request) fetchFile(ctx context.Context, name string) (bool, error) {
	path := filepath.Join(r.Dir, name)
	if info, err := os.Stat(path); err == nil && !info.IsDir() && !r.Overwrite {
		log.Debug().Str("file", path).Msg("model file already exists, skipping download")
		return false, nil
	}

	url := fmt.Sprintf(r.Endpoint, r.Repository, r.Revision, name)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, err
	}
	if r.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+r.AccessToken)
	}
	log.Debug().Str("url", url).Str("destination", path).Msg("downloading")

	resp, err := r.Client.Do(req)
	if err != nil {
		return false, fmt.Errorf("failed to get %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("failed to get %s: %s", url, resp.Status)
	}

	tmp := path + partial
	prog := newProgress(name, resp.ContentLength)
	if err := write(tmp, io.TeeReader(resp.Body, prog)); err != nil {
		_ = os.Remove(tmp)
		return false, fmt.Errorf("failed to download %s: %w", url, err)
	}
	prog.done()
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return false, err
	}
	return true, nil
}

func write(path string, src io.Reader) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if e := f.Close(); e != nil && err == nil {
			err = e
		}
	}()
	_, err = io.Copy(f, src)
	return err
}
