// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package downloader

import (
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"
)

const progressInterval = 2 * time.Second

// progress counts the bytes written to it and logs them at most once per
// interval. A negative total means the size is unknown.
type progress struct {
	name    string
	total   int64
	written int64
	logged  time.Time
}

func newProgress(name string, total int64) *progress {
	return &progress{name: name, total: total, logged: time.Now()}
}

func (p *progress) Write(b []byte) (int, error) {
	p.written += int64(len(b))
	if time.Since(p.logged) >= progressInterval {
		p.logged = time.Now()
		event := log.Info().Str("file", p.name).Str("downloaded", humanize.Bytes(uint64(p.written)))
		if p.total > 0 {
			event = event.Str("total", humanize.Bytes(uint64(p.total))).
				Str("progress", humanize.FtoaWithDigits(float64(p.written)*100/float64(p.total), 1)+"%")
		}
		event.Msg("downloading")
	}
	return len(b), nil
}

func (p *progress) done() {
	log.Info().Str("file", p.name).Str("size", humanize.Bytes(uint64(p.written))).Msg("download completed")
}
