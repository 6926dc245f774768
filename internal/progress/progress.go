// Copyright 2021 Northern.tech AS
//
//    Licensed under the Apache License, Version 2.0 (the "License");
//    you may not use this file except in compliance with the License.
//    You may obtain a copy of the License at
//
//        http://www.apache.org/licenses/LICENSE-2.0
//
//    Unless required by applicable law or agreed to in writing, software
//    distributed under the License is distributed on an "AS IS" BASIS,
//    WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//    See the License for the specific language governing permissions and
//    limitations under the License.

// Package progress provides an io.Writer that drives a terminal progress
// bar, ticked as bytes are written to a partition.
package progress

import (
	"github.com/mendersoftware/progressbar"
)

// Writer ticks a progress bar by the number of bytes written to it and
// discards the data itself; the flasher places it beside the real
// destination in an io.MultiWriter.
type Writer struct {
	bar      *progressbar.Bar
	finished bool
}

// New creates a progress writer for an item of the given total size. When
// quiet is true, ticking is a no-op — used under --dry and when stderr is
// not a terminal.
func New(size int64, quiet bool) *Writer {
	if quiet {
		return &Writer{}
	}
	return &Writer{bar: progressbar.New(size)}
}

func (w *Writer) Write(data []byte) (int, error) {
	if w.finished || w.bar == nil {
		return len(data), nil
	}
	n := len(data)
	w.bar.Tick(int64(n))
	// The final chunk read from a tar entry is often larger than the
	// remaining declared size, which would otherwise interleave the
	// bar with subsequent log lines.
	if w.bar.Percentage >= 99 {
		w.bar.Finish()
		w.finished = true
	}
	return n, nil
}
