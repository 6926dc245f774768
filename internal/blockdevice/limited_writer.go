// Copyright 2016 Mender Software AS
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

package blockdevice

import (
	"io"
	"syscall"
)

// LimitedWriter forwards writes to W, refusing to write past N remaining
// bytes so a write can never run off the end of a partition.
type LimitedWriter struct {
	W io.Writer
	N uint64
}

func (lw *LimitedWriter) Write(p []byte) (int, error) {
	if lw.W == nil {
		return 0, syscall.EBADF
	}
	var selferr error
	toWrite := p

	if uint64(len(p)) > lw.N {
		toWrite = p[:lw.N]
		selferr = syscall.ENOSPC
	}

	n, err := lw.W.Write(toWrite)
	if n != 0 {
		lw.N -= uint64(n)
	}
	if err != nil {
		selferr = err
	}
	return n, selferr
}
