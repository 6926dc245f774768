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

// Package blockdevice wraps raw block-device writes with a real-size
// bound, so the flasher can never run past the end of a physical
// partition even when an image is malformed.
package blockdevice

import (
	"io"
	"os"

	log "github.com/sirupsen/logrus"
)

// GetSizeFunc is a helper for obtaining the size of a block device; a
// package variable so tests can substitute a fake without a real device.
type GetSizeFunc func(file *os.File) (uint64, error)

// GetSizeOf is the active GetSizeFunc, real BLKGETSIZE64 ioctl by default.
var GetSizeOf GetSizeFunc = getBlockDeviceSize

// Device is a low-level wrapper for a whole block device or a raw byte
// range within one. It implements io.Writer and io.Closer.
type Device struct {
	// Path is the device node to open, e.g. "/dev/mmcblk0p1".
	Path string
	// Offset is the byte offset to seek to before the first write, used
	// for raw partitions addressed within a larger device node.
	Offset int64

	out *os.File
	w   *LimitedWriter
}

// Write writes p to the underlying device, opening and size-checking it
// lazily on first use.
func (d *Device) Write(p []byte) (int, error) {
	if d.out == nil {
		log.Infof("opening device %s for writing", d.Path)
		out, err := os.OpenFile(d.Path, os.O_WRONLY, 0)
		if err != nil {
			return 0, err
		}

		size, err := GetSizeOf(out)
		if err != nil {
			log.Errorf("failed to read block device size: %v", err)
			out.Close()
			return 0, err
		}
		if d.Offset > 0 {
			if _, err := out.Seek(d.Offset, io.SeekStart); err != nil {
				out.Close()
				return 0, err
			}
			if uint64(d.Offset) < size {
				size -= uint64(d.Offset)
			} else {
				size = 0
			}
		}
		log.Infof("device %s: writable size %d bytes starting at offset %d", d.Path, size, d.Offset)

		d.out = out
		d.w = &LimitedWriter{W: out, N: size}
	}

	n, err := d.w.Write(p)
	if err != nil {
		log.Errorf("written %d out of %d bytes to %s: %v", n, len(p), d.Path, err)
	}
	return n, err
}

// Close syncs and closes the underlying device.
func (d *Device) Close() error {
	if d.out != nil {
		if err := d.out.Sync(); err != nil {
			log.Errorf("failed to fsync %s: %v", d.Path, err)
			return err
		}
		if err := d.out.Close(); err != nil {
			log.Errorf("failed to close %s: %v", d.Path, err)
		}
		d.out = nil
		d.w = nil
	}
	return nil
}

// Size queries the real size of the underlying device, opening a
// read-only fd so it can run in parallel with other operations.
func (d *Device) Size() (uint64, error) {
	out, err := os.OpenFile(d.Path, os.O_RDONLY, 0)
	if err != nil {
		return 0, err
	}
	defer out.Close()
	return GetSizeOf(out)
}
