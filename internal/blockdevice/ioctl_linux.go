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

//go:build linux
// +build linux

package blockdevice

import (
	"os"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// blkGetSize64 is BLKGETSIZE64 from <linux/fs.h>: returns the device size
// in bytes as a u64.
const blkGetSize64 = 0x80081272

func getBlockDeviceSize(file *os.File) (uint64, error) {
	var size uint64
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, file.Fd(), uintptr(blkGetSize64),
		uintptr(unsafe.Pointer(&size)))
	if errno == unix.ENOTTY {
		return 0, errors.Wrap(errno, "not a block device")
	} else if errno != 0 {
		return 0, errno
	}
	return size, nil
}
