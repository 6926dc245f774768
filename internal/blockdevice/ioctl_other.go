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

//go:build !linux
// +build !linux

package blockdevice

import (
	"os"

	"github.com/pkg/errors"
)

// getBlockDeviceSize has no portable equivalent of BLKGETSIZE64 outside
// Linux; this board-support agent only ever runs there.
func getBlockDeviceSize(file *os.File) (uint64, error) {
	return 0, errors.New("blockdevice: BLKGETSIZE64 is only implemented on linux")
}
