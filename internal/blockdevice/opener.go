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
package blockdevice

import (
	"io"

	"github.com/emlix/rupdate/internal/partconfig"
)

// Opener resolves a partconfig.Partitioned target to a real device node:
// a FormatPartition opens "/dev/<device><partition>" from its start, a
// RawPartition opens "/dev/<device>" and seeks to the given offset. It
// satisfies bundle.DeviceOpener without the bundle package importing this
// one's concrete type.
type Opener struct{}

func (Opener) OpenPartition(target partconfig.Partitioned) (io.WriteCloser, error) {
	if target.IsRaw() {
		return &Device{Path: "/dev/" + target.Device, Offset: target.Offset}, nil
	}
	return &Device{Path: "/dev/" + target.Device + target.Partition}, nil
}
