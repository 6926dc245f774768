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
package partenv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emlix/rupdate/internal/partconfig"
)

func cfgWith(t *testing.T, extraPartitionJSON string) *partconfig.Config {
	t.Helper()
	cfg, err := partconfig.Parse([]byte(`{
		"version": 1, "hash_algorithm": "sha256",
		"partition_sets": [
			{"id": 0, "name": "bootfs", "partitions": [
				{"variant": "A", "linux": {"device": "mmcblk0", "partition": "p2"},
				 "bootloader": {"device": "mmc0", "partition": "0:2"}},
				{"variant": "B", "linux": {"device": "mmcblk0", "partition": "p3"},
				 "bootloader": {"device": "mmc0", "partition": "0:3"}}
			]},
			{"id": 1, "name": "raw_set", "partitions": [` + extraPartitionJSON + `]}
		]
	}`))
	require.NoError(t, err)
	return cfg
}

func TestFromConfigBuildsDescriptorsForFormatPartitions(t *testing.T) {
	cfg := cfgWith(t, `{"variant": "A", "linux": {"device": "mmcblk0", "partition": "p8"}, "bootloader": {"device": "mmc0", "partition": "0:8"}}`)
	img, err := FromConfig(cfg, []string{"bootfs"})
	require.NoError(t, err)

	require.Len(t, img.Data.Sets, 1)
	assert.Equal(t, "bootfs", img.Data.Sets[0].Name.String())
	require.Len(t, img.Data.Partitions, 2)
	assert.Equal(t, "p2", img.Data.Partitions[0].LinuxPartitionID.String())
	assert.Equal(t, "0:2", img.Data.Partitions[0].BootloaderPartitionID.String())
}

func TestFromConfigRejectsRawOffset(t *testing.T) {
	cfg := cfgWith(t, `{"variant": "A", "linux": {"device": "mmcblk0", "offset": "0x1000"}, "bootloader": {"device": "mmc0", "partition": "0:8"}}`)
	_, err := FromConfig(cfg, []string{"raw_set"})
	assert.Error(t, err)
}

func TestFromConfigRejectsMissingBootloaderSide(t *testing.T) {
	cfg := cfgWith(t, `{"variant": "A", "linux": {"device": "mmcblk0", "partition": "p8"}}`)
	_, err := FromConfig(cfg, []string{"raw_set"})
	assert.Error(t, err)
}

func TestFromConfigRejectsUnknownSet(t *testing.T) {
	cfg := cfgWith(t, `{"variant": "A", "linux": {"device": "mmcblk0", "partition": "p8"}, "bootloader": {"device": "mmc0", "partition": "0:8"}}`)
	_, err := FromConfig(cfg, []string{"nonexistent"})
	assert.Error(t, err)
}

func TestMarshalBinaryAndRehashChangesChecksum(t *testing.T) {
	cfg := cfgWith(t, `{"variant": "A", "linux": {"device": "mmcblk0", "partition": "p8"}, "bootloader": {"device": "mmc0", "partition": "0:8"}}`)
	img, err := FromConfig(cfg, []string{"bootfs", "raw_set"})
	require.NoError(t, err)

	raw, err := img.MarshalBinary()
	require.NoError(t, err)
	assert.NotEmpty(t, raw)

	before := img.Checksum
	img.Data.Sets[0].ID = 99
	img.Rehash()
	assert.NotEqual(t, before, img.Checksum)
}
