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
package partconfig

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emlix/rupdate/internal/model"
)

const exampleConfig = `{
  "version": 1,
  "hash_algorithm": "sha256",
  "partition_sets": [
    {
      "name": "update_env",
      "filesystem": "update_fs",
      "partitions": [
        {"linux": {"device": "mmcblk0", "offset": "0x200000"}}
      ],
      "user_data": {"blob_offset": "0x1000"}
    },
    {
      "id": 0,
      "name": "bootfs",
      "filesystem": "ext2",
      "mountpoint": "/boot",
      "partitions": [
        {"variant": "A", "linux": {"device": "mmcblk0", "partition": "p2"}},
        {"variant": "B", "linux": {"device": "mmcblk0", "partition": "p3"}}
      ]
    },
    {
      "id": 1,
      "name": "rootfs",
      "filesystem": "squashfs",
      "mountpoint": "/",
      "partitions": [
        {"variant": "A", "linux": {"device": "mmcblk0", "partition": "p6"}},
        {"variant": "B", "linux": {"device": "mmcblk0", "partition": "p7"}}
      ]
    },
    {
      "name": "home",
      "filesystem": "ext2",
      "mountpoint": "/home",
      "partitions": [
        {"linux": {"device": "mmcblk0", "partition": "p8"}}
      ],
      "flags": ["overlay"]
    }
  ]
}`

func loadExample(t *testing.T) *Config {
	t.Helper()
	cfg, err := Parse([]byte(exampleConfig))
	require.NoError(t, err)
	return cfg
}

func TestParseOffsetHexAndDecimal(t *testing.T) {
	cfg := loadExample(t)
	_, part, err := cfg.FindUpdatePartition()
	require.NoError(t, err)
	assert.Equal(t, int64(0x200000), part.Offset)
	assert.True(t, part.IsRaw())

	dec, err := Parse([]byte(`{"version":1,"hash_algorithm":"sha256","partition_sets":[
		{"name":"update_env","partitions":[{"linux":{"device":"mmcblk0","offset":"4096"}}]}
	]}`))
	require.NoError(t, err)
	_, part, err = dec.FindUpdatePartition()
	require.NoError(t, err)
	assert.Equal(t, int64(4096), part.Offset)
}

func TestFindSet(t *testing.T) {
	cfg := loadExample(t)
	set, ok := cfg.FindSet("rootfs")
	require.True(t, ok)
	assert.Equal(t, uint32(1), *set.ID)

	_, ok = cfg.FindSet("nonexistent")
	assert.False(t, ok)
}

func TestUpdateSetsOrderedByID(t *testing.T) {
	cfg := loadExample(t)
	sets := cfg.UpdateSets()
	require.Len(t, sets, 2)
	assert.Equal(t, "bootfs", sets[0].Name)
	assert.Equal(t, "rootfs", sets[1].Name)
}

func TestFindByVariant(t *testing.T) {
	cfg := loadExample(t)
	set, _ := cfg.FindSet("bootfs")
	p, ok := set.FindByVariant(model.VariantB)
	require.True(t, ok)
	assert.Equal(t, "p3", p.Linux.Partition)
}

func TestHomeHasNoVariant(t *testing.T) {
	cfg := loadExample(t)
	set, _ := cfg.FindSet("home")
	require.Len(t, set.Partitions, 1)
	assert.False(t, set.Partitions[0].HasVariant())
	assert.True(t, set.HasFlag(FlagOverlay))
}

func TestUnknownFlagRejected(t *testing.T) {
	_, err := Parse([]byte(`{"version":1,"hash_algorithm":"sha256","partition_sets":[
		{"name":"x","partitions":[],"flags":["bogus"]}
	]}`))
	assert.Error(t, err)
}

func TestPartitionedRequiresOffsetOrPartition(t *testing.T) {
	_, err := Parse([]byte(`{"version":1,"hash_algorithm":"sha256","partition_sets":[
		{"name":"x","partitions":[{"linux":{"device":"mmcblk0"}}]}
	]}`))
	assert.Error(t, err)
}
