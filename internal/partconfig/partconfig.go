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

// Package partconfig loads and interprets partitions.json, the board's
// static description of every partition set this agent may touch.
package partconfig

import (
	"encoding/json"
	"io/ioutil"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/emlix/rupdate/internal/model"
)

// Well-known set names, and the filesystem names that go with them, reserved
// for the agent's own bookkeeping partitions.
const (
	UpdateEnvFilesystem = "update_fs"
	UpdateEnvSet        = "update_env"
	PartConfFilesystem  = "part_conf_fs"
	PartConfSet         = "part_conf_env"
)

// Flag is a behavioral tag attached to a PartitionSet.
type Flag int

const (
	FlagCryptoMeta Flag = iota
	FlagAutoDetect
	FlagPartMeta
	FlagOverlay
	FlagRaw
)

var flagAliases = map[string]Flag{
	"crypto_meta": FlagCryptoMeta,
	"cryptometa":  FlagCryptoMeta,
	"auto_detect": FlagAutoDetect,
	"autodetect":  FlagAutoDetect,
	"part_meta":   FlagPartMeta,
	"partmeta":    FlagPartMeta,
	"overlay":     FlagOverlay,
	"raw":         FlagRaw,
}

func (f *Flag) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	v, ok := flagAliases[strings.ToLower(s)]
	if !ok {
		return errors.Errorf("unknown partition flag %q", s)
	}
	*f = v
	return nil
}

func (f Flag) MarshalJSON() ([]byte, error) {
	for name, v := range flagAliases {
		if v == f {
			return json.Marshal(name)
		}
	}
	return nil, errors.Errorf("unknown partition flag value %d", f)
}

// Partitioned names a physical location: either a whole formatted device
// identified by a partition number ("mmcblk0p3"-style), or a raw byte
// offset inside a device. The two shapes are distinguished, untagged, by
// whether the JSON object carries "partition" or "offset".
type Partitioned struct {
	Device    string
	Partition string // set when this is a FormatPartition
	Offset    int64  // set (and HasOffset true) when this is a RawPartition
	HasOffset bool
}

// IsFormat reports whether this names a formatted partition by number.
func (p Partitioned) IsFormat() bool { return !p.HasOffset }

// IsRaw reports whether this names a raw byte offset.
func (p Partitioned) IsRaw() bool { return p.HasOffset }

func (p Partitioned) String() string {
	if p.HasOffset {
		return p.Device + "@" + strconv.FormatInt(p.Offset, 16)
	}
	return p.Device + p.Partition
}

type partitionedWire struct {
	Device    string `json:"device"`
	Partition string `json:"partition,omitempty"`
	Offset    *json.RawMessage `json:"offset,omitempty"`
}

func (p *Partitioned) UnmarshalJSON(data []byte) error {
	var w partitionedWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	p.Device = w.Device
	switch {
	case w.Offset != nil:
		off, err := parseOffset(*w.Offset)
		if err != nil {
			return errors.Wrap(err, "partitioned: offset")
		}
		p.Offset = off
		p.HasOffset = true
	case w.Partition != "":
		p.Partition = w.Partition
	default:
		return errors.New("partitioned: neither \"partition\" nor \"offset\" present")
	}
	return nil
}

func (p Partitioned) MarshalJSON() ([]byte, error) {
	if p.HasOffset {
		return json.Marshal(struct {
			Device string `json:"device"`
			Offset string `json:"offset"`
		}{p.Device, "0x" + strconv.FormatInt(p.Offset, 16)})
	}
	return json.Marshal(struct {
		Device    string `json:"device"`
		Partition string `json:"partition"`
	}{p.Device, p.Partition})
}

// parseOffset accepts either a JSON number or a JSON string holding a
// decimal or hex-prefixed ("0x...") value, matching the original's custom
// offset deserializer.
func parseOffset(raw json.RawMessage) (int64, error) {
	var n int64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, errors.New("offset must be a number or a decimal or hex string")
	}
	base, digits := 10, s
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		base, digits = 16, s[2:]
	}
	v, err := strconv.ParseInt(digits, base, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid offset %q", s)
	}
	return v, nil
}

// Partition is one physical side (bootloader view and/or Linux view) of a
// slot within a PartitionSet.
type Partition struct {
	Variant    *model.Variant `json:"variant,omitempty"`
	Linux      *Partitioned   `json:"linux,omitempty"`
	Bootloader *Partitioned   `json:"bootloader,omitempty"`
}

// HasVariant reports whether this partition belongs to a specific variant
// (A or B), as opposed to being variant-independent (e.g. /home).
func (p Partition) HasVariant() bool {
	return p.Variant != nil
}

// PartitionSet groups the partitions that together make up one named,
// independently mountable thing: the rootfs, /boot, /home, the update
// environment, and so on.
type PartitionSet struct {
	ID          *uint32           `json:"id,omitempty"`
	Name        string            `json:"name"`
	Filesystem  *string           `json:"filesystem,omitempty"`
	Mountpoint  *string           `json:"mountpoint,omitempty"`
	Comment     string            `json:"comment,omitempty"`
	Partitions  []Partition       `json:"partitions"`
	UserData    map[string]string `json:"user_data,omitempty"`
	Flags       []Flag            `json:"flags,omitempty"`
}

// FindByVariant returns the Partition belonging to the given variant, if
// any is present in this set.
func (s PartitionSet) FindByVariant(v model.Variant) (Partition, bool) {
	for _, p := range s.Partitions {
		if p.HasVariant() && *p.Variant == v {
			return p, true
		}
	}
	return Partition{}, false
}

// HasFlag reports whether f is set on this PartitionSet.
func (s PartitionSet) HasFlag(f Flag) bool {
	for _, have := range s.Flags {
		if have == f {
			return true
		}
	}
	return false
}

// Config is the full, as-loaded partitions.json document.
type Config struct {
	Version       uint32                `json:"version"`
	HashAlgorithm model.HashAlgorithm   `json:"hash_algorithm"`
	PartitionSets []PartitionSet        `json:"partition_sets"`
}

// Load reads and parses a partitions.json file at path.
func Load(path string) (*Config, error) {
	raw, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading partition config %q", path)
	}
	return Parse(raw)
}

// Parse decodes a partitions.json document already held in memory.
func Parse(raw []byte) (*Config, error) {
	var c Config
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, errors.Wrap(err, "decoding partition config")
	}
	return &c, nil
}

// FindSet looks up a partition set by name.
func (c *Config) FindSet(name string) (*PartitionSet, bool) {
	for i := range c.PartitionSets {
		if c.PartitionSets[i].Name == name {
			return &c.PartitionSets[i], true
		}
	}
	return nil, false
}

// FindUpdateFilesystem returns the update_env set, the set whose
// filesystem is update_fs.
func (c *Config) FindUpdateFilesystem() (*PartitionSet, bool) {
	return c.FindSet(UpdateEnvSet)
}

// FindUpdatePartition returns the update_env set and its raw partition
// side, which must be a RawPartition: the dual-slot update environment is
// addressed by byte offset, not by a filesystem.
func (c *Config) FindUpdatePartition() (*PartitionSet, *Partitioned, error) {
	set, ok := c.FindSet(UpdateEnvSet)
	if !ok {
		return nil, nil, errors.Errorf("partition config: no %q set", UpdateEnvSet)
	}
	for _, p := range set.Partitions {
		if p.Linux != nil && p.Linux.IsRaw() {
			return set, p.Linux, nil
		}
	}
	return nil, nil, errors.Errorf("partition config: %q has no raw linux partition", UpdateEnvSet)
}

// UpdateSets returns every set the flasher can target: partition sets that
// declare an id, in ascending id order, matching the archive-order-to-id
// coupling the bundle format relies on.
func (c *Config) UpdateSets() []PartitionSet {
	var out []PartitionSet
	for _, s := range c.PartitionSets {
		if s.ID != nil {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return *out[i].ID < *out[j].ID })
	return out
}
