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

// Package partenv builds the "EBPC" partition-config mirror: a compact,
// bootloader-readable restatement of partitions.json, generated offline
// by the partcfgimg tool and written to the part_conf_env partition.
package partenv

import (
	"github.com/pkg/errors"

	"github.com/emlix/rupdate/internal/codec"
	"github.com/emlix/rupdate/internal/model"
	"github.com/emlix/rupdate/internal/partconfig"
)

// Magic identifies a well-formed partition-config mirror image.
const Magic = "EBPC"

const layoutVersion = 1

type header struct {
	Magic   [4]byte
	Version uint32
}

// SetDescriptor names one partition set in the mirror image.
type SetDescriptor struct {
	ID   uint8
	Name model.Name36
}

// PartitionDescriptor names both physical sides of one variant of one
// partition set, by device+partition-number pairs only: the mirror image
// only ever describes FormatPartition targets, since the bootloader does
// not understand raw byte offsets for these.
type PartitionDescriptor struct {
	Variant               model.Variant
	SetID                 uint8
	BootloaderDeviceID    model.Name36
	BootloaderPartitionID model.Name36
	LinuxDeviceID         model.Name36
	LinuxPartitionID      model.Name36
}

// Data is the versioned payload of the mirror image, exclusive of its
// trailing checksum.
type Data struct {
	Sets       []SetDescriptor
	Partitions []PartitionDescriptor
}

// Image is the full mirror image: payload plus a protecting checksum.
type Image struct {
	Data     Data
	Checksum model.HashSum
}

// FromConfig builds a mirror image describing the named partition sets.
// Every partition in every requested set must declare both a bootloader
// and a linux side, each a FormatPartition — a raw-offset partition cannot
// be expressed in this format. A partition without a variant is recorded
// as variant A.
func FromConfig(cfg *partconfig.Config, setNames []string) (*Image, error) {
	var data Data
	for i, name := range setNames {
		set, ok := cfg.FindSet(name)
		if !ok {
			return nil, errors.Errorf("partenv: unknown partition set %q", name)
		}
		setID := uint8(i)
		setNameFixed, err := model.NewName36(name)
		if err != nil {
			return nil, errors.Wrapf(err, "partenv: set %q", name)
		}
		data.Sets = append(data.Sets, SetDescriptor{ID: setID, Name: setNameFixed})

		for _, p := range set.Partitions {
			if p.Bootloader == nil || p.Linux == nil {
				return nil, errors.Errorf("partenv: set %q has a partition missing a bootloader or linux side", name)
			}
			if p.Bootloader.IsRaw() || p.Linux.IsRaw() {
				return nil, errors.Errorf("partenv: set %q has a raw-offset partition, not representable in the mirror image", name)
			}
			variant := model.VariantA
			if p.Variant != nil {
				variant = *p.Variant
			}
			bdev, err := model.NewName36(p.Bootloader.Device)
			if err != nil {
				return nil, err
			}
			bpart, err := model.NewName36(p.Bootloader.Partition)
			if err != nil {
				return nil, err
			}
			ldev, err := model.NewName36(p.Linux.Device)
			if err != nil {
				return nil, err
			}
			lpart, err := model.NewName36(p.Linux.Partition)
			if err != nil {
				return nil, err
			}
			data.Partitions = append(data.Partitions, PartitionDescriptor{
				Variant:               variant,
				SetID:                 setID,
				BootloaderDeviceID:    bdev,
				BootloaderPartitionID: bpart,
				LinuxDeviceID:         ldev,
				LinuxPartitionID:      lpart,
			})
		}
	}

	img := &Image{Data: data}
	img.Rehash()
	return img, nil
}

// MarshalBinary renders Data in the fixed wire layout used by
// Image.MarshalBinary: header, length-prefixed set list, length-prefixed
// partition list.
func (d Data) MarshalBinary() ([]byte, error) {
	h := header{Version: layoutVersion}
	copy(h.Magic[:], Magic)
	out, err := codec.Pack(&h)
	if err != nil {
		return nil, errors.Wrap(err, "partenv: packing header")
	}
	out = codec.PutCount(out, len(d.Sets))
	for i := range d.Sets {
		sb, err := codec.Pack(&d.Sets[i])
		if err != nil {
			return nil, errors.Wrap(err, "partenv: packing set descriptor")
		}
		out = append(out, sb...)
	}
	out = codec.PutCount(out, len(d.Partitions))
	for i := range d.Partitions {
		pb, err := codec.Pack(&d.Partitions[i])
		if err != nil {
			return nil, errors.Wrap(err, "partenv: packing partition descriptor")
		}
		out = append(out, pb...)
	}
	return out, nil
}

// Rehash recomputes Checksum over the current Data.
func (img *Image) Rehash() {
	raw, err := img.Data.MarshalBinary()
	if err != nil {
		panic(err)
	}
	hasher, _ := model.NewHashSum(model.HashAlgorithmSha256)
	hasher.Write(raw)
	img.Checksum = hasher.Sum()
}

// MarshalBinary renders the full mirror image: Data followed by its
// checksum trailer.
func (img Image) MarshalBinary() ([]byte, error) {
	out, err := img.Data.MarshalBinary()
	if err != nil {
		return nil, err
	}
	cb, err := codec.Pack(&img.Checksum)
	if err != nil {
		return nil, errors.Wrap(err, "partenv: packing checksum trailer")
	}
	return append(out, cb...), nil
}
