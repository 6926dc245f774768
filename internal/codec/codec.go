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

// Package codec implements the fixed-width, little-endian binary layout
// shared with the bootloader: no field tags, no self-description, byte for
// byte what the reflection-driven struct packer below produces from plain
// Go structs.
package codec

import (
	"encoding/binary"

	"github.com/go-restruct/restruct"
	"github.com/pkg/errors"
)

// Order is the wire byte order for every on-device record. The bootloader
// and this agent must agree on it; the layout does not self-describe its
// endianness.
var Order = binary.LittleEndian

// Pack serializes a fixed-shape struct (no slices, no strings) to its
// on-wire byte representation.
func Pack(v interface{}) ([]byte, error) {
	b, err := restruct.Pack(Order, v)
	if err != nil {
		return nil, errors.Wrap(err, "codec: pack")
	}
	return b, nil
}

// Unpack decodes raw into a pointer to a fixed-shape struct.
func Unpack(raw []byte, v interface{}) error {
	if err := restruct.Unpack(raw, Order, v); err != nil {
		return errors.Wrap(err, "codec: unpack")
	}
	return nil
}

// SizeOf reports the packed size of a zero-valued instance of the type
// pointed to by v, used to slice fixed-size records out of a stream before
// handing them to Unpack.
func SizeOf(v interface{}) (int, error) {
	b, err := restruct.Pack(Order, v)
	if err != nil {
		return 0, errors.Wrap(err, "codec: sizeof")
	}
	return len(b), nil
}

// PutCount appends a little-endian u64 element count, matching the length
// prefix bincode emits ahead of every variable-length sequence on the wire.
func PutCount(buf []byte, n int) []byte {
	var tmp [8]byte
	Order.PutUint64(tmp[:], uint64(n))
	return append(buf, tmp[:]...)
}

// TakeCount reads a little-endian u64 element count from the front of raw,
// returning the count and the remaining bytes.
func TakeCount(raw []byte) (uint64, []byte, error) {
	if len(raw) < 8 {
		return 0, nil, errors.New("codec: truncated sequence length prefix")
	}
	return Order.Uint64(raw[:8]), raw[8:], nil
}
