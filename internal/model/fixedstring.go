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
package model

import (
	"bytes"
	"encoding/json"

	"github.com/pkg/errors"
)

// NameSize is the fixed width, in bytes, of a partition set name as it is
// stored on the wire and in the on-device environment layout.
const NameSize = 36

// ErrStringTooLong is returned when a value does not fit a fixed-width
// string field without truncation.
var ErrStringTooLong = errors.New("value does not fit the fixed-width field")

// Name36 is a NUL-padded, fixed-width string, used wherever the on-disk
// layout embeds a string inline rather than behind a pointer/length pair.
type Name36 [NameSize]byte

// NewName36 builds a Name36 from a Go string, zero-padding the remainder.
// It returns ErrStringTooLong if s does not fit.
func NewName36(s string) (Name36, error) {
	var n Name36
	if len(s) > NameSize {
		return n, errors.Wrapf(ErrStringTooLong, "%q exceeds %d bytes", s, NameSize)
	}
	copy(n[:], s)
	return n, nil
}

// String returns the value with trailing NUL padding stripped.
func (n Name36) String() string {
	i := bytes.IndexByte(n[:], 0)
	if i < 0 {
		return string(n[:])
	}
	return string(n[:i])
}

// Equal reports whether n holds the same logical string as s.
func (n Name36) Equal(s string) bool {
	return n.String() == s
}

func (n Name36) MarshalJSON() ([]byte, error) {
	return json.Marshal(n.String())
}

func (n *Name36) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	v, err := NewName36(s)
	if err != nil {
		return err
	}
	*n = v
	return nil
}
