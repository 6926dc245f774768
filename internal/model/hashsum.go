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
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// HashAlgorithm identifies the digest function used for a HashSum. Sha256
// is the only algorithm currently implemented, mirroring the single-variant
// tagged union it was distilled from.
type HashAlgorithm uint32

const (
	HashAlgorithmSha256 HashAlgorithm = iota
)

func (a HashAlgorithm) String() string {
	switch a {
	case HashAlgorithmSha256:
		return "sha256"
	default:
		return fmt.Sprintf("HashAlgorithm(%d)", uint32(a))
	}
}

// UnmarshalJSON decodes the algorithm by name, as partitions.json writes
// it ("sha256").
func (a *HashAlgorithm) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s != HashAlgorithmSha256.String() {
		return errors.Wrapf(ErrUnsupportedAlgorithm, "algorithm %q", s)
	}
	*a = HashAlgorithmSha256
	return nil
}

// DigestSize is the fixed width, in bytes, of the HashSum payload.
const DigestSize = sha256.Size

// ErrUnsupportedAlgorithm is returned when a HashSum names an algorithm
// this build does not implement.
var ErrUnsupportedAlgorithm = errors.New("unsupported hash algorithm")

// HashSum is a tagged digest: a 4-byte algorithm discriminant followed by a
// fixed-size payload, wide enough to hold the largest digest this build
// supports.
type HashSum struct {
	Algorithm HashAlgorithm
	Digest    [DigestSize]byte
}

// NewHashSum starts a running digest of the given algorithm.
func NewHashSum(algo HashAlgorithm) (*Hasher, error) {
	if algo != HashAlgorithmSha256 {
		return nil, errors.Wrapf(ErrUnsupportedAlgorithm, "algorithm %d", algo)
	}
	return &Hasher{algo: algo, h: sha256.New()}, nil
}

// Hasher accumulates a HashSum incrementally, as the flasher streams bytes
// through it.
type Hasher struct {
	algo HashAlgorithm
	h    interface {
		Write([]byte) (int, error)
		Sum([]byte) []byte
	}
}

func (h *Hasher) Write(p []byte) (int, error) {
	return h.h.Write(p)
}

// Sum finalizes the digest computed so far into a HashSum.
func (h *Hasher) Sum() HashSum {
	var sum HashSum
	sum.Algorithm = h.algo
	copy(sum.Digest[:], h.h.Sum(nil))
	return sum
}

func (s HashSum) String() string {
	return s.Algorithm.String() + ":" + hex.EncodeToString(s.Digest[:])
}

// Equal reports whether two HashSum values name the same algorithm and
// digest bytes.
func (s HashSum) Equal(other HashSum) bool {
	return s.Algorithm == other.Algorithm && s.Digest == other.Digest
}

// ParseHashSum parses the "algorithm:hexdigest" form produced by
// HashSum.String, e.g. "sha256:e3b0c4...". Bundle manifests carry the bare
// hex digest; Image.Digest adds the prefix before calling this.
func ParseHashSum(s string) (HashSum, error) {
	var out HashSum
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 || parts[0] != "sha256" {
		return out, errors.Errorf("invalid hash sum %q, expected \"sha256:<hex>\"", s)
	}
	digest, err := hex.DecodeString(parts[1])
	if err != nil {
		return out, errors.Wrapf(err, "invalid hash sum %q", s)
	}
	if len(digest) != DigestSize {
		return out, errors.Errorf("invalid hash sum %q: expected %d bytes, got %d", s, DigestSize, len(digest))
	}
	copy(out.Digest[:], digest)
	return out, nil
}

func (s HashSum) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *HashSum) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	v, err := ParseHashSum(str)
	if err != nil {
		return err
	}
	*s = v
	return nil
}
