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
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestName36RoundTrip(t *testing.T) {
	n, err := NewName36("rootfs")
	require.NoError(t, err)
	assert.Equal(t, "rootfs", n.String())
	assert.True(t, n.Equal("rootfs"))
	assert.False(t, n.Equal("bootfs"))
}

func TestName36TooLong(t *testing.T) {
	_, err := NewName36(string(make([]byte, NameSize+1)))
	assert.ErrorIs(t, err, ErrStringTooLong)
}

func TestName36JSON(t *testing.T) {
	n, err := NewName36("update_env")
	require.NoError(t, err)
	raw, err := json.Marshal(n)
	require.NoError(t, err)
	assert.Equal(t, `"update_env"`, string(raw))

	var n2 Name36
	require.NoError(t, json.Unmarshal(raw, &n2))
	assert.Equal(t, n, n2)
}

func TestVariantOtherAndJSON(t *testing.T) {
	assert.Equal(t, VariantB, VariantA.Other())
	assert.Equal(t, VariantA, VariantB.Other())

	raw, err := json.Marshal(VariantA)
	require.NoError(t, err)
	assert.Equal(t, `"A"`, string(raw))

	var v Variant
	require.NoError(t, json.Unmarshal([]byte(`"B"`), &v))
	assert.Equal(t, VariantB, v)

	assert.Error(t, json.Unmarshal([]byte(`"C"`), &v))
}

func TestStateMessagesAreDistinct(t *testing.T) {
	seen := map[string]bool{}
	for _, s := range []State{StateNormal, StateInstalled, StateCommitted, StateTesting, StateRevert} {
		msg := s.Message()
		assert.False(t, seen[msg], "duplicate message for %s", s)
		seen[msg] = true
	}
}

func TestHashSumRoundTrip(t *testing.T) {
	h, err := NewHashSum(HashAlgorithmSha256)
	require.NoError(t, err)
	h.Write([]byte("hello world"))
	sum := h.Sum()

	parsed, err := ParseHashSum(sum.String())
	require.NoError(t, err)
	assert.True(t, sum.Equal(parsed))
}

func TestParseHashSumRejectsUnknownAlgorithm(t *testing.T) {
	_, err := ParseHashSum("md5:abcd")
	assert.Error(t, err)
}

func TestHexDumpLayout(t *testing.T) {
	data := []byte("EBUS\x01\x00\x00\x00")
	dump := HexDump(data)
	assert.Contains(t, dump, "45 42 55 53")
	assert.Contains(t, dump, "|EBUS")
}
