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
package bundle

import (
	"archive/tar"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emlix/rupdate/internal/partconfig"
	"github.com/emlix/rupdate/internal/updateenv"
)

type fakeCloser struct {
	*bytes.Buffer
}

func (fakeCloser) Close() error { return nil }

type fakeOpener struct {
	opened map[string]*bytes.Buffer
}

func newFakeOpener() *fakeOpener {
	return &fakeOpener{opened: map[string]*bytes.Buffer{}}
}

func (f *fakeOpener) OpenPartition(target partconfig.Partitioned) (io.WriteCloser, error) {
	buf := &bytes.Buffer{}
	f.opened[target.String()] = buf
	return fakeCloser{buf}, nil
}

func testCfg(t *testing.T) *partconfig.Config {
	t.Helper()
	cfg, err := partconfig.Parse([]byte(`{
		"version": 1, "hash_algorithm": "sha256",
		"partition_sets": [
			{"id": 0, "name": "bootfs", "partitions": [
				{"variant": "A", "linux": {"device": "fake0", "partition": "p2"}},
				{"variant": "B", "linux": {"device": "fake0", "partition": "p3"}}
			]},
			{"id": 1, "name": "rootfs", "partitions": [
				{"variant": "A", "linux": {"device": "fake0", "partition": "p6"}},
				{"variant": "B", "linux": {"device": "fake0", "partition": "p7"}}
			]}
		]
	}`))
	require.NoError(t, err)
	return cfg
}

func testEnv(t *testing.T, cfg *partconfig.Config) *updateenv.State {
	t.Helper()
	st, err := updateenv.New(cfg)
	require.NoError(t, err)
	return st
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// buildBundle writes a tar archive (optionally gzip-wrapped) with a
// manifest.json entry followed by one entry per payload, in order.
func buildBundle(t *testing.T, gzipped bool, payloads [][]byte) []byte {
	t.Helper()
	images := make([]Image, len(payloads))
	for i, p := range payloads {
		images[i] = Image{Name: "img", Filename: "img.bin", Sha256: sha256Hex(p)}
	}
	manifest := Manifest{Version: "1", RollbackAllowed: true, Images: images}
	manifestRaw, err := json.Marshal(manifest)
	require.NoError(t, err)

	var tarBuf bytes.Buffer
	tw := tar.NewWriter(&tarBuf)
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "manifest.json", Size: int64(len(manifestRaw)), Mode: 0644}))
	_, err = tw.Write(manifestRaw)
	require.NoError(t, err)
	for _, p := range payloads {
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: "img.bin", Size: int64(len(p)), Mode: 0644}))
		_, err = tw.Write(p)
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())

	if !gzipped {
		return tarBuf.Bytes()
	}
	var gzBuf bytes.Buffer
	gw := gzip.NewWriter(&gzBuf)
	_, err = gw.Write(tarBuf.Bytes())
	require.NoError(t, err)
	require.NoError(t, gw.Close())
	return gzBuf.Bytes()
}

func TestFlashPlainTar(t *testing.T) {
	cfg := testCfg(t)
	env := testEnv(t, cfg)
	payloads := [][]byte{[]byte("bootfs image bytes"), []byte("rootfs image bytes")}
	raw := buildBundle(t, false, payloads)

	opener := newFakeOpener()
	manifest, err := Flash(bytes.NewReader(raw), cfg, env, opener, false, true)
	require.NoError(t, err)
	assert.Len(t, manifest.Images, 2)

	assert.Equal(t, "bootfs image bytes", opener.opened["fake0p3"].String())
	assert.Equal(t, "rootfs image bytes", opener.opened["fake0p7"].String())

	sel, _ := env.GetSelection("bootfs")
	assert.Equal(t, "A", sel.Active.String())
	assert.True(t, sel.Affected)
	assert.True(t, sel.Rollback)
}

func TestFlashWithRollbackDisallowedLeavesRollbackClear(t *testing.T) {
	cfg := testCfg(t)
	env := testEnv(t, cfg)
	payloads := [][]byte{[]byte("bootfs image bytes"), []byte("rootfs image bytes")}
	images := make([]Image, len(payloads))
	for i, p := range payloads {
		images[i] = Image{Name: "img", Filename: "img.bin", Sha256: sha256Hex(p)}
	}
	manifest := Manifest{Version: "1", RollbackAllowed: false, Images: images}
	manifestRaw, err := json.Marshal(manifest)
	require.NoError(t, err)

	var tarBuf bytes.Buffer
	tw := tar.NewWriter(&tarBuf)
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "manifest.json", Size: int64(len(manifestRaw)), Mode: 0644}))
	_, err = tw.Write(manifestRaw)
	require.NoError(t, err)
	for _, p := range payloads {
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: "img.bin", Size: int64(len(p)), Mode: 0644}))
		_, err = tw.Write(p)
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())

	opener := newFakeOpener()
	_, err = Flash(&tarBuf, cfg, env, opener, false, true)
	require.NoError(t, err)

	sel, _ := env.GetSelection("bootfs")
	assert.Equal(t, "A", sel.Active.String())
	assert.True(t, sel.Affected)
	assert.False(t, sel.Rollback)
}

func TestFlashGzippedTar(t *testing.T) {
	cfg := testCfg(t)
	env := testEnv(t, cfg)
	payloads := [][]byte{[]byte("bootfs image"), []byte("rootfs image")}
	raw := buildBundle(t, true, payloads)

	opener := newFakeOpener()
	_, err := Flash(bytes.NewReader(raw), cfg, env, opener, false, true)
	require.NoError(t, err)
	assert.Equal(t, "bootfs image", opener.opened["fake0p3"].String())
}

func TestFlashRejectsNonManifestFirstEntry(t *testing.T) {
	var tarBuf bytes.Buffer
	tw := tar.NewWriter(&tarBuf)
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "img.bin", Size: 3, Mode: 0644}))
	_, _ = tw.Write([]byte("abc"))
	require.NoError(t, tw.Close())

	cfg := testCfg(t)
	env := testEnv(t, cfg)
	_, err := Flash(&tarBuf, cfg, env, newFakeOpener(), false, true)
	assert.Error(t, err)
}

func TestFlashDetectsDigestMismatch(t *testing.T) {
	cfg := testCfg(t)
	env := testEnv(t, cfg)

	manifest := Manifest{Images: []Image{{Name: "img", Sha256: sha256Hex([]byte("not-the-actual-bytes"))}}}
	manifestRaw, err := json.Marshal(manifest)
	require.NoError(t, err)

	var tarBuf bytes.Buffer
	tw := tar.NewWriter(&tarBuf)
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "manifest.json", Size: int64(len(manifestRaw)), Mode: 0644}))
	_, _ = tw.Write(manifestRaw)
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "img.bin", Size: 5, Mode: 0644}))
	_, _ = tw.Write([]byte("hello"))
	require.NoError(t, tw.Close())

	_, err = Flash(&tarBuf, cfg, env, newFakeOpener(), false, true)
	assert.ErrorIs(t, err, ErrDigestMismatch)
}

func TestFlashDryRunDoesNotOpenDeviceButStillComputesState(t *testing.T) {
	cfg := testCfg(t)
	env := testEnv(t, cfg)
	payloads := [][]byte{[]byte("bootfs image"), []byte("rootfs image")}
	raw := buildBundle(t, false, payloads)

	opener := newFakeOpener()
	_, err := Flash(bytes.NewReader(raw), cfg, env, opener, true, true)
	require.NoError(t, err)
	assert.Empty(t, opener.opened)

	sel, _ := env.GetSelection("bootfs")
	assert.Equal(t, "A", sel.Active.String())
	assert.True(t, sel.Affected)
	assert.True(t, sel.Rollback)
}

func TestFlashRejectsTooFewArchiveEntries(t *testing.T) {
	cfg := testCfg(t)
	env := testEnv(t, cfg)

	manifest := Manifest{Images: []Image{
		{Name: "boot", Sha256: sha256Hex([]byte("boot bytes"))},
		{Name: "root", Sha256: sha256Hex([]byte("root bytes"))},
	}}
	manifestRaw, err := json.Marshal(manifest)
	require.NoError(t, err)

	var tarBuf bytes.Buffer
	tw := tar.NewWriter(&tarBuf)
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "manifest.json", Size: int64(len(manifestRaw)), Mode: 0644}))
	_, _ = tw.Write(manifestRaw)
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "img.bin", Size: int64(len("boot bytes")), Mode: 0644}))
	_, _ = tw.Write([]byte("boot bytes"))
	require.NoError(t, tw.Close())

	_, err = Flash(&tarBuf, cfg, env, newFakeOpener(), false, true)
	assert.Error(t, err)
}
