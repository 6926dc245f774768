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

// Package bundle reads an update bundle — an optionally gzip-compressed
// tar archive whose first entry is a JSON manifest, followed by one raw
// image per partition set — and flashes it to the inactive variant of
// each partition set it names.
package bundle

import (
	"archive/tar"
	"bufio"
	"encoding/json"
	"io"
	"io/ioutil"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"

	"github.com/emlix/rupdate/internal/model"
	"github.com/emlix/rupdate/internal/partconfig"
	"github.com/emlix/rupdate/internal/progress"
	"github.com/emlix/rupdate/internal/updateenv"
)

const manifestEntryName = "manifest.json"
const chunkSize = 8 * 1024

// ErrDigestMismatch is returned when a flashed image's computed digest
// does not match the one declared in the manifest.
var ErrDigestMismatch = errors.New("bundle: image digest mismatch")

// Image describes one image entry in a bundle manifest.
type Image struct {
	Name     string `json:"name"`
	Filename string `json:"filename"`
	Sha256   string `json:"sha256"`
}

// Digest parses the manifest's plain hex digest into a HashSum.
func (img Image) Digest() (model.HashSum, error) {
	return model.ParseHashSum("sha256:" + img.Sha256)
}

// Manifest is the bundle's first tar entry: what it contains and whether
// rolling back afterwards is expected to work.
type Manifest struct {
	Version         string  `json:"version"`
	RollbackAllowed bool    `json:"rollback-allowed"`
	Images          []Image `json:"images"`
}

// DeviceOpener resolves a physical partition target to a writable
// destination. Production code opens a real block device; tests substitute
// an in-memory fake.
type DeviceOpener interface {
	OpenPartition(target partconfig.Partitioned) (io.WriteCloser, error)
}

// isGzipped peeks at the first two bytes of r without consuming them from
// the caller's point of view — the returned reader still yields them.
func isGzipped(br *bufio.Reader) (bool, error) {
	peek, err := br.Peek(2)
	if err != nil {
		if err == io.EOF {
			return false, nil
		}
		return false, err
	}
	return peek[0] == 0x1f && peek[1] == 0x8b, nil
}

// Flash streams a bundle from r, validates its manifest against cfg and
// the current environment state, and writes each image to the inactive
// variant of its partition set. On success it has called env.DisableRollback,
// and, for every set it touched, env.AllowRollback (if the manifest allows
// it) and env.MarkNew — but it has not persisted env, the caller commits it
// with Environment.WriteNext. These environment updates happen regardless of
// dry; only the device write itself is skipped when dry is true, so images
// are still hashed and checked against the manifest.
func Flash(r io.Reader, cfg *partconfig.Config, env *updateenv.State, open DeviceOpener, dry, quiet bool) (*Manifest, error) {
	br := bufio.NewReader(r)
	gzipped, err := isGzipped(br)
	if err != nil {
		return nil, errors.Wrap(err, "bundle: peeking archive header")
	}

	var body io.Reader = br
	if gzipped {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, errors.Wrap(err, "bundle: opening gzip stream")
		}
		defer gz.Close()
		body = gz
	}

	tr := tar.NewReader(body)

	hdr, err := tr.Next()
	if err != nil {
		return nil, errors.Wrap(err, "bundle: reading manifest entry")
	}
	if !strings.EqualFold(filepath.Base(hdr.Name), manifestEntryName) {
		return nil, errors.Errorf("bundle: first archive entry must be %s, got %q", manifestEntryName, hdr.Name)
	}
	var manifest Manifest
	if err := json.NewDecoder(tr).Decode(&manifest); err != nil {
		return nil, errors.Wrap(err, "bundle: decoding manifest")
	}

	env.DisableRollback()

	setByID := make(map[int]partconfig.PartitionSet)
	for _, s := range cfg.UpdateSets() {
		setByID[int(*s.ID)] = s
	}

	seen := 0
	for idx := 0; ; idx++ {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "bundle: reading archive")
		}
		if idx >= len(manifest.Images) {
			return nil, errors.Errorf("bundle: archive has more entries than the %d images the manifest declares", len(manifest.Images))
		}
		if err := flashOne(tr, hdr.Size, idx, manifest.Images[idx], setByID, env, open, manifest.RollbackAllowed, dry, quiet); err != nil {
			return nil, err
		}
		seen++
	}
	if seen != len(manifest.Images) {
		return nil, errors.Errorf("bundle: manifest declares %d images, archive carried %d", len(manifest.Images), seen)
	}

	return &manifest, nil
}

func flashOne(tr *tar.Reader, size int64, idx int, img Image, setByID map[int]partconfig.PartitionSet,
	env *updateenv.State, open DeviceOpener, rollbackAllowed, dry, quiet bool) error {

	set, ok := setByID[idx]
	if !ok {
		return errors.Errorf("bundle: no partition set with id %d for image %q", idx, img.Name)
	}
	sel, ok := env.GetSelection(set.Name)
	if !ok {
		return errors.Errorf("bundle: no environment selection for set %q", set.Name)
	}
	target, ok := set.FindByVariant(sel.Active.Other())
	if !ok {
		return errors.Errorf("bundle: set %q has no partition for the inactive variant", set.Name)
	}
	if target.Linux == nil {
		return errors.Errorf("bundle: set %q has no linux-side partition to write", set.Name)
	}

	wantSum, err := img.Digest()
	if err != nil {
		return errors.Wrapf(err, "bundle: image %q", img.Name)
	}

	hasher, err := model.NewHashSum(model.HashAlgorithmSha256)
	if err != nil {
		return err
	}

	var dest io.Writer = ioutil.Discard
	var closer io.Closer
	if !dry {
		w, err := open.OpenPartition(*target.Linux)
		if err != nil {
			return errors.Wrapf(err, "bundle: opening target for %q", set.Name)
		}
		dest, closer = w, w
	}

	bar := progress.New(size, dry || quiet)
	buf := make([]byte, chunkSize)
	if _, err := io.CopyBuffer(io.MultiWriter(dest, hasher, bar), tr, buf); err != nil {
		if closer != nil {
			closer.Close()
		}
		return errors.Wrapf(err, "bundle: writing image %q", img.Name)
	}
	if closer != nil {
		if err := closer.Close(); err != nil {
			return errors.Wrapf(err, "bundle: closing target for %q", set.Name)
		}
	}

	got := hasher.Sum()
	if !got.Equal(wantSum) {
		return errors.Wrapf(ErrDigestMismatch, "image %q: expected %s, got %s", img.Name, wantSum, got)
	}

	if rollbackAllowed {
		if err := env.AllowRollback(set.Name); err != nil {
			return err
		}
	}
	if err := env.MarkNew(set.Name); err != nil {
		return err
	}
	return nil
}
