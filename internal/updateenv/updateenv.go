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

// Package updateenv implements the dual-slot, checksummed update
// environment shared with the bootloader: two fixed-size, versioned
// records, one of which is authoritative at any time, selected by magic
// number, hash validity and a monotonically increasing revision.
package updateenv

import (
	"io"
	"strconv"

	"github.com/pkg/errors"

	"github.com/emlix/rupdate/internal/codec"
	"github.com/emlix/rupdate/internal/model"
	"github.com/emlix/rupdate/internal/partconfig"
)

// Magic identifies a well-formed record; anything else is treated as an
// uninitialized or corrupt slot.
const Magic = "EBUS"

// NumSlots is the number of redundant copies of the environment kept on
// device. Two is the minimum that lets one slot always remain intact while
// the other is being rewritten.
const NumSlots = 2

const layoutVersion = 1

var (
	// ErrNoValidSlot is returned when neither environment slot passes its
	// magic-number and hash check.
	ErrNoValidSlot = errors.New("update environment: no valid slot found")
	errTruncated   = errors.New("update environment: truncated record")
)

type header struct {
	Magic          [4]byte
	Version        uint32
	EnvRevision    uint32
	RemainingTries int16
	State          model.State
}

// PartSelection records, for one partition set, which variant is currently
// active and whether the previous variant is still a valid rollback
// target.
type PartSelection struct {
	SetName  model.Name36
	Active   model.Variant
	Rollback bool
	Affected bool
}

// Data is the versioned payload of one environment slot, exclusive of its
// trailing hash.
type Data struct {
	Version            uint32
	EnvRevision        uint32
	RemainingTries     int16
	State              model.State
	PartitionSelection []PartSelection

	// magicOK is not part of the wire layout; UnmarshalBinary caches
	// whether the header's magic number checked out so State.IsValid
	// does not need to re-derive it from raw bytes.
	magicOK bool
}

// MarshalBinary renders d in the fixed wire layout: header, u64 element
// count, then one fixed-size record per selection.
func (d Data) MarshalBinary() ([]byte, error) {
	h := header{
		Version:        d.Version,
		EnvRevision:    d.EnvRevision,
		RemainingTries: d.RemainingTries,
		State:          d.State,
	}
	copy(h.Magic[:], Magic)
	out, err := codec.Pack(&h)
	if err != nil {
		return nil, errors.Wrap(err, "updateenv: packing header")
	}
	out = codec.PutCount(out, len(d.PartitionSelection))
	for i := range d.PartitionSelection {
		sb, err := codec.Pack(&d.PartitionSelection[i])
		if err != nil {
			return nil, errors.Wrap(err, "updateenv: packing selection")
		}
		out = append(out, sb...)
	}
	return out, nil
}

// UnmarshalBinary parses the header and selection list from the front of
// raw, leaving the trailing hash for the caller (UpdateState) to consume.
// It only fails on a truncated buffer; a bad magic number or content is a
// semantic validity question, not a parse error, so that both slots can
// still be compared during arbitration.
func (d *Data) UnmarshalBinary(raw []byte) ([]byte, error) {
	hdrSize, err := codec.SizeOf(&header{})
	if err != nil {
		return nil, err
	}
	if len(raw) < hdrSize {
		return nil, errTruncated
	}
	var h header
	if err := codec.Unpack(raw[:hdrSize], &h); err != nil {
		return nil, errors.Wrap(err, "updateenv: unpacking header")
	}
	rest := raw[hdrSize:]

	count, rest, err := codec.TakeCount(rest)
	if err != nil {
		return nil, err
	}

	selSize, err := codec.SizeOf(&PartSelection{})
	if err != nil {
		return nil, err
	}
	if count > uint64(len(rest)/selSize) {
		return nil, errTruncated
	}
	selections := make([]PartSelection, 0, count)
	for i := uint64(0); i < count; i++ {
		if len(rest) < selSize {
			return nil, errTruncated
		}
		var sel PartSelection
		if err := codec.Unpack(rest[:selSize], &sel); err != nil {
			return nil, errors.Wrap(err, "updateenv: unpacking selection")
		}
		selections = append(selections, sel)
		rest = rest[selSize:]
	}

	d.Version = h.Version
	d.EnvRevision = h.EnvRevision
	d.RemainingTries = h.RemainingTries
	d.State = h.State
	d.PartitionSelection = selections
	d.magicOK = h.Magic == [4]byte{'E', 'B', 'U', 'S'}
	return rest, nil
}

// State is the full, hashed on-disk record for one slot: the versioned
// payload plus the digest that protects it.
type State struct {
	Data    Data
	Hash    model.HashSum
	magicOK bool
}

// New builds a fresh, valid environment record for the given partition
// config: every set returned by Config.UpdateSets starts on variant A,
// with no rollback target yet available.
func New(cfg *partconfig.Config) (*State, error) {
	sets := cfg.UpdateSets()
	selections := make([]PartSelection, 0, len(sets))
	for _, s := range sets {
		name, err := model.NewName36(s.Name)
		if err != nil {
			return nil, errors.Wrapf(err, "partition set %q", s.Name)
		}
		selections = append(selections, PartSelection{
			SetName: name,
			Active:  model.VariantA,
		})
	}
	st := &State{Data: Data{
		Version:            layoutVersion,
		State:              model.StateNormal,
		PartitionSelection: selections,
	}}
	st.Rehash()
	return st, nil
}

// Rehash recomputes Hash from the current Data and stamps the record
// valid; call after any mutation and before writing.
func (s *State) Rehash() {
	raw, err := s.Data.MarshalBinary()
	if err != nil {
		// Data was built by this package; a marshal failure here means a
		// selection name no longer fits, which New already guards against.
		panic(err)
	}
	hasher, _ := model.NewHashSum(model.HashAlgorithmSha256)
	hasher.Write(raw)
	s.Hash = hasher.Sum()
	s.magicOK = true
}

// Clone makes a deep copy, so callers can stage mutations (commit,
// revert, rollback) without corrupting the cached copy of the slot still
// written on device until WriteNext actually persists them.
func (s State) Clone() *State {
	out := s
	out.Data.PartitionSelection = append([]PartSelection(nil), s.Data.PartitionSelection...)
	return &out
}

// MarshalBinary renders the full on-disk record: Data followed by its
// HashSum trailer.
func (s State) MarshalBinary() ([]byte, error) {
	out, err := s.Data.MarshalBinary()
	if err != nil {
		return nil, err
	}
	hb, err := codec.Pack(&s.Hash)
	if err != nil {
		return nil, errors.Wrap(err, "updateenv: packing hash trailer")
	}
	return append(out, hb...), nil
}

// UnmarshalBinary parses a full on-disk record out of raw. It never fails
// on bad magic or a mismatched hash — only on a buffer too short to hold a
// well-formed record — so the caller can still inspect IsValid().
func (s *State) UnmarshalBinary(raw []byte) error {
	var d Data
	rest, err := d.UnmarshalBinary(raw)
	if err != nil {
		return err
	}
	hashSize, err := codec.SizeOf(&model.HashSum{})
	if err != nil {
		return err
	}
	if len(rest) < hashSize {
		return errTruncated
	}
	var hash model.HashSum
	if err := codec.Unpack(rest[:hashSize], &hash); err != nil {
		return errors.Wrap(err, "updateenv: unpacking hash trailer")
	}
	s.Data = d
	s.Hash = hash
	s.magicOK = d.magicOK
	return nil
}

// IsValid reports whether the magic number is intact and the stored hash
// matches the recomputed hash of Data — the arbitration test applied to
// each slot.
func (s State) IsValid() bool {
	if !s.magicOK {
		return false
	}
	raw, err := s.Data.MarshalBinary()
	if err != nil {
		return false
	}
	hasher, _ := model.NewHashSum(model.HashAlgorithmSha256)
	hasher.Write(raw)
	return hasher.Sum().Equal(s.Hash)
}

// GetSelection returns the selection entry for the named partition set.
func (s State) GetSelection(setName string) (PartSelection, bool) {
	for _, sel := range s.Data.PartitionSelection {
		if sel.SetName.Equal(setName) {
			return sel, true
		}
	}
	return PartSelection{}, false
}

func (s *State) setSelection(sel PartSelection) {
	for i := range s.Data.PartitionSelection {
		if s.Data.PartitionSelection[i].SetName == sel.SetName {
			s.Data.PartitionSelection[i] = sel
			return
		}
	}
	s.Data.PartitionSelection = append(s.Data.PartitionSelection, sel)
}

// MarkNew records that setName was just flashed to its non-active variant:
// the set is marked affected by the update in progress. It does not touch
// Active or Rollback — Active is only ever flipped by the bootloader, and
// Rollback is granted separately via AllowRollback when the bundle's
// manifest permits it.
func (s *State) MarkNew(setName string) error {
	sel, ok := s.GetSelection(setName)
	if !ok {
		return errors.Errorf("updateenv: unknown partition set %q", setName)
	}
	sel.Affected = true
	s.setSelection(sel)
	return nil
}

// AllowRollback marks setName's current rollback target as safe to fall
// back to.
func (s *State) AllowRollback(setName string) error {
	sel, ok := s.GetSelection(setName)
	if !ok {
		return errors.Errorf("updateenv: unknown partition set %q", setName)
	}
	sel.Rollback = true
	s.setSelection(sel)
	return nil
}

// DisableRollback clears the rollback flag on every selection. Called at
// the start of flashing, so a stale rollback target from a previous
// update cycle cannot survive into the new one.
func (s *State) DisableRollback() {
	for i := range s.Data.PartitionSelection {
		s.Data.PartitionSelection[i].Rollback = false
	}
}

// Clean finalizes or cancels a pending update: state returns to Normal,
// every selection's "affected" mark is cleared, its rollback flag is kept
// only if allowRollback, and the boot-retry counter resets to -1
// (permanent selection).
func (s *State) Clean(allowRollback bool) {
	s.Data.State = model.StateNormal
	for i := range s.Data.PartitionSelection {
		sel := &s.Data.PartitionSelection[i]
		sel.Affected = false
		sel.Rollback = sel.Rollback && allowRollback
	}
	s.Data.RemainingTries = -1
}

// Rollback builds the selection set for falling back to the previously
// active system: every selection becomes affected exactly where it had a
// rollback target, and every rollback flag is cleared since there is
// nothing further back to fall to. Active is left untouched — the
// bootloader flips it on the next boot. It fails if no selection offered
// a rollback target.
func (s *State) Rollback() error {
	found := false
	for i := range s.Data.PartitionSelection {
		sel := &s.Data.PartitionSelection[i]
		if sel.Rollback {
			found = true
		}
		sel.Affected = sel.Rollback
		sel.Rollback = false
	}
	if !found {
		return errors.New("no system to roll back to")
	}
	s.Data.State = model.StateRevert
	return nil
}

// Environment is the live, device-backed pair of environment slots.
type Environment struct {
	dev        io.ReadWriteSeeker
	baseOffset int64
	blobSize   int64
	slots      [NumSlots]*State
}

// Open locates the update_env raw partition in cfg, reads both slots from
// dev and returns the live Environment. dev must already be positioned at
// nothing in particular; Open seeks explicitly before every access.
func Open(dev io.ReadWriteSeeker, cfg *partconfig.Config) (*Environment, error) {
	set, part, err := cfg.FindUpdatePartition()
	if err != nil {
		return nil, err
	}
	blobStr, ok := set.UserData["blob_offset"]
	if !ok {
		return nil, errors.New("updateenv: update_env set has no \"blob_offset\" user_data entry")
	}
	blobSize, err := parseSize(blobStr)
	if err != nil {
		return nil, errors.Wrap(err, "updateenv: blob_offset")
	}

	env := &Environment{dev: dev, baseOffset: part.Offset, blobSize: blobSize}
	if err := env.readAll(); err != nil {
		return nil, err
	}
	return env, nil
}

func parseSize(s string) (int64, error) {
	if len(s) > 2 && (s[:2] == "0x" || s[:2] == "0X") {
		return strconv.ParseInt(s[2:], 16, 64)
	}
	return strconv.ParseInt(s, 10, 64)
}

func (e *Environment) slotOffset(i int) int64 {
	return e.baseOffset + int64(i)*e.blobSize
}

func (e *Environment) readAll() error {
	for i := 0; i < NumSlots; i++ {
		st, err := e.readSlot(i)
		if err != nil {
			return err
		}
		e.slots[i] = st
	}
	return nil
}

func (e *Environment) readSlot(i int) (*State, error) {
	if _, err := e.dev.Seek(e.slotOffset(i), io.SeekStart); err != nil {
		return nil, errors.Wrapf(err, "updateenv: seeking slot %d", i)
	}
	buf := make([]byte, e.blobSize)
	if _, err := io.ReadFull(e.dev, buf); err != nil {
		return nil, errors.Wrapf(err, "updateenv: reading slot %d", i)
	}
	var st State
	if err := st.UnmarshalBinary(buf); err != nil {
		// An undecodable slot is kept as an empty, invalid record so that
		// arbitration can still fall back to the other slot.
		return &State{}, nil
	}
	return &st, nil
}

// CurrentSlot returns the index and state of the authoritative slot: if
// both slots are valid, the one with the higher EnvRevision wins, ties
// broken toward slot 0; otherwise the single valid slot; otherwise
// ErrNoValidSlot.
func (e *Environment) CurrentSlot() (int, *State, error) {
	v0, v1 := e.slots[0].IsValid(), e.slots[1].IsValid()
	switch {
	case v0 && v1:
		if e.slots[1].Data.EnvRevision > e.slots[0].Data.EnvRevision {
			return 1, e.slots[1], nil
		}
		return 0, e.slots[0], nil
	case v0:
		return 0, e.slots[0], nil
	case v1:
		return 1, e.slots[1], nil
	default:
		return 0, nil, ErrNoValidSlot
	}
}

// Current returns the authoritative state without its slot index.
func (e *Environment) Current() (*State, error) {
	_, st, err := e.CurrentSlot()
	return st, err
}

// Init writes a brand-new environment to slot 0 of a device that has no
// valid slot yet, e.g. at first-boot provisioning. It fails if a valid
// slot is already present, to avoid silently discarding a live
// environment.
func (e *Environment) Init(st *State) error {
	if _, _, err := e.CurrentSlot(); err == nil {
		return errors.New("updateenv: refusing to initialize, a valid slot is already present")
	}
	st.Data.EnvRevision = 0
	st.Rehash()
	if err := e.writeSlot(0, st); err != nil {
		return err
	}
	e.slots[0] = st
	return nil
}

// WriteNext writes st to the slot that is not currently authoritative,
// after stamping it with the next EnvRevision and recomputing its hash.
// It leaves the previous slot untouched, so a crash mid-write still
// leaves one valid slot on device.
func (e *Environment) WriteNext(st *State) error {
	cur, curState, err := e.CurrentSlot()
	if err != nil {
		return err
	}
	next := NumSlots - 1 - cur
	st.Data.EnvRevision = curState.Data.EnvRevision + 1
	st.Rehash()
	if err := e.writeSlot(next, st); err != nil {
		return err
	}
	e.slots[next] = st
	return nil
}

func (e *Environment) writeSlot(i int, st *State) error {
	raw, err := st.MarshalBinary()
	if err != nil {
		return err
	}
	if int64(len(raw)) > e.blobSize {
		return errors.Errorf("updateenv: record of %d bytes does not fit slot size %d", len(raw), e.blobSize)
	}
	padded := make([]byte, e.blobSize)
	copy(padded, raw)
	if _, err := e.dev.Seek(e.slotOffset(i), io.SeekStart); err != nil {
		return errors.Wrapf(err, "updateenv: seeking slot %d", i)
	}
	if _, err := e.dev.Write(padded); err != nil {
		return errors.Wrapf(err, "updateenv: writing slot %d", i)
	}
	if syncer, ok := e.dev.(interface{ Sync() error }); ok {
		if err := syncer.Sync(); err != nil {
			return errors.Wrap(err, "updateenv: syncing device")
		}
	}
	return nil
}

// Raw returns both slots re-encoded from the records held in memory (as
// read at Open or last written), for the "env" command's hex dump. The
// bytes are not re-read from the device: the magic field always reads
// "EBUS", a slot that did not decode shows as an empty record, and the
// padding after each record is not included.
func (e *Environment) Raw() ([2][]byte, error) {
	var out [2][]byte
	for i := 0; i < NumSlots; i++ {
		raw, err := e.slots[i].MarshalBinary()
		if err != nil {
			return out, err
		}
		out[i] = raw
	}
	return out, nil
}
