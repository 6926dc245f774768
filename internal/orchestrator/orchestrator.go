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

// Package orchestrator maps the operator-facing commands (update, commit,
// finish, revert, rollback, state, env) onto environment transitions,
// enforcing the preconditions each command requires of the current state.
package orchestrator

import (
	"fmt"
	"io"

	"github.com/pkg/errors"

	"github.com/emlix/rupdate/internal/bundle"
	"github.com/emlix/rupdate/internal/model"
	"github.com/emlix/rupdate/internal/partconfig"
	"github.com/emlix/rupdate/internal/updateenv"
)

// ErrWrongState is returned when a command is invoked while the
// environment is not in the state it requires.
var ErrWrongState = errors.New("command not valid in the current state")

func wrongState(cmd string, have model.State, want ...model.State) error {
	return errors.Wrapf(ErrWrongState, "%s: current state is %s, expected %v", cmd, have, want)
}

// Orchestrator ties the partition config, the live update environment and
// a device opener together to execute one operator command per
// invocation, matching the agent's single-shot process model.
type Orchestrator struct {
	Config *partconfig.Config
	Env    *updateenv.Environment
	Opener bundle.DeviceOpener
}

// Update flashes a bundle read from r and advances the environment to
// Installed. It requires the environment to currently be Normal. Under
// dry, the bundle is validated but nothing is written or persisted.
func (o *Orchestrator) Update(r io.Reader, dry bool, quiet bool) (*bundle.Manifest, error) {
	cur, err := o.Env.Current()
	if err != nil {
		return nil, err
	}
	if cur.Data.State != model.StateNormal {
		return nil, wrongState("update", cur.Data.State, model.StateNormal)
	}

	next := cur.Clone()
	manifest, err := bundle.Flash(r, o.Config, next, o.Opener, dry, quiet)
	if err != nil {
		return nil, err
	}
	if dry {
		return manifest, nil
	}
	next.Data.State = model.StateInstalled
	next.Rehash()
	if err := o.Env.WriteNext(next); err != nil {
		return nil, err
	}
	return manifest, nil
}

// Commit accepts the freshly installed slot before the bootloader has
// tested it, arming bootRetries boot attempts. It requires Installed.
func (o *Orchestrator) Commit(bootRetries int) error {
	cur, err := o.Env.Current()
	if err != nil {
		return err
	}
	if cur.Data.State != model.StateInstalled {
		return wrongState("commit", cur.Data.State, model.StateInstalled)
	}
	if bootRetries > 1<<15-1 {
		return errors.Errorf("commit: boot-retries %d overflows the on-device counter", bootRetries)
	}

	next := cur.Clone()
	next.Data.State = model.StateCommitted
	next.Data.RemainingTries = int16(bootRetries)
	next.Rehash()
	return o.Env.WriteNext(next)
}

// Finish is called by the bootloader-tested system once it has confirmed
// itself good: it clears the update cycle and keeps the rollback target.
// It requires Testing.
func (o *Orchestrator) Finish() error {
	cur, err := o.Env.Current()
	if err != nil {
		return err
	}
	if cur.Data.State != model.StateTesting {
		return wrongState("finish", cur.Data.State, model.StateTesting)
	}

	next := cur.Clone()
	next.Clean(true)
	next.Rehash()
	return o.Env.WriteNext(next)
}

// Revert cancels a pending update (Installed or Committed, before the
// bootloader ever switched to it) or stops a Testing countdown early.
func (o *Orchestrator) Revert() error {
	cur, err := o.Env.Current()
	if err != nil {
		return err
	}

	next := cur.Clone()
	switch cur.Data.State {
	case model.StateNormal:
		return errors.New("revert: no update in progress")
	case model.StateInstalled, model.StateCommitted:
		next.Clean(false)
	case model.StateTesting:
		next.Data.State = model.StateRevert
		next.Data.RemainingTries = 0
	case model.StateRevert:
		return errors.New("revert: a revert is already in progress")
	default:
		return wrongState("revert", cur.Data.State)
	}
	next.Rehash()
	return o.Env.WriteNext(next)
}

// Rollback falls back to the previous system. It requires Normal (an
// update still in progress is cancelled with Revert instead) and at least
// one partition set with a recorded rollback target.
func (o *Orchestrator) Rollback() error {
	cur, err := o.Env.Current()
	if err != nil {
		return err
	}
	switch cur.Data.State {
	case model.StateRevert:
		return errors.New("rollback: a revert is already in progress")
	case model.StateNormal:
		// proceeds below
	default:
		return errors.Errorf("rollback: current state is %s, use revert instead", cur.Data.State)
	}

	next := cur.Clone()
	if err := next.Rollback(); err != nil {
		return err
	}
	next.Rehash()
	return o.Env.WriteNext(next)
}

// PrintState writes the current lifecycle state to w: a human-readable
// message, or the bare state name when raw is true.
func (o *Orchestrator) PrintState(w io.Writer, raw bool) error {
	cur, err := o.Env.Current()
	if err != nil {
		return err
	}
	if raw {
		fmt.Fprintln(w, cur.Data.State)
		return nil
	}
	fmt.Fprintln(w, cur.Data.State.Message())
	for _, s := range o.Config.UpdateSets() {
		sel, ok := cur.GetSelection(s.Name)
		if !ok {
			continue
		}
		part, ok := s.FindByVariant(sel.Active)
		if !ok || part.Linux == nil {
			continue
		}
		fmt.Fprintf(w, "  %s: variant %s (%s)\n", s.Name, sel.Active, part.Linux)
	}
	return nil
}

// PrintEnv writes a hex dump of both on-device environment slots to w.
func (o *Orchestrator) PrintEnv(w io.Writer) error {
	raw, err := o.Env.Raw()
	if err != nil {
		return err
	}
	for i, slot := range raw {
		fmt.Fprintf(w, "slot %d:\n%s", i, model.HexDump(slot))
	}
	return nil
}
