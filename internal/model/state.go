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

import "fmt"

// State is the lifecycle stage of the update environment.
//
//	Normal     no update in progress, last boot was confirmed good.
//	Installed  a new bundle was flashed, not yet tested by the bootloader.
//	Testing    the bootloader has booted the new slot and is counting down
//	           remaining_tries; entered by the bootloader, never by the agent.
//	Committed  the operator accepted the new slot before the bootloader
//	           tested it; remaining_tries governs the boot-retry budget.
//	Revert     a rollback (or a failed Testing countdown) is in progress;
//	           the bootloader falls back to the previous slot.
type State uint8

const (
	StateNormal State = iota
	StateInstalled
	StateCommitted
	StateTesting
	StateRevert
)

func (s State) String() string {
	switch s {
	case StateNormal:
		return "Normal"
	case StateInstalled:
		return "Installed"
	case StateCommitted:
		return "Committed"
	case StateTesting:
		return "Testing"
	case StateRevert:
		return "Revert"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// Message returns the operator-facing description of the state, shown by
// the "state" command.
func (s State) Message() string {
	switch s {
	case StateNormal:
		return "system is running normally, no update in progress"
	case StateInstalled:
		return "update installed, awaiting commit or reboot into testing"
	case StateCommitted:
		return "update committed, awaiting boot confirmation"
	case StateTesting:
		return "update is being tested by the bootloader"
	case StateRevert:
		return "reverting to the previous system"
	default:
		return s.String()
	}
}
