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
	"fmt"
)

// Variant picks one of the two physical slots backing a partition set.
type Variant uint8

const (
	VariantA Variant = iota
	VariantB
)

func (v Variant) String() string {
	switch v {
	case VariantA:
		return "A"
	case VariantB:
		return "B"
	default:
		return fmt.Sprintf("Variant(%d)", uint8(v))
	}
}

// Other returns the variant that is not v.
func (v Variant) Other() Variant {
	if v == VariantA {
		return VariantB
	}
	return VariantA
}

func (v Variant) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.String())
}

func (v *Variant) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch s {
	case "A":
		*v = VariantA
	case "B":
		*v = VariantB
	default:
		return fmt.Errorf("invalid variant %q, expected \"A\" or \"B\"", s)
	}
	return nil
}
