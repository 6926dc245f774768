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
	"fmt"
	"strings"
)

// hexDumpBytesPerRow matches the original environment dumper: 16 bytes of
// payload per row, an offset column wide enough for any realistic blob.
const (
	hexDumpBytesPerRow  = 16
	hexDumpOffsetDigits = 7
)

// HexDump renders raw bytes as an "od -A x -t x1z"-style dump: an 8-hex
// offset column, up to 16 space-separated byte pairs, then the printable
// ASCII rendition of the same row. Used by the "env" command to show the
// raw on-device layout.
func HexDump(data []byte) string {
	var b strings.Builder
	for off := 0; off < len(data); off += hexDumpBytesPerRow {
		end := off + hexDumpBytesPerRow
		if end > len(data) {
			end = len(data)
		}
		row := data[off:end]

		fmt.Fprintf(&b, "%0*x  ", hexDumpOffsetDigits+1, off)
		for i := 0; i < hexDumpBytesPerRow; i++ {
			if i < len(row) {
				fmt.Fprintf(&b, "%02x ", row[i])
			} else {
				b.WriteString("   ")
			}
			if i == 7 {
				b.WriteByte(' ')
			}
		}
		b.WriteString(" |")
		for _, c := range row {
			if c >= 0x20 && c < 0x7f {
				b.WriteByte(c)
			} else {
				b.WriteByte('.')
			}
		}
		b.WriteString("|\n")
	}
	return b.String()
}
