package value

import (
	"encoding/hex"
	"strings"
)

// Bytes is a byte slice with a hex-dump String() method, used wherever a
// parser wants to report raw bytes in an error or debug message without
// spewing a huge literal slice representation.
type Bytes []byte

func (b Bytes) String() string {
	if len(b) == 0 {
		return "(empty)"
	}

	var sb strings.Builder
	sb.Grow(len(b)*3 - 1)
	for i, c := range b {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(strings.ToUpper(hex.EncodeToString([]byte{c})))
	}
	return sb.String()
}
