package codec

import (
	"fmt"
	"strings"
	"unicode"
)

// MessageName returns the wire name of a message for logs and metrics,
// e.g. *common.MessageGpsRawInt -> GPS_RAW_INT.
func MessageName(msg interface{}) string {
	fullType := fmt.Sprintf("%T", msg)
	if i := strings.LastIndex(fullType, ".Message"); i >= 0 {
		fullType = fullType[i+len(".Message"):]
	} else {
		return fullType
	}

	var b strings.Builder
	var prev rune
	for i, r := range fullType {
		if i > 0 && unicode.IsUpper(r) && (unicode.IsLower(prev) || unicode.IsDigit(prev)) {
			b.WriteByte('_')
		}
		b.WriteRune(unicode.ToUpper(r))
		prev = r
	}
	return b.String()
}
