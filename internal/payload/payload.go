// Package payload turns directory records into the line oriented text the
// door controller accepts: one "uid,badge1,badge2,...\n" line per badge
// holder.
package payload

import (
	"bytes"
	"strings"

	"github.com/tylercrumpton/open-sespame/internal/directory"
)

const (
	fieldSeparator = ","
	lineTerminator = "\n"
)

// Payload is the formatted upload body together with what went into it.
type Payload struct {
	Body    []byte
	Lines   int // Lines is the number of badge holders in Body
	Scanned int // Scanned is the number of records looked at
}

// Len returns the body length in bytes, which is what Content-Length carries.
func (p Payload) Len() int {
	return len(p.Body)
}

func (p Payload) String() string {
	return string(p.Body)
}

// FormatRecord returns the line for rec, or false when rec carries no badge.
// Badge identifiers keep their order; nothing is escaped, deduplicated or
// sorted.
func FormatRecord(rec *directory.Record) (string, bool) {
	if rec == nil || !rec.HasBadge() {
		return "", false
	}

	return rec.UID + fieldSeparator + strings.Join(rec.BadgeIDs, fieldSeparator) + lineTerminator, true
}

// Build folds the records, in order, into a Payload.
func Build(records []*directory.Record) Payload {
	var buf bytes.Buffer

	p := Payload{Scanned: len(records)}

	for _, rec := range records {
		line, ok := FormatRecord(rec)
		if !ok {
			continue
		}

		buf.WriteString(line)
		p.Lines++
	}

	p.Body = buf.Bytes()

	return p
}

// Unsafe reports whether a value of rec would break the line format when
// written unescaped.
func Unsafe(rec *directory.Record) bool {
	if strings.ContainsAny(rec.UID, ",\r\n") {
		return true
	}

	for _, id := range rec.BadgeIDs {
		if strings.ContainsAny(id, ",\r\n") {
			return true
		}
	}

	return false
}
