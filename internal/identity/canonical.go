package identity

import (
	"bytes"
	"fmt"
	"unicode/utf8"

	"github.com/contentmirror/contentmirror/internal/cval"
)

// indentUnit is the fixed per-level indent of the canonical form.
const indentUnit = "    "

// CanonicalBytes serializes a value into its canonical byte form:
// mapping keys in lexicographic (byte-wise) order, sequences in
// original order, fixed four-space indent, minimal string escaping.
//
// The output is reproducible byte-for-byte across processes and
// platforms for the same logical input. The digest is computed over
// these bytes, so any downstream re-serialization of the content does
// not disturb the identity.
func CanonicalBytes(v cval.Value) []byte {
	var buf bytes.Buffer
	writeCanonical(&buf, v, 0)
	return buf.Bytes()
}

func writeCanonical(buf *bytes.Buffer, v cval.Value, depth int) {
	switch v.Kind() {
	case cval.KindNull:
		buf.WriteString("null")
	case cval.KindBool:
		if v.Bool() {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case cval.KindNumber:
		lit := v.NumberLiteral()
		if lit == "" {
			lit = "0"
		}
		buf.WriteString(lit)
	case cval.KindString:
		writeCanonicalString(buf, v.Str())
	case cval.KindSequence:
		elems := v.Sequence()
		if len(elems) == 0 {
			buf.WriteString("[]")
			return
		}
		buf.WriteByte('[')
		for i, e := range elems {
			if i > 0 {
				buf.WriteByte(',')
			}
			buf.WriteByte('\n')
			writeIndent(buf, depth+1)
			writeCanonical(buf, e, depth+1)
		}
		buf.WriteByte('\n')
		writeIndent(buf, depth)
		buf.WriteByte(']')
	case cval.KindMapping:
		keys := v.Keys()
		if len(keys) == 0 {
			buf.WriteString("{}")
			return
		}
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			buf.WriteByte('\n')
			writeIndent(buf, depth+1)
			writeCanonicalString(buf, k)
			buf.WriteString(": ")
			e, _ := v.Get(k)
			writeCanonical(buf, e, depth+1)
		}
		buf.WriteByte('\n')
		writeIndent(buf, depth)
		buf.WriteByte('}')
	}
}

func writeIndent(buf *bytes.Buffer, depth int) {
	for i := 0; i < depth; i++ {
		buf.WriteString(indentUnit)
	}
}

// writeCanonicalString escapes only what JSON requires for round-trip
// fidelity: quote, backslash, and control characters. Slashes and
// non-ASCII runes pass through untouched.
func writeCanonicalString(buf *bytes.Buffer, s string) {
	buf.WriteByte('"')
	for i := 0; i < len(s); {
		b := s[i]
		switch {
		case b == '"':
			buf.WriteString(`\"`)
			i++
		case b == '\\':
			buf.WriteString(`\\`)
			i++
		case b == '\b':
			buf.WriteString(`\b`)
			i++
		case b == '\f':
			buf.WriteString(`\f`)
			i++
		case b == '\n':
			buf.WriteString(`\n`)
			i++
		case b == '\r':
			buf.WriteString(`\r`)
			i++
		case b == '\t':
			buf.WriteString(`\t`)
			i++
		case b < 0x20:
			fmt.Fprintf(buf, `\u%04x`, b)
			i++
		case b < utf8.RuneSelf:
			buf.WriteByte(b)
			i++
		default:
			r, size := utf8.DecodeRuneInString(s[i:])
			if r == utf8.RuneError && size == 1 {
				// invalid byte, replace it so output stays valid UTF-8
				buf.WriteString("�")
				i++
				continue
			}
			buf.WriteString(s[i : i+size])
			i += size
		}
	}
	buf.WriteByte('"')
}
