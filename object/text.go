package object

import (
	"bytes"

	"golang.org/x/text/encoding/unicode"
)

// pdfDocDelta maps the 0x80-0x9F range where PDFDocEncoding departs from
// Latin-1. Zero entries are undefined code points.
var pdfDocDelta = [32]rune{
	0x02D8, 0x02C7, 0x02C6, 0x02D9, 0x02DD, 0x02DB, 0x02DA, 0x02DC,
	0x2022, 0x2020, 0x2021, 0x2026, 0x2014, 0x2013, 0x0192, 0x2044,
	0x2039, 0x203A, 0x2212, 0x2030, 0x201E, 0x201C, 0x201D, 0x2018,
	0x2019, 0x201A, 0x2122, 0xFB01, 0xFB02, 0x0141, 0x0152, 0x0160,
}

// DecodeTextString interprets a PDF text string: UTF-16BE when prefixed
// with a byte order mark, PDFDocEncoding otherwise.
func DecodeTextString(s String) string {
	data := s.Data
	if len(data) >= 2 && data[0] == 0xFE && data[1] == 0xFF {
		dec := unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM).NewDecoder()
		if out, err := dec.Bytes(data); err == nil {
			return string(out)
		}
	}
	var buf bytes.Buffer
	for _, b := range data {
		switch {
		case b >= 0x80 && b <= 0x9F:
			if r := pdfDocDelta[b-0x80]; r != 0 {
				buf.WriteRune(r)
			}
		default:
			buf.WriteRune(rune(b))
		}
	}
	return buf.String()
}

// EncodeTextString produces a PDF text string for v. ASCII round-trips as
// itself; anything else is written as UTF-16BE with a byte order mark.
func EncodeTextString(v string) String {
	ascii := true
	for _, r := range v {
		if r > 0x7E || r < 0x20 {
			ascii = false
			break
		}
	}
	if ascii {
		return Str([]byte(v))
	}
	encoder := unicode.UTF16(unicode.BigEndian, unicode.UseBOM).NewEncoder()
	out, err := encoder.Bytes([]byte(v))
	if err != nil {
		return Str([]byte(v))
	}
	return Str(out)
}
