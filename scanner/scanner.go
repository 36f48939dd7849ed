// Package scanner tokenizes the PDF container grammar: numbers, names,
// literal and hex strings, delimiters, keywords and comments, with byte
// offset tracking for cross-reference driven random access.
package scanner

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
)

type TokenType int

const (
	TokenInteger TokenType = iota
	TokenReal
	TokenName
	TokenString    // literal or hex string, already unescaped
	TokenDictOpen  // <<
	TokenDictClose // >>
	TokenArrayOpen
	TokenArrayClose
	TokenKeyword // obj, endobj, stream, R, true, false, null, ...
)

// Token is one lexical unit of the container grammar.
type Token struct {
	Type    TokenType
	Int     int64
	Real    float64
	Name    string
	Keyword string
	Bytes   []byte // string payload
	Hex     bool   // string came from hex notation
	Offset  int64
}

// Scanner tokenizes a byte slice. The whole file is held in memory; the
// parser seeks it using cross-reference offsets.
type Scanner struct {
	data []byte
	pos  int
}

func New(data []byte) *Scanner { return &Scanner{data: data} }

// Seek positions the scanner at an absolute byte offset.
func (s *Scanner) Seek(offset int64) error {
	if offset < 0 || offset > int64(len(s.data)) {
		return fmt.Errorf("seek offset %d out of range", offset)
	}
	s.pos = int(offset)
	return nil
}

// Offset returns the current byte position.
func (s *Scanner) Offset() int64 { return int64(s.pos) }

// Len returns the total input size.
func (s *Scanner) Len() int64 { return int64(len(s.data)) }

func isWhitespace(c byte) bool {
	switch c {
	case 0x00, 0x09, 0x0A, 0x0C, 0x0D, 0x20:
		return true
	}
	return false
}

func isDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

func isRegular(c byte) bool { return !isWhitespace(c) && !isDelimiter(c) }

func (s *Scanner) skipWhitespace() {
	for s.pos < len(s.data) {
		c := s.data[s.pos]
		if isWhitespace(c) {
			s.pos++
			continue
		}
		if c == '%' {
			for s.pos < len(s.data) && s.data[s.pos] != '\n' && s.data[s.pos] != '\r' {
				s.pos++
			}
			continue
		}
		return
	}
}

// Next returns the next token or io.EOF.
func (s *Scanner) Next() (Token, error) {
	s.skipWhitespace()
	if s.pos >= len(s.data) {
		return Token{}, io.EOF
	}
	start := int64(s.pos)
	c := s.data[s.pos]
	switch {
	case c == '<':
		if s.pos+1 < len(s.data) && s.data[s.pos+1] == '<' {
			s.pos += 2
			return Token{Type: TokenDictOpen, Offset: start}, nil
		}
		return s.hexString(start)
	case c == '>':
		if s.pos+1 < len(s.data) && s.data[s.pos+1] == '>' {
			s.pos += 2
			return Token{Type: TokenDictClose, Offset: start}, nil
		}
		s.pos++
		return Token{}, fmt.Errorf("stray '>' at offset %d", start)
	case c == '[':
		s.pos++
		return Token{Type: TokenArrayOpen, Offset: start}, nil
	case c == ']':
		s.pos++
		return Token{Type: TokenArrayClose, Offset: start}, nil
	case c == '(':
		return s.literalString(start)
	case c == '/':
		return s.name(start)
	case c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9'):
		return s.number(start)
	case isRegular(c):
		return s.keyword(start)
	}
	s.pos++
	return Token{}, fmt.Errorf("unexpected byte 0x%02x at offset %d", c, start)
}

// Peek returns the next token without consuming it.
func (s *Scanner) Peek() (Token, error) {
	save := s.pos
	tok, err := s.Next()
	s.pos = save
	return tok, err
}

func (s *Scanner) number(start int64) (Token, error) {
	end := s.pos
	isReal := false
	if s.data[end] == '+' || s.data[end] == '-' {
		end++
	}
	for end < len(s.data) {
		c := s.data[end]
		if c >= '0' && c <= '9' {
			end++
			continue
		}
		if c == '.' && !isReal {
			isReal = true
			end++
			continue
		}
		break
	}
	text := string(s.data[s.pos:end])
	s.pos = end
	if isReal {
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			// Bare "." or "-." occur in sloppy producers; treat as zero.
			f = 0
		}
		return Token{Type: TokenReal, Real: f, Offset: start}, nil
	}
	i, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return Token{}, fmt.Errorf("malformed number %q at offset %d", text, start)
	}
	return Token{Type: TokenInteger, Int: i, Offset: start}, nil
}

func (s *Scanner) name(start int64) (Token, error) {
	s.pos++ // consume '/'
	out := make([]byte, 0, 16)
	for s.pos < len(s.data) {
		c := s.data[s.pos]
		if !isRegular(c) {
			break
		}
		if c == '#' && s.pos+2 < len(s.data) {
			hi := unhex(s.data[s.pos+1])
			lo := unhex(s.data[s.pos+2])
			if hi >= 0 && lo >= 0 {
				out = append(out, byte(hi<<4|lo))
				s.pos += 3
				continue
			}
		}
		out = append(out, c)
		s.pos++
	}
	return Token{Type: TokenName, Name: string(out), Offset: start}, nil
}

func (s *Scanner) keyword(start int64) (Token, error) {
	end := s.pos
	for end < len(s.data) && isRegular(s.data[end]) {
		end++
	}
	kw := string(s.data[s.pos:end])
	s.pos = end
	return Token{Type: TokenKeyword, Keyword: kw, Offset: start}, nil
}

func (s *Scanner) literalString(start int64) (Token, error) {
	s.pos++ // consume '('
	depth := 1
	out := make([]byte, 0, 32)
	for s.pos < len(s.data) {
		c := s.data[s.pos]
		switch c {
		case '\\':
			s.pos++
			if s.pos >= len(s.data) {
				return Token{}, errors.New("unterminated string escape")
			}
			e := s.data[s.pos]
			switch e {
			case 'n':
				out = append(out, '\n')
				s.pos++
			case 'r':
				out = append(out, '\r')
				s.pos++
			case 't':
				out = append(out, '\t')
				s.pos++
			case 'b':
				out = append(out, '\b')
				s.pos++
			case 'f':
				out = append(out, '\f')
				s.pos++
			case '(', ')', '\\':
				out = append(out, e)
				s.pos++
			case '\r':
				s.pos++
				if s.pos < len(s.data) && s.data[s.pos] == '\n' {
					s.pos++
				}
			case '\n':
				s.pos++
			default:
				if e >= '0' && e <= '7' {
					val := 0
					for i := 0; i < 3 && s.pos < len(s.data); i++ {
						d := s.data[s.pos]
						if d < '0' || d > '7' {
							break
						}
						val = val*8 + int(d-'0')
						s.pos++
					}
					out = append(out, byte(val))
				} else {
					out = append(out, e)
					s.pos++
				}
			}
		case '(':
			depth++
			out = append(out, c)
			s.pos++
		case ')':
			depth--
			s.pos++
			if depth == 0 {
				return Token{Type: TokenString, Bytes: out, Offset: start}, nil
			}
			out = append(out, c)
		case '\r':
			// Raw EOL inside a string normalizes to LF.
			out = append(out, '\n')
			s.pos++
			if s.pos < len(s.data) && s.data[s.pos] == '\n' {
				s.pos++
			}
		default:
			out = append(out, c)
			s.pos++
		}
	}
	return Token{}, fmt.Errorf("unterminated literal string at offset %d", start)
}

func (s *Scanner) hexString(start int64) (Token, error) {
	s.pos++ // consume '<'
	digits := make([]byte, 0, 32)
	for s.pos < len(s.data) {
		c := s.data[s.pos]
		if c == '>' {
			s.pos++
			if len(digits)%2 == 1 {
				digits = append(digits, '0')
			}
			out := make([]byte, len(digits)/2)
			for i := 0; i < len(out); i++ {
				hi := unhex(digits[2*i])
				lo := unhex(digits[2*i+1])
				out[i] = byte(hi<<4 | lo)
			}
			return Token{Type: TokenString, Bytes: out, Hex: true, Offset: start}, nil
		}
		if unhex(c) >= 0 {
			digits = append(digits, c)
		} else if !isWhitespace(c) {
			return Token{}, fmt.Errorf("invalid hex digit 0x%02x at offset %d", c, s.pos)
		}
		s.pos++
	}
	return Token{}, fmt.Errorf("unterminated hex string at offset %d", start)
}

// ReadStreamData reads a stream payload immediately after the "stream"
// keyword. With a non-negative length the exact count is consumed; with a
// negative length the payload runs to the next "endstream" marker.
func (s *Scanner) ReadStreamData(length int64) ([]byte, error) {
	// One EOL (CRLF or LF) separates the keyword from the payload.
	if s.pos < len(s.data) && s.data[s.pos] == '\r' {
		s.pos++
	}
	if s.pos < len(s.data) && s.data[s.pos] == '\n' {
		s.pos++
	}
	if length >= 0 && int64(s.pos)+length <= int64(len(s.data)) {
		data := s.data[s.pos : int64(s.pos)+length]
		save := s.pos
		s.pos += int(length)
		// A wrong /Length in a damaged file shows up as a missing
		// endstream keyword; fall back to marker search.
		if tok, err := s.Peek(); err == nil && tok.Type == TokenKeyword && tok.Keyword == "endstream" {
			return data, nil
		}
		s.pos = save
	}
	end := bytes.Index(s.data[s.pos:], []byte("endstream"))
	if end < 0 {
		return nil, errors.New("endstream marker not found")
	}
	end += s.pos
	data := s.data[s.pos:end]
	// Strip the EOL that precedes the marker.
	if len(data) > 0 && data[len(data)-1] == '\n' {
		data = data[:len(data)-1]
	}
	if len(data) > 0 && data[len(data)-1] == '\r' {
		data = data[:len(data)-1]
	}
	s.pos = end
	return data, nil
}

func unhex(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10
	}
	return -1
}
