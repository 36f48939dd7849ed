package parser

import (
	"fmt"
	"io"

	"github.com/pdfdesk/pdfengine/object"
	"github.com/pdfdesk/pdfengine/scanner"
)

// tokenReader adds pushback on top of the scanner, needed to recognize
// the three token reference form "N G R" by lookahead.
type tokenReader struct {
	sc  *scanner.Scanner
	buf []scanner.Token
}

func newTokenReader(sc *scanner.Scanner) *tokenReader { return &tokenReader{sc: sc} }

func (r *tokenReader) next() (scanner.Token, error) {
	if n := len(r.buf); n > 0 {
		tok := r.buf[n-1]
		r.buf = r.buf[:n-1]
		return tok, nil
	}
	return r.sc.Next()
}

func (r *tokenReader) unread(tok scanner.Token) { r.buf = append(r.buf, tok) }

func (r *tokenReader) peek() (scanner.Token, error) {
	tok, err := r.next()
	if err != nil {
		return tok, err
	}
	r.unread(tok)
	return tok, nil
}

// expectKeyword consumes the next token and verifies it is the keyword kw.
func (r *tokenReader) expectKeyword(kw string) error {
	tok, err := r.next()
	if err != nil {
		return err
	}
	if tok.Type != scanner.TokenKeyword || tok.Keyword != kw {
		return fmt.Errorf("expected %q at offset %d", kw, tok.Offset)
	}
	return nil
}

// readValue parses one object value: scalar, name, string, array,
// dictionary or reference. Stream payloads are handled by the indirect
// object reader, not here.
func readValue(r *tokenReader) (object.Object, error) {
	tok, err := r.next()
	if err != nil {
		return nil, err
	}
	switch tok.Type {
	case scanner.TokenInteger:
		return readIntegerOrRef(r, tok)
	case scanner.TokenReal:
		return object.Real(tok.Real), nil
	case scanner.TokenName:
		return object.Name(tok.Name), nil
	case scanner.TokenString:
		return object.String{Data: tok.Bytes, Hex: tok.Hex}, nil
	case scanner.TokenArrayOpen:
		return readArray(r)
	case scanner.TokenDictOpen:
		return readDict(r)
	case scanner.TokenKeyword:
		switch tok.Keyword {
		case "true":
			return object.Boolean(true), nil
		case "false":
			return object.Boolean(false), nil
		case "null":
			return object.Null{}, nil
		}
		return nil, fmt.Errorf("unexpected keyword %q at offset %d", tok.Keyword, tok.Offset)
	}
	return nil, fmt.Errorf("unexpected token at offset %d", tok.Offset)
}

// readIntegerOrRef disambiguates a bare integer from the start of an
// indirect reference by peeking two tokens ahead.
func readIntegerOrRef(r *tokenReader, first scanner.Token) (object.Object, error) {
	second, err := r.next()
	if err == io.EOF {
		return object.Int(first.Int), nil
	}
	if err != nil {
		return nil, err
	}
	if second.Type == scanner.TokenInteger {
		third, err := r.next()
		if err == nil && third.Type == scanner.TokenKeyword && third.Keyword == "R" {
			return object.NewReference(int(first.Int), int(second.Int)), nil
		}
		if err == nil {
			r.unread(third)
		}
	}
	r.unread(second)
	return object.Int(first.Int), nil
}

func readArray(r *tokenReader) (object.Object, error) {
	arr := object.NewArray()
	for {
		tok, err := r.next()
		if err != nil {
			return nil, fmt.Errorf("unterminated array: %w", err)
		}
		if tok.Type == scanner.TokenArrayClose {
			return arr, nil
		}
		r.unread(tok)
		item, err := readValue(r)
		if err != nil {
			return nil, err
		}
		arr.Append(item)
	}
}

func readDict(r *tokenReader) (object.Object, error) {
	dict := object.NewDict()
	for {
		tok, err := r.next()
		if err != nil {
			return nil, fmt.Errorf("unterminated dictionary: %w", err)
		}
		if tok.Type == scanner.TokenDictClose {
			return dict, nil
		}
		if tok.Type != scanner.TokenName {
			return nil, fmt.Errorf("dictionary key must be a name at offset %d", tok.Offset)
		}
		value, err := readValue(r)
		if err != nil {
			return nil, err
		}
		dict.Set(object.Name(tok.Name), value)
	}
}

// indirectObject is one "N G obj ... endobj" record read from the file.
type indirectObject struct {
	Ref   object.Ref
	Value object.Object
}

// readIndirect parses the indirect object starting at the scanner's
// current position. lengthFor resolves an indirect /Length value; it may
// return -1 to force the endstream marker search.
func readIndirect(sc *scanner.Scanner, lengthFor func(object.Object) int64) (indirectObject, error) {
	r := newTokenReader(sc)
	numTok, err := r.next()
	if err != nil {
		return indirectObject{}, err
	}
	genTok, err := r.next()
	if err != nil {
		return indirectObject{}, err
	}
	if numTok.Type != scanner.TokenInteger || genTok.Type != scanner.TokenInteger {
		return indirectObject{}, fmt.Errorf("object header expected at offset %d", numTok.Offset)
	}
	if err := r.expectKeyword("obj"); err != nil {
		return indirectObject{}, err
	}
	ref := object.Ref{Num: int(numTok.Int), Gen: int(genTok.Int)}

	value, err := readValue(r)
	if err != nil {
		return indirectObject{}, fmt.Errorf("object %s: %w", ref, err)
	}

	tok, err := r.peek()
	if err == nil && tok.Type == scanner.TokenKeyword && tok.Keyword == "stream" {
		dict, ok := value.(*object.Dict)
		if !ok {
			return indirectObject{}, fmt.Errorf("object %s: stream without dictionary", ref)
		}
		r.next()
		// Pushback must be drained before byte level reads.
		length := int64(-1)
		if v, ok := dict.Get("Length"); ok {
			length = lengthFor(v)
		}
		data, err := sc.ReadStreamData(length)
		if err != nil {
			return indirectObject{}, fmt.Errorf("object %s: %w", ref, err)
		}
		value = object.NewStream(dict, data)
		r = newTokenReader(sc)
		if tok, err := r.peek(); err == nil && tok.Type == scanner.TokenKeyword && tok.Keyword == "endstream" {
			r.next()
		}
	}

	// A missing endobj is tolerated; real files drop it all the time.
	if tok, err := r.peek(); err == nil && tok.Type == scanner.TokenKeyword && tok.Keyword == "endobj" {
		r.next()
	}
	return indirectObject{Ref: ref, Value: value}, nil
}
