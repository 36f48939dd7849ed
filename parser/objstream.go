package parser

import (
	"context"
	"fmt"

	"github.com/pdfdesk/pdfengine/object"
	"github.com/pdfdesk/pdfengine/scanner"
	"github.com/pdfdesk/pdfengine/xref"
)

// extractedStream is one decoded object stream: the object numbers it
// declares and the parsed values, both in slot order.
type extractedStream struct {
	nums   []int
	values []object.Object
}

// loadFromStream materializes one packed object. The container stream is
// decoded once and cached for the other objects it holds.
func (l *loader) loadFromStream(ctx context.Context, num int, entry xref.Entry) error {
	ext, err := l.extractStream(ctx, entry.StreamNum)
	if err != nil {
		return err
	}
	idx := entry.StreamIndex
	if idx < 0 || idx >= len(ext.values) {
		return fmt.Errorf("object stream %d has no slot %d", entry.StreamNum, idx)
	}
	if ext.nums[idx] != num {
		// A shifted index still names the object; trust the header.
		for i, n := range ext.nums {
			if n == num {
				idx = i
				break
			}
		}
		if ext.nums[idx] != num {
			return fmt.Errorf("object %d not declared by object stream %d", num, entry.StreamNum)
		}
	}
	// Packed objects always have generation zero.
	l.doc.Load(object.Ref{Num: num}, ext.values[idx])
	return nil
}

func (l *loader) extractStream(ctx context.Context, containerNum int) (*extractedStream, error) {
	if ext, ok := l.objStreams[containerNum]; ok {
		return ext, nil
	}
	container, ok := l.doc.Get(object.Ref{Num: containerNum})
	if !ok {
		return nil, fmt.Errorf("object stream %d not loaded", containerNum)
	}
	stream, ok := container.(*object.Stream)
	if !ok {
		return nil, fmt.Errorf("object %d is not a stream", containerNum)
	}
	if typ, _ := stream.Dict.GetName("Type"); typ != "ObjStm" {
		return nil, fmt.Errorf("object %d has type %q, want ObjStm", containerNum, typ)
	}
	count, ok := stream.Dict.GetInt("N")
	if !ok || count < 0 {
		return nil, fmt.Errorf("object stream %d: missing N", containerNum)
	}
	first, ok := stream.Dict.GetInt("First")
	if !ok || first < 0 {
		return nil, fmt.Errorf("object stream %d: missing First", containerNum)
	}

	decoded, err := l.p.pipeline.DecodeStream(ctx, stream)
	if err != nil {
		return nil, fmt.Errorf("object stream %d: %w", containerNum, err)
	}
	if first > int64(len(decoded)) {
		return nil, fmt.Errorf("object stream %d: First beyond payload", containerNum)
	}

	// The header is count pairs of "objnum offset", offsets relative to
	// First.
	header := newTokenReader(scanner.New(decoded[:first]))
	ext := &extractedStream{
		nums:   make([]int, 0, count),
		values: make([]object.Object, 0, count),
	}
	type slot struct {
		num    int
		offset int64
	}
	slots := make([]slot, 0, count)
	for i := int64(0); i < count; i++ {
		numTok, err1 := header.next()
		offTok, err2 := header.next()
		if err1 != nil || err2 != nil ||
			numTok.Type != scanner.TokenInteger || offTok.Type != scanner.TokenInteger {
			return nil, fmt.Errorf("object stream %d: malformed header pair %d", containerNum, i)
		}
		slots = append(slots, slot{num: int(numTok.Int), offset: offTok.Int})
	}
	body := scanner.New(decoded)
	for _, s := range slots {
		if err := body.Seek(first + s.offset); err != nil {
			return nil, fmt.Errorf("object stream %d: offset %d out of range", containerNum, s.offset)
		}
		value, err := readValue(newTokenReader(body))
		if err != nil {
			return nil, fmt.Errorf("object stream %d: object %d: %w", containerNum, s.num, err)
		}
		ext.nums = append(ext.nums, s.num)
		ext.values = append(ext.values, value)
	}
	l.objStreams[containerNum] = ext
	return ext, nil
}
