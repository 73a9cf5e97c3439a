package resp

import (
	"bufio"
	"strconv"
)

// Encoder writes RESP frames to a buffered stream, flushing once per
// top-level frame. An Encoder is not safe for concurrent use.
type Encoder struct {
	w *bufio.Writer
}

// NewEncoder returns an Encoder writing to w.
func NewEncoder(w *bufio.Writer) *Encoder {
	return &Encoder{w: w}
}

// Encode serializes one frame and flushes the underlying writer.
func (e *Encoder) Encode(f Frame) error {
	if err := e.write(f); err != nil {
		return classifyIO(err, false)
	}
	if err := e.w.Flush(); err != nil {
		return classifyIO(err, false)
	}
	return nil
}

func (e *Encoder) write(f Frame) error {
	if err := e.w.WriteByte(byte(f.kind)); err != nil {
		return err
	}
	switch f.kind {
	case KindInteger:
		if _, err := e.w.WriteString(strconv.FormatInt(f.num, 10)); err != nil {
			return err
		}
	case KindSimpleString, KindSimpleError, KindBigNumber:
		if _, err := e.w.WriteString(f.str); err != nil {
			return err
		}
	case KindBulkString, KindBulkError:
		if _, err := e.w.WriteString(strconv.Itoa(len(f.str))); err != nil {
			return err
		}
		if err := e.terminate(); err != nil {
			return err
		}
		if _, err := e.w.WriteString(f.str); err != nil {
			return err
		}
	case KindBoolean:
		payload := byte('f')
		if f.flag {
			payload = 't'
		}
		if err := e.w.WriteByte(payload); err != nil {
			return err
		}
	case KindNull:
		// no payload
	case KindArray:
		if _, err := e.w.WriteString(strconv.Itoa(len(f.arr))); err != nil {
			return err
		}
		if err := e.terminate(); err != nil {
			return err
		}
		for _, child := range f.arr {
			if err := e.write(child); err != nil {
				return err
			}
		}
		return nil
	}
	return e.terminate()
}

func (e *Encoder) terminate() error {
	if err := e.w.WriteByte(cr); err != nil {
		return err
	}
	return e.w.WriteByte(lf)
}
