package h264

import "io"

// bitReader for RBSP with Exp-Golomb codes
type bitReader struct {
	b     []byte
	pos   int
	shift byte
}

func newBitReader(b []byte) *bitReader {
	return &bitReader{b: b}
}

func (r *bitReader) ReadBit() (byte, error) {
	if r.pos >= len(r.b) {
		return 0, io.ErrUnexpectedEOF
	}

	bit := (r.b[r.pos] >> (7 - r.shift)) & 0b1

	if r.shift++; r.shift == 8 {
		r.shift = 0
		r.pos++
	}

	return bit, nil
}

func (r *bitReader) ReadBits(n byte) (res uint32, err error) {
	var b byte
	for i := byte(0); i < n; i++ {
		if b, err = r.ReadBit(); err != nil {
			return
		}
		res = res<<1 | uint32(b)
	}
	return
}

// ReadUE - unsigned Exp-Golomb ue(v)
func (r *bitReader) ReadUE() (uint32, error) {
	var zeros byte
	for {
		b, err := r.ReadBit()
		if err != nil {
			return 0, err
		}
		if b != 0 {
			break
		}
		if zeros++; zeros > 31 {
			return 0, ErrShort
		}
	}

	res, err := r.ReadBits(zeros)
	if err != nil {
		return 0, err
	}

	return (1<<zeros - 1) + res, nil
}

// ReadSE - signed Exp-Golomb se(v)
func (r *bitReader) ReadSE() (int32, error) {
	v, err := r.ReadUE()
	if err != nil {
		return 0, err
	}
	if v%2 == 0 {
		return -int32(v >> 1), nil
	}
	return int32(v>>1) + 1, nil
}

// unescapeRBSP removes emulation prevention bytes: 00 00 03 => 00 00
func unescapeRBSP(b []byte) []byte {
	var dst []byte
	var zeros int

	for i, c := range b {
		if zeros >= 2 && c == 3 {
			if dst == nil {
				dst = append(make([]byte, 0, len(b)), b[:i]...)
			}
			zeros = 0
			continue
		}

		if c == 0 {
			zeros++
		} else {
			zeros = 0
		}

		if dst != nil {
			dst = append(dst, c)
		}
	}

	if dst == nil {
		return b
	}
	return dst
}
