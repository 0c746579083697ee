package diam

// Reassembler accumulates inbound bytes from a single peer's stream
// and yields complete messages as they become available. It performs
// no I/O itself — the caller feeds it bytes read from the transport
// and drains it after every feed (spec §4.3, "Stream reassembly").
type Reassembler struct {
	buf  []byte
	dict Dictionary
}

// NewReassembler returns a Reassembler that resolves AVP types through
// dict.
func NewReassembler(dict Dictionary) *Reassembler {
	return &Reassembler{dict: dict}
}

// Feed appends freshly-read bytes to the internal buffer.
func (r *Reassembler) Feed(b []byte) {
	r.buf = append(r.buf, b...)
}

// Next extracts and decodes the next complete message, if one is
// buffered. It returns (nil, nil, false) when more data is needed.
//
// A header.Length outside [20, 2^24-1] is a fatal framing error
// (ErrFrameOverflow/ErrFrameTooShort/ErrBadVersion): the caller must
// close the connection with reason SocketFail (spec §4.3). A malformed
// AVP inside an otherwise well-framed message yields ErrTruncated —
// a codec error, not a framing error — which the caller may log and
// skip without closing the connection (spec §7).
func (r *Reassembler) Next() (msg *Message, err error, ok bool) {
	if len(r.buf) < HeaderLen {
		return nil, nil, false
	}
	h, decodeErr := DecodeHeader(r.buf)
	if decodeErr != nil {
		switch decodeErr {
		case ErrFrameOverflow, ErrFrameTooShort, ErrBadVersion:
			return nil, decodeErr, true // fatal: caller closes the connection
		default:
			return nil, nil, false
		}
	}
	if len(r.buf) < int(h.Length) {
		return nil, nil, false // wait for more data
	}

	frame := r.buf[:h.Length]
	m, decodeErr := DecodeMessage(frame, r.dict)
	r.buf = append([]byte(nil), r.buf[h.Length:]...)
	if decodeErr != nil {
		return nil, decodeErr, true
	}
	return m, nil, true
}

// Buffered returns the number of bytes currently held, undecoded.
func (r *Reassembler) Buffered() int { return len(r.buf) }
