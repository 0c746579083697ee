package diam

// HeaderLen is the fixed Diameter message header size (spec §4.3, §6).
const HeaderLen = 20

// MaxMessageLen is the largest length a 24-bit length field can hold.
const MaxMessageLen = 1<<24 - 1

// DiameterVersion is the only version this codec accepts or emits.
const DiameterVersion = 1

// Header is the fixed 20-byte Diameter message header.
type Header struct {
	Version       byte
	Length        uint32 // 24-bit on the wire
	CmdFlags      byte
	CommandCode   uint32 // 24-bit on the wire
	ApplicationID uint32
	HopByHopID    uint32
	EndToEndID    uint32
}

// Message is a header plus an ordered sequence of AVPs, in insertion
// order (spec §3).
type Message struct {
	Header Header
	AVPs   []*AVP
}

// IsRequest reports whether the R bit is set.
func (m *Message) IsRequest() bool { return m.Header.CmdFlags&CmdFlagRequest != 0 }

// Encode serializes the message: AVPs first (to compute the length),
// then the header, per spec §4.3.
func (m *Message) Encode() []byte {
	avpBuf := NewPacker(64)
	for _, a := range m.AVPs {
		a.Encode(avpBuf)
	}
	m.Header.Length = uint32(HeaderLen + avpBuf.Len())

	out := NewPacker(HeaderLen + avpBuf.Len())
	out.WriteByte(DiameterVersion)
	out.WriteBytes(encode24(m.Header.Length))
	out.WriteByte(m.Header.CmdFlags)
	out.WriteBytes(encode24(m.Header.CommandCode))
	out.WriteUint32(m.Header.ApplicationID)
	out.WriteUint32(m.Header.HopByHopID)
	out.WriteUint32(m.Header.EndToEndID)
	out.WriteBytes(avpBuf.Bytes())
	return out.Bytes()
}

// DecodeHeader parses just the 20-byte header, validating version and
// the length lower bound. Callers use this to learn how many more
// bytes to read before calling DecodeMessage (spec §4.3).
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderLen {
		return Header{}, ErrTruncated
	}
	var h Header
	h.Version = buf[0]
	if h.Version != DiameterVersion {
		return Header{}, ErrBadVersion
	}
	h.Length = decode24(buf[1:4])
	if h.Length < HeaderLen {
		return Header{}, ErrFrameTooShort
	}
	if h.Length > MaxMessageLen {
		return Header{}, ErrFrameOverflow
	}
	h.CmdFlags = buf[4]
	h.CommandCode = decode24(buf[5:8])
	h.ApplicationID = decodeU32(buf[8:12])
	h.HopByHopID = decodeU32(buf[12:16])
	h.EndToEndID = decodeU32(buf[16:20])
	return h, nil
}

// DecodeMessage parses exactly one message from buf, which must
// contain exactly Header.Length bytes (the caller — the reassembly
// stage — is responsible for slicing that many bytes out of the
// stream, per spec §4.3).
//
// If an AVP is malformed, decoding halts at the last good AVP boundary
// and returns ErrTruncated along with the partial message decoded so
// far; callers must not treat that partial message as a normal decode
// result — spec §4.3 allows surfacing it only for diagnostics (e.g. a
// Failed-AVP answer).
func DecodeMessage(buf []byte, dict Dictionary) (*Message, error) {
	h, err := DecodeHeader(buf)
	if err != nil {
		return nil, err
	}
	if len(buf) < int(h.Length) {
		return nil, ErrTruncated
	}
	m := &Message{Header: h}
	u := NewUnpacker(buf[HeaderLen:h.Length])
	for !u.Done() {
		avp, err := DecodeAVP(u, dict)
		if err != nil {
			return m, ErrTruncated
		}
		m.AVPs = append(m.AVPs, avp)
	}
	return m, nil
}

func encode24(v uint32) []byte {
	return []byte{byte(v >> 16), byte(v >> 8), byte(v)}
}

func decode24(b []byte) uint32 {
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
}

func decodeU32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

// ToAnswer derives an answer header from a request header: R cleared,
// P copied, command-code/application-id/hop-by-hop/end-to-end
// preserved (spec §4.6, "to-answer derivation").
func (h Header) ToAnswer() Header {
	out := h
	out.CmdFlags = h.CmdFlags & CmdFlagProxyable
	return out
}
