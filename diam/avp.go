// Package diam implements the Diameter (RFC 6733) wire codec: AVPs and
// Messages, their big-endian binary encoding, and stream reassembly.
// The codec is pure — it never blocks and never touches a network
// connection (spec §5).
package diam

// Flags bits for both AVP and Message-command flags bytes.
const (
	FlagVendor byte = 0x80 // AVP V bit
	FlagMBit   byte = 0x40 // AVP M bit
	FlagPBit   byte = 0x20 // AVP P bit (also Message Proxyable bit)

	CmdFlagRequest    byte = 0x80 // R
	CmdFlagProxyable  byte = 0x40 // P
	CmdFlagError      byte = 0x20 // E
	CmdFlagRetransmit byte = 0x10 // T
)

// Type identifies an AVP's semantic wire type, as declared by the
// dictionary. Enumerated is a synonym for Integer32 at the wire level.
type Type int

const (
	Unknown Type = iota
	Integer32
	Integer64
	Unsigned32
	Unsigned64
	Float32Type
	Float64Type
	OctetStringType
	UTF8StringType
	AddressType
	TimeType
	Enumerated
	GroupedType
)

// AVP is the unit of structured data in a Diameter message. The raw
// payload is stored unpadded; on-wire length and padding are derived at
// encode time. See spec §3 for the full invariant list.
type AVP struct {
	Code     uint32
	VendorID uint32 // 0 means "no vendor"
	Flags    byte
	Name     string // derived from the dictionary; empty for unknown AVPs
	Type     Type

	payload []byte // raw, unpadded

	// Grouped AVPs memoize their decoded children behind an explicit
	// two-state cache: either the raw payload is authoritative, or the
	// parsed list is, never both at once ambiguously (spec §9).
	groupedChildren []*AVP
	groupedParsed   bool
}

// HasVendor reports whether the V flag is set. Constructors must keep
// this a pure function of VendorID — it is never set independently
// (spec §4.2, Mandatory-flag policy).
func (a *AVP) HasVendor() bool { return a.VendorID != 0 }

// HeaderLen returns 8, or 12 when a vendor-id is present.
func (a *AVP) HeaderLen() int {
	if a.HasVendor() {
		return 12
	}
	return 8
}

// Len returns the value of the AVP Length field: header plus unpadded
// payload. Padding is excluded; PaddedLen includes it. An AVP with
// an empty payload is valid and reports header-only length — the
// original's `length==0` special case for empty payloads is a defect,
// not replicated (spec §9, Open Question 1).
func (a *AVP) Len() int {
	return a.HeaderLen() + len(a.payload)
}

// PaddedLen returns Len() rounded up to the next multiple of 4 — the
// number of bytes this AVP actually occupies on the wire.
func (a *AVP) PaddedLen() int {
	l := a.Len()
	return l + padLen(l)
}

// Payload returns the raw, unpadded payload bytes. For Grouped AVPs
// whose children were set via SetGrouped, this re-encodes them first.
func (a *AVP) Payload() []byte {
	if a.Type == GroupedType && a.groupedParsed {
		a.encodeGroupedPayload()
	}
	return a.payload
}

// SetPayload replaces the raw payload directly. Any cached grouped
// children are invalidated since the raw representation is now
// authoritative (spec §9).
func (a *AVP) SetPayload(b []byte) {
	a.payload = b
	a.groupedChildren = nil
	a.groupedParsed = false
}

// IsEmpty reports whether the payload is zero-length.
func (a *AVP) IsEmpty() bool { return len(a.payload) == 0 }

// Equal compares two AVPs for the round-trip property in spec §8:
// code, vendor-id, flags, type, and payload bytes must match. Padding
// is never part of equality.
func (a *AVP) Equal(b *AVP) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Code != b.Code || a.VendorID != b.VendorID || a.Flags != b.Flags || a.Type != b.Type {
		return false
	}
	ap, bp := a.Payload(), b.Payload()
	if len(ap) != len(bp) {
		return false
	}
	for i := range ap {
		if ap[i] != bp[i] {
			return false
		}
	}
	return true
}

// Encode writes the AVP's wire representation (header, payload, and
// padding) into p.
func (a *AVP) Encode(p *Packer) {
	p.WriteUint32(a.Code)
	flags := a.Flags
	if a.HasVendor() {
		flags |= FlagVendor
	} else {
		flags &^= FlagVendor
	}
	lengthWord := (uint32(flags) << 24) | (uint32(a.Len()) & 0x00FFFFFF)
	p.WriteUint32(lengthWord)
	if a.HasVendor() {
		p.WriteUint32(a.VendorID)
	}
	p.WriteOpaque(a.Payload())
}

// DecodeAVP reads one AVP header+payload (with padding) from u,
// resolving its type and name via dict. An unrecognized (vendor-id,
// code) pair yields a generic OctetString AVP carrying the raw
// payload, per spec §4.2.
func DecodeAVP(u *Unpacker, dict Dictionary) (*AVP, error) {
	code, err := u.ConsumeUint32()
	if err != nil {
		return nil, err
	}
	word, err := u.ConsumeUint32()
	if err != nil {
		return nil, err
	}
	flags := byte(word >> 24)
	length := int(word & 0x00FFFFFF)

	var vendorID uint32
	headerLen := 8
	if flags&FlagVendor != 0 {
		vendorID, err = u.ConsumeUint32()
		if err != nil {
			return nil, err
		}
		headerLen = 12
	}
	if length < headerLen {
		return nil, ErrBadLength
	}
	payloadLen := length - headerLen
	payload, err := u.ConsumeOpaque(payloadLen)
	if err != nil {
		return nil, err
	}

	avp := &AVP{Code: code, VendorID: vendorID, Flags: flags & (FlagVendor | FlagMBit | FlagPBit)}
	avp.SetPayload(append([]byte(nil), payload...))

	avp.Type = OctetStringType
	if dict != nil {
		def, ok := dict.Lookup(vendorID, code)
		if !ok {
			def, ok = dict.Lookup(0, code)
		}
		if ok {
			avp.Name = def.Name
			avp.Type = def.Type
		}
	}
	return avp, nil
}

// Dictionary is the narrow interface the AVP codec needs from the
// dictionary component — see package dict for the concrete
// implementation. Kept here (rather than importing package dict) to
// avoid a cyclic dependency between the wire codec and the
// dictionary-driven typed layer.
type Dictionary interface {
	Lookup(vendorID, code uint32) (AVPDef, bool)
}

// AVPDef is the dictionary's declaration for one AVP code.
type AVPDef struct {
	Name      string
	Type      Type
	Mandatory bool
}
