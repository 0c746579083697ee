package diam

import (
	"encoding/binary"
	"math"
	"net/netip"
	"time"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// ntpEpochOffset is the number of seconds between the NTP epoch
// (1900-01-01 UTC) and the Unix epoch (1970-01-01 UTC), per spec §3
// Time AVP.
const ntpEpochOffset = 2208988800

// Address family tags, per spec §3.
const (
	AddrFamilyIPv4 uint16 = 1
	AddrFamilyIPv6 uint16 = 2
	AddrFamilyE164 uint16 = 8
)

// Address is the decoded value of an Address-typed AVP.
type Address struct {
	Family uint16
	// IP holds the decoded value for family 1 (IPv4) and 2 (IPv6).
	IP netip.Addr
	// Digits holds the decoded value for family 8 (E.164).
	Digits string
	// Raw holds the family-specific bytes verbatim for any other
	// family, decoded as hex text in String().
	Raw []byte
}

// Int32 decodes an Integer32 or Enumerated AVP's payload.
func (a *AVP) Int32() (int32, error) {
	if a.Type != Integer32 && a.Type != Enumerated {
		return 0, ErrTypeMismatch
	}
	p := a.Payload()
	if len(p) != 4 {
		return 0, ErrBadLength
	}
	return int32(binary.BigEndian.Uint32(p)), nil
}

// SetInt32 encodes v as a 4-byte signed payload.
func (a *AVP) SetInt32(v int32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(v))
	a.SetPayload(b[:])
}

// Int64 decodes an Integer64 AVP's payload.
func (a *AVP) Int64() (int64, error) {
	if a.Type != Integer64 {
		return 0, ErrTypeMismatch
	}
	p := a.Payload()
	if len(p) != 8 {
		return 0, ErrBadLength
	}
	return int64(binary.BigEndian.Uint64(p)), nil
}

// SetInt64 encodes v as an 8-byte signed payload.
func (a *AVP) SetInt64(v int64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	a.SetPayload(b[:])
}

// Uint32 decodes an Unsigned32 AVP's payload.
func (a *AVP) Uint32() (uint32, error) {
	if a.Type != Unsigned32 {
		return 0, ErrTypeMismatch
	}
	p := a.Payload()
	if len(p) != 4 {
		return 0, ErrBadLength
	}
	return binary.BigEndian.Uint32(p), nil
}

// SetUint32 encodes v as a 4-byte unsigned payload.
func (a *AVP) SetUint32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	a.SetPayload(b[:])
}

// Uint64 decodes an Unsigned64 AVP's payload.
func (a *AVP) Uint64() (uint64, error) {
	if a.Type != Unsigned64 {
		return 0, ErrTypeMismatch
	}
	p := a.Payload()
	if len(p) != 8 {
		return 0, ErrBadLength
	}
	return binary.BigEndian.Uint64(p), nil
}

// SetUint64 encodes v as an 8-byte unsigned payload.
func (a *AVP) SetUint64(v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	a.SetPayload(b[:])
}

// Float32 decodes a Float32 AVP's IEEE-754 payload.
func (a *AVP) Float32() (float32, error) {
	if a.Type != Float32Type {
		return 0, ErrTypeMismatch
	}
	p := a.Payload()
	if len(p) != 4 {
		return 0, ErrBadLength
	}
	return math.Float32frombits(binary.BigEndian.Uint32(p)), nil
}

// SetFloat32 encodes v as a 4-byte big-endian IEEE-754 payload.
func (a *AVP) SetFloat32(v float32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], math.Float32bits(v))
	a.SetPayload(b[:])
}

// Float64 decodes a Float64 AVP's IEEE-754 payload.
func (a *AVP) Float64() (float64, error) {
	if a.Type != Float64Type {
		return 0, ErrTypeMismatch
	}
	p := a.Payload()
	if len(p) != 8 {
		return 0, ErrBadLength
	}
	return math.Float64frombits(binary.BigEndian.Uint64(p)), nil
}

// SetFloat64 encodes v as an 8-byte big-endian IEEE-754 payload.
func (a *AVP) SetFloat64(v float64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], math.Float64bits(v))
	a.SetPayload(b[:])
}

// OctetString returns the raw payload bytes.
func (a *AVP) OctetString() ([]byte, error) {
	if a.Type != OctetStringType {
		return nil, ErrTypeMismatch
	}
	return a.Payload(), nil
}

// SetOctetString sets the payload verbatim.
func (a *AVP) SetOctetString(b []byte) {
	a.SetPayload(b)
}

// UTF8String decodes a UTF8String AVP, validating well-formedness. In
// strict mode (chosen by the caller; the dictionary carries no strict
// flag) it additionally requires the text to be in Unicode
// Normalization Form C, rejecting payloads that a naive utf8.Valid
// check would let through (e.g. a
// decomposed-then-reassembled homoglyph in an Origin-Host-adjacent
// field); most AVPs are decoded non-strict.
func (a *AVP) UTF8String(strict bool) (string, error) {
	if a.Type != UTF8StringType {
		return "", ErrTypeMismatch
	}
	p := a.Payload()
	if !utf8.Valid(p) {
		return "", ErrBadUTF8
	}
	if strict && !norm.NFC.IsNormal(p) {
		return "", ErrBadUTF8
	}
	return string(p), nil
}

// SetUTF8String validates and encodes a UTF8String payload.
func (a *AVP) SetUTF8String(s string) error {
	if !utf8.ValidString(s) {
		return ErrBadUTF8
	}
	a.SetPayload([]byte(s))
	return nil
}

// AddressValue decodes an Address AVP's 2-byte family tag followed by
// family-specific bytes (spec §3).
func (a *AVP) AddressValue() (Address, error) {
	if a.Type != AddressType {
		return Address{}, ErrTypeMismatch
	}
	p := a.Payload()
	if len(p) < 2 {
		return Address{}, ErrBadAddress
	}
	family := binary.BigEndian.Uint16(p[:2])
	rest := p[2:]
	switch family {
	case AddrFamilyIPv4:
		if len(rest) != 4 {
			return Address{}, ErrBadAddress
		}
		ip, ok := netip.AddrFromSlice(rest)
		if !ok {
			return Address{}, ErrBadAddress
		}
		return Address{Family: family, IP: ip}, nil
	case AddrFamilyIPv6:
		if len(rest) != 16 {
			return Address{}, ErrBadAddress
		}
		ip, ok := netip.AddrFromSlice(rest)
		if !ok {
			return Address{}, ErrBadAddress
		}
		return Address{Family: family, IP: ip}, nil
	case AddrFamilyE164:
		if !utf8.Valid(rest) {
			return Address{}, ErrBadAddress
		}
		return Address{Family: family, Digits: string(rest)}, nil
	default:
		return Address{Family: family, Raw: append([]byte(nil), rest...)}, nil
	}
}

// SetAddress encodes the textual form of an address the way the
// Address AVP factory does: an IPv4 dotted-quad or IPv6 textual form
// selects family 1/2; anything else consisting only of ASCII digits
// (and an optional leading '+') is treated as E.164 (family 8).
func (a *AVP) SetAddress(text string) error {
	if ip, err := netip.ParseAddr(text); err == nil {
		p := make([]byte, 2)
		if ip.Is4() {
			binary.BigEndian.PutUint16(p, AddrFamilyIPv4)
			b := ip.As4()
			p = append(p, b[:]...)
		} else {
			binary.BigEndian.PutUint16(p, AddrFamilyIPv6)
			b := ip.As16()
			p = append(p, b[:]...)
		}
		a.Type = AddressType
		a.SetPayload(p)
		return nil
	}
	if isE164(text) {
		p := make([]byte, 2, 2+len(text))
		binary.BigEndian.PutUint16(p, AddrFamilyE164)
		p = append(p, text...)
		a.Type = AddressType
		a.SetPayload(p)
		return nil
	}
	return ErrBadAddress
}

func isE164(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == '+' && i == 0 {
			continue
		}
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Time decodes a Time AVP: unsigned 32-bit NTP seconds since
// 1900-01-01 UTC, converted to a POSIX instant (spec §3).
func (a *AVP) Time() (time.Time, error) {
	if a.Type != TimeType {
		return time.Time{}, ErrTypeMismatch
	}
	p := a.Payload()
	if len(p) != 4 {
		return time.Time{}, ErrBadLength
	}
	ntp := binary.BigEndian.Uint32(p)
	return time.Unix(int64(ntp)-ntpEpochOffset, 0).UTC(), nil
}

// SetTime encodes t as NTP seconds since 1900-01-01 UTC, truncated to
// whole seconds.
func (a *AVP) SetTime(t time.Time) {
	ntp := uint32(t.Unix() + ntpEpochOffset)
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], ntp)
	a.Type = TimeType
	a.SetPayload(b[:])
}
