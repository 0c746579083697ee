package diam

import (
	"bytes"
	"testing"
	"time"
)

// staticDict is a minimal in-test Dictionary used across these tests.
type staticDict map[uint64]AVPDef

func key(vendorID, code uint32) uint64 { return uint64(vendorID)<<32 | uint64(code) }

func (d staticDict) Lookup(vendorID, code uint32) (AVPDef, bool) {
	def, ok := d[key(vendorID, code)]
	return def, ok
}

func newTestDict() staticDict {
	return staticDict{
		key(0, 461): {Name: "Origin-Host", Type: UTF8StringType, Mandatory: true},
		key(0, 1):   {Name: "User-Name", Type: UTF8StringType, Mandatory: true},
		key(0, 443): {Name: "Subscription-Id", Type: GroupedType, Mandatory: false},
		key(0, 450): {Name: "Subscription-Id-Type", Type: Enumerated, Mandatory: false},
		key(0, 444): {Name: "Subscription-Id-Data", Type: UTF8StringType, Mandatory: false},
		key(0, 257): {Name: "Host-IP-Address", Type: AddressType, Mandatory: true},
	}
}

func TestDecodeOriginHostLiteral(t *testing.T) {
	// spec §8 scenario 1
	raw := []byte{
		0x00, 0x00, 0x01, 0xCD, 0x40, 0x00, 0x00, 0x16,
		0x33, 0x32, 0x32, 0x35, 0x31, 0x40, 0x33, 0x67,
		0x70, 0x70, 0x2E, 0x6F, 0x72, 0x67, 0x00, 0x00,
	}
	u := NewUnpacker(raw)
	a, err := DecodeAVP(u, newTestDict())
	if err != nil {
		t.Fatalf("DecodeAVP: %v", err)
	}
	if a.Code != 461 {
		t.Errorf("Code = %d, want 461", a.Code)
	}
	if a.Flags&FlagMBit == 0 {
		t.Error("M flag not set")
	}
	if a.Flags&(FlagVendor|FlagPBit) != 0 {
		t.Error("V/P flags should be unset")
	}
	got, err := a.UTF8String(false)
	if err != nil {
		t.Fatalf("UTF8String: %v", err)
	}
	if got != "32251@3gpp.org" {
		t.Errorf("value = %q, want 32251@3gpp.org", got)
	}
	if a.PaddedLen() != 24 {
		t.Errorf("PaddedLen() = %d, want 24", a.PaddedLen())
	}
}

func TestAVPRoundTrip(t *testing.T) {
	dict := newTestDict()
	a, err := NewAVP(dict, 0, 1, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := a.SetUTF8String("alice@example.com"); err != nil {
		t.Fatal(err)
	}

	p := NewPacker(32)
	a.Encode(p)

	u := NewUnpacker(p.Bytes())
	decoded, err := DecodeAVP(u, dict)
	if err != nil {
		t.Fatalf("DecodeAVP: %v", err)
	}
	if !a.Equal(decoded) {
		t.Errorf("round-trip mismatch: %+v vs %+v", a, decoded)
	}
	if !u.Done() {
		t.Errorf("unpacker not exhausted: %d bytes left", u.Remaining())
	}
}

func TestAVPPaddingIsMultipleOf4(t *testing.T) {
	dict := newTestDict()
	for _, s := range []string{"", "a", "ab", "abc", "abcd", "abcde"} {
		a, _ := NewAVP(dict, 0, 1, nil)
		_ = a.SetUTF8String(s)
		if a.PaddedLen()%4 != 0 {
			t.Errorf("payload %q: PaddedLen() = %d not a multiple of 4", s, a.PaddedLen())
		}
		p := NewPacker(32)
		a.Encode(p)
		if len(p.Bytes())%4 != 0 {
			t.Errorf("payload %q: encoded length %d not a multiple of 4", s, len(p.Bytes()))
		}
	}
}

func TestVFlagConsistency(t *testing.T) {
	dict := newTestDict()
	for _, vendor := range []uint32{0, 10415} {
		a, err := NewAVP(dict, vendor, 1, nil)
		if err != nil {
			t.Fatal(err)
		}
		hasV := a.Flags&FlagVendor != 0
		wantV := vendor != 0
		if hasV != wantV {
			t.Errorf("vendor=%d: V flag=%v, want %v", vendor, hasV, wantV)
		}
	}
}

func TestEmptyAVPIsHeaderOnly(t *testing.T) {
	dict := newTestDict()
	a, _ := NewAVP(dict, 0, 1, nil)
	_ = a.SetUTF8String("")
	if !a.IsEmpty() {
		t.Fatal("expected empty payload")
	}
	if a.Len() != 8 {
		t.Errorf("Len() = %d, want 8 (header-only, not 0)", a.Len())
	}
	av, _ := NewAVP(dict, 99999, 1, nil)
	_ = av.SetUTF8String("")
	if av.Len() != 12 {
		t.Errorf("vendor Len() = %d, want 12", av.Len())
	}
}

func TestAddressFamilies(t *testing.T) {
	dict := newTestDict()

	a, _ := NewAVP(dict, 0, 257, nil)
	if err := a.SetAddress("193.16.219.96"); err != nil {
		t.Fatal(err)
	}
	want := []byte{0x00, 0x01, 0xC1, 0x10, 0xDB, 0x60}
	if !bytes.Equal(a.Payload(), want) {
		t.Errorf("IPv4 payload = % X, want % X", a.Payload(), want)
	}

	b, _ := NewAVP(dict, 0, 257, nil)
	if err := b.SetAddress("8b71:8c8a:1e29:716a:6184:7966:fd43:4200"); err != nil {
		t.Fatal(err)
	}
	bv, err := b.AddressValue()
	if err != nil {
		t.Fatal(err)
	}
	if bv.Family != AddrFamilyIPv6 || len(b.Payload()) != 18 {
		t.Errorf("IPv6 family=%d payload len=%d", bv.Family, len(b.Payload()))
	}

	c, _ := NewAVP(dict, 0, 257, nil)
	if err := c.SetAddress("48507909008"); err != nil {
		t.Fatal(err)
	}
	cv, err := c.AddressValue()
	if err != nil {
		t.Fatal(err)
	}
	if cv.Family != AddrFamilyE164 || cv.Digits != "48507909008" {
		t.Errorf("E.164 decode = %+v", cv)
	}
}

func TestGroupedSubscriptionID(t *testing.T) {
	dict := newTestDict()

	idType, _ := NewAVP(dict, 0, 450, nil)
	idType.SetInt32(0)

	idData, _ := NewAVP(dict, 0, 444, nil)
	if err := idData.SetUTF8String("485079164547"); err != nil {
		t.Fatal(err)
	}

	group, _ := NewAVP(dict, 0, 443, nil)
	group.SetGrouped([]*AVP{idType, idData})

	payload := group.Payload()
	if len(payload)%4 != 0 {
		t.Fatalf("grouped payload not padded: %d bytes", len(payload))
	}

	reloaded := &AVP{Code: 443, Type: GroupedType}
	reloaded.SetPayload(payload)
	children, err := reloaded.Children(dict)
	if err != nil {
		t.Fatalf("Children: %v", err)
	}
	if len(children) != 2 {
		t.Fatalf("got %d children, want 2", len(children))
	}
	gotType, err := children[0].Int32()
	if err != nil || gotType != 0 {
		t.Errorf("child[0] Subscription-Id-Type = %d, err=%v", gotType, err)
	}
	gotData, err := children[1].UTF8String(false)
	if err != nil || gotData != "485079164547" {
		t.Errorf("child[1] Subscription-Id-Data = %q, err=%v", gotData, err)
	}
}

func TestGroupedIdempotence(t *testing.T) {
	dict := newTestDict()
	idType, _ := NewAVP(dict, 0, 450, nil)
	idType.SetInt32(1)
	idData, _ := NewAVP(dict, 0, 444, nil)
	_ = idData.SetUTF8String("12345")

	group, _ := NewAVP(dict, 0, 443, nil)
	group.SetGrouped([]*AVP{idType, idData})
	payload1 := append([]byte(nil), group.Payload()...)

	// Force a re-parse then re-encode; bytes must match exactly.
	group.groupedParsed = false
	group.payload = payload1
	children, err := group.Children(dict)
	if err != nil {
		t.Fatal(err)
	}
	group.SetGrouped(children)
	payload2 := group.Payload()
	if !bytes.Equal(payload1, payload2) {
		t.Errorf("grouped payload changed after parse+re-encode:\n%v\n%v", payload1, payload2)
	}
}

func TestTimeRoundTrip(t *testing.T) {
	cases := []time.Time{
		time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2000, 6, 15, 12, 30, 45, 0, time.UTC),
		time.Date(2035, 12, 31, 23, 59, 59, 0, time.UTC),
	}
	for _, want := range cases {
		a := &AVP{}
		a.SetTime(want)
		got, err := a.Time()
		if err != nil {
			t.Fatal(err)
		}
		if !got.Equal(want) {
			t.Errorf("Time round-trip: got %v, want %v", got, want)
		}
	}
}

func TestUnknownAVPFailsAtConstruction(t *testing.T) {
	dict := newTestDict()
	if _, err := NewAVP(dict, 0, 999999, nil); err != ErrUnknownAVP {
		t.Errorf("err = %v, want ErrUnknownAVP", err)
	}
}

func TestDecodeUnknownAVPIsGenericOctetString(t *testing.T) {
	dict := newTestDict()
	raw := &AVP{Code: 999999, Type: OctetStringType}
	raw.SetPayload([]byte("hello"))
	p := NewPacker(32)
	raw.Encode(p)

	u := NewUnpacker(p.Bytes())
	decoded, err := DecodeAVP(u, dict)
	if err != nil {
		t.Fatal(err)
	}
	if decoded.Type != OctetStringType || decoded.Name != "" {
		t.Errorf("unknown AVP decoded as %+v", decoded)
	}
}
