package compose_test

import (
	"net/netip"
	"testing"

	"github.com/diameter-go/diameter/app/base"
	"github.com/diameter-go/diameter/compose"
	"github.com/diameter-go/diameter/dict"
	"github.com/diameter-go/diameter/diam"
)

// TestCERRoundTrip exercises spec scenario 2: build a
// CapabilitiesExchangeRequest, emit it to AVPs, populate a fresh
// struct from those AVPs, and check the values survive.
func TestCERRoundTrip(t *testing.T) {
	authApp := uint32(4)
	acctApp := uint32(4)
	originState := uint32(1689134718)
	firmware := uint32(16777216)

	req := &base.CapabilitiesExchangeRequest{
		OriginHost:        "dra2.gy.mno.net",
		OriginRealm:       "mno.net",
		HostIPAddress:     []diam.Address{{IP: netip.MustParseAddr("10.12.56.109")}},
		VendorID:          99999,
		ProductName:       "Dart Diameter Gy",
		OriginStateID:     &originState,
		SupportedVendorID: []uint32{10415},
		AuthApplicationID: []uint32{authApp},
		AcctApplicationID: []uint32{acctApp},
		InbandSecurityID:  []uint32{0},
		FirmwareRevision:  &firmware,
	}

	avps, err := compose.Emit(dict.Default, req)
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}

	var got base.CapabilitiesExchangeRequest
	if err := compose.Populate(dict.Default, avps, &got); err != nil {
		t.Fatalf("Populate: %v", err)
	}

	if got.OriginHost != req.OriginHost {
		t.Errorf("OriginHost = %q, want %q", got.OriginHost, req.OriginHost)
	}
	if got.ProductName != req.ProductName {
		t.Errorf("ProductName = %q, want %q", got.ProductName, req.ProductName)
	}
	if got.VendorID != req.VendorID {
		t.Errorf("VendorID = %d, want %d", got.VendorID, req.VendorID)
	}
	if len(got.AuthApplicationID) != 1 || got.AuthApplicationID[0] != authApp {
		t.Errorf("AuthApplicationID = %v, want [%d]", got.AuthApplicationID, authApp)
	}
	if got.FirmwareRevision == nil || *got.FirmwareRevision != firmware {
		t.Errorf("FirmwareRevision = %v, want %d", got.FirmwareRevision, firmware)
	}
}

// TestEmitMissingRequiredSequence checks that a required repeated AVP
// with zero elements fails Emit with MissingAVPError rather than
// silently producing no AVPs (spec §4.4: "Required entries with a nil
// value on emit fail with MissingAvp").
func TestEmitMissingRequiredSequence(t *testing.T) {
	req := &base.CapabilitiesExchangeRequest{
		OriginHost:  "dra2.gy.mno.net",
		OriginRealm: "mno.net",
		VendorID:    10415,
		// HostIPAddress intentionally left empty despite being required.
	}
	_, err := compose.Emit(dict.Default, req)
	if err == nil {
		t.Fatal("expected a MissingAVPError for an empty required HostIPAddress")
	}
}

// TestAdditionalAVPsPreserveArrivalOrder checks that AVPs the
// composition table doesn't declare round-trip through the
// "additional" field in the order they arrived (spec §3, §4.4).
func TestAdditionalAVPsPreserveArrivalOrder(t *testing.T) {
	req := &base.DeviceWatchdogRequest{
		OriginHost:  "dra2.gy.mno.net",
		OriginRealm: "mno.net",
	}
	avps, err := compose.Emit(dict.Default, req)
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}

	extra, err := extraAVP(dict.Default, dict.AVPUserName, "bob@mno.net")
	if err != nil {
		t.Fatalf("building extra AVP: %v", err)
	}
	avps = append(avps, extra)

	var got base.DeviceWatchdogRequest
	if err := compose.Populate(dict.Default, avps, &got); err != nil {
		t.Fatalf("Populate: %v", err)
	}
	if len(got.Additional) != 1 {
		t.Fatalf("Additional = %d AVPs, want 1", len(got.Additional))
	}
	if got.Additional[0].Code != dict.AVPUserName {
		t.Errorf("Additional[0].Code = %d, want %d", got.Additional[0].Code, dict.AVPUserName)
	}
}

func extraAVP(d diam.Dictionary, code uint32, value string) (*diam.AVP, error) {
	a, err := diam.NewAVP(d, 0, code, nil)
	if err != nil {
		return nil, err
	}
	if err := a.SetUTF8String(value); err != nil {
		return nil, err
	}
	return a, nil
}
