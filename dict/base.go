package dict

import "github.com/diameter-go/diameter/diam"

// Standard Result-Code values the core must recognize (spec §7).
const (
	ResultSuccess                uint32 = 2001
	ResultLimitedSuccess         uint32 = 2002
	ResultUnableToComply         uint32 = 5012
	ResultApplicationUnsupported uint32 = 3007
	ResultInvalidAVPValue        uint32 = 5004
	ResultMissingAVP             uint32 = 5005
	ResultSessionExists          uint32 = 4002
)

// Base protocol command codes (spec glossary).
const (
	CommandCapabilitiesExchange uint32 = 257
	CommandDeviceWatchdog       uint32 = 280
	CommandDisconnectPeer       uint32 = 282
)

// Base AVP codes used by CER/CEA/DWR/DWA/DPR/DPA (spec §4.5) plus the
// handful of data-carrying AVPs exercised by the literal scenarios in
// spec §8 (Origin-Host, Subscription-Id, ...).
const (
	AVPSessionID                  uint32 = 263
	AVPOriginHost                 uint32 = 264
	AVPOriginRealm                uint32 = 296
	AVPHostIPAddress              uint32 = 257
	AVPVendorID                   uint32 = 266
	AVPProductName                uint32 = 269
	AVPOriginStateID              uint32 = 278
	AVPSupportedVendorID          uint32 = 265
	AVPAuthApplicationID          uint32 = 258
	AVPAcctApplicationID          uint32 = 259
	AVPVendorSpecificApplicationID uint32 = 260
	AVPInbandSecurityID           uint32 = 299
	AVPFirmwareRevision           uint32 = 267
	AVPResultCode                 uint32 = 268
	AVPDisconnectCause            uint32 = 273
	AVPErrorMessage               uint32 = 281
	AVPFailedAVP                  uint32 = 279
	AVPUserName                   uint32 = 1
	AVPSubscriptionID             uint32 = 443
	AVPSubscriptionIDType         uint32 = 450
	AVPSubscriptionIDData         uint32 = 444
)

func init() {
	reg := Default.RegisterAVP

	reg(0, AVPSessionID, "Session-Id", diam.UTF8StringType, true)
	reg(0, AVPOriginHost, "Origin-Host", diam.UTF8StringType, true)
	reg(0, AVPOriginRealm, "Origin-Realm", diam.UTF8StringType, true)
	reg(0, AVPHostIPAddress, "Host-IP-Address", diam.AddressType, true)
	reg(0, AVPVendorID, "Vendor-Id", diam.Unsigned32, true)
	reg(0, AVPProductName, "Product-Name", diam.UTF8StringType, false)
	reg(0, AVPOriginStateID, "Origin-State-Id", diam.Unsigned32, false)
	reg(0, AVPSupportedVendorID, "Supported-Vendor-Id", diam.Unsigned32, true)
	reg(0, AVPAuthApplicationID, "Auth-Application-Id", diam.Unsigned32, true)
	reg(0, AVPAcctApplicationID, "Acct-Application-Id", diam.Unsigned32, true)
	reg(0, AVPVendorSpecificApplicationID, "Vendor-Specific-Application-Id", diam.GroupedType, true)
	reg(0, AVPInbandSecurityID, "Inband-Security-Id", diam.Unsigned32, false)
	reg(0, AVPFirmwareRevision, "Firmware-Revision", diam.Unsigned32, false)
	reg(0, AVPResultCode, "Result-Code", diam.Unsigned32, true)
	reg(0, AVPDisconnectCause, "Disconnect-Cause", diam.Enumerated, true)
	reg(0, AVPErrorMessage, "Error-Message", diam.UTF8StringType, false)
	reg(0, AVPFailedAVP, "Failed-AVP", diam.GroupedType, true)
	reg(0, AVPUserName, "User-Name", diam.UTF8StringType, true)
	reg(0, AVPSubscriptionID, "Subscription-Id", diam.GroupedType, false)
	reg(0, AVPSubscriptionIDType, "Subscription-Id-Type", diam.Enumerated, false)
	reg(0, AVPSubscriptionIDData, "Subscription-Id-Data", diam.UTF8StringType, false)
}
