// Package base declares the RFC 6733 base-protocol commands —
// Capabilities-Exchange, Device-Watchdog, Disconnect-Peer — as ordinary
// Go structs whose `diam` tags drive package compose's Populate/Emit.
// Each request/answer pair is registered against dict.Default in
// init(), the way the teacher's plugins register themselves at
// package-load time (plugins/init.go and its per-handler init()).
package base

import (
	"github.com/diameter-go/diameter/compose"
	"github.com/diameter-go/diameter/diam"
	"github.com/diameter-go/diameter/dict"
)

// VendorSpecificApplicationID is the one base-protocol grouped AVP
// (spec §4.5 CER/CEA content rules).
type VendorSpecificApplicationID struct {
	VendorID          uint32  `diam:"code=266,required"`
	AuthApplicationID *uint32 `diam:"code=258"`
	AcctApplicationID *uint32 `diam:"code=259"`

	Additional compose.AdditionalAVPs `diam:"additional"`
}

// CapabilitiesExchangeRequest is CER (command 257, request).
type CapabilitiesExchangeRequest struct {
	OriginHost               string                         `diam:"code=264,required"`
	OriginRealm              string                         `diam:"code=296,required"`
	HostIPAddress            []diam.Address                 `diam:"code=257,required"`
	VendorID                 uint32                         `diam:"code=266,required"`
	ProductName              string                         `diam:"code=269"`
	OriginStateID            *uint32                        `diam:"code=278"`
	SupportedVendorID        []uint32                       `diam:"code=265"`
	AuthApplicationID        []uint32                       `diam:"code=258"`
	AcctApplicationID        []uint32                       `diam:"code=259"`
	VendorSpecificApplication []*VendorSpecificApplicationID `diam:"code=260"`
	InbandSecurityID         []uint32                       `diam:"code=299"`
	FirmwareRevision         *uint32                        `diam:"code=267"`

	Additional compose.AdditionalAVPs `diam:"additional"`
}

// CapabilitiesExchangeAnswer is CEA (command 257, answer). Non-proxyable
// per spec §4.5.
type CapabilitiesExchangeAnswer struct {
	ResultCode               uint32                         `diam:"code=268,required"`
	OriginHost               string                         `diam:"code=264,required"`
	OriginRealm              string                         `diam:"code=296,required"`
	HostIPAddress            []diam.Address                 `diam:"code=257,required"`
	VendorID                 uint32                         `diam:"code=266,required"`
	ProductName              string                         `diam:"code=269"`
	OriginStateID            *uint32                        `diam:"code=278"`
	ErrorMessage             *string                        `diam:"code=281"`
	FailedAVP                *FailedAVP                     `diam:"code=279"`
	SupportedVendorID        []uint32                       `diam:"code=265"`
	AuthApplicationID        []uint32                       `diam:"code=258"`
	AcctApplicationID        []uint32                       `diam:"code=259"`
	VendorSpecificApplication []*VendorSpecificApplicationID `diam:"code=260"`
	InbandSecurityID         []uint32                       `diam:"code=299"`
	FirmwareRevision         *uint32                        `diam:"code=267"`

	Additional compose.AdditionalAVPs `diam:"additional"`
}

// FailedAVP carries the offending AVPs for a MissingAvp/InvalidAvpValue
// answer (spec §7). The offenders themselves are arbitrary AVPs, so
// they travel in Additional rather than as declared entries.
type FailedAVP struct {
	Additional compose.AdditionalAVPs `diam:"additional"`
}

// DeviceWatchdogRequest is DWR (command 280, request). Not proxyable.
type DeviceWatchdogRequest struct {
	OriginHost    string                  `diam:"code=264,required"`
	OriginRealm   string                  `diam:"code=296,required"`
	OriginStateID *uint32                 `diam:"code=278"`
	Additional    compose.AdditionalAVPs `diam:"additional"`
}

// DeviceWatchdogAnswer is DWA (command 280, answer). Not proxyable.
type DeviceWatchdogAnswer struct {
	ResultCode    uint32                  `diam:"code=268,required"`
	OriginHost    string                  `diam:"code=264,required"`
	OriginRealm   string                  `diam:"code=296,required"`
	OriginStateID *uint32                 `diam:"code=278"`
	ErrorMessage  *string                 `diam:"code=281"`
	Additional    compose.AdditionalAVPs `diam:"additional"`
}

// DisconnectPeerRequest is DPR (command 282, request).
type DisconnectPeerRequest struct {
	OriginHost      string                  `diam:"code=264,required"`
	OriginRealm     string                  `diam:"code=296,required"`
	DisconnectCause int32                   `diam:"code=273,required"`
	Additional      compose.AdditionalAVPs `diam:"additional"`
}

// DisconnectPeerAnswer is DPA (command 282, answer).
type DisconnectPeerAnswer struct {
	ResultCode   uint32                  `diam:"code=268,required"`
	OriginHost   string                  `diam:"code=264,required"`
	OriginRealm  string                  `diam:"code=296,required"`
	ErrorMessage *string                 `diam:"code=281"`
	Additional   compose.AdditionalAVPs `diam:"additional"`
}

// Disconnect-Cause enum values (RFC 6733 §5.4.3).
const (
	DisconnectCauseRebooting       int32 = 0
	DisconnectCauseBusy            int32 = 1
	DisconnectCauseDoNotWantToTalk int32 = 2
)

func init() {
	dict.Default.RegisterCommand(dict.CommandCapabilitiesExchange, dict.CommandFactories{
		NewRequest: func() any { return &CapabilitiesExchangeRequest{} },
		NewAnswer:  func() any { return &CapabilitiesExchangeAnswer{} },
	})
	dict.Default.RegisterCommand(dict.CommandDeviceWatchdog, dict.CommandFactories{
		NewRequest: func() any { return &DeviceWatchdogRequest{} },
		NewAnswer:  func() any { return &DeviceWatchdogAnswer{} },
	})
	dict.Default.RegisterCommand(dict.CommandDisconnectPeer, dict.CommandFactories{
		NewRequest: func() any { return &DisconnectPeerRequest{} },
		NewAnswer:  func() any { return &DisconnectPeerAnswer{} },
	})
}
