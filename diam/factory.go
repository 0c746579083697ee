package diam

// NewAVP constructs an AVP through the dictionary: the M flag defaults
// to the dictionary's declared mandatory bit unless mandatoryOverride
// is non-nil, and the V flag is always the pure function of vendorID —
// callers can never set it directly (spec §4.2, Mandatory-flag
// policy). As in DecodeAVP, a (vendorID, code) pair with no entry of
// its own falls back to the vendor-0 entry for code. Returns
// ErrUnknownAVP if code has no dictionary entry, never silently
// (spec §4.4).
func NewAVP(dict Dictionary, vendorID, code uint32, mandatoryOverride *bool) (*AVP, error) {
	def, ok := dict.Lookup(vendorID, code)
	if !ok {
		def, ok = dict.Lookup(0, code)
	}
	if !ok {
		return nil, ErrUnknownAVP
	}
	flags := byte(0)
	mandatory := def.Mandatory
	if mandatoryOverride != nil {
		mandatory = *mandatoryOverride
	}
	if mandatory {
		flags |= FlagMBit
	}
	if vendorID != 0 {
		flags |= FlagVendor
	}
	return &AVP{
		Code:     code,
		VendorID: vendorID,
		Flags:    flags,
		Name:     def.Name,
		Type:     def.Type,
	}, nil
}
