package diam

// Children returns the Grouped AVP's nested AVPs, parsing the raw
// payload on first access and caching the result. Per spec §3/§9, a
// Grouped AVP's two representations (raw payload, parsed children) are
// never both treated as authoritative: once parsed, SetGrouped/encode
// re-derives the payload from the children, and SetPayload invalidates
// the children cache.
func (a *AVP) Children(dict Dictionary) ([]*AVP, error) {
	if a.Type != GroupedType {
		return nil, ErrTypeMismatch
	}
	if a.groupedParsed {
		return a.groupedChildren, nil
	}
	children, err := decodeGroupedPayload(a.payload, dict)
	if err != nil {
		return nil, err
	}
	a.groupedChildren = children
	a.groupedParsed = true
	return children, nil
}

// SetGrouped replaces a Grouped AVP's children, marking the parsed
// representation authoritative; Payload()/Encode() will re-serialize
// from children.
func (a *AVP) SetGrouped(children []*AVP) {
	a.Type = GroupedType
	a.groupedChildren = children
	a.groupedParsed = true
}

// decodeGroupedPayload parses a concatenation of complete, individually
// padded AVPs, as found inside a Grouped AVP's payload.
func decodeGroupedPayload(payload []byte, dict Dictionary) ([]*AVP, error) {
	u := NewUnpacker(payload)
	var out []*AVP
	for !u.Done() {
		if u.Remaining() < 8 {
			return nil, ErrBadGrouped
		}
		child, err := DecodeAVP(u, dict)
		if err != nil {
			return nil, ErrBadGrouped
		}
		out = append(out, child)
	}
	return out, nil
}

// encodeGroupedPayload re-serializes a Grouped AVP's children into its
// raw payload field. Re-decoding immediately after yields the same
// children in the same order (spec §8, Grouped idempotence) as long as
// no child was reordered.
func (a *AVP) encodeGroupedPayload() {
	p := NewPacker(64)
	for _, child := range a.groupedChildren {
		child.Encode(p)
	}
	a.payload = p.Bytes()
}
