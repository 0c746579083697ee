package compose

import "fmt"

// MissingAVPError reports a required composition-table entry that had
// no matching AVP on Populate, or a nil/empty value on Emit.
type MissingAVPError struct {
	Attribute string
	Code      uint32
	VendorID  uint32
}

func (e *MissingAVPError) Error() string {
	if e.VendorID != 0 {
		return fmt.Sprintf("compose: missing required AVP %s (code=%d, vendor=%d)", e.Attribute, e.Code, e.VendorID)
	}
	return fmt.Sprintf("compose: missing required AVP %s (code=%d)", e.Attribute, e.Code)
}

// InvalidAVPValueError wraps a decode/encode failure for one field.
type InvalidAVPValueError struct {
	Attribute string
	Code      uint32
	Cause     error
}

func (e *InvalidAVPValueError) Error() string {
	return fmt.Sprintf("compose: invalid value for %s (code=%d): %v", e.Attribute, e.Code, e.Cause)
}

func (e *InvalidAVPValueError) Unwrap() error { return e.Cause }
