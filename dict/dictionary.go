// Package dict holds the dictionary the rest of the library is
// driven by: AVP code (optionally vendor-qualified) to (name, type,
// mandatory), and command code to a pair of typed-message factories.
// The dictionary's contents are treated as opaque static data tables —
// spec §1 names the contents themselves an external collaborator; this
// package only defines the registry mechanism and ships RFC 6733's
// base tables.
package dict

import (
	"fmt"
	"sync"

	"github.com/diameter-go/diameter/diam"
)

// avpKey packs (vendorID, code) into a single map key, the way the
// teacher's plugin registry packs a type+name pair (see
// plugin.RegisterPluginType/RegisterPlugin, generalized here from a
// string key to a numeric one).
type avpKey struct {
	vendorID uint32
	code     uint32
}

// CommandFactories produces empty request/answer typed messages for one
// command code. A command-code table maps to one of these — see
// package compose for the typed-message side of this.
type CommandFactories struct {
	NewRequest func() any
	NewAnswer  func() any
}

// Dictionary is a registry of AVP and command definitions. It
// satisfies diam.Dictionary so the wire codec can resolve AVP types
// without importing this package.
type Dictionary struct {
	mu       sync.RWMutex
	avps     map[avpKey]diam.AVPDef
	commands map[uint32]CommandFactories
}

// New returns an empty Dictionary.
func New() *Dictionary {
	return &Dictionary{
		avps:     make(map[avpKey]diam.AVPDef),
		commands: make(map[uint32]CommandFactories),
	}
}

// RegisterAVP adds (or overwrites) an AVP definition. Called from
// package init() in base.go and available to per-application packages
// (any 3GPP extension package), mirroring the teacher's
// plugins/init.go registration-at-init-time idiom.
func (d *Dictionary) RegisterAVP(vendorID, code uint32, name string, typ diam.Type, mandatory bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.avps[avpKey{vendorID, code}] = diam.AVPDef{Name: name, Type: typ, Mandatory: mandatory}
}

// Lookup implements diam.Dictionary.
func (d *Dictionary) Lookup(vendorID, code uint32) (diam.AVPDef, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	def, ok := d.avps[avpKey{vendorID, code}]
	return def, ok
}

// RegisterCommand associates a command code with request/answer
// factories.
func (d *Dictionary) RegisterCommand(code uint32, f CommandFactories) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.commands[code] = f
}

// CommandFactory returns the registered factories for code, if any.
func (d *Dictionary) CommandFactory(code uint32) (CommandFactories, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	f, ok := d.commands[code]
	return f, ok
}

// MustLookup panics if code/vendorID has no definition. Nothing in this
// module calls it; the decode path uses Lookup.
func (d *Dictionary) MustLookup(vendorID, code uint32) diam.AVPDef {
	def, ok := d.Lookup(vendorID, code)
	if !ok {
		panic(fmt.Sprintf("dict: no definition for vendor=%d code=%d", vendorID, code))
	}
	return def
}

// Default is the process-wide base dictionary, pre-loaded with RFC
// 6733's base AVPs by base.go's init(); the base commands are
// registered on it by package app/base's init().
var Default = New()
