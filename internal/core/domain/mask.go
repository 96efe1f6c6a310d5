package domain

import (
	"fmt"
	"strings"
)

// Mask is the set of capabilities a session was minted with. The zero value
// grants nothing. Masks are only built through NewMask and ParseMask so that
// GENERAL never coexists with registration-in-progress capabilities.
type Mask struct {
	bits uint32
}

// Capability is a single permission flag.
type Capability uint32

const (
	// General is full authenticated access. Implies a complete profile.
	General Capability = 1 << iota
	// PutProfile allows creating or completing a profile.
	PutProfile
	// DeleteAccount allows deleting the owning account.
	DeleteAccount
)

const knownCapabilities = uint32(General | PutProfile | DeleteAccount)

var (
	MaskGeneral      = Mask{bits: uint32(General)}
	MaskRegister     = Mask{bits: uint32(PutProfile)}
	MaskRegisterFull = Mask{bits: uint32(PutProfile | DeleteAccount)}
)

// NewMask combines capabilities, rejecting invalid combinations.
func NewMask(caps ...Capability) (Mask, error) {
	var bits uint32
	for _, c := range caps {
		bits |= uint32(c)
	}
	return ParseMask(bits)
}

// ParseMask validates raw bits, as read from storage or a credential.
func ParseMask(bits uint32) (Mask, error) {
	if bits&^knownCapabilities != 0 {
		return Mask{}, fmt.Errorf("mask %#x has unknown bits: %w", bits, ErrUnprocessableInput)
	}
	if bits&uint32(General) != 0 && bits&uint32(PutProfile) != 0 {
		return Mask{}, fmt.Errorf("mask %#x combines GENERAL with PUT_PROFILE: %w", bits, ErrUnprocessableInput)
	}
	return Mask{bits: bits}, nil
}

// Bits returns the raw representation for storage.
func (m Mask) Bits() uint32 { return m.bits }

// Has reports whether a single capability is granted.
func (m Mask) Has(c Capability) bool {
	return c != 0 && m.bits&uint32(c) == uint32(c)
}

// Contains reports whether every capability in other is granted.
func (m Mask) Contains(other Mask) bool {
	return m.bits&other.bits == other.bits
}

// IsZero reports whether the mask grants nothing.
func (m Mask) IsZero() bool { return m.bits == 0 }

func (m Mask) String() string {
	if m.bits == 0 {
		return "NONE"
	}
	var parts []string
	if m.Has(General) {
		parts = append(parts, "GENERAL")
	}
	if m.Has(PutProfile) {
		parts = append(parts, "PUT_PROFILE")
	}
	if m.Has(DeleteAccount) {
		parts = append(parts, "DELETE_ACCOUNT")
	}
	return strings.Join(parts, "|")
}
