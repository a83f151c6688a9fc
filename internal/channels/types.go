package channels

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidTypeValue is returned for numeric or named channel types that are not recognized.
var ErrInvalidTypeValue = errors.New("invalid channel type value")

// Kind is the role category of a channel, independent of the anon-id flag.
type Kind uint8

const (
	KindUnset Kind = iota
	KindConfessional
	KindMarketplace
	KindVetting
)

func (k Kind) String() string {
	switch k {
	case KindUnset:
		return "unset"
	case KindConfessional:
		return "confessional"
	case KindMarketplace:
		return "marketplace"
	case KindVetting:
		return "vetting"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// ParseKind accepts a role category name. Unset is not a content kind and is rejected.
func ParseKind(raw string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "confessional":
		return KindConfessional, nil
	case "marketplace":
		return KindMarketplace, nil
	case "vetting":
		return KindVetting, nil
	default:
		return KindUnset, fmt.Errorf("%w: kind %q", ErrInvalidTypeValue, raw)
	}
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Capability names an external subsystem a community needs before a role can be assigned.
type Capability string

const (
	CapabilityNone       Capability = ""
	CapabilityModeration Capability = "moderation"
)

// ChannelType is the role assigned to a channel. The numeric values are
// persisted and must never be renumbered.
type ChannelType uint8

const (
	Unset            ChannelType = 0
	Confessional     ChannelType = 1
	ConfessionalAnon ChannelType = 2
	Marketplace      ChannelType = 3
	Vetting          ChannelType = 4
	VettingAnon      ChannelType = 5
)

type typeInfo struct {
	name    string
	kind    Kind
	anonID  bool
	partner ChannelType
}

var typeTable = map[ChannelType]typeInfo{
	Unset:            {name: "unset", kind: KindUnset, partner: Unset},
	Confessional:     {name: "confessional", kind: KindConfessional, partner: ConfessionalAnon},
	ConfessionalAnon: {name: "confessional-anon", kind: KindConfessional, anonID: true, partner: Confessional},
	Marketplace:      {name: "marketplace", kind: KindMarketplace, partner: Marketplace},
	Vetting:          {name: "vetting", kind: KindVetting, partner: VettingAnon},
	VettingAnon:      {name: "vetting-anon", kind: KindVetting, anonID: true, partner: Vetting},
}

// Types lists every assignable (non-Unset) channel type in display order.
func Types() []ChannelType {
	return []ChannelType{Confessional, ConfessionalAnon, Marketplace, Vetting, VettingAnon}
}

// FromValue converts a persisted numeric identity into a ChannelType.
func FromValue(n int) (ChannelType, error) {
	if n < 0 || n > 255 {
		return Unset, fmt.Errorf("%w: %d", ErrInvalidTypeValue, n)
	}
	t := ChannelType(n)
	if _, ok := typeTable[t]; !ok {
		return Unset, fmt.Errorf("%w: %d", ErrInvalidTypeValue, n)
	}
	return t, nil
}

// Parse accepts either a type name ("vetting-anon") or its numeric identity ("5").
func Parse(raw string) (ChannelType, error) {
	value := strings.ToLower(strings.TrimSpace(raw))
	if n, err := strconv.Atoi(value); err == nil {
		return FromValue(n)
	}
	value = strings.ReplaceAll(value, "_", "-")
	for t, info := range typeTable {
		if info.name == value {
			return t, nil
		}
	}
	return Unset, fmt.Errorf("%w: %q", ErrInvalidTypeValue, raw)
}

// Value is the stable numeric identity.
func (t ChannelType) Value() int { return int(t) }

// Valid reports whether t is a known identity.
func (t ChannelType) Valid() bool {
	_, ok := typeTable[t]
	return ok
}

func (t ChannelType) String() string {
	if info, ok := typeTable[t]; ok {
		return info.name
	}
	return "type(" + strconv.Itoa(int(t)) + ")"
}

// Kind returns the role category.
func (t ChannelType) Kind() Kind { return typeTable[t].kind }

// AnonID reports whether per-user anonymous identifiers are shown. Always false
// for roles without a swap partner.
func (t ChannelType) AnonID() bool { return typeTable[t].anonID }

// IsVetting reports membership of the vetting family.
func (t ChannelType) IsVetting() bool { return t.Kind() == KindVetting }

// SupportsAnonToggle is true only for the confessional and vetting families.
func (t ChannelType) SupportsAnonToggle() bool {
	info, ok := typeTable[t]
	return ok && info.partner != t
}

// SwapPartner returns the anon-id counterpart, or t itself when there is none.
func (t ChannelType) SwapPartner() ChannelType {
	info, ok := typeTable[t]
	if !ok {
		return t
	}
	return info.partner
}

// RequiresCapability names the capability a community must have for t to be assignable.
func (t ChannelType) RequiresCapability() Capability {
	if t.IsVetting() {
		return CapabilityModeration
	}
	return CapabilityNone
}

func (t ChannelType) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidTypeValue, t)
	}
	return []byte(t.String()), nil
}

func (t *ChannelType) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
