package channels

import "context"

// Denial explains why a channel may not receive content of a given kind.
type Denial string

const (
	DenialNone          Denial = ""
	DenialNotConfigured Denial = "not_configured"
	DenialWrongRole     Denial = "wrong_role"
)

// Permit checks that channel holds a role of kind want before content is
// handed to the relay. It returns the channel's current type alongside the denial.
func (r *Registry) Permit(ctx context.Context, community, channel string, want Kind) (ChannelType, Denial) {
	t := r.Get(ctx, community, channel)
	switch {
	case t == Unset:
		return t, DenialNotConfigured
	case t.Kind() != want:
		return t, DenialWrongRole
	default:
		return t, DenialNone
	}
}
