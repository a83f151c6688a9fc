package channels

import (
	"context"
	"fmt"
	"log/slog"
)

// Reason explains why a transition was rejected. Rejections are expected
// outcomes to show the user, not faults.
type Reason string

const (
	ReasonNone              Reason = ""
	ReasonNoChange          Reason = "no_change"
	// ReasonAlreadyUnset is reported instead of ReasonNoChange when Unset is
	// requested for a channel that has no role.
	ReasonAlreadyUnset      Reason = "already_unset"
	ReasonCapabilityMissing Reason = "capability_missing"
	ReasonVettingSlotTaken  Reason = "vetting_slot_taken"
	ReasonToggleUnsupported Reason = "toggle_unsupported"
)

// CapabilityChecker reports whether a community has an external capability enabled.
type CapabilityChecker interface {
	HasCapability(ctx context.Context, community string, capability Capability) bool
}

// TransitionContext carries the facts a transition is validated against.
type TransitionContext struct {
	// ModerationAvailable gates assignment of vetting-family roles.
	ModerationAvailable bool
	// ToggleOnly marks an anon-id flip rather than a full role change.
	ToggleOnly bool
}

// Outcome is the result of a transition request. When Applied is false,
// Reason says why and Type equals Previous.
type Outcome struct {
	Applied  bool        `json:"applied"`
	Type     ChannelType `json:"type"`
	Previous ChannelType `json:"previous"`
	Reason   Reason      `json:"reason,omitempty"`
	// VettingChannel is the current holder of the vetting slot on ReasonVettingSlotTaken.
	VettingChannel string `json:"vetting_channel,omitempty"`
}

// Engine validates and applies channel role changes. Every mutation, toggles
// included, goes through the same validation under the community lock.
type Engine struct {
	registry     *Registry
	capabilities CapabilityChecker
	logger       *slog.Logger
}

// NewEngine returns an engine. capabilities may be nil, in which case no
// community has the moderation capability.
func NewEngine(log *slog.Logger, registry *Registry, capabilities CapabilityChecker) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		registry:     registry,
		capabilities: capabilities,
		logger:       log.With(slog.String("service", "channel_engine")),
	}
}

// Registry exposes the registry the engine writes through.
func (e *Engine) Registry() *Registry { return e.registry }

// Apply requests that channel take the role requested.
func (e *Engine) Apply(ctx context.Context, community, channel string, requested ChannelType, tc TransitionContext) (Outcome, error) {
	if !requested.Valid() {
		return Outcome{}, fmt.Errorf("%w: %d", ErrInvalidTypeValue, requested)
	}
	return e.transition(ctx, community, channel, tc, func(ChannelType) (ChannelType, Reason) {
		return requested, ReasonNone
	})
}

// Assign is Apply with the moderation capability resolved through the engine's CapabilityChecker.
func (e *Engine) Assign(ctx context.Context, community, channel string, requested ChannelType) (Outcome, error) {
	tc := TransitionContext{}
	if requested.RequiresCapability() != CapabilityNone {
		tc.ModerationAvailable = e.hasCapability(ctx, community, requested.RequiresCapability())
	}
	return e.Apply(ctx, community, channel, requested, tc)
}

// ToggleAnonID flips channel between a role and its anon-id counterpart.
// The swap partner is computed from the type read under the lock, so a
// concurrent change cannot make the toggle apply to a stale role.
func (e *Engine) ToggleAnonID(ctx context.Context, community, channel string) (Outcome, error) {
	tc := TransitionContext{
		ModerationAvailable: e.hasCapability(ctx, community, CapabilityModeration),
		ToggleOnly:          true,
	}
	return e.transition(ctx, community, channel, tc, func(current ChannelType) (ChannelType, Reason) {
		if !current.SupportsAnonToggle() {
			return current, ReasonToggleUnsupported
		}
		return current.SwapPartner(), ReasonNone
	})
}

func (e *Engine) transition(
	ctx context.Context,
	community, channel string,
	tc TransitionContext,
	pick func(current ChannelType) (ChannelType, Reason),
) (Outcome, error) {
	if err := validateChannel(channel); err != nil {
		return Outcome{}, err
	}
	var out Outcome
	err := e.registry.Update(ctx, community, func(tx *Tx) error {
		current := tx.Get(channel)
		out = Outcome{Type: current, Previous: current}

		requested, reason := pick(current)
		if reason == ReasonNone {
			reason, out.VettingChannel = validate(tx, channel, current, requested, tc)
		}
		if reason != ReasonNone {
			out.Reason = reason
			return nil
		}

		if requested == Unset {
			if _, err := tx.Unset(channel); err != nil {
				return err
			}
		} else if err := tx.Set(channel, requested); err != nil {
			return err
		}
		out.Applied = true
		out.Type = requested
		return nil
	})
	if err != nil {
		e.logger.Error("channel transition failed",
			slog.String("community_id", community),
			slog.String("channel_id", channel),
			slog.Any("error", err),
		)
		return Outcome{}, err
	}

	attrs := []any{
		slog.String("community_id", community),
		slog.String("channel_id", channel),
		slog.String("from", out.Previous.String()),
		slog.Bool("toggle", tc.ToggleOnly),
	}
	if out.Applied {
		e.logger.Info("channel role applied", append(attrs, slog.String("to", out.Type.String()))...)
	} else {
		e.logger.Debug("channel role rejected", append(attrs, slog.String("reason", string(out.Reason)))...)
	}
	return out, nil
}

// validate runs the transition checks in order; the first failure wins.
func validate(tx *Tx, channel string, current, requested ChannelType, tc TransitionContext) (Reason, string) {
	if requested == current {
		if requested == Unset {
			return ReasonAlreadyUnset, ""
		}
		return ReasonNoChange, ""
	}
	if requested.IsVetting() {
		if !tc.ModerationAvailable {
			return ReasonCapabilityMissing, ""
		}
		if holder, ok := tx.FindVettingChannel(); ok && holder != channel {
			return ReasonVettingSlotTaken, holder
		}
	}
	return ReasonNone, ""
}

func (e *Engine) hasCapability(ctx context.Context, community string, capability Capability) bool {
	if capability == CapabilityNone {
		return true
	}
	if e.capabilities == nil {
		return false
	}
	return e.capabilities.HasCapability(ctx, community, capability)
}
