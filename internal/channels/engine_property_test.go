package channels_test

import (
	"context"
	"fmt"
	"testing"

	"pgregory.net/rapid"

	"github.com/memohai/confessions/internal/channels"
	"github.com/memohai/confessions/internal/store"
)

var allTypes = []channels.ChannelType{
	channels.Unset,
	channels.Confessional,
	channels.ConfessionalAnon,
	channels.Marketplace,
	channels.Vetting,
	channels.VettingAnon,
}

// TestProperty_EngineInvariants runs random operation sequences against one
// community and checks the invariants after every step.
func TestProperty_EngineInvariants(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ctx := context.Background()
		engine := newEngine(store.NewMemory(), nil)
		reg := engine.Registry()

		steps := rapid.IntRange(1, 40).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			channel := fmt.Sprintf("%d", rapid.IntRange(1, 4).Draw(t, fmt.Sprintf("channel-%d", i)))
			before := reg.Get(ctx, "1", channel)
			toggle := rapid.Bool().Draw(t, fmt.Sprintf("toggle-%d", i))
			tc := channels.TransitionContext{ModerationAvailable: rapid.Bool().Draw(t, fmt.Sprintf("moderation-%d", i))}

			requested := before.SwapPartner()
			if toggle {
				tc.ToggleOnly = true
			} else {
				requested = rapid.SampledFrom(allTypes).Draw(t, fmt.Sprintf("requested-%d", i))
			}
			out, err := engine.Apply(ctx, "1", channel, requested, tc)
			if err != nil {
				t.Fatalf("step %d: Apply() error = %v", i, err)
			}

			after := reg.Get(ctx, "1", channel)
			if out.Applied && after != requested {
				t.Fatalf("step %d: applied %v but Get() = %v", i, requested, after)
			}
			if !out.Applied && after != before {
				t.Fatalf("step %d: rejected (%s) but type changed %v -> %v", i, out.Reason, before, after)
			}
			if requested == before && out.Reason != channels.ReasonNoChange && out.Reason != channels.ReasonAlreadyUnset {
				t.Fatalf("step %d: requesting current type %v gave %+v", i, before, out)
			}
			if requested.IsVetting() && !tc.ModerationAvailable && out.Applied {
				t.Fatalf("step %d: vetting applied without moderation", i)
			}

			vetting := 0
			for _, ct := range reg.GetAll(ctx, "1") {
				if ct.IsVetting() {
					vetting++
				}
			}
			if vetting > 1 {
				t.Fatalf("step %d: %d vetting channels", i, vetting)
			}
		}
	})
}

// TestProperty_ToggleRoundTrip checks that two toggles restore a toggleable type.
func TestProperty_ToggleRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ctx := context.Background()
		engine := newEngine(store.NewMemory(), capabilities{"1": true})
		start := rapid.SampledFrom([]channels.ChannelType{
			channels.Confessional,
			channels.ConfessionalAnon,
			channels.Vetting,
			channels.VettingAnon,
		}).Draw(t, "start")

		if out, err := engine.Assign(ctx, "1", "10", start); err != nil || !out.Applied {
			t.Fatalf("Assign(%v) = %+v, %v", start, out, err)
		}
		for i := 0; i < 2; i++ {
			out, err := engine.ToggleAnonID(ctx, "1", "10")
			if err != nil || !out.Applied {
				t.Fatalf("toggle %d = %+v, %v", i, out, err)
			}
		}
		if got := engine.Registry().Get(ctx, "1", "10"); got != start {
			t.Fatalf("after round trip = %v, want %v", got, start)
		}
	})
}
