package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/memohai/confessions/internal/auth"
	"github.com/memohai/confessions/internal/boot"
	"github.com/memohai/confessions/internal/channels"
	"github.com/memohai/confessions/internal/handlers"
	"github.com/memohai/confessions/internal/logger"
	"github.com/memohai/confessions/internal/reconcile"
	"github.com/memohai/confessions/internal/server"
	"github.com/memohai/confessions/internal/settings"
	"github.com/memohai/confessions/internal/store"
)

const testSecret = "test-secret"

type moderation map[string]bool

func (m moderation) HasCapability(_ context.Context, community string, _ channels.Capability) bool {
	return m[community]
}

// goneEverywhere reports every community and channel as deleted.
type goneEverywhere struct{}

func (goneEverywhere) CommunityExists(context.Context, string) (bool, error) { return false, nil }
func (goneEverywhere) ChannelExists(context.Context, string) (bool, error)   { return false, nil }

type recordingAnnouncer struct {
	mu   sync.Mutex
	sent []string
}

func (r *recordingAnnouncer) Announce(_ context.Context, community, channel string, out channels.Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, community+"/"+channel+"="+out.Type.String())
}

type fixture struct {
	handler   http.Handler
	token     string
	st        store.Store
	announcer *recordingAnnouncer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := logger.Discard()
	st := store.NewMemory()
	reg := channels.NewRegistry(log, st)
	engine := channels.NewEngine(log, reg, moderation{"1": true})
	reconciler, err := reconcile.NewReconciler(log, reg, goneEverywhere{}, &boot.RuntimeConfig{})
	if err != nil {
		t.Fatal(err)
	}
	announcer := &recordingAnnouncer{}
	srv := server.NewServer(log, "", testSecret,
		handlers.NewPingHandler(log),
		handlers.NewChannelsHandler(log, engine, reconciler, announcer),
		handlers.NewSettingsHandler(log, settings.NewService(log, st, reg)),
		handlers.NewReconcileHandler(log, reconciler),
	)
	token, _, err := auth.GenerateToken(testSecret, "test", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	return &fixture{handler: srv.Handler(), token: token, st: st, announcer: announcer}
}

func (f *fixture) do(t *testing.T, method, path, body string) (int, map[string]any) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.Header.Set("Authorization", "Bearer "+f.token)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("%s %s: decode %q: %v", method, path, rec.Body.String(), err)
		}
	}
	return rec.Code, out
}

func TestPingIsPublic(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Fatalf("/ping = %d %s", rec.Code, rec.Body.String())
	}
	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/communities/1/channels", nil))
	if rec.Code == http.StatusOK {
		t.Fatal("channels listed without a token")
	}
}

func TestChannelLifecycle(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	steps := []struct {
		method, path, body string
		status             int
		check              func(t *testing.T, body map[string]any)
	}{
		{http.MethodPut, "/communities/1/channels/10", `{"type":"vetting"}`, http.StatusOK, func(t *testing.T, b map[string]any) {
			if b["applied"] != true || b["type"] != "vetting" || b["previous"] != "unset" {
				t.Fatalf("body = %v", b)
			}
		}},
		{http.MethodPut, "/communities/1/channels/11", `{"type":"4"}`, http.StatusConflict, func(t *testing.T, b map[string]any) {
			if b["reason"] != "vetting_slot_taken" || b["vetting_channel"] != "10" {
				t.Fatalf("body = %v", b)
			}
		}},
		{http.MethodPut, "/communities/2/channels/20", `{"type":"vetting"}`, http.StatusConflict, func(t *testing.T, b map[string]any) {
			if b["reason"] != "capability_missing" {
				t.Fatalf("body = %v", b)
			}
		}},
		{http.MethodPut, "/communities/1/channels/10", `{"type":"gallery"}`, http.StatusBadRequest, nil},
		{http.MethodPost, "/communities/1/channels/10/toggle-anon", "", http.StatusOK, func(t *testing.T, b map[string]any) {
			if b["type"] != "vetting-anon" {
				t.Fatalf("body = %v", b)
			}
		}},
		{http.MethodGet, "/communities/1/vetting", "", http.StatusOK, func(t *testing.T, b map[string]any) {
			if b["channel_id"] != "10" || b["type"] != "vetting-anon" {
				t.Fatalf("body = %v", b)
			}
		}},
		{http.MethodGet, "/communities/1/channels/10", "", http.StatusOK, func(t *testing.T, b map[string]any) {
			if b["type"] != "vetting-anon" || b["anon_id"] != true {
				t.Fatalf("body = %v", b)
			}
		}},
		{http.MethodPut, "/communities/1/channels/12", `{"type":"marketplace"}`, http.StatusOK, nil},
		{http.MethodGet, "/communities/1/channels/12/permit?kind=marketplace", "", http.StatusOK, func(t *testing.T, b map[string]any) {
			if b["permitted"] != true || b["type"] != "marketplace" || b["denial"] != nil {
				t.Fatalf("body = %v", b)
			}
		}},
		{http.MethodGet, "/communities/1/channels/10/permit?kind=marketplace", "", http.StatusOK, func(t *testing.T, b map[string]any) {
			if b["permitted"] != false || b["denial"] != "wrong_role" || b["type"] != "vetting-anon" {
				t.Fatalf("body = %v", b)
			}
		}},
		{http.MethodGet, "/communities/1/channels/99/permit?kind=confessional", "", http.StatusOK, func(t *testing.T, b map[string]any) {
			if b["permitted"] != false || b["denial"] != "not_configured" || b["kind"] != "confessional" {
				t.Fatalf("body = %v", b)
			}
		}},
		{http.MethodGet, "/communities/1/channels/12/permit?kind=unset", "", http.StatusBadRequest, nil},
		{http.MethodPost, "/communities/1/channels/12/toggle-anon", "", http.StatusConflict, func(t *testing.T, b map[string]any) {
			if b["reason"] != "toggle_unsupported" {
				t.Fatalf("body = %v", b)
			}
		}},
		{http.MethodGet, "/communities/1/channels", "", http.StatusOK, func(t *testing.T, b map[string]any) {
			if len(b) != 2 || b["10"] != "vetting-anon" || b["12"] != "marketplace" {
				t.Fatalf("body = %v", b)
			}
		}},
		{http.MethodDelete, "/communities/1/channels/10", "", http.StatusOK, nil},
		{http.MethodDelete, "/communities/1/channels/10", "", http.StatusConflict, func(t *testing.T, b map[string]any) {
			if b["reason"] != "already_unset" {
				t.Fatalf("body = %v", b)
			}
		}},
		{http.MethodGet, "/communities/1/vetting", "", http.StatusNotFound, nil},
		{http.MethodPut, "/communities/bad_id/channels/1", `{"type":"confessional"}`, http.StatusBadRequest, nil},
	}
	for i, step := range steps {
		status, body := f.do(t, step.method, step.path, step.body)
		if status != step.status {
			t.Fatalf("step %d %s %s: status = %d, want %d (%v)", i, step.method, step.path, status, step.status, body)
		}
		if step.check != nil {
			step.check(t, body)
		}
	}

	want := []string{"1/10=vetting", "1/10=vetting-anon", "1/12=marketplace", "1/10=unset"}
	if strings.Join(f.announcer.sent, ",") != strings.Join(want, ",") {
		t.Fatalf("announcements = %v, want %v", f.announcer.sent, want)
	}
}

func TestSettingsEndpoints(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	status, body := f.do(t, http.MethodGet, "/communities/1/settings", "")
	if status != http.StatusOK || body["image_support"] != true || body["webhook"] != false {
		t.Fatalf("GET settings = %d %v", status, body)
	}
	status, body = f.do(t, http.MethodPut, "/communities/1/settings", `{"webhook":true,"preface":"hi"}`)
	if status != http.StatusOK || body["webhook"] != true || body["preface"] != "hi" {
		t.Fatalf("PUT settings = %d %v", status, body)
	}
	status, body = f.do(t, http.MethodPut, "/communities/1/bans/ABC", "")
	if status != http.StatusOK || body["changed"] != true || body["anon_id"] != "abc" {
		t.Fatalf("PUT ban = %d %v", status, body)
	}
	status, body = f.do(t, http.MethodGet, "/communities/1/bans/abc", "")
	if status != http.StatusOK || body["banned"] != true {
		t.Fatalf("GET ban = %d %v", status, body)
	}
	status, body = f.do(t, http.MethodPost, "/communities/1/shuffle", `{"reset_bans":true}`)
	if status != http.StatusOK || body["shuffle"] != float64(1) || len(body["banned"].([]any)) != 0 {
		t.Fatalf("POST shuffle = %d %v", status, body)
	}
	status, body = f.do(t, http.MethodPost, "/communities/1/shuffle", "")
	if status != http.StatusOK || body["shuffle"] != float64(2) {
		t.Fatalf("POST shuffle without body = %d %v", status, body)
	}
	status, body = f.do(t, http.MethodGet, "/communities/1/bans/ABC", "")
	if status != http.StatusOK || body["banned"] != false || body["anon_id"] != "abc" {
		t.Fatalf("GET ban after reset = %d %v", status, body)
	}
	status, _ = f.do(t, http.MethodDelete, "/communities/1/bans/a,b", "")
	if status != http.StatusBadRequest {
		t.Fatalf("DELETE bad ban = %d", status)
	}
}

func TestReconcileEndpoints(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	if status, _ := f.do(t, http.MethodPut, "/communities/1/channels/10", `{"type":"confessional"}`); status != http.StatusOK {
		t.Fatalf("setup status = %d", status)
	}
	if status, _ := f.do(t, http.MethodPut, "/communities/1/channels/11", `{"type":"marketplace"}`); status != http.StatusOK {
		t.Fatalf("setup status = %d", status)
	}

	status, body := f.do(t, http.MethodDelete, "/communities/1/channels/11/config", "")
	if status != http.StatusOK || body["removed"] != true {
		t.Fatalf("remove channel = %d %v", status, body)
	}

	status, body = f.do(t, http.MethodGet, "/reconcile/sweep", "")
	if status != http.StatusOK || body["running"] != false {
		t.Fatalf("sweep status = %d %v", status, body)
	}

	status, body = f.do(t, http.MethodPost, "/reconcile/sweep", "")
	if status != http.StatusOK || body["communities_removed"] != float64(1) || body["id"] == "" {
		t.Fatalf("sweep = %d %v", status, body)
	}
	if ids, _ := f.st.Communities(context.Background()); len(ids) != 0 {
		t.Fatalf("communities left = %v", ids)
	}

	status, body = f.do(t, http.MethodDelete, "/communities/1", "")
	if status != http.StatusOK || body["removed"] != float64(0) {
		t.Fatalf("delete community = %d %v", status, body)
	}
}
