package settings

// Store keys of the per-community settings, relative to the community id.
const (
	KeyImageSupport = "imagesupport"
	KeyWebhook      = "webhook"
	KeyPreface      = "preface"
	KeyShuffle      = "shuffle"
	KeyBanned       = "banned"
)

// Default values for community settings when not set.
const (
	DefaultImageSupport = true
	DefaultWebhook      = false
)

// MaxPrefaceLength bounds the preface prepended to relayed confessions.
const MaxPrefaceLength = 200

// Settings holds the auxiliary per-community settings stored beside the channel map.
type Settings struct {
	ImageSupport bool     `json:"image_support"`
	Webhook      bool     `json:"webhook"`
	Preface      string   `json:"preface"`
	Shuffle      int      `json:"shuffle"`
	Banned       []string `json:"banned"`
}

// UpsertRequest is the input for updating community settings (all fields optional).
// An empty Preface clears it.
type UpsertRequest struct {
	ImageSupport *bool   `json:"image_support,omitempty"`
	Webhook      *bool   `json:"webhook,omitempty"`
	Preface      *string `json:"preface,omitempty"`
}

// ShuffleRequest is the input for rotating a community's anon-ids.
type ShuffleRequest struct {
	ResetBans bool `json:"reset_bans"`
}
