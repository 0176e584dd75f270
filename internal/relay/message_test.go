package relay

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"pgregory.net/rapid"
)

func TestOutboundMessages(t *testing.T) {
	assert.Equal(t, `{"type":"player_joined","player_id":"B","match_id":"m1"}`, string(playerJoined("B", "m1")))
	assert.Equal(t, `{"type":"player_left","player_id":"B","match_id":"m1"}`, string(playerLeft("B", "m1")))
	assert.Equal(t, `{"type":"match_start","match_id":"m1"}`, string(matchStart("m1")))
	assert.Equal(t, `{"type":"error","message":"Match is full"}`, string(errorMessage(MatchFullMessage)))
}

func TestOutboundMessagesEncodeAnyIdentifier(t *testing.T) {
	for _, id := range []string{"", "\xff\xfe", `quo"te`, "line\nbreak", "<script>"} {
		for _, msg := range [][]byte{playerJoined(id, id), playerLeft(id, id), matchStart(id), errorMessage(id)} {
			require.True(t, json.Valid(msg), "%q produced %s", id, msg)
		}
	}
	assert.Equal(t, "\ufffd\ufffd", gjson.GetBytes(playerJoined("\xff\xfe", "m1"), "player_id").String())
}

func TestIsReady(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{`{"type":"player_ready"}`, true},
		{` {"type":"player_ready","extra":1}`, true},
		{`{"type":"player_ready_now"}`, false},
		{`{"type":["player_ready"]}`, false},
		{`{"kind":"player_ready"}`, false},
		{`["player_ready"]`, false},
		{`"player_ready"`, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, isReady(gjson.Parse(tt.in)), tt.in)
	}
}

func TestWithDefaults(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty object", `{}`, `{"match_id":"m1","from_player_id":"A"}`},
		{"appends after existing keys", `{"foo":1}`, `{"foo":1,"match_id":"m1","from_player_id":"A"}`},
		{"keeps match_id", `{"match_id":"x"}`, `{"match_id":"x","from_player_id":"A"}`},
		{"keeps from_player_id", `{"from_player_id":"Z"}`, `{"from_player_id":"Z","match_id":"m1"}`},
		{"nested keys do not count", `{"inner":{"match_id":"x"}}`, `{"inner":{"match_id":"x"},"match_id":"m1","from_player_id":"A"}`},
		{"array untouched", `[{"a":1}]`, `[{"a":1}]`},
		{"number untouched", `3.5`, `3.5`},
		{"null untouched", `null`, `null`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := []byte(tt.in)
			out, err := withDefaults(raw, gjson.ParseBytes(raw), "m1", "A")
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(out))
		})
	}
}

func TestPropertyWithDefaultsPreservesSuppliedValues(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		fields := rapid.MapOf(
			rapid.SampledFrom([]string{"match_id", "from_player_id", "foo", "bar"}),
			rapid.StringMatching(`[a-z0-9]{0,8}`),
		).Draw(t, "fields")

		raw := []byte("{}")
		var err error
		for k, v := range fields {
			raw, err = sjson.SetBytes(raw, k, v)
			if err != nil {
				t.Fatalf("building payload: %v", err)
			}
		}

		out, err := withDefaults(raw, gjson.ParseBytes(raw), "m1", "A")
		if err != nil {
			t.Fatalf("withDefaults: %v", err)
		}
		got := gjson.ParseBytes(out)
		for k, v := range fields {
			if got.Get(k).String() != v {
				t.Fatalf("field %s = %q, want %q", k, got.Get(k).String(), v)
			}
		}
		if _, ok := fields["match_id"]; !ok && got.Get("match_id").String() != "m1" {
			t.Fatalf("match_id not injected: %s", out)
		}
		if _, ok := fields["from_player_id"]; !ok && got.Get("from_player_id").String() != "A" {
			t.Fatalf("from_player_id not injected: %s", out)
		}
	})
}
