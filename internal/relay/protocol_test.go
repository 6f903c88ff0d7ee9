package relay

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTwilioProtocol_Decode(t *testing.T) {
	p := TwilioProtocol{}

	ev, err := p.Decode([]byte(`{"event":"connected","protocol":"Call","version":"1.0.0"}`))
	require.NoError(t, err)
	assert.Equal(t, Connected{}, ev)

	ev, err = p.Decode([]byte(`{"event":"start","sequenceNumber":"1","streamSid":"MZ1","start":{"streamSid":"MZ1","callSid":"CA1","tracks":["inbound"]}}`))
	require.NoError(t, err)
	assert.Equal(t, Start{StreamID: "MZ1", CallID: "CA1"}, ev)

	ev, err = p.Decode([]byte(`{"event":"media","streamSid":"MZ1","media":{"track":"inbound","payload":"AAEC"}}`))
	require.NoError(t, err)
	assert.Equal(t, Media{Track: "inbound", Audio: []byte{0, 1, 2}}, ev)

	ev, err = p.Decode([]byte(`{"event":"mark","streamSid":"MZ1"}`))
	require.NoError(t, err)
	assert.Equal(t, Unknown{Name: "mark"}, ev)

	ev, err = p.Decode([]byte(`{"event":"stop","streamSid":"MZ1"}`))
	require.NoError(t, err)
	assert.Equal(t, Stop{}, ev)
}

func TestTelnyxProtocol_Decode(t *testing.T) {
	p := TelnyxProtocol{}

	ev, err := p.Decode([]byte(`{"event":"start","sequence_number":"1","stream_id":"s-1","start":{"call_control_id":"v3:abc","media_format":{"encoding":"PCMU"}}}`))
	require.NoError(t, err)
	assert.Equal(t, Start{StreamID: "s-1", CallID: "v3:abc"}, ev)

	ev, err = p.Decode([]byte(`{"event":"media","stream_id":"s-1","media":{"track":"outbound","payload":"/w=="}}`))
	require.NoError(t, err)
	assert.Equal(t, Media{Track: "outbound", Audio: []byte{0xff}}, ev)
}

func TestDecode_Malformed(t *testing.T) {
	for _, p := range []Protocol{TwilioProtocol{}, TelnyxProtocol{}} {
		_, err := p.Decode([]byte(`not json`))
		assert.ErrorIs(t, err, ErrMalformedFrame, p.Name())

		_, err = p.Decode([]byte(`{"event":"media"}`))
		assert.ErrorIs(t, err, ErrMalformedFrame, p.Name())

		_, err = p.Decode([]byte(`{"event":"media","media":{"payload":"%%%"}}`))
		assert.ErrorIs(t, err, ErrMalformedFrame, p.Name())
	}
}

func TestEncodeMedia_KeepsProviderStreamField(t *testing.T) {
	raw, err := TwilioProtocol{}.EncodeMedia("MZ1", []byte{1, 2})
	require.NoError(t, err)
	var tw map[string]any
	require.NoError(t, json.Unmarshal(raw, &tw))
	assert.Equal(t, "media", tw["event"])
	assert.Equal(t, "MZ1", tw["streamSid"])
	assert.Equal(t, map[string]any{"payload": "AQI="}, tw["media"])
	assert.NotContains(t, tw, "stream_id")

	raw, err = TelnyxProtocol{}.EncodeMedia("s-1", []byte{1, 2})
	require.NoError(t, err)
	var tx map[string]any
	require.NoError(t, json.Unmarshal(raw, &tx))
	assert.Equal(t, "s-1", tx["stream_id"])
	assert.NotContains(t, tx, "streamSid")
}

func TestProtocolFor(t *testing.T) {
	p, ok := ProtocolFor("telnyx")
	require.True(t, ok)
	assert.Equal(t, ProviderTelnyx, p.Name())

	_, ok = ProtocolFor("vonage")
	assert.False(t, ok)
}
