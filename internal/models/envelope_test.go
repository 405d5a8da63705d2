package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeChatMessage(t *testing.T) {
	raw := []byte(`{"type":"chat_message","data":{"id":"m-1","content":"hi","walletAddress":"W1","tokenAddress":"TKN1","timestamp":"2024-05-01T12:00:00.000Z","isLocal":true}}`)

	env, err := Decode(raw)
	require.NoError(t, err)
	require.Equal(t, TypeChatMessage, env.Type)

	msg, ok := env.Data.(*ChatMessage)
	require.True(t, ok)
	assert.Equal(t, "m-1", msg.MessageID)
	assert.Equal(t, "hi", msg.Content)
	assert.Equal(t, "W1", msg.WalletAddress)
	assert.Equal(t, "TKN1", msg.TokenAddress)
	assert.True(t, msg.Timestamp.Equal(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)))
}

func TestDecodeInboundStampsSessionWallet(t *testing.T) {
	raw := []byte(`{"type":"chat_message","data":{"content":"hi"}}`)

	_, err := Decode(raw)
	assert.ErrorIs(t, err, ErrInvalidPayload)

	env, err := DecodeInbound(raw, "W1")
	require.NoError(t, err)
	assert.Equal(t, "W1", env.Data.(*ChatMessage).WalletAddress)

	// 訊息自帶的錢包不會被覆蓋，是否相符由呼叫端檢查
	env, err = DecodeInbound([]byte(`{"type":"chat_message","data":{"content":"hi","walletAddress":"W2"}}`), "W1")
	require.NoError(t, err)
	assert.Equal(t, "W2", env.Data.(*ChatMessage).WalletAddress)

	_, err = DecodeInbound(raw, "")
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestDecodeRejectsInvalidFrames(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want error
	}{
		{"not json", `hello`, ErrInvalidPayload},
		{"unknown type", `{"type":"subscribe_token","data":{"tokenAddress":"x"}}`, ErrUnknownType},
		{"missing type", `{"data":{"content":"hi"}}`, ErrUnknownType},
		{"missing data", `{"type":"chat_message"}`, ErrInvalidPayload},
		{"null data", `{"type":"chat_message","data":null}`, ErrInvalidPayload},
		{"array for object", `{"type":"chat_message","data":[1,2]}`, ErrInvalidPayload},
		{"wrong field type", `{"type":"chat_message","data":{"content":5,"walletAddress":"W1"}}`, ErrInvalidPayload},
		{"empty content", `{"type":"chat_message","data":{"content":"  ","walletAddress":"W1"}}`, ErrInvalidPayload},
		{"missing wallet", `{"type":"chat_message","data":{"content":"hi"}}`, ErrInvalidPayload},
		{"bad timestamp", `{"type":"chat_message","data":{"content":"hi","walletAddress":"W1","timestamp":"yesterday"}}`, ErrInvalidPayload},
		{"history object", `{"type":"message_history","data":{"content":"hi"}}`, ErrInvalidPayload},
		{"price without token", `{"type":"price_update","data":{"price":1.5}}`, ErrInvalidPayload},
		{"status without status", `{"type":"connection_established","data":{}}`, ErrInvalidPayload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := Decode([]byte(tt.raw))
			require.ErrorIs(t, err, tt.want)
			assert.Empty(t, env.Type)
			assert.Nil(t, env.Data)
		})
	}
}

func TestEncodeHistoryKeepsOrder(t *testing.T) {
	messages := []ChatMessage{
		{MessageID: "1", Content: "first", WalletAddress: "W1", TokenAddress: "T"},
		{MessageID: "2", Content: "second", WalletAddress: "W2", TokenAddress: "T", ColorCode: "#aabbcc"},
	}

	data, err := Encode(NewHistoryEnvelope(messages))
	require.NoError(t, err)

	env, err := Decode(data)
	require.NoError(t, err)
	require.Equal(t, TypeMessageHistory, env.Type)

	decoded := env.Data.([]ChatMessage)
	require.Len(t, decoded, 2)
	assert.Equal(t, "first", decoded[0].Content)
	assert.Equal(t, "second", decoded[1].Content)
	assert.Equal(t, "#aabbcc", decoded[1].ColorCode)
}

func TestEncodeEmptyHistoryIsArray(t *testing.T) {
	data, err := Encode(NewHistoryEnvelope(nil))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"message_history","data":[]}`, string(data))
}

func TestEncodePriceUpdateOmitsUnknownName(t *testing.T) {
	ts := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	data, err := Encode(NewPriceUpdateEnvelope(&PriceUpdate{TokenAddress: "TKN2", Price: 1.23, Timestamp: ts}))
	require.NoError(t, err)

	var out struct {
		Type string                 `json:"type"`
		Data map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, "price_update", out.Type)
	assert.Equal(t, 1.23, out.Data["price"])
	assert.Equal(t, "2024-05-01T00:00:00Z", out.Data["timestamp"])
	assert.NotContains(t, out.Data, "tokenName")
	assert.NotContains(t, out.Data, "tokenSymbol")
}

func TestEncodeRejectsMismatchedPayload(t *testing.T) {
	_, err := Encode(Envelope{Type: TypePriceUpdate, Data: &ChatMessage{}})
	assert.ErrorIs(t, err, ErrInvalidPayload)

	_, err = Encode(Envelope{Type: TypeChatMessage, Data: (*ChatMessage)(nil)})
	assert.ErrorIs(t, err, ErrInvalidPayload)

	_, err = Encode(Envelope{Type: "subscribe_token", Data: map[string]string{}})
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestConnectionEstablishedEnvelope(t *testing.T) {
	data, err := Encode(NewConnectionEstablishedEnvelope())
	require.NoError(t, err)

	env, err := Decode(data)
	require.NoError(t, err)
	status := env.Data.(*ConnectionStatus)
	assert.Equal(t, "connected", status.Status)
	assert.False(t, status.Timestamp.IsZero())
}
