package chat

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/maiarouter-node/internal/gateway"
	"github.com/maauso/maiarouter-node/internal/maiarouter"
	"github.com/maauso/maiarouter-node/internal/node"
)

func newTestOp(t *testing.T, handler http.HandlerFunc) *MessageModel {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	api, err := maiarouter.NewClient(gateway.NewClient(gateway.WithLogger(logger)), "test-key", maiarouter.WithBaseURL(server.URL))
	require.NoError(t, err)
	return NewMessageModel(api, logger)
}

func userMessages(contents ...string) node.Collection[Message] {
	var out node.Collection[Message]
	for _, c := range contents {
		out = append(out, Message{Role: "user", Content: c})
	}
	return out
}

func TestBuildRequest_NoMessages(t *testing.T) {
	_, err := BuildRequest(Params{Model: "maia/gemini-2.5-flash"})
	require.Error(t, err)
	assert.ErrorIs(t, err, node.ErrValidation)
	assert.Equal(t, "At least one message is required", err.Error())
}

func TestStopSequences_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want StopSequences
	}{
		{"comma separated string", `"a, b ,c"`, StopSequences{"a", "b", "c"}},
		{"empty parts kept", `"a, ,b"`, StopSequences{"a", "", "b"}},
		{"single string", `"END"`, StopSequences{"END"}},
		{"empty string", `""`, nil},
		{"list", `["###", "END"]`, StopSequences{"###", "END"}},
		{"list with commas kept whole", `["a,b"]`, StopSequences{"a,b"}},
		{"null", `null`, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got StopSequences
			require.NoError(t, json.Unmarshal([]byte(tt.in), &got))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStopSequences_RejectsOtherShapes(t *testing.T) {
	for _, in := range []string{`42`, `[1, 2]`, `{"stop":"x"}`} {
		var got StopSequences
		assert.Error(t, json.Unmarshal([]byte(in), &got), in)
	}
}

func TestBuildRequest_Stop(t *testing.T) {
	t.Run("from string", func(t *testing.T) {
		var p Params
		require.NoError(t, node.Params{
			"model":            "m",
			"messages":         []any{map[string]any{"role": "user", "content": "hi"}},
			"additionalFields": map[string]any{"stop": "a, b ,c"},
		}.Decode(&p))

		req, err := BuildRequest(p)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b", "c"}, req.Stop)
	})

	t.Run("from list", func(t *testing.T) {
		var p Params
		require.NoError(t, node.Params{
			"model":            "m",
			"messages":         []any{map[string]any{"role": "user", "content": "hi"}},
			"additionalFields": map[string]any{"stop": []any{"###", "END"}},
		}.Decode(&p))

		req, err := BuildRequest(p)
		require.NoError(t, err)
		assert.Equal(t, []string{"###", "END"}, req.Stop)
	})

	t.Run("empty list omitted", func(t *testing.T) {
		req, err := BuildRequest(Params{
			Model:            "m",
			Messages:         userMessages("hi"),
			AdditionalFields: AdditionalFields{Stop: StopSequences{}},
		})
		require.NoError(t, err)
		assert.Nil(t, req.Stop)
	})
}

func TestBuildRequest_OptionalFieldsOmitted(t *testing.T) {
	req, err := BuildRequest(Params{Model: "m", Messages: userMessages("hi")})
	require.NoError(t, err)

	raw, err := json.Marshal(req)
	require.NoError(t, err)

	var body map[string]any
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.Len(t, body, 2)
	assert.Contains(t, body, "model")
	assert.Contains(t, body, "messages")
}

func TestBuildRequest_ZeroValuesKept(t *testing.T) {
	zero := 0.0
	no := false
	req, err := BuildRequest(Params{
		Model:    "m",
		Messages: userMessages("hi"),
		AdditionalFields: AdditionalFields{
			Temperature:     &zero,
			Stream:          &no,
			PresencePenalty: &zero,
		},
	})
	require.NoError(t, err)

	raw, _ := json.Marshal(req)
	var body map[string]any
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.Equal(t, 0.0, body["temperature"])
	assert.Equal(t, false, body["stream"])
	assert.Equal(t, 0.0, body["presence_penalty"])
	assert.NotContains(t, body, "top_p")
}

func TestBuildRequest_Tools(t *testing.T) {
	widget := true
	lat := 40.4
	req, err := BuildRequest(Params{
		Model:    "m",
		Messages: userMessages("where?"),
		AdditionalFields: AdditionalFields{Tools: node.Collection[Tool]{
			{ToolType: "googleMaps", EnableWidget: &widget, Latitude: &lat, LanguageCode: "es_ES"},
			{ToolType: "urlContext"},
			{ToolType: "codeExecution"},
			{ToolType: "googleSearch"},
			{ToolType: "teleport"},
		}},
	})
	require.NoError(t, err)

	require.Len(t, req.Tools, 4)
	assert.Equal(t, map[string]any{"googleMaps": map[string]any{
		"enableWidget": true,
		"latitude":     40.4,
		"languageCode": "es_ES",
	}}, req.Tools[0])
	assert.Equal(t, map[string]any{"urlContext": map[string]any{}}, req.Tools[1])
	assert.Equal(t, map[string]any{"codeExecution": map[string]any{}}, req.Tools[2])
	assert.Equal(t, map[string]any{"googleSearch": map[string]any{}}, req.Tools[3])
}

func TestBuildRequest_OnlyUnknownToolsOmitsField(t *testing.T) {
	req, err := BuildRequest(Params{
		Model:            "m",
		Messages:         userMessages("hi"),
		AdditionalFields: AdditionalFields{Tools: node.Collection[Tool]{{ToolType: "teleport"}}},
	})
	require.NoError(t, err)
	assert.Nil(t, req.Tools)
}

func TestExecute_NoMessagesSkipsNetwork(t *testing.T) {
	var calls int32
	op := newTestOp(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	})

	_, err := op.Execute(context.Background(), node.Input{Params: node.Params{
		"model":    "maia/gemini-2.5-flash",
		"messages": map[string]any{},
	}})
	require.Error(t, err)
	assert.ErrorIs(t, err, node.ErrValidation)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestExecute_Success(t *testing.T) {
	op := newTestOp(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "maia/gemini-2.5-flash", body["model"])
		assert.Equal(t, []any{"END"}, body["stop"])
		assert.Equal(t, 0.7, body["temperature"])
		msgs := body["messages"].([]any)
		require.Len(t, msgs, 2)
		assert.Equal(t, "system", msgs[0].(map[string]any)["role"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"chatcmpl-1","choices":[{"message":{"role":"assistant","content":"hello"}}]}`))
	})

	out, err := op.Execute(context.Background(), node.Input{Index: 3, Params: node.Params{
		"model": "maia/gemini-2.5-flash",
		"messages": map[string]any{"messageValues": []any{
			map[string]any{"role": "system", "content": "be brief"},
			map[string]any{"role": "user", "content": "hi"},
		}},
		"additionalFields": map[string]any{"temperature": 0.7, "stop": "END"},
	}})
	require.NoError(t, err)
	assert.Equal(t, "chatcmpl-1", out.JSON["id"])
	require.NotNil(t, out.PairedItem)
	assert.Equal(t, 3, *out.PairedItem)
}

func TestExecute_InvalidRole(t *testing.T) {
	op := newTestOp(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})
	_, err := op.Execute(context.Background(), node.Input{Params: node.Params{
		"model":    "m",
		"messages": []any{map[string]any{"role": "tool", "content": "x"}},
	}})
	assert.ErrorIs(t, err, node.ErrValidation)
}

func TestExecute_APIError(t *testing.T) {
	op := newTestOp(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"model not found"}}`))
	})
	_, err := op.Execute(context.Background(), node.Input{Params: node.Params{
		"model":    "bogus",
		"messages": []any{map[string]any{"role": "user", "content": "x"}},
	}})
	require.Error(t, err)
	assert.Equal(t, "Error: model not found", err.Error())
}

func TestExecute_NonJSONResponse(t *testing.T) {
	op := newTestOp(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte("data: {}\n\n"))
	})
	out, err := op.Execute(context.Background(), node.Input{Params: node.Params{
		"model":            "m",
		"messages":         []any{map[string]any{"role": "user", "content": "x"}},
		"additionalFields": map[string]any{"stream": true},
	}})
	require.NoError(t, err)
	assert.Equal(t, "unknown", out.JSON["response_type"])
	assert.Equal(t, "data: {}\n\n", out.JSON["raw_response"])
}
