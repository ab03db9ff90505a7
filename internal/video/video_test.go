package video

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/maiarouter-node/internal/backend"
	"github.com/maauso/maiarouter-node/internal/gateway"
	"github.com/maauso/maiarouter-node/internal/maiarouter"
	"github.com/maauso/maiarouter-node/internal/node"
)

type testEnv struct {
	server     *httptest.Server
	controller *Controller
	calls      int32
}

func newTestEnv(t *testing.T, handler http.HandlerFunc, opts ...ControllerOption) *testEnv {
	t.Helper()
	env := &testEnv{}
	env.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&env.calls, 1)
		handler(w, r)
	}))
	t.Cleanup(env.server.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	api, err := maiarouter.NewClient(gateway.NewClient(gateway.WithLogger(logger)), "test-key", maiarouter.WithBaseURL(env.server.URL))
	require.NoError(t, err)

	env.controller = NewController(api, append([]ControllerOption{WithLogger(logger)}, opts...)...)
	return env
}

func (e *testEnv) Calls() int32 {
	return atomic.LoadInt32(&e.calls)
}

func decodeBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
	return body
}

func respond(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func TestStatus_IsTerminal(t *testing.T) {
	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusFailed.IsTerminal())
	assert.False(t, StatusQueued.IsTerminal())
	assert.False(t, StatusInProgress.IsTerminal())
	assert.False(t, StatusStarted.IsTerminal())
}

func TestStart_OpenAIDefaults(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/videos", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		body := decodeBody(t, r)
		assert.Equal(t, "8", body["seconds"], "seconds must be sent as a string")
		assert.Equal(t, "1280x720", body["size"])
		assert.Equal(t, "a cat surfing", body["prompt"])
		assert.NotContains(t, body, "resume_url")
		respond(t, w, map[string]any{"id": "video_123"})
	})

	out, err := env.controller.Execute(context.Background(), node.Input{Params: node.Params{
		"videoMode":  "start",
		"videoModel": "openai/sora-2",
		"prompt":     "a cat surfing",
	}})
	require.NoError(t, err)

	assert.Equal(t, true, out.JSON["success"])
	assert.Equal(t, "start", out.JSON["mode"])
	assert.Equal(t, "openai/sora-2", out.JSON["model"])
	assert.Equal(t, "video_123", out.JSON["videoId"])
	assert.Equal(t, "queued", out.JSON["status"])
	assert.Equal(t, "8", out.JSON["seconds"])
	assert.Equal(t, map[string]any{"jobId": "video_123", "backendFamily": "openai"}, out.JSON["jobHandle"])
	assert.Empty(t, out.Binary)
}

func TestStart_OpenAINumericSecondsAndResumeURL(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		body := decodeBody(t, r)
		assert.Equal(t, "12", body["seconds"])
		assert.Equal(t, "1920x1080", body["size"])
		assert.Equal(t, "https://hooks.example.com/resume", body["resume_url"])
		respond(t, w, map[string]any{"id": "video_9", "status": "in_progress"})
	})

	out, err := env.controller.Execute(context.Background(), node.Input{Params: node.Params{
		"videoModel": "openai/sora-2-pro",
		"prompt":     "p",
		"videoAdditionalFields": map[string]any{
			"seconds":   12,
			"size":      "1920x1080",
			"resumeUrl": "https://hooks.example.com/resume",
		},
	}})
	require.NoError(t, err)
	assert.Equal(t, "in_progress", out.JSON["status"])
}

func TestStart_OpenAIInputReference(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data"))
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "openai/sora-2", r.FormValue("model"))
		assert.Equal(t, "8", r.FormValue("seconds"))

		f, fh, err := r.FormFile("input_reference")
		require.NoError(t, err)
		defer f.Close()
		data, _ := io.ReadAll(f)
		assert.Equal(t, "first-frame.png", fh.Filename)
		assert.Equal(t, "PNG", string(data))
		respond(t, w, map[string]any{"id": "video_ref"})
	})

	out, err := env.controller.Execute(context.Background(), node.Input{
		Item: node.Item{Binary: map[string]*node.Binary{
			"frame": node.NewBinary([]byte("PNG"), "first-frame.png", "image/png"),
		}},
		Params: node.Params{
			"videoModel":                   "openai/sora-2",
			"prompt":                       "animate",
			"inputReferenceBinaryProperty": "frame",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "video_ref", out.JSON["videoId"])
}

func TestStart_MissingPrompt(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {})

	_, err := env.controller.Execute(context.Background(), node.Input{Params: node.Params{
		"videoModel": "openai/sora-2",
	}})
	assert.ErrorIs(t, err, node.ErrValidation)
	assert.Equal(t, int32(0), env.Calls())
}

func TestStart_Vertex(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/vertex_ai/publishers/google/models/veo-3.0-generate-001:predictLongRunning", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-litellm-api-key"))
		assert.Empty(t, r.Header.Get("Authorization"))

		body := decodeBody(t, r)
		assert.Equal(t, []any{map[string]any{"prompt": "sunrise"}}, body["instances"])
		assert.Equal(t, map[string]any{"storageUri": "gs://maiarouter/", "sampleCount": 2.0}, body["parameters"])
		respond(t, w, map[string]any{"name": "projects/p/operations/op-123"})
	})

	out, err := env.controller.Execute(context.Background(), node.Input{Params: node.Params{
		"videoModel":            "veo-3.0-generate-001",
		"prompt":                "sunrise",
		"videoAdditionalFields": map[string]any{"sampleCount": "2"},
	}})
	require.NoError(t, err)
	assert.Equal(t, "started", out.JSON["status"])
	assert.Equal(t, "projects/p/operations/op-123", out.JSON["operationName"])
	assert.Equal(t, map[string]any{"jobId": "projects/p/operations/op-123", "backendFamily": "vertex"}, out.JSON["jobHandle"])
}

func TestStart_UnknownFamilyRequiresExplicitChoice(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {})

	_, err := env.controller.Execute(context.Background(), node.Input{Params: node.Params{
		"videoModel": "kling-v1",
		"prompt":     "p",
	}})
	require.Error(t, err)
	assert.ErrorIs(t, err, node.ErrValidation)
	assert.Contains(t, err.Error(), "backendFamily")
	assert.Equal(t, int32(0), env.Calls())
}

func TestStart_ExplicitFamilyOverridesRegistry(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/videos", r.URL.Path)
		respond(t, w, map[string]any{"id": "v"})
	})

	out, err := env.controller.Execute(context.Background(), node.Input{Params: node.Params{
		"videoModel":    "kling-v1",
		"prompt":        "p",
		"backendFamily": "openai",
	}})
	require.NoError(t, err)
	assert.Equal(t, "v", out.JSON["videoId"])
}

func TestStart_ParityFallbackRegistry(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, ":predictLongRunning")
		respond(t, w, map[string]any{"name": "op-1"})
	}, WithRegistry(backend.NewRegistry(backend.WithFallback(backend.FamilyVertex))))

	out, err := env.controller.Execute(context.Background(), node.Input{Params: node.Params{
		"videoModel": "kling-v1",
		"prompt":     "p",
	}})
	require.NoError(t, err)
	assert.Equal(t, "op-1", out.JSON["operationName"])
}

func TestStatus_OpenAI(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/videos/video_123", r.URL.Path)
		respond(t, w, map[string]any{"id": "video_123", "status": "in_progress", "progress": 40})
	})

	out, err := env.controller.Execute(context.Background(), node.Input{Params: node.Params{
		"videoMode":  "status",
		"videoModel": "openai/sora-2",
		"videoId":    "video_123",
	}})
	require.NoError(t, err)
	assert.Equal(t, "status", out.JSON["mode"])
	assert.Equal(t, "video_123", out.JSON["videoId"])
	assert.Equal(t, "in_progress", out.JSON["status"])
	assert.Equal(t, 40.0, out.JSON["progress"])
}

func TestStatus_OpenAIMissingID(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {})

	_, err := env.controller.Execute(context.Background(), node.Input{Params: node.Params{
		"videoMode":  "status",
		"videoModel": "openai/sora-2",
	}})
	require.Error(t, err)
	assert.ErrorIs(t, err, node.ErrValidation)
	assert.Equal(t, "Video ID is required for status check", err.Error())
	assert.Equal(t, int32(0), env.Calls())
}

func TestStatus_VertexInfersOperationName(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/vertex_ai/publishers/google/models/veo-3.0-generate-001:fetchPredictOperation", r.URL.Path)
		body := decodeBody(t, r)
		assert.Equal(t, "op-123", body["operationName"])
		respond(t, w, map[string]any{
			"name": "op-123",
			"done": true,
			"response": map[string]any{
				"videos": []any{map[string]any{"gcsUri": "gs://bucket/path/video.mp4"}},
			},
		})
	})

	out, err := env.controller.Execute(context.Background(), node.Input{
		Item: node.Item{JSON: map[string]any{"operationName": "op-123"}},
		Params: node.Params{
			"videoMode":     "status",
			"videoModel":    "veo-3.0-generate-001",
			"operationName": "",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "op-123", out.JSON["operationName"])
	assert.Equal(t, "https://storage.googleapis.com/bucket/path/video.mp4", out.JSON["downloadUrl"])
	assert.Equal(t, true, out.JSON["done"])
}

func TestStatus_VertexMissingOperationName(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {})

	_, err := env.controller.Execute(context.Background(), node.Input{Params: node.Params{
		"videoMode":  "status",
		"videoModel": "veo-3.0-generate-001",
	}})
	assert.ErrorIs(t, err, node.ErrValidation)
	assert.Equal(t, int32(0), env.Calls())
}

func TestStatus_JobHandleFromPreviousOutput(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/videos/video_77", r.URL.Path)
		respond(t, w, map[string]any{"id": "video_77", "status": "completed"})
	})

	// The model alone would not classify; the handle carries the family.
	out, err := env.controller.Execute(context.Background(), node.Input{
		Item: node.Item{JSON: map[string]any{
			"jobHandle": map[string]any{"jobId": "video_77", "backendFamily": "openai"},
		}},
		Params: node.Params{"videoMode": "status", "videoModel": "kling-v1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "completed", out.JSON["status"])
}

func TestStart_IgnoresInheritedHandle(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/videos", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		respond(t, w, map[string]any{"id": "video_9", "status": "queued"})
	})

	// The previous node was a Veo status step.
	out, err := env.controller.Execute(context.Background(), node.Input{
		Item: node.Item{JSON: map[string]any{
			"operationName": "op-1",
			"jobHandle":     map[string]any{"jobId": "op-1", "backendFamily": "vertex"},
		}},
		Params: node.Params{"videoMode": "start", "videoModel": "openai/sora-2", "prompt": "p"},
	})
	require.NoError(t, err)
	assert.Equal(t, "video_9", out.JSON["videoId"])
	assert.Equal(t, map[string]any{"jobId": "video_9", "backendFamily": "openai"}, out.JSON["jobHandle"])
}

func TestStart_UnknownModelIgnoresInheritedHandle(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request to %s", r.URL.Path)
	})

	_, err := env.controller.Execute(context.Background(), node.Input{
		Item: node.Item{JSON: map[string]any{
			"jobHandle": map[string]any{"jobId": "op-1", "backendFamily": "vertex"},
		}},
		Params: node.Params{"videoMode": "start", "videoModel": "kling-v1", "prompt": "p"},
	})
	assert.ErrorIs(t, err, node.ErrValidation)
	assert.Equal(t, int32(0), env.Calls())
}

func TestStatus_RegistryBeatsInheritedHandle(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/videos/video_5", r.URL.Path)
		respond(t, w, map[string]any{"id": "video_5", "status": "in_progress"})
	})

	out, err := env.controller.Execute(context.Background(), node.Input{
		Item: node.Item{JSON: map[string]any{
			"jobHandle": map[string]any{"jobId": "op-1", "backendFamily": "vertex"},
		}},
		Params: node.Params{"videoMode": "status", "videoModel": "openai/sora-2", "videoId": "video_5"},
	})
	require.NoError(t, err)
	assert.Equal(t, "in_progress", out.JSON["status"])
}

func TestDownload_OpenAI(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/videos/video_123/content", r.URL.Path)
		w.Header().Set("Content-Type", "video/mp4")
		_, _ = w.Write([]byte("MP4DATA"))
	})

	out, err := env.controller.Execute(context.Background(), node.Input{Params: node.Params{
		"videoMode":  "download",
		"videoModel": "openai/sora-2",
		"jobHandle":  map[string]any{"jobId": "video_123", "backendFamily": "openai"},
	}})
	require.NoError(t, err)
	assert.Equal(t, "mp4", out.JSON["format"])
	assert.Equal(t, 7, out.JSON["size"])

	bin := out.Binary[node.DefaultBinaryProperty]
	require.NotNil(t, bin)
	assert.Equal(t, "generated-video.mp4", bin.FileName)
	assert.Equal(t, "video/mp4", bin.MimeType)
	assert.Equal(t, []byte("MP4DATA"), bin.Data)
}

func TestDownload_Vertex(t *testing.T) {
	var env *testEnv
	env = newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, ":fetchPredictOperation"):
			respond(t, w, map[string]any{"response": map[string]any{
				"videos": []any{map[string]any{"gcsUri": env.server.URL + "/bucket/v.mp4"}},
			}})
		case r.URL.Path == "/bucket/v.mp4":
			assert.Empty(t, r.Header.Get("x-litellm-api-key"))
			_, _ = w.Write([]byte("VEO"))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	out, err := env.controller.Execute(context.Background(), node.Input{Params: node.Params{
		"videoMode":     "download",
		"videoModel":    "veo-3.0-generate-001",
		"operationName": "op-9",
	}})
	require.NoError(t, err)
	assert.Equal(t, env.server.URL+"/bucket/v.mp4", out.JSON["downloadUrl"])
	assert.Equal(t, []byte("VEO"), out.Binary["data"].Data)
	assert.Equal(t, int32(2), env.Calls())
}

func TestDownload_VertexNotReady(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		respond(t, w, map[string]any{"name": "op-9", "done": false})
	})

	_, err := env.controller.Execute(context.Background(), node.Input{Params: node.Params{
		"videoMode":     "download",
		"videoModel":    "veo-3.0-generate-001",
		"operationName": "op-9",
	}})
	require.Error(t, err)
	assert.Equal(t, "No download URL available", err.Error())
}

func TestRemix_OpenAI(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/videos/video_1/remix", r.URL.Path)
		assert.Equal(t, map[string]any{"prompt": "make it night"}, decodeBody(t, r))
		respond(t, w, map[string]any{"id": "video_2", "status": "queued"})
	})

	out, err := env.controller.Execute(context.Background(), node.Input{Params: node.Params{
		"videoMode":  "remix",
		"videoModel": "openai/sora-2",
		"videoId":    "video_1",
		"prompt":     "make it night",
	}})
	require.NoError(t, err)
	assert.Equal(t, "video_2", out.JSON["videoId"])
	assert.Equal(t, "video_1", out.JSON["previousVideoId"])
	assert.Equal(t, map[string]any{"jobId": "video_2", "backendFamily": "openai"}, out.JSON["jobHandle"])
}

func TestRemix_VertexUnsupported(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {})

	_, err := env.controller.Execute(context.Background(), node.Input{Params: node.Params{
		"videoMode":     "remix",
		"videoModel":    "veo-3.0-generate-001",
		"operationName": "op-1",
		"prompt":        "x",
	}})
	require.Error(t, err)
	assert.ErrorIs(t, err, node.ErrUnsupportedOperation)
	assert.Equal(t, int32(0), env.Calls())
}

func TestRemix_RequiresPrompt(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {})

	_, err := env.controller.Execute(context.Background(), node.Input{Params: node.Params{
		"videoMode":  "remix",
		"videoModel": "openai/sora-2",
		"videoId":    "video_1",
	}})
	assert.ErrorIs(t, err, node.ErrValidation)
	assert.Equal(t, int32(0), env.Calls())
}

func TestGatewayErrorSurfacesRemoteMessage(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited"}}`))
	})

	_, err := env.controller.Execute(context.Background(), node.Input{Params: node.Params{
		"videoModel": "openai/sora-2",
		"prompt":     "p",
	}})
	require.Error(t, err)
	assert.True(t, gateway.IsError(err))
	assert.Equal(t, "Error: rate limited", err.Error())
}

func TestDownloadURL(t *testing.T) {
	tests := []struct {
		name string
		op   string
		want string
	}{
		{"gcs", `{"response":{"videos":[{"gcsUri":"gs://b/x.mp4"}]}}`, "https://storage.googleapis.com/b/x.mp4"},
		{"https", `{"response":{"videos":[{"gcsUri":"https://cdn/x.mp4"}]}}`, "https://cdn/x.mp4"},
		{"first of many", `{"response":{"videos":[{"gcsUri":"gs://b/1.mp4"},{"gcsUri":"gs://b/2.mp4"}]}}`, "https://storage.googleapis.com/b/1.mp4"},
		{"no videos", `{"response":{"videos":[]}}`, ""},
		{"no response", `{"done":false}`, ""},
		{"non string uri", `{"response":{"videos":[{"gcsUri":null}]}}`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DownloadURL([]byte(tt.op)))
		})
	}
}

func TestSampleCount(t *testing.T) {
	assert.Equal(t, 1, sampleCount(""))
	assert.Equal(t, 1, sampleCount("abc"))
	assert.Equal(t, 1, sampleCount("0"))
	assert.Equal(t, 3, sampleCount("3"))
	assert.Equal(t, 2, sampleCount("2.7"))
}
