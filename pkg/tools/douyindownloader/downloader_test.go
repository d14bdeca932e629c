package douyindownloader_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleyhq/parley/pkg/models"
	"github.com/parleyhq/parley/pkg/tools/douyindownloader"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDownloaderVideo(t *testing.T) {
	var gotBody map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"type":    "video",
			"result": map[string]any{
				"fileName":   "dance.mp4",
				"filePath":   "/downloads/dance.mp4",
				"fileSize":   "12MB",
				"duration":   15,
				"resolution": "1080x1920",
			},
		})
	}))
	defer server.Close()

	tool := douyindownloader.New(douyindownloader.Config{Endpoint: server.URL}, testLogger())
	assert.Equal(t, "douyin-downloader", tool.ID())

	var reports []models.StepProgress

	output, err := tool.Execute(context.Background(),
		map[string]any{"douyin_url": "https://v.douyin.com/abc123"},
		func(p models.StepProgress) { reports = append(reports, p) })
	require.NoError(t, err)

	assert.Equal(t, "https://v.douyin.com/abc123", gotBody["url"])
	assert.Equal(t, "video", output["type"])
	assert.Equal(t, "dance.mp4", output["fileName"])
	assert.Equal(t, "https://v.douyin.com/abc123", output["originalUrl"])
	assert.NotEmpty(t, output["downloadedAt"])

	require.NotEmpty(t, reports)
	assert.Equal(t, 100, reports[len(reports)-1].Percent)

	for i := 1; i < len(reports); i++ {
		assert.GreaterOrEqual(t, reports[i].Percent, reports[i-1].Percent)
	}
}

func TestDownloaderAudioImageMix(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"type":    "audio_image_mix",
			"result": map[string]any{
				"folderName": "post-42",
				"folderPath": "/downloads/post-42",
				"totalFiles": 7,
				"totalSize":  "18MB",
				"audio":      map[string]any{"fileName": "audio.mp3"},
				"imageCount": 6,
				"images":     []any{"1.jpg", "2.jpg"},
			},
		})
	}))
	defer server.Close()

	tool := douyindownloader.New(douyindownloader.Config{Endpoint: server.URL}, testLogger())

	output, err := tool.Execute(context.Background(),
		map[string]any{"douyin_url": "https://www.douyin.com/video/1"}, nil)
	require.NoError(t, err)

	assert.Equal(t, "audio_image_mix", output["type"])
	assert.Equal(t, "post-42", output["folderName"])
	assert.EqualValues(t, 6, output["imageCount"])
}

func TestDownloaderFailures(t *testing.T) {
	tests := []struct {
		name     string
		handler  http.HandlerFunc
		params   map[string]any
		expected error
	}{
		{
			name: "service reports failure",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_ = json.NewEncoder(w).Encode(map[string]any{
					"success": false,
					"error":   "video unavailable",
				})
			},
			params:   map[string]any{"douyin_url": "https://v.douyin.com/gone"},
			expected: douyindownloader.ErrAPIFailure,
		},
		{
			name: "unsupported content type",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_ = json.NewEncoder(w).Encode(map[string]any{
					"success": true,
					"type":    "live_stream",
					"result":  map[string]any{},
				})
			},
			params:   map[string]any{"douyin_url": "https://v.douyin.com/live"},
			expected: douyindownloader.ErrUnsupportedContent,
		},
		{
			name:     "missing url",
			handler:  func(_ http.ResponseWriter, _ *http.Request) {},
			params:   map[string]any{},
			expected: douyindownloader.ErrMissingParameter,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			tool := douyindownloader.New(douyindownloader.Config{Endpoint: server.URL, Retries: 1}, testLogger())

			_, err := tool.Execute(context.Background(), tt.params, nil)
			require.ErrorIs(t, err, tt.expected)
		})
	}
}
