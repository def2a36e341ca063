package clients

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVisionClient_DetectTextSync(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/vision/detect-text", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var req VisionOCRRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "base64", req.Format)
		assert.Equal(t, []string{"ja"}, req.Languages)

		_, _ = w.Write([]byte(`{"success":true,"data":{"imageWidth":1000,"imageHeight":1500,
			"blocks":[{"text":"出口","confidence":0.93,"boundingBox":{"x":10,"y":20,"width":100,"height":40}}]}}`))
	}))
	defer srv.Close()

	c := NewVisionClient(srv.URL, "secret")
	data, err := c.DetectTextFromBytes(context.Background(), []byte{0xff, 0xd8}, []string{"ja"}, "job-1")
	require.NoError(t, err)

	assert.Equal(t, 1000, data.ImageWidth)
	assert.Equal(t, 1500, data.ImageHeight)
	require.Len(t, data.Blocks, 1)
	assert.Equal(t, "出口", data.Blocks[0].Text)
	require.NotNil(t, data.Blocks[0].BoundingBox)
	assert.Equal(t, 100.0, data.Blocks[0].BoundingBox.Width)
}

func TestVisionClient_DetectTextAsyncPolls(t *testing.T) {
	t.Parallel()

	var polls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/vision/detect-text", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"success":true,"data":{"taskId":"t-1"},"meta":{"estimatedDuration":"1s"}}`))
	})
	mux.HandleFunc("/api/tasks/t-1", func(w http.ResponseWriter, r *http.Request) {
		if polls.Add(1) < 2 {
			_, _ = w.Write([]byte(`{"success":true,"data":{"task":{"id":"t-1","status":"processing","progress":50}}}`))
			return
		}
		_, _ = w.Write([]byte(`{"success":true,"data":{"task":{"id":"t-1","status":"completed",
			"result":{"imageWidth":640,"imageHeight":480,"blocks":[{"text":"hi","confidence":0.8}]}}}}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewVisionClient(srv.URL, "")
	c.pollInterval = 5 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	data, err := c.DetectText(ctx, &VisionOCRRequest{Image: "AA==", Format: "base64"})
	require.NoError(t, err)
	assert.Equal(t, 640, data.ImageWidth)
	assert.GreaterOrEqual(t, polls.Load(), int32(2))
}

func TestVisionClient_StatusError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewVisionClient(srv.URL, "").DetectText(context.Background(), &VisionOCRRequest{})
	require.Error(t, err)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.True(t, se.Temporary())
}

func TestTranslateClient_Translate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		body    string
		want    string
		wantErr bool
	}{
		{
			name: "numeric status",
			body: `{"responseData":{"translatedText":"Hola","match":0.9},"responseStatus":200,
				"matches":[{"translation":"Hola"},{"translation":"Buenas"}]}`,
			want: "Hola",
		},
		{
			name: "string status",
			body: `{"responseData":{"translatedText":"Hola","match":0.5},"responseStatus":"200"}`,
			want: "Hola",
		},
		{
			name:    "quota exceeded",
			body:    `{"responseData":{"translatedText":""},"responseStatus":429,"responseDetails":"limit reached"}`,
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "Hello", r.URL.Query().Get("q"))
				assert.Equal(t, "en|es", r.URL.Query().Get("langpair"))
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			res, err := NewTranslateClient(srv.URL, "").Translate(context.Background(), "Hello", "en", "es")
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Text)
		})
	}
}

func TestRuntimeClient(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/translate", func(w http.ResponseWriter, r *http.Request) {
		var req RuntimeTranslateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.Target == "xx" {
			_, _ = w.Write([]byte(`{"error":"model not installed"}`))
			return
		}
		_, _ = w.Write([]byte(`{"text":"` + req.Text + `!"}`))
	})
	mux.HandleFunc("/v1/models/ja", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			_, _ = w.Write([]byte(`{"language":"ja"}`))
		case http.MethodPut:
			w.WriteHeader(http.StatusCreated)
		case http.MethodDelete:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	mux.HandleFunc("/v1/models/ko", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/v1/models/fr", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewRuntimeClient(srv.URL)
	ctx := context.Background()

	out, err := c.Translate(ctx, "hi", "en", "ja")
	require.NoError(t, err)
	assert.Equal(t, "hi!", out)

	_, err = c.Translate(ctx, "hi", "en", "xx")
	assert.Error(t, err)

	has, err := c.HasModel(ctx, "ja")
	require.NoError(t, err)
	assert.True(t, has)
	has, err = c.HasModel(ctx, "ko")
	require.NoError(t, err)
	assert.False(t, has)
	_, err = c.HasModel(ctx, "fr")
	assert.Error(t, err)

	assert.NoError(t, c.DownloadModel(ctx, "ja"))
	assert.NoError(t, c.DeleteModel(ctx, "ja"))
}
