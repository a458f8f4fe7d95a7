package main

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.tflite" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte("model-bytes-" + r.URL.Path))
	}))
}

func writeDocument(t *testing.T, root string, document string) {
	err := os.WriteFile(filepath.Join(root, "assets-config.yml"), []byte(document), 0644)
	require.NoError(t, err)
}

func TestModelFetch(t *testing.T) {
	t.Run("test Download", testDownload)
	t.Run("test SkipExisting", testSkipExisting)
	t.Run("test PartialFailure", testPartialFailure)
	t.Run("test AllFailed", testAllFailed)
	t.Run("test MissingDocument", testMissingDocument)
	t.Run("test ParseFlags", testParseFlags)
}

func testDownload(t *testing.T) {
	server := newTestServer()
	defer server.Close()

	root := t.TempDir()
	writeDocument(t, root, fmt.Sprintf(`
releaseTag: v1.0.0
releaseUrl: %s/releases/v1.0.0
app/src/main/ml/hotword.tflite: %s/hotword.tflite
app/src/main/assets/intent.tflite: %s/intent.tflite
app/notes: not a url
`, server.URL, server.URL, server.URL))

	out := &bytes.Buffer{}
	code := run([]string{"-root", root, "-progress"}, out)
	assert.Equal(t, 0, code, out.String())

	data, err := os.ReadFile(filepath.Join(root, "app/src/main/ml/hotword.tflite"))
	require.NoError(t, err)
	assert.Equal(t, "model-bytes-/hotword.tflite", string(data))

	_, err = os.Stat(filepath.Join(root, "app/src/main/assets/intent.tflite"))
	assert.NoError(t, err)

	// informational keys are not downloaded
	_, err = os.Stat(filepath.Join(root, "releaseUrl"))
	assert.True(t, os.IsNotExist(err))

	assert.Contains(t, out.String(), "available: 2")
	assert.Contains(t, out.String(), "hotword: 100%")
}

func testSkipExisting(t *testing.T) {
	server := newTestServer()
	defer server.Close()

	root := t.TempDir()
	writeDocument(t, root, fmt.Sprintf("app/ml/hotword.tflite: %s/hotword.tflite\n", server.URL))

	dest := filepath.Join(root, "ml", "hotword.tflite")
	err := os.MkdirAll(filepath.Dir(dest), 0755)
	require.NoError(t, err)
	err = os.WriteFile(dest, []byte("local copy"), 0644)
	require.NoError(t, err)

	out := &bytes.Buffer{}
	code := run([]string{"-strip-prefix", "app/", root}, out)
	assert.Equal(t, 0, code)
	assert.Contains(t, out.String(), "already exists: app/ml/hotword.tflite")

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "local copy", string(data))
}

func testPartialFailure(t *testing.T) {
	server := newTestServer()
	defer server.Close()

	root := t.TempDir()
	writeDocument(t, root, fmt.Sprintf(`
app/ml/hotword.tflite: %s/hotword.tflite
app/ml/missing.tflite: %s/missing.tflite
`, server.URL, server.URL))

	out := &bytes.Buffer{}
	code := run([]string{"-root", root}, out)
	assert.Equal(t, 0, code)
	assert.Contains(t, out.String(), "available: 1")
	assert.Contains(t, out.String(), "failed: 1")
}

func testAllFailed(t *testing.T) {
	server := newTestServer()
	defer server.Close()

	root := t.TempDir()
	writeDocument(t, root, fmt.Sprintf("app/ml/missing.tflite: %s/missing.tflite\n", server.URL))

	out := &bytes.Buffer{}
	code := run([]string{"-root", root}, out)
	assert.Equal(t, 1, code)
	assert.Contains(t, out.String(), "every download failed")
}

func testMissingDocument(t *testing.T) {
	root := t.TempDir()

	out := &bytes.Buffer{}
	code := run([]string{"-root", root}, out)
	assert.Equal(t, 1, code)

	// not seeded
	_, err := os.Stat(filepath.Join(root, "assets-config.yml"))
	assert.True(t, os.IsNotExist(err))
}

func testParseFlags(t *testing.T) {
	opts, err := parseFlags([]string{"-root", "/project", "-timeout", "30s"})
	require.NoError(t, err)
	assert.Equal(t, "/project", opts.root)
	assert.Equal(t, "/project/assets-config.yml", opts.assetsConfig)
	assert.Equal(t, "30s", opts.timeout.String())

	opts, err = parseFlags([]string{"-config", "/etc/assets.yml", "/project"})
	require.NoError(t, err)
	assert.Equal(t, "/project", opts.root)
	assert.Equal(t, "/etc/assets.yml", opts.assetsConfig)

	_, err = parseFlags([]string{"-unknown"})
	assert.Error(t, err)
}
