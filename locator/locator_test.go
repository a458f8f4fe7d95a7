package locator

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Zmmoly/modelcache/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAssetsDocument = `
releaseTag: v1.0.0
app/ml/remote_model.tflite: https://example.com/v1.0.0/remote_model.tflite
app/downloads/other.tflite: https://example.com/v1.0.0/other.tflite
app/ml/notes.txt: https://example.com/v1.0.0/notes.txt
`

func writeFile(t *testing.T, path string, data string) {
	err := os.MkdirAll(filepath.Dir(path), 0755)
	require.NoError(t, err)

	err = os.WriteFile(path, []byte(data), 0644)
	require.NoError(t, err)
}

func newTestLocator(t *testing.T) (*Locator, *config.Config) {
	root := t.TempDir()
	cfg := config.NewDefaultConfig(root)

	writeFile(t, cfg.GetAssetsConfigPath(), testAssetsDocument)
	writeFile(t, filepath.Join(root, "ml", "hotword.tflite"), "hotword-bytes")
	writeFile(t, filepath.Join(root, "assets", "intent.tflite"), "intent-bytes")
	writeFile(t, filepath.Join(root, "assets", "labels.txt"), "labels")

	return NewLocator(cfg, nil), cfg
}

func TestLocator(t *testing.T) {
	t.Run("test Scan", testScan)
	t.Run("test ScanLastDirWins", testScanLastDirWins)
	t.Run("test ResolveLocal", testResolveLocal)
	t.Run("test ResolveRemote", testResolveRemote)
	t.Run("test ResolveUnknown", testResolveUnknown)
	t.Run("test ResolveDownloadedBefore", testResolveDownloadedBefore)
	t.Run("test Register", testRegister)
	t.Run("test DefaultPath", testDefaultPath)
	t.Run("test ListKnown", testListKnown)
	t.Run("test BrokenAssetsDocument", testBrokenAssetsDocument)
}

func testScan(t *testing.T) {
	locator, cfg := newTestLocator(t)

	found := locator.Scan()
	assert.Len(t, found, 2)
	assert.Equal(t, filepath.Join(cfg.RootPath, "ml", "hotword.tflite"), found["hotword"])
	assert.Equal(t, filepath.Join(cfg.RootPath, "assets", "intent.tflite"), found["intent"])
	assert.Equal(t, []string{"hotword", "intent"}, locator.ListLocal())

	// deleted files vanish on rescan
	err := os.Remove(found["intent"])
	require.NoError(t, err)

	found = locator.Scan()
	assert.Len(t, found, 1)
	assert.NotContains(t, found, "intent")
}

func testScanLastDirWins(t *testing.T) {
	locator, cfg := newTestLocator(t)

	writeFile(t, filepath.Join(cfg.RootPath, "assets", "hotword.tflite"), "shadow")

	found := locator.Scan()
	assert.Equal(t, filepath.Join(cfg.RootPath, "assets", "hotword.tflite"), found["hotword"])
}

func testResolveLocal(t *testing.T) {
	locator, cfg := newTestLocator(t)

	location := locator.Resolve("hotword")
	assert.True(t, location.IsLocal())
	assert.Equal(t, filepath.Join(cfg.RootPath, "ml", "hotword.tflite"), location.Path)
	assert.True(t, locator.IsLocal("hotword"))
}

func testResolveRemote(t *testing.T) {
	locator, cfg := newTestLocator(t)

	location := locator.Resolve("remote_model")
	assert.True(t, location.IsRemote())
	assert.Equal(t, "https://example.com/v1.0.0/remote_model.tflite", location.URL)
	assert.Equal(t, "<Location remote remote_model "+location.Path+" "+location.URL+">", location.ToString())
	assert.Equal(t, filepath.Join(cfg.RootPath, "ml", "remote_model.tflite"), location.Path)

	location = locator.Resolve("other")
	assert.True(t, location.IsRemote())
	assert.Equal(t, filepath.Join(cfg.RootPath, "downloads", "other.tflite"), location.Path)
	assert.False(t, locator.IsLocal("other"))
}

func testResolveUnknown(t *testing.T) {
	locator, _ := newTestLocator(t)

	assert.True(t, locator.Resolve("ghost").IsUnknown())
	// only model files are resolvable
	assert.True(t, locator.Resolve("notes").IsUnknown())
	assert.True(t, locator.Resolve("").IsUnknown())
	assert.True(t, locator.Resolve("../ml/hotword").IsUnknown())
}

func testResolveDownloadedBefore(t *testing.T) {
	locator, cfg := newTestLocator(t)

	writeFile(t, filepath.Join(cfg.RootPath, "downloads", "other.tflite"), "downloaded")

	location := locator.Resolve("other")
	assert.True(t, location.IsLocal())
	assert.Equal(t, filepath.Join(cfg.RootPath, "downloads", "other.tflite"), location.Path)

	// an empty leftover is not trusted
	writeFile(t, filepath.Join(cfg.RootPath, "ml", "remote_model.tflite"), "")
	assert.True(t, locator.Resolve("remote_model").IsRemote())
}

func testRegister(t *testing.T) {
	locator, _ := newTestLocator(t)

	locator.Register("remote_model", "/somewhere/remote_model.tflite")

	location := locator.Resolve("remote_model")
	assert.True(t, location.IsLocal())
	assert.Equal(t, "/somewhere/remote_model.tflite", location.Path)
}

func testDefaultPath(t *testing.T) {
	locator, cfg := newTestLocator(t)

	assert.Equal(t, filepath.Join(cfg.RootPath, "ml", "ghost.tflite"), locator.DefaultPath("ghost"))
}

func testListKnown(t *testing.T) {
	locator, _ := newTestLocator(t)

	assert.Equal(t, []string{"hotword", "intent", "other", "remote_model"}, locator.ListKnown())
}

func testBrokenAssetsDocument(t *testing.T) {
	root := t.TempDir()
	cfg := config.NewDefaultConfig(root)

	writeFile(t, cfg.GetAssetsConfigPath(), "app/ml/x.tflite: [broken\n")
	writeFile(t, filepath.Join(root, "ml", "hotword.tflite"), "hotword-bytes")

	locator := NewLocator(cfg, nil)

	assert.True(t, locator.Resolve("hotword").IsLocal())
	assert.True(t, locator.Resolve("x").IsUnknown())
	assert.Equal(t, []string{"hotword"}, locator.ListKnown())
}
