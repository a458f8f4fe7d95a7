package utils

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestUtils(t *testing.T) {
	t.Run("test FileNameWithoutExtension", testFileNameWithoutExtension)
	t.Run("test HasFileExtension", testHasFileExtension)
	t.Run("test IsNonEmptyFile", testIsNonEmptyFile)
	t.Run("test StripPathPrefix", testStripPathPrefix)
	t.Run("test TimeString", testTimeString)
	t.Run("test ElapsedMinutes", testElapsedMinutes)
}

func testFileNameWithoutExtension(t *testing.T) {
	assert.Equal(t, "hotword", GetFileNameWithoutExtension("/data/ml/hotword.tflite"))
	assert.Equal(t, "hotword.v2", GetFileNameWithoutExtension("/data/ml/hotword.v2.tflite"))
	assert.Equal(t, "README", GetFileNameWithoutExtension("README"))
}

func testHasFileExtension(t *testing.T) {
	assert.True(t, HasFileExtension("a/b/model.tflite", ".tflite"))
	assert.True(t, HasFileExtension("a/b/model.TFLITE", ".tflite"))
	assert.False(t, HasFileExtension("a/b/model.tflite.part", ".tflite"))
	assert.False(t, HasFileExtension("a/b/model", ".tflite"))
}

func testIsNonEmptyFile(t *testing.T) {
	dir := t.TempDir()

	emptyPath := filepath.Join(dir, "empty.bin")
	err := os.WriteFile(emptyPath, []byte{}, 0644)
	assert.NoError(t, err)

	dataPath := filepath.Join(dir, "data.bin")
	err = os.WriteFile(dataPath, []byte("abc"), 0644)
	assert.NoError(t, err)

	assert.False(t, IsNonEmptyFile(emptyPath))
	assert.True(t, IsNonEmptyFile(dataPath))
	assert.False(t, IsNonEmptyFile(dir))
	assert.False(t, IsNonEmptyFile(filepath.Join(dir, "missing.bin")))
}

func testStripPathPrefix(t *testing.T) {
	assert.Equal(t, "src/main/ml/a.tflite", StripPathPrefix("app/src/main/ml/a.tflite", "app/"))
	assert.Equal(t, "ml/a.tflite", StripPathPrefix("ml/a.tflite", "app/"))
	assert.Equal(t, "app/ml/a.tflite", StripPathPrefix("app/ml/a.tflite", ""))
}

func testTimeString(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 20, 30, 0, time.UTC)

	assert.Equal(t, "2024-03-01T10:20:30Z", MakeTimeToString(now))
}

func testElapsedMinutes(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 20, 30, 0, time.UTC)

	assert.Equal(t, 0.0, GetElapsedMinutes(now, now))
	assert.Equal(t, 1.5, GetElapsedMinutes(now.Add(-90*time.Second), now))
	assert.Equal(t, 0.0, GetElapsedMinutes(now.Add(time.Minute), now))
}
