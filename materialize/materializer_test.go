package materialize

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"
)

type testInstance struct {
	header []byte
	closed int32
}

func (instance *testInstance) Close() error {
	atomic.AddInt32(&instance.closed, 1)
	return nil
}

func writeTestModel(t *testing.T, data []byte) string {
	path := filepath.Join(t.TempDir(), "model.tflite")
	err := os.WriteFile(path, data, 0644)
	require.NoError(t, err)
	return path
}

func TestMaterializer(t *testing.T) {
	t.Run("test Open", testOpen)
	t.Run("test OpenWithConstructor", testOpenWithConstructor)
	t.Run("test OpenMissing", testOpenMissing)
	t.Run("test OpenEmpty", testOpenEmpty)
	t.Run("test OpenRejected", testOpenRejected)
	t.Run("test CloseOnce", testCloseOnce)
}

func testOpen(t *testing.T) {
	path := writeTestModel(t, []byte("0123456789"))

	materializer := NewMmapMaterializer(nil)
	handle, err := materializer.Open("model", path)
	require.NoError(t, err)

	model, ok := handle.(*Model)
	require.True(t, ok)
	assert.Equal(t, "model", model.GetName())
	assert.Equal(t, path, model.GetPath())
	assert.Equal(t, 10, model.GetSize())
	assert.Nil(t, model.GetInstance())

	buffer := make([]byte, 4)
	readLen, err := model.GetMapping().ReadAt(buffer, 3)
	require.NoError(t, err)
	assert.Equal(t, 4, readLen)
	assert.Equal(t, []byte("3456"), buffer)
	assert.Equal(t, byte('9'), model.GetMapping().At(9))

	assert.NoError(t, model.Close())
}

func testOpenWithConstructor(t *testing.T) {
	path := writeTestModel(t, []byte("----TFL3rest-of-model"))

	var built *testInstance
	materializer := NewMmapMaterializer(func(name string, mapping Mapping) (Handle, error) {
		header := make([]byte, 4)
		_, err := mapping.ReadAt(header, 4)
		if err != nil {
			return nil, err
		}

		built = &testInstance{header: header}
		return built, nil
	})

	handle, err := materializer.Open("model", path)
	require.NoError(t, err)

	model := handle.(*Model)
	assert.Equal(t, built, model.GetInstance())
	assert.Equal(t, []byte("TFL3"), built.header)

	assert.NoError(t, model.Close())
	assert.Equal(t, int32(1), atomic.LoadInt32(&built.closed))
}

func testOpenMissing(t *testing.T) {
	materializer := NewMmapMaterializer(nil)

	_, err := materializer.Open("model", filepath.Join(t.TempDir(), "nothing.tflite"))
	assert.Error(t, err)
	assert.True(t, IsOpenError(err))
	assert.True(t, IsOpenErrorKind(err, OpenErrorMissing))

	_, err = materializer.Open("model", t.TempDir())
	assert.True(t, IsOpenErrorKind(err, OpenErrorMissing))
}

func testOpenEmpty(t *testing.T) {
	path := writeTestModel(t, []byte{})

	materializer := NewMmapMaterializer(nil)
	_, err := materializer.Open("model", path)
	assert.Error(t, err)
	assert.True(t, IsOpenErrorKind(err, OpenErrorCorrupt))

	// the bad file is left in place
	_, statErr := os.Stat(path)
	assert.NoError(t, statErr)
}

func testOpenRejected(t *testing.T) {
	path := writeTestModel(t, []byte("garbage"))

	materializer := NewMmapMaterializer(func(name string, mapping Mapping) (Handle, error) {
		return nil, xerrors.Errorf("bad model header")
	})

	_, err := materializer.Open("model", path)
	assert.Error(t, err)
	assert.True(t, IsOpenErrorKind(err, OpenErrorCorrupt))
	assert.Contains(t, err.Error(), "bad model header")
}

func testCloseOnce(t *testing.T) {
	path := writeTestModel(t, []byte("0123456789"))

	instance := &testInstance{}
	materializer := NewMmapMaterializer(func(name string, mapping Mapping) (Handle, error) {
		return instance, nil
	})

	handle, err := materializer.Open("model", path)
	require.NoError(t, err)

	assert.NoError(t, handle.Close())
	assert.NoError(t, handle.Close())
	assert.Equal(t, int32(1), atomic.LoadInt32(&instance.closed))
}
