package model

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTensor(t *testing.T) {
	tensor := NewTensor(1, 128, 128, 3)

	assert.Equal(t, []int64{1, 128, 128, 3}, tensor.Shape)
	assert.Len(t, tensor.Data, 128*128*3)
	assert.Equal(t, 4, tensor.Rank())
	assert.NoError(t, tensor.Validate())
}

func TestTensorValidate(t *testing.T) {
	tests := []struct {
		name    string
		tensor  Tensor
		wantErr bool
	}{
		{"binary", Tensor{Shape: []int64{1, 1}, Data: []float32{0.3}}, false},
		{"vector", Tensor{Shape: []int64{1}, Data: []float32{0.3}}, false},
		{"short data", Tensor{Shape: []int64{1, 2}, Data: []float32{0.3}}, true},
		{"negative dim", Tensor{Shape: []int64{-1, 2}, Data: []float32{0.3, 0.4}}, true},
		{"empty trailing", Tensor{Shape: []int64{1, 0}, Data: nil}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.tensor.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConcreteShape(t *testing.T) {
	assert.Equal(t, []int64{1, 128, 128, 3}, concreteShape([]int64{-1, 128, 128, 3}))
	assert.Equal(t, []int64{1, 2}, concreteShape([]int64{0, 2}))
}

func TestLoadMetadata(t *testing.T) {
	t.Run("missing path is empty metadata", func(t *testing.T) {
		m, err := loadMetadata(filepath.Join(t.TempDir(), "absent.json"))
		require.NoError(t, err)
		assert.Empty(t, m.InputName)
	})

	t.Run("reads json", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "meta.json")
		raw, err := json.Marshal(Metadata{
			InputName:   "input",
			OutputName:  "output",
			InputShape:  []int64{1, 128, 128, 3},
			OutputShape: []int64{1, 1},
			Classes:     []string{"Normal", "Pneumonia"},
			ImageSize:   128,
		})
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(path, raw, 0644))

		m, err := loadMetadata(path)
		require.NoError(t, err)
		assert.Equal(t, "input", m.InputName)
		assert.Equal(t, []int64{1, 1}, m.OutputShape)
		assert.Equal(t, 128, m.ImageSize)

		// Complete metadata never touches the model file.
		require.NoError(t, completeMetadata(&m, "does-not-exist.onnx"))
	})

	t.Run("bad json", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "meta.json")
		require.NoError(t, os.WriteFile(path, []byte("{"), 0644))

		_, err := loadMetadata(path)
		assert.Error(t, err)
	})
}
