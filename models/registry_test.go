package models

import (
	"errors"
	"testing"

	"github.com/nvr-ai/go-batchdet/errdefs"
	"github.com/nvr-ai/go-batchdet/models/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRegistry(t *testing.T) {
	r := DefaultRegistry()
	assert.Equal(t, []model.Name{model.ModelNameFasterRCNN, model.ModelNameRFCN}, r.Names())

	tests := []struct {
		name       model.Name
		numClasses int
		agnostic   bool
		outputs    []string
		activation model.ScoreActivation
	}{
		{model.ModelNameRFCN, 31, true, []string{"cls_prob", "bbox_pred"}, model.ActivationNone},
		{model.ModelNameFasterRCNN, 21, false, []string{"cls_score", "bbox_pred"}, model.ActivationSoftmax},
	}

	for _, tt := range tests {
		t.Run(string(tt.name), func(t *testing.T) {
			m, err := r.NewModel(model.NewModelArgs{Name: tt.name, Path: "/models/x.onnx"})
			require.NoError(t, err)

			opts := m.Options()
			assert.Equal(t, tt.name, opts.Name)
			assert.Equal(t, "/models/x.onnx", opts.Path)
			assert.Equal(t, tt.numClasses, opts.NumClasses)
			assert.Equal(t, tt.numClasses, m.Classes().Len())
			assert.Equal(t, tt.agnostic, opts.ClassAgnostic)
			assert.Equal(t, []string{"data", "im_info"}, opts.Inputs)
			assert.Equal(t, tt.outputs, opts.Outputs)
			assert.Equal(t, tt.activation, opts.Activation)
			require.NotNil(t, opts.Preprocess)
			assert.NoError(t, opts.Preprocess.Validate())
		})
	}
}

func TestRegistry_UnknownModel(t *testing.T) {
	_, err := DefaultRegistry().NewModel(model.NewModelArgs{Name: "yolo9000"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errdefs.ErrUnknownModel))
	assert.Contains(t, err.Error(), "unknown model name")
}

func TestRegistry_RegisterOverrides(t *testing.T) {
	r := NewRegistry()
	boom := errors.New("boom")
	r.Register("custom", func(model.NewModelArgs) (model.Model, error) { return nil, boom })

	_, err := r.NewModel(model.NewModelArgs{Name: "custom"})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []model.Name{"custom"}, r.Names())
}

func TestRFCNMaxBatchDefault(t *testing.T) {
	m, err := DefaultRegistry().NewModel(model.NewModelArgs{Name: model.ModelNameRFCN})
	require.NoError(t, err)
	assert.Equal(t, 10, m.Options().MaxBatch)

	m, err = DefaultRegistry().NewModel(model.NewModelArgs{Name: model.ModelNameRFCN, MaxBatch: 4})
	require.NoError(t, err)
	assert.Equal(t, 4, m.Options().MaxBatch)
}
