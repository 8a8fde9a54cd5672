package model

import (
	"errors"
	"testing"

	"github.com/nvr-ai/go-batchdet/errdefs"
	"github.com/nvr-ai/go-batchdet/images"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"
)

func dense(data []float32, shape ...int) *tensor.Dense {
	return tensor.New(tensor.WithShape(shape...), tensor.Of(tensor.Float32), tensor.WithBacking(data))
}

func TestDecodeOutputs_SplitsAndRescales(t *testing.T) {
	geometry := []images.Geometry{
		{Height: 100, Width: 200, Scale: 2},
		{Height: 50, Width: 50, Scale: 0.5},
	}
	// Two images, one proposal each, two classes, 8-column agnostic boxes.
	scores := dense([]float32{0.1, 0.9, 0.4, 0.6}, 2, 1, 2)
	boxes := dense([]float32{
		0, 0, 0, 0, 10, 20, 300, 80,
		0, 0, 0, 0, -5, 5, 20, 60,
	}, 2, 1, 8)

	raws, err := DecodeOutputs(scores, boxes, geometry)
	require.NoError(t, err)
	require.Len(t, raws, 2)

	assert.Equal(t, []float32{0.1, 0.9}, raws[0].Scores)
	assert.Equal(t, []float32{0.4, 0.6}, raws[1].Scores)
	assert.Equal(t, 8, raws[0].BoxWidth)

	// Clipped to 199x99 then divided by 2.
	assert.Equal(t, images.Rect{X1: 5, Y1: 10, X2: 99.5, Y2: 40}, raws[0].Box(0, 4))
	// Clipped to 49x49 then divided by 0.5.
	assert.Equal(t, images.Rect{X1: 0, Y1: 10, X2: 40, Y2: 98}, raws[1].Box(0, 4))
}

func TestDecodeOutputs_SingleImageRank2(t *testing.T) {
	geometry := []images.Geometry{{Height: 10, Width: 10, Scale: 1}}
	raws, err := DecodeOutputs(dense([]float32{0.2, 0.8}, 1, 2), dense([]float32{1, 1, 5, 5}, 1, 4), geometry)
	require.NoError(t, err)
	require.Len(t, raws, 1)
	assert.Equal(t, images.Rect{X1: 1, Y1: 1, X2: 5, Y2: 5}, raws[0].Box(0, 0))
}

func TestDecodeOutputs_Errors(t *testing.T) {
	one := []images.Geometry{{Height: 10, Width: 10, Scale: 1}}
	two := []images.Geometry{{Height: 10, Width: 10, Scale: 1}, {Height: 10, Width: 10, Scale: 1}}

	tests := []struct {
		name     string
		scores   *tensor.Dense
		boxes    *tensor.Dense
		geometry []images.Geometry
	}{
		{"missing scores", nil, dense(make([]float32, 4), 1, 1, 4), one},
		{"batch mismatch", dense(make([]float32, 2), 1, 1, 2), dense(make([]float32, 4), 1, 1, 4), two},
		{"proposal mismatch", dense(make([]float32, 4), 1, 2, 2), dense(make([]float32, 4), 1, 1, 4), one},
		{"odd box width", dense(make([]float32, 2), 1, 1, 2), dense(make([]float32, 6), 1, 1, 6), one},
		{"bad geometry", dense(make([]float32, 2), 1, 1, 2), dense(make([]float32, 4), 1, 1, 4), []images.Geometry{{}}},
		{"float64 scores", tensor.New(tensor.WithShape(1, 1, 2), tensor.WithBacking([]float64{0, 1})), dense(make([]float32, 4), 1, 1, 4), one},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeOutputs(tt.scores, tt.boxes, tt.geometry)
			assert.True(t, errors.Is(err, errdefs.ErrInvalidInput), "got %v", err)
		})
	}
}

func TestClassSets(t *testing.T) {
	assert.Equal(t, 31, VIDClasses.Len())
	assert.Equal(t, 21, PascalVOCClasses.Len())
	assert.Equal(t, "__background__", VIDClasses.Name(0))
	assert.Equal(t, "airplane", VIDClasses.Name(1))
	assert.Equal(t, "zebra", VIDClasses.Name(30))
	assert.Equal(t, "class_31", VIDClasses.Name(31))
	assert.Equal(t, "person", LookupName(ModelFamilyVOC, 15))
	assert.Equal(t, "", LookupName(ModelFamilyVOC, 21))
	assert.Equal(t, "", LookupName(Family("coco"), 1))
}
