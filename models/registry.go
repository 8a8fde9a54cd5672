// Package models - registry for models.
package models

import (
	"sort"

	"github.com/nvr-ai/go-batchdet/errdefs"
	"github.com/nvr-ai/go-batchdet/models/fasterrcnn"
	"github.com/nvr-ai/go-batchdet/models/model"
	"github.com/nvr-ai/go-batchdet/models/rfcn"
	"github.com/pkg/errors"
)

// Factory builds a model from its creation arguments.
type Factory func(args model.NewModelArgs) (model.Model, error)

// Registry maps model names to their factories.
//
// Models are looked up by name only; there is no discovery by symbol or plugin. A
// Registry is populated once at startup and then read, so it is not guarded.
type Registry struct {
	factories map[model.Name]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[model.Name]Factory)}
}

// DefaultRegistry returns a registry with every built-in model registered.
//
// Returns:
//   - *Registry: A registry that knows "rfcn" and "fasterrcnn".
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(model.ModelNameRFCN, func(args model.NewModelArgs) (model.Model, error) {
		return rfcn.NewModel(args)
	})
	r.Register(model.ModelNameFasterRCNN, func(args model.NewModelArgs) (model.Model, error) {
		return fasterrcnn.NewModel(args)
	})
	return r
}

// Register adds or replaces the factory for name.
func (r *Registry) Register(name model.Name, factory Factory) {
	r.factories[name] = factory
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []model.Name {
	names := make([]model.Name, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// NewModel creates a new detection model instance based on the specified model name.
//
// Arguments:
//   - args: Configuration parameters specifying the model name and location.
//
// Returns:
//   - model.Model: A fully configured model instance implementing the Model interface.
//   - error: errdefs.ErrUnknownModel if no factory is registered under args.Name, or
//     the factory's own error.
//
// Example:
//
//	detectionModel, err := models.DefaultRegistry().NewModel(model.NewModelArgs{
//	    Name: model.ModelNameRFCN,
//	    Path: "/models/rfcn_vid.onnx",
//	})
//	if err != nil {
//	    log.Fatalf("Failed to create detection model: %v", err)
//	}
func (r *Registry) NewModel(args model.NewModelArgs) (model.Model, error) {
	factory, ok := r.factories[args.Name]
	if !ok {
		return nil, errors.Wrapf(errdefs.ErrUnknownModel, "%q", args.Name)
	}
	m, err := factory(args)
	if err != nil {
		return nil, errors.Wrapf(err, "create model %q", args.Name)
	}
	return m, nil
}
