package providers

import (
	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// appendCPU leaves the default CPU provider in place. It accepts no options so a
// misplaced GPU option is reported instead of silently ignored.
func appendCPU(_ *ort.SessionOptions, settings map[string]string) error {
	if len(settings) > 0 {
		return errors.Errorf("cpu provider takes no options, got %d", len(settings))
	}
	return nil
}
