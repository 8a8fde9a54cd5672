package providers

import (
	"strconv"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// appendCoreML enables the CoreML execution provider. The only recognized option is
// "flags", the numeric COREML_FLAG_* bit set.
// See: https://onnxruntime.ai/docs/execution-providers/CoreML-ExecutionProvider.html
func appendCoreML(options *ort.SessionOptions, settings map[string]string) error {
	var flags uint64
	for key, value := range settings {
		if key != "flags" {
			return errors.Errorf("unknown CoreML option %q", key)
		}
		parsed, err := strconv.ParseUint(value, 0, 32)
		if err != nil {
			return errors.Wrapf(err, "parse CoreML flags %q", value)
		}
		flags = parsed
	}
	return options.AppendExecutionProviderCoreML(uint32(flags))
}
