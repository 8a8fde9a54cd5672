package providers

import (
	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// appendCUDA enables the CUDA execution provider.
//
// Keys are the CUDA provider option names, for example "device_id",
// "gpu_mem_limit", "arena_extend_strategy" or "cudnn_conv_algo_search".
// See:
// https://onnxruntime.ai/docs/execution-providers/CUDA-ExecutionProvider.html#configuration-options
func appendCUDA(options *ort.SessionOptions, settings map[string]string) error {
	cuda, err := ort.NewCUDAProviderOptions()
	if err != nil {
		return errors.Wrap(err, "create CUDA provider options")
	}
	defer cuda.Destroy()

	if len(settings) > 0 {
		if err := cuda.Update(settings); err != nil {
			return errors.Wrap(err, "update CUDA provider options")
		}
	}
	return options.AppendExecutionProviderCUDA(cuda)
}
