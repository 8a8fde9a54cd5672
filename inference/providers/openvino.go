package providers

import ort "github.com/yalue/onnxruntime_go"

// appendOpenVINO enables the OpenVINO execution provider. Settings are forwarded
// unchanged, e.g. "device_type", "precision" or "num_of_threads".
// See:
// https://onnxruntime.ai/docs/execution-providers/OpenVINO-ExecutionProvider.html#summary-of-options
func appendOpenVINO(options *ort.SessionOptions, settings map[string]string) error {
	if settings == nil {
		settings = map[string]string{}
	}
	return options.AppendExecutionProviderOpenVINO(settings)
}
