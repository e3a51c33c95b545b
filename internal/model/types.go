package model

// Metadata is the optional sidecar record stored next to a model artifact
// with the same base name and a .json extension.
type Metadata struct {
	ClassNames  []string `json:"class_names"`
	InputShape  []int64  `json:"input_shape,omitempty"`
	OutputShape []int64  `json:"output_shape,omitempty"`
	ImageSize   int      `json:"image_size,omitempty"`
}

// TopPrediction is one ranked class.
type TopPrediction struct {
	Class      string  `json:"class"`
	Confidence float64 `json:"confidence"`
	Percentage float64 `json:"percentage"`
}

// PredictionResult is the outcome of one Predict call.
type PredictionResult struct {
	PredictedClass  string          `json:"predicted_class"`
	Confidence      float64         `json:"confidence"`
	Percentage      float64         `json:"percentage"`
	TopPredictions  []TopPrediction `json:"top_predictions"`
	IsDemo          bool            `json:"is_demo"`
	IsLowConfidence bool            `json:"is_low_confidence"`
}

// Clone returns a copy that shares no memory with r.
func (r PredictionResult) Clone() PredictionResult {
	r.TopPredictions = append([]TopPrediction(nil), r.TopPredictions...)
	return r
}

// ModelInfo summarizes what a predictor is running.
type ModelInfo struct {
	Mode        string    `json:"mode"`
	ModelLoaded bool      `json:"model_loaded"`
	ModelPath   string    `json:"model_path,omitempty"`
	Backend     string    `json:"backend,omitempty"`
	ClassNames  []string  `json:"class_names"`
	NumClasses  int       `json:"num_classes"`
	Reason      string    `json:"reason,omitempty"`
	Metadata    *Metadata `json:"metadata,omitempty"`
}
