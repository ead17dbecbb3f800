package domain

import "time"

// ModelStatus is the lifecycle state of a predictive model.
// RETIRED is terminal; ACTIVE and DEGRADED can flip back and forth as the
// model's IC decays and recovers.
type ModelStatus string

const (
	ModelActive   ModelStatus = "ACTIVE"
	ModelDegraded ModelStatus = "DEGRADED"
	ModelRetired  ModelStatus = "RETIRED"
)

// DateRange is an inclusive training data range.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// ModelRecord tracks one trained model through its lifecycle. The IC
// history is bounded; the training feature distributions are kept for
// drift comparison.
type ModelRecord struct {
	ModelID           string               `json:"model_id"`
	TrainingDate      time.Time            `json:"training_date"`
	TrainingDataRange DateRange            `json:"training_data_range"`
	LastRetrainDate   time.Time            `json:"last_retrain_date"`
	Status            ModelStatus          `json:"status"`
	ICHistory         *Series              `json:"ic_history,omitempty"`
	TrainingFeatures  map[string][]float64 `json:"training_features,omitempty"` // feature -> training-time sample
}

// Retire moves the model to its terminal state. Retiring is idempotent.
func (m *ModelRecord) Retire() {
	m.Status = ModelRetired
}

// Retired reports whether the model has been permanently removed from
// consideration.
func (m *ModelRecord) Retired() bool { return m.Status == ModelRetired }

// FusionRecord is one observational entry in the fusion history. It never
// feeds back into future weight decisions.
type FusionRecord struct {
	MLWeight          float64   `json:"ml_weight"`
	TraditionalWeight float64   `json:"traditional_weight"`
	Disagreement      float64   `json:"disagreement"`
	Confidence        float64   `json:"confidence"`
	Timestamp         time.Time `json:"timestamp"`
}

// FusionState carries the fusion engine's persisted state: the IC history
// that drives weighting and the append-only decision log used only for
// reporting.
type FusionState struct {
	MLICHistory   *Series        `json:"ml_ic_history,omitempty"`
	FusionHistory []FusionRecord `json:"fusion_history,omitempty"`
}

// NewFusionState creates fusion state with a bounded IC window.
func NewFusionState(rollingWindow int) *FusionState {
	return &FusionState{MLICHistory: NewSeries(rollingWindow)}
}
