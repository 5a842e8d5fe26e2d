package domain

// ScoredRecord is a ProtocolRecord with its composite risk score and label.
// The label is always derived from the score by the thresholds that produced it.
type ScoredRecord struct {
	ProtocolRecord
	RiskScore float64   `json:"risk_score"`
	RiskLabel RiskLabel `json:"risk_label"`
}

// ScoredTable is a read-only, ordered view over scored records.
// Accessors return copies so callers cannot mutate the underlying collection.
type ScoredTable struct {
	records []ScoredRecord
}

// NewScoredTable copies records into a new table.
func NewScoredTable(records []ScoredRecord) *ScoredTable {
	cp := make([]ScoredRecord, len(records))
	copy(cp, records)
	return &ScoredTable{records: cp}
}

// Len returns the number of records. A nil table has length 0.
func (t *ScoredTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.records)
}

// At returns the i-th record by value.
func (t *ScoredTable) At(i int) ScoredRecord {
	return t.records[i]
}

// Records returns a copy of all records in insertion order.
func (t *ScoredTable) Records() []ScoredRecord {
	if t == nil {
		return nil
	}
	cp := make([]ScoredRecord, len(t.records))
	copy(cp, t.records)
	return cp
}

// Features returns the feature column for training.
func (t *ScoredTable) Features() []FeatureVector {
	out := make([]FeatureVector, t.Len())
	for i := range out {
		out[i] = t.records[i].Features()
	}
	return out
}

// Labels returns the label column for training.
func (t *ScoredTable) Labels() []RiskLabel {
	out := make([]RiskLabel, t.Len())
	for i := range out {
		out[i] = t.records[i].RiskLabel
	}
	return out
}
