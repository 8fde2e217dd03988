package domain

// ExternalRow is one normalized record from the secondary dataset (CSV or
// JSON). Rows are created by the dataset loader, consumed once by the
// reconciliation engine, and never mutated afterward. All fields optional.
type ExternalRow struct {
	ID          string `json:"id,omitempty" yaml:"id"`
	Tag         string `json:"tag,omitempty" yaml:"tag"`
	Name        string `json:"name,omitempty" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description"`
	ImageURL    string `json:"image_url,omitempty" yaml:"image_url"`
	ElementType string `json:"element_type,omitempty" yaml:"element_type"`
	ParentID    string `json:"parent_id,omitempty" yaml:"parent_id"`
}

// IsEmpty reports whether the row carries nothing usable for matching.
func (r ExternalRow) IsEmpty() bool {
	return r.ID == "" && r.Tag == "" && r.Name == ""
}
