package models

// Language is the source language inferred from a file extension.
type Language string

// String implements fmt.Stringer.
func (l Language) String() string { return string(l) }

// FileRecord identifies one eligible source file of a fetched repository.
// Records are created once at enumeration time and never modified.
type FileRecord struct {
	RelativePath string   `json:"relative_path"` // slash-separated, unique within a run
	AbsolutePath string   `json:"absolute_path"`
	Language     Language `json:"language"`
}
