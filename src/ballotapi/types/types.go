package types

// Setting is a named configuration value stored in MySQL. Environment
// variables take precedence; the table lets operators retune a running
// deployment without re-rolling the process environment.
type Setting struct {
	ID    uint8  `gorm:"primaryKey"`
	Name  string `gorm:"size:64;uniqueIndex"`
	Value string `gorm:"size:255"`
	Type  string `gorm:"size:16"`
}
