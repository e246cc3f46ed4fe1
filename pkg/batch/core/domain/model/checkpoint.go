package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Checkpoint is the restart data of a load step, saved after every committed chunk.
type Checkpoint struct {
	// LinesConsumed is the number of data lines (after the header) covered by committed chunks.
	LinesConsumed int64 `json:"lines_consumed"`
	ReadCount     int64 `json:"read_count"`
	WriteCount    int64 `json:"write_count"`
	CommitCount   int64 `json:"commit_count"`
}

// Value implements driver.Valuer.
func (c Checkpoint) Value() (driver.Value, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (c *Checkpoint) Scan(value interface{}) error {
	b, err := scanBytes(value, "Checkpoint")
	if err != nil {
		return err
	}
	*c = Checkpoint{}
	if len(b) == 0 {
		return nil
	}
	if err := json.Unmarshal(b, c); err != nil {
		return fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	return nil
}
