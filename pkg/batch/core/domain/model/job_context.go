package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// InputFilePathKey is the persisted key of the downloaded input file path.
const InputFilePathKey = "input.file.path"

// JobContext is the state shared by the steps of one JobRun.
// The fetch step writes the input file path and the load step reads it;
// no other key exists.
type JobContext struct {
	inputFilePath string
	hasInputPath  bool
}

// NewJobContext returns an empty context.
func NewJobContext() JobContext {
	return JobContext{}
}

// InputFilePath returns the downloaded file path, if one was published.
func (c JobContext) InputFilePath() (string, bool) {
	return c.inputFilePath, c.hasInputPath
}

// SetInputFilePath publishes the downloaded file path.
func (c *JobContext) SetInputFilePath(path string) {
	c.inputFilePath = path
	c.hasInputPath = path != ""
}

// ClearInputFilePath removes the published path.
func (c *JobContext) ClearInputFilePath() {
	c.inputFilePath = ""
	c.hasInputPath = false
}

// MarshalJSON encodes the context as {"input.file.path": "..."}, or {} when empty.
func (c JobContext) MarshalJSON() ([]byte, error) {
	m := map[string]string{}
	if c.hasInputPath {
		m[InputFilePathKey] = c.inputFilePath
	}
	return json.Marshal(m)
}

// UnmarshalJSON decodes the persisted form. Unknown keys are rejected.
func (c *JobContext) UnmarshalJSON(b []byte) error {
	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		return fmt.Errorf("failed to unmarshal job context: %w", err)
	}
	*c = JobContext{}
	for k, v := range m {
		if k != InputFilePathKey {
			return fmt.Errorf("unknown job context key %q", k)
		}
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("job context key %q must be a string, got %T", k, v)
		}
		c.SetInputFilePath(s)
	}
	return nil
}

// Value implements driver.Valuer.
func (c JobContext) Value() (driver.Value, error) {
	b, err := c.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (c *JobContext) Scan(value interface{}) error {
	b, err := scanBytes(value, "JobContext")
	if err != nil {
		return err
	}
	if len(b) == 0 {
		*c = JobContext{}
		return nil
	}
	return c.UnmarshalJSON(b)
}
