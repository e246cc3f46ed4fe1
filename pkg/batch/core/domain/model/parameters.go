package model

import (
	"crypto/sha256"
	"database/sql/driver"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/tigerroll/salesync/pkg/batch/support/util/exception"
)

// JobParameters are the identifying parameters of a job instance.
// Two submissions with equal parameters address the same logical job.
type JobParameters struct {
	Params map[string]interface{}
}

// NewJobParameters returns an empty parameter set.
func NewJobParameters() JobParameters {
	return JobParameters{Params: make(map[string]interface{})}
}

// Put stores a value. Integers are normalized to int64.
func (jp JobParameters) Put(key string, value interface{}) {
	switch v := value.(type) {
	case int:
		value = int64(v)
	case int32:
		value = int64(v)
	}
	jp.Params[key] = value
}

// GetString returns a string parameter.
func (jp JobParameters) GetString(key string) (string, bool) {
	v, ok := jp.Params[key].(string)
	return v, ok
}

// GetInt64 returns an integral parameter. JSON-decoded float64 values with no
// fractional part are accepted.
func (jp JobParameters) GetInt64(key string) (int64, bool) {
	switch v := jp.Params[key].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		if v == float64(int64(v)) {
			return int64(v), true
		}
	}
	return 0, false
}

// Copy returns a shallow copy of the parameters.
func (jp JobParameters) Copy() JobParameters {
	out := NewJobParameters()
	for k, v := range jp.Params {
		out.Params[k] = v
	}
	return out
}

// Equal reports whether both sets hash to the same identity.
func (jp JobParameters) Equal(other JobParameters) bool {
	a, errA := jp.Hash()
	b, errB := other.Hash()
	return errA == nil && errB == nil && a == b
}

// Hash returns the SHA-256 of the canonical JSON form of the parameters.
// Key order does not affect the result.
func (jp JobParameters) Hash() (string, error) {
	canonical, err := canonicalJSON(jp.Params)
	if err != nil {
		return "", exception.NewBatchError("job_parameters", "failed to marshal parameters for hashing", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

func canonicalJSON(val interface{}) ([]byte, error) {
	m, ok := val.(map[string]interface{})
	if !ok {
		return json.Marshal(val)
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := canonicalJSON(m[k])
		if err != nil {
			return nil, err
		}
		sb.Write(kb)
		sb.WriteByte(':')
		sb.Write(vb)
	}
	sb.WriteByte('}')
	return []byte(sb.String()), nil
}

// String returns the canonical JSON form, for logs.
func (jp JobParameters) String() string {
	b, err := canonicalJSON(jp.Params)
	if err != nil {
		return fmt.Sprintf("{invalid parameters: %v}", err)
	}
	return string(b)
}

// MarshalJSON encodes the parameters as a plain JSON object.
func (jp JobParameters) MarshalJSON() ([]byte, error) {
	if jp.Params == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(jp.Params)
}

// UnmarshalJSON decodes a plain JSON object.
func (jp *JobParameters) UnmarshalJSON(b []byte) error {
	params := make(map[string]interface{})
	if err := json.Unmarshal(b, &params); err != nil {
		return err
	}
	jp.Params = params
	return nil
}

// Value implements driver.Valuer.
func (jp JobParameters) Value() (driver.Value, error) {
	b, err := jp.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (jp *JobParameters) Scan(value interface{}) error {
	b, err := scanBytes(value, "JobParameters")
	if err != nil {
		return err
	}
	if len(b) == 0 {
		*jp = NewJobParameters()
		return nil
	}
	return jp.UnmarshalJSON(b)
}

// FailureList holds failure messages, persisted as a JSON array.
type FailureList []string

// Value implements driver.Valuer.
func (fl FailureList) Value() (driver.Value, error) {
	if fl == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(fl))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (fl *FailureList) Scan(value interface{}) error {
	b, err := scanBytes(value, "FailureList")
	if err != nil {
		return err
	}
	if len(b) == 0 {
		*fl = FailureList{}
		return nil
	}
	return json.Unmarshal(b, (*[]string)(fl))
}

func scanBytes(value interface{}, target string) ([]byte, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("unsupported Scan type for %s: %T", target, value)
	}
}
