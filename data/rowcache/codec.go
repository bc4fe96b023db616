package rowcache

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/vortex-fintech/pgexec/data/postgres"
)

// ErrUncacheable marks a row value the codec cannot restore with its
// original Go type. Such result sets are not stored.
var ErrUncacheable = errors.New("rowcache: value type cannot be cached")

// cell is one tagged column value. Numbers travel as strings so int64
// and float64 survive exactly.
type cell struct {
	T string          `json:"t"`
	V json.RawMessage `json:"v,omitempty"`
}

func encodeRows(rows []postgres.Row) ([]byte, error) {
	out := make([]map[string]cell, len(rows))
	for i, r := range rows {
		m := make(map[string]cell, len(r))
		for col, v := range r {
			c, err := encodeValue(v)
			if err != nil {
				return nil, fmt.Errorf("column %q: %w", col, err)
			}
			m[col] = c
		}
		out[i] = m
	}
	return json.Marshal(out)
}

func decodeRows(b []byte) ([]postgres.Row, error) {
	var in []map[string]cell
	if err := json.Unmarshal(b, &in); err != nil {
		return nil, err
	}
	rows := make([]postgres.Row, len(in))
	for i, m := range in {
		r := make(postgres.Row, len(m))
		for col, c := range m {
			v, err := decodeValue(c)
			if err != nil {
				return nil, fmt.Errorf("column %q: %w", col, err)
			}
			r[col] = v
		}
		rows[i] = r
	}
	return rows, nil
}

func encodeValue(v any) (cell, error) {
	var (
		tag string
		raw any
	)
	switch t := v.(type) {
	case nil:
		return cell{T: "n"}, nil
	case bool:
		tag, raw = "b", t
	case string:
		tag, raw = "s", t
	case []byte:
		tag, raw = "x", t
	case int64:
		tag, raw = "i8", strconv.FormatInt(t, 10)
	case int32:
		tag, raw = "i4", strconv.FormatInt(int64(t), 10)
	case int16:
		tag, raw = "i2", strconv.FormatInt(int64(t), 10)
	case int:
		tag, raw = "i", strconv.FormatInt(int64(t), 10)
	case float64:
		tag, raw = "f8", strconv.FormatFloat(t, 'g', -1, 64)
	case float32:
		tag, raw = "f4", strconv.FormatFloat(float64(t), 'g', -1, 32)
	case time.Time:
		tag, raw = "t", t.Format(time.RFC3339Nano)
	case [16]byte:
		tag, raw = "u", t[:]
	default:
		return cell{}, fmt.Errorf("%w: %T", ErrUncacheable, v)
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return cell{}, err
	}
	return cell{T: tag, V: b}, nil
}

func decodeValue(c cell) (any, error) {
	if c.T == "n" {
		return nil, nil
	}
	switch c.T {
	case "b":
		var v bool
		err := json.Unmarshal(c.V, &v)
		return v, err
	case "x", "u":
		var v []byte
		if err := json.Unmarshal(c.V, &v); err != nil {
			return nil, err
		}
		if c.T == "x" {
			return v, nil
		}
		if len(v) != 16 {
			return nil, fmt.Errorf("uuid of %d bytes", len(v))
		}
		return [16]byte(v), nil
	}

	var s string
	if err := json.Unmarshal(c.V, &s); err != nil {
		return nil, err
	}
	switch c.T {
	case "s":
		return s, nil
	case "i8":
		return strconv.ParseInt(s, 10, 64)
	case "i4":
		n, err := strconv.ParseInt(s, 10, 32)
		return int32(n), err
	case "i2":
		n, err := strconv.ParseInt(s, 10, 16)
		return int16(n), err
	case "i":
		n, err := strconv.ParseInt(s, 10, 64)
		return int(n), err
	case "f8":
		return strconv.ParseFloat(s, 64)
	case "f4":
		f, err := strconv.ParseFloat(s, 32)
		return float32(f), err
	case "t":
		return time.Parse(time.RFC3339Nano, s)
	default:
		return nil, fmt.Errorf("unknown value tag %q", c.T)
	}
}
