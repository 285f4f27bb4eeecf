package serializer

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Built-in handler names. These are persisted per tracked field, so
// renaming one is a breaking change for already written logs.
const (
	DTypeString    = "string"
	DTypeInt       = "int"
	DTypeInt32     = "int32"
	DTypeInt64     = "int64"
	DTypeFloat32   = "float32"
	DTypeFloat64   = "float64"
	DTypeBool      = "bool"
	DTypeTime      = "time"
	DTypeUUID      = "uuid"
	DTypeStringSet = "strings"
	DTypeList      = "list"
	DTypeMap       = "map"
)

func registerBuiltins(r *Registry) {
	r.Register("", DTypeString, Handler{
		Serialize:   func(v any) (string, error) { return v.(string), nil },
		Deserialize: func(s string) (any, error) { return s, nil },
	})
	r.Register(int(0), DTypeInt, Handler{
		Serialize:   func(v any) (string, error) { return strconv.Itoa(v.(int)), nil },
		Deserialize: func(s string) (any, error) { return strconv.Atoi(s) },
	})
	r.Register(int32(0), DTypeInt32, Handler{
		Serialize: func(v any) (string, error) { return strconv.FormatInt(int64(v.(int32)), 10), nil },
		Deserialize: func(s string) (any, error) {
			n, err := strconv.ParseInt(s, 10, 32)
			if err != nil {
				return nil, err
			}
			return int32(n), nil
		},
	})
	r.Register(int64(0), DTypeInt64, Handler{
		Serialize:   func(v any) (string, error) { return strconv.FormatInt(v.(int64), 10), nil },
		Deserialize: func(s string) (any, error) { return strconv.ParseInt(s, 10, 64) },
	})
	// Floats use the shortest round-trip encoding, never a fixed
	// precision, so serialized equality matches value equality bit for
	// bit.
	r.Register(float64(0), DTypeFloat64, Handler{
		Serialize:   func(v any) (string, error) { return strconv.FormatFloat(v.(float64), 'g', -1, 64), nil },
		Deserialize: func(s string) (any, error) { return strconv.ParseFloat(s, 64) },
	})
	r.Register(float32(0), DTypeFloat32, Handler{
		Serialize: func(v any) (string, error) {
			return strconv.FormatFloat(float64(v.(float32)), 'g', -1, 32), nil
		},
		Deserialize: func(s string) (any, error) {
			f, err := strconv.ParseFloat(s, 32)
			if err != nil {
				return nil, err
			}
			return float32(f), nil
		},
	})
	r.Register(false, DTypeBool, Handler{
		Serialize: func(v any) (string, error) {
			if v.(bool) {
				return "1", nil
			}
			return "0", nil
		},
		Deserialize: func(s string) (any, error) {
			switch s {
			case "1":
				return true, nil
			case "0":
				return false, nil
			}
			return nil, fmt.Errorf("invalid bool %q", s)
		},
	})
	r.Register(time.Time{}, DTypeTime, Handler{
		Serialize: func(v any) (string, error) {
			return v.(time.Time).Format(time.RFC3339Nano), nil
		},
		Deserialize: func(s string) (any, error) {
			return time.Parse(time.RFC3339Nano, s)
		},
	})
	r.Register(uuid.UUID{}, DTypeUUID, Handler{
		Serialize:   func(v any) (string, error) { return v.(uuid.UUID).String(), nil },
		Deserialize: func(s string) (any, error) { return uuid.Parse(s) },
	})
	r.Register([]string(nil), DTypeStringSet, jsonHandler(func() any { return &[]string{} }))
	r.Register([]any(nil), DTypeList, jsonHandler(func() any { return &[]any{} }))
	r.Register(map[string]any(nil), DTypeMap, jsonHandler(func() any { return &map[string]any{} }))
}

// jsonHandler builds a handler for structured types using a canonical
// JSON encoding. newTarget returns a pointer to a fresh zero value to
// decode into.
func jsonHandler(newTarget func() any) Handler {
	return Handler{
		Serialize: func(v any) (string, error) {
			b, err := json.Marshal(v)
			if err != nil {
				return "", err
			}
			return string(b), nil
		},
		Deserialize: func(s string) (any, error) {
			target := newTarget()
			if err := json.Unmarshal([]byte(s), target); err != nil {
				return nil, err
			}
			return deref(target), nil
		},
	}
}

func deref(p any) any {
	switch t := p.(type) {
	case *[]string:
		return *t
	case *[]any:
		return *t
	case *map[string]any:
		return *t
	}
	return p
}
