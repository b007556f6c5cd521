package vector

import (
	"encoding/json"
	"fmt"
	"maps"
	"reflect"
	"slices"
	"strconv"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// IDNamespace seeds the UUIDv5 ids generated for string keys that are not UUIDs.
var IDNamespace = uuid.NameSpaceURL

// NumID is an unsigned integer point id.
func NumID(n uint64) *qdrant.PointId {
	return &qdrant.PointId{PointIdOptions: &qdrant.PointId_Num{Num: n}}
}

// StringID is a UUID point id. Strings that are not UUIDs are mapped to a
// deterministic UUIDv5, so the same key always lands on the same point.
func StringID(s string) *qdrant.PointId {
	u, err := uuid.Parse(s)
	if err != nil {
		u = uuid.NewSHA1(IDNamespace, []byte(s))
	}
	return &qdrant.PointId{PointIdOptions: &qdrant.PointId_Uuid{Uuid: u.String()}}
}

// IDString renders a point id as text.
func IDString(id *qdrant.PointId) string {
	switch v := id.GetPointIdOptions().(type) {
	case *qdrant.PointId_Num:
		return strconv.FormatUint(v.Num, 10)
	case *qdrant.PointId_Uuid:
		return v.Uuid
	default:
		return ""
	}
}

// Vectors holds the vectors of one point: a dense unnamed vector, or named slots.
// Named slots may be partial; a point can omit a slot its collection declares.
type Vectors struct {
	Dense []float32
	Named map[string][]float32
}

// Dense wraps an unnamed vector.
func Dense(v []float32) Vectors {
	return Vectors{Dense: v}
}

// Named wraps a set of named vectors.
func Named(m map[string][]float32) Vectors {
	return Vectors{Named: m}
}

func (v Vectors) proto() (*qdrant.Vectors, error) {
	switch {
	case v.Dense != nil && v.Named != nil:
		return nil, fmt.Errorf("point has both dense and named vectors")
	case v.Dense != nil:
		return &qdrant.Vectors{
			VectorsOptions: &qdrant.Vectors_Vector{Vector: &qdrant.Vector{Data: v.Dense}},
		}, nil
	case len(v.Named) > 0:
		m := make(map[string]*qdrant.Vector, len(v.Named))
		for name, data := range v.Named {
			m[name] = &qdrant.Vector{Data: data}
		}
		return &qdrant.Vectors{
			VectorsOptions: &qdrant.Vectors_Vectors{Vectors: &qdrant.NamedVectors{Vectors: m}},
		}, nil
	default:
		return nil, fmt.Errorf("point has no vectors")
	}
}

// ToPayload converts a JSON-like map into a point payload.
func ToPayload(m map[string]any) (map[string]*qdrant.Value, error) {
	out := make(map[string]*qdrant.Value, len(m))
	for k, v := range m {
		val, err := ToValue(v)
		if err != nil {
			return nil, fmt.Errorf("payload field %q: %w", k, err)
		}
		out[k] = val
	}
	return out, nil
}

// ToValue converts a Go value into a payload value. Slices and maps of any element type
// are accepted; json.Number keeps integers as integers.
func ToValue(v any) (*qdrant.Value, error) {
	switch x := v.(type) {
	case nil:
		return &qdrant.Value{Kind: &qdrant.Value_NullValue{NullValue: qdrant.NullValue_NULL_VALUE}}, nil
	case *qdrant.Value:
		return x, nil
	case string:
		return stringValue(x), nil
	case bool:
		return &qdrant.Value{Kind: &qdrant.Value_BoolValue{BoolValue: x}}, nil
	case int:
		return intValue(int64(x)), nil
	case int32:
		return intValue(int64(x)), nil
	case int64:
		return intValue(x), nil
	case uint32:
		return intValue(int64(x)), nil
	case uint64:
		return intValue(int64(x)), nil
	case float32:
		return doubleValue(float64(x)), nil
	case float64:
		return doubleValue(x), nil
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return intValue(n), nil
		}
		f, err := x.Float64()
		if err != nil {
			return nil, err
		}
		return doubleValue(f), nil
	case *int:
		if x == nil {
			return ToValue(nil)
		}
		return intValue(int64(*x)), nil
	case *string:
		if x == nil {
			return ToValue(nil)
		}
		return stringValue(*x), nil
	case []string:
		values := make([]*qdrant.Value, len(x))
		for i, s := range x {
			values[i] = stringValue(s)
		}
		return listValue(values), nil
	case []any:
		values := make([]*qdrant.Value, len(x))
		for i, item := range x {
			val, err := ToValue(item)
			if err != nil {
				return nil, err
			}
			values[i] = val
		}
		return listValue(values), nil
	case map[string]any:
		fields, err := ToPayload(x)
		if err != nil {
			return nil, err
		}
		return &qdrant.Value{Kind: &qdrant.Value_StructValue{StructValue: &qdrant.Struct{Fields: fields}}}, nil
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice {
		items := make([]any, rv.Len())
		for i := range items {
			items[i] = rv.Index(i).Interface()
		}
		return ToValue(items)
	}
	return nil, fmt.Errorf("unsupported payload type %T", v)
}

func stringValue(s string) *qdrant.Value {
	return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: s}}
}

func intValue(n int64) *qdrant.Value {
	return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: n}}
}

func doubleValue(f float64) *qdrant.Value {
	return &qdrant.Value{Kind: &qdrant.Value_DoubleValue{DoubleValue: f}}
}

func listValue(values []*qdrant.Value) *qdrant.Value {
	return &qdrant.Value{Kind: &qdrant.Value_ListValue{ListValue: &qdrant.ListValue{Values: values}}}
}

// FromPayload converts a point payload back into plain Go values.
func FromPayload(p map[string]*qdrant.Value) map[string]any {
	out := make(map[string]any, len(p))
	for k, v := range p {
		out[k] = FromValue(v)
	}
	return out
}

// FromValue converts a payload value into string, bool, int64, float64, []any,
// map[string]any or nil.
func FromValue(v *qdrant.Value) any {
	switch k := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return k.StringValue
	case *qdrant.Value_BoolValue:
		return k.BoolValue
	case *qdrant.Value_IntegerValue:
		return k.IntegerValue
	case *qdrant.Value_DoubleValue:
		return k.DoubleValue
	case *qdrant.Value_ListValue:
		items := make([]any, len(k.ListValue.GetValues()))
		for i, item := range k.ListValue.GetValues() {
			items[i] = FromValue(item)
		}
		return items
	case *qdrant.Value_StructValue:
		return FromPayload(k.StructValue.GetFields())
	default:
		return nil
	}
}

// MatchKeyword is a filter condition requiring field to equal value exactly.
func MatchKeyword(field, value string) *qdrant.Condition {
	return &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{
				Key:   field,
				Match: &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: value}},
			},
		},
	}
}

// MustMatch builds a filter where every field must equal its keyword. A nil filter is
// returned for an empty map.
func MustMatch(fields map[string]string) *qdrant.Filter {
	if len(fields) == 0 {
		return nil
	}
	f := &qdrant.Filter{}
	for _, k := range slices.Sorted(maps.Keys(fields)) {
		f.Must = append(f.Must, MatchKeyword(k, fields[k]))
	}
	return f
}
