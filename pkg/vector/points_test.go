package vector

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringID(t *testing.T) {
	a := StringID("CHUNK_01_0001")
	b := StringID("CHUNK_01_0001")
	assert.Equal(t, IDString(a), IDString(b), "deterministic")
	assert.NotEqual(t, IDString(a), IDString(StringID("CHUNK_01_0002")))

	parsed, err := uuid.Parse(IDString(a))
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(5), parsed.Version())

	raw := "6f1c2d4e-8a8b-4c3d-9e0f-112233445566"
	assert.Equal(t, raw, IDString(StringID(raw)))
	assert.Equal(t, "42", IDString(NumID(42)))
	assert.Equal(t, "", IDString(nil))
}

func TestPayloadConversion(t *testing.T) {
	width := 640
	in := map[string]any{
		"text":          "hello",
		"page":          json.Number("3"),
		"score":         json.Number("0.5"),
		"is_caption":    true,
		"site_ids":      []string{"a", "b"},
		"mixed":         []any{"x", 1, nil},
		"ints":          []int{1, 2},
		"nested":        map[string]any{"k": "v"},
		"parent_doc_id": nil,
		"width":         &width,
		"height":        (*int)(nil),
	}

	payload, err := ToPayload(in)
	require.NoError(t, err)
	assert.Equal(t, int64(3), payload["page"].GetIntegerValue())
	assert.Equal(t, 0.5, payload["score"].GetDoubleValue())
	assert.Equal(t, qdrant.NullValue_NULL_VALUE, payload["parent_doc_id"].GetNullValue())

	out := FromPayload(payload)
	assert.Equal(t, map[string]any{
		"text":          "hello",
		"page":          int64(3),
		"score":         0.5,
		"is_caption":    true,
		"site_ids":      []any{"a", "b"},
		"mixed":         []any{"x", int64(1), nil},
		"ints":          []any{int64(1), int64(2)},
		"nested":        map[string]any{"k": "v"},
		"parent_doc_id": nil,
		"width":         int64(640),
		"height":        nil,
	}, out)

	_, err = ToPayload(map[string]any{"bad": struct{}{}})
	assert.ErrorContains(t, err, `payload field "bad"`)
}

func TestVectorsProto(t *testing.T) {
	v, err := Dense([]float32{1, 2}).proto()
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2}, v.GetVector().GetData())

	v, err = Named(map[string][]float32{"image": {3}}).proto()
	require.NoError(t, err)
	assert.Equal(t, []float32{3}, v.GetVectors().GetVectors()["image"].GetData())

	_, err = Vectors{}.proto()
	assert.Error(t, err)
	_, err = Vectors{Dense: []float32{1}, Named: map[string][]float32{"a": {1}}}.proto()
	assert.Error(t, err)
}

func TestMustMatch(t *testing.T) {
	assert.Nil(t, MustMatch(nil))

	f := MustMatch(map[string]string{"license": "MIT", "doc_id": "DOC_paper_01"})
	require.Len(t, f.GetMust(), 2)
	assert.Equal(t, "doc_id", f.GetMust()[0].GetField().GetKey())
	assert.Equal(t, "MIT", f.GetMust()[1].GetField().GetMatch().GetKeyword())
}
