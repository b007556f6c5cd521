package vector

import (
	"context"
	"fmt"
	"testing"

	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrew/rag-vault/pkg/vector/vectortest"
)

func newTestStore(t *testing.T) (*Store, *vectortest.Server) {
	t.Helper()
	srv := vectortest.New()
	return NewStore(srv.Collections(), srv.Points()), srv
}

func mediaSpec() VectorSpec {
	return NamedSpec(
		NamedSpace{Name: "image", VectorSpace: VectorSpace{Size: 4, Distance: qdrant.Distance_Cosine}},
		NamedSpace{Name: "caption", VectorSpace: VectorSpace{Size: 3, Distance: qdrant.Distance_Cosine}},
	)
}

func TestParseDistance(t *testing.T) {
	tests := []struct {
		in   string
		want qdrant.Distance
	}{
		{"cosine", qdrant.Distance_Cosine},
		{"COS", qdrant.Distance_Cosine},
		{" dot ", qdrant.Distance_Dot},
		{"ip", qdrant.Distance_Dot},
		{"Inner", qdrant.Distance_Dot},
		{"euclid", qdrant.Distance_Euclid},
		{"L2", qdrant.Distance_Euclid},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDistance(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseDistance("hamming")
	assert.ErrorIs(t, err, ErrUnsupportedDistance)
}

func TestVectorSpecValidate(t *testing.T) {
	cos := qdrant.Distance_Cosine
	tests := []struct {
		name    string
		spec    VectorSpec
		wantErr bool
	}{
		{"single", SingleSpec(384, cos), false},
		{"named", mediaSpec(), false},
		{"zero size", SingleSpec(0, cos), true},
		{"no distance", SingleSpec(8, qdrant.Distance_UnknownDistance), true},
		{"empty", VectorSpec{}, true},
		{"empty name", NamedSpec(NamedSpace{VectorSpace: VectorSpace{Size: 4, Distance: cos}}), true},
		{"duplicate name", NamedSpec(
			NamedSpace{Name: "a", VectorSpace: VectorSpace{Size: 4, Distance: cos}},
			NamedSpace{Name: "a", VectorSpace: VectorSpace{Size: 8, Distance: cos}},
		), true},
		{"named zero size", NamedSpec(NamedSpace{Name: "a", VectorSpace: VectorSpace{Distance: cos}}), true},
		{"both forms", VectorSpec{Single: &VectorSpace{Size: 1, Distance: cos}, Named: mediaSpec().Named}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.spec.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidVectorSpec)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCreateOrRecreateCollection(t *testing.T) {
	ctx := context.Background()
	store, srv := newTestStore(t)
	spec := SingleSpec(3, qdrant.Distance_Cosine)

	created, err := store.CreateOrRecreateCollection(ctx, "docs", spec, false, &CollectionOptions{OnDiskPayload: true})
	require.NoError(t, err)
	assert.True(t, created)

	_, err = store.UpsertPoints(ctx, "docs", []*qdrant.PointId{NumID(1)}, []Vectors{Dense([]float32{1, 0, 0})}, nil, 0)
	require.NoError(t, err)

	t.Run("second call without force is a no-op", func(t *testing.T) {
		created, err := store.CreateOrRecreateCollection(ctx, "docs", spec, false, nil)
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, []string{"docs"}, srv.Created)
		assert.Empty(t, srv.Deleted)
		assert.Equal(t, 1, srv.Len("docs"))
	})

	t.Run("force drops and creates", func(t *testing.T) {
		created, err := store.CreateOrRecreateCollection(ctx, "docs", SingleSpec(5, qdrant.Distance_Dot), true, nil)
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, []string{"docs"}, srv.Deleted)
		assert.Equal(t, []string{"docs", "docs"}, srv.Created)
		assert.Zero(t, srv.Len("docs"))

		schema, err := store.Schema(ctx, "docs")
		require.NoError(t, err)
		assert.Equal(t, SingleSpec(5, qdrant.Distance_Dot), schema)
	})

	t.Run("invalid spec fails before touching the server", func(t *testing.T) {
		_, err := store.CreateOrRecreateCollection(ctx, "bad", SingleSpec(0, qdrant.Distance_Cosine), true, nil)
		assert.ErrorIs(t, err, ErrInvalidVectorSpec)
		exists, err := store.Exists(ctx, "bad")
		require.NoError(t, err)
		assert.False(t, exists)
	})
}

func TestUpsertPoints_Batches(t *testing.T) {
	ctx := context.Background()
	store, srv := newTestStore(t)
	_, err := store.CreateOrRecreateCollection(ctx, "docs", SingleSpec(2, qdrant.Distance_Cosine), false, nil)
	require.NoError(t, err)

	const n = 1000
	ids := make([]*qdrant.PointId, n)
	vecs := make([]Vectors, n)
	payloads := make([]map[string]any, n)
	for i := range n {
		ids[i] = NumID(uint64(i))
		vecs[i] = Dense([]float32{float32(i), 1})
		payloads[i] = map[string]any{"seq": i, "doc_id": fmt.Sprintf("DOC_%d", i%3)}
	}

	written, err := store.UpsertPoints(ctx, "docs", ids, vecs, payloads, 256)
	require.NoError(t, err)
	assert.Equal(t, n, written)
	assert.Equal(t, []int{256, 256, 256, 232}, srv.UpsertBatches)

	records, err := store.RetrievePoints(ctx, "docs", ids, true, 256)
	require.NoError(t, err)
	require.Len(t, records, n)
	assert.Equal(t, []int{256, 256, 256, 232}, srv.GetBatches)
	assert.Equal(t, "999", records[999].ID)
	assert.Equal(t, int64(999), records[999].Payload["seq"])

	count, err := store.Count(ctx, "docs", true, MustMatch(map[string]string{"doc_id": "DOC_1"}))
	require.NoError(t, err)
	assert.Equal(t, uint64(333), count)

	require.NoError(t, store.DeletePoints(ctx, "docs", ids[:600], 256))
	assert.Equal(t, []int{256, 256, 88}, srv.DeleteBatches)
	count, err = store.Count(ctx, "docs", true, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(400), count)
}

func TestUpsertPoints_LengthMismatch(t *testing.T) {
	ctx := context.Background()
	store, srv := newTestStore(t)
	_, err := store.CreateOrRecreateCollection(ctx, "docs", SingleSpec(1, qdrant.Distance_Cosine), false, nil)
	require.NoError(t, err)

	ids := []*qdrant.PointId{NumID(1), NumID(2)}
	tests := []struct {
		name     string
		vectors  []Vectors
		payloads []map[string]any
	}{
		{"short vectors", []Vectors{Dense([]float32{1})}, nil},
		{"short payloads", []Vectors{Dense([]float32{1}), Dense([]float32{2})}, []map[string]any{{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.UpsertPoints(ctx, "docs", ids, tt.vectors, tt.payloads, 10)
			assert.ErrorIs(t, err, ErrLengthMismatch)
		})
	}
	assert.Empty(t, srv.UpsertBatches)

	written, err := store.UpsertPoints(ctx, "docs", ids, []Vectors{Dense([]float32{1}), Dense([]float32{2})}, nil, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, written)
}

func TestSearch(t *testing.T) {
	ctx := context.Background()
	store, srv := newTestStore(t)
	_, err := store.CreateOrRecreateCollection(ctx, "media", mediaSpec(), false, nil)
	require.NoError(t, err)

	ids := []*qdrant.PointId{NumID(0), NumID(1), NumID(2)}
	vecs := []Vectors{
		Named(map[string][]float32{"image": {1, 0, 0, 0}, "caption": {1, 0, 0}}),
		Named(map[string][]float32{"image": {0.9, 0.1, 0, 0}}),
		Named(map[string][]float32{"image": {0, 1, 0, 0}, "caption": {0, 1, 0}}),
	}
	payloads := []map[string]any{
		{"license": "CC0", "site_ids": []string{"x"}},
		{"license": "MIT", "site_ids": []string{"x", "y"}},
		{"license": "CC0", "site_ids": []string{"y"}},
	}
	_, err = store.UpsertPoints(ctx, "media", ids, vecs, payloads, 2)
	require.NoError(t, err)

	t.Run("explicit slot name", func(t *testing.T) {
		res, err := store.Search(ctx, "media", Query{Vector: []float32{1, 0, 0, 0}, VectorName: "image", Limit: 2, WithPayload: true})
		require.NoError(t, err)
		require.Len(t, res, 2)
		assert.Equal(t, "0", res[0].ID)
		assert.Equal(t, "1", res[1].ID)
		assert.Equal(t, "MIT", res[1].Payload["license"])
		assert.Equal(t, "image", srv.Searches[0].GetVectorName())
	})

	t.Run("single entry map", func(t *testing.T) {
		res, err := store.Search(ctx, "media", Query{Named: map[string][]float32{"caption": {0, 1, 0}}})
		require.NoError(t, err)
		require.Len(t, res, 2, "point 1 has no caption")
		assert.Equal(t, "2", res[0].ID)
		assert.Nil(t, res[0].Payload["license"])
	})

	t.Run("threshold offset and filter", func(t *testing.T) {
		threshold := float32(0.5)
		res, err := store.Search(ctx, "media", Query{
			Vector: []float32{1, 0, 0, 0}, VectorName: "image",
			ScoreThreshold: &threshold, Offset: 1, WithPayload: true,
		})
		require.NoError(t, err)
		require.Len(t, res, 1)
		assert.Equal(t, "1", res[0].ID)

		res, err = store.Search(ctx, "media", Query{
			Vector: []float32{1, 0, 0, 0}, VectorName: "image",
			Filter: MustMatch(map[string]string{"site_ids": "y", "license": "CC0"}),
		})
		require.NoError(t, err)
		require.Len(t, res, 1)
		assert.Equal(t, "2", res[0].ID)
	})

	t.Run("ambiguous queries", func(t *testing.T) {
		bad := []Query{
			{},
			{Named: map[string][]float32{"image": {1}, "caption": {1}}},
			{Named: map[string][]float32{}},
			{Vector: []float32{1}, Named: map[string][]float32{"image": {1}}},
			{VectorName: "caption", Named: map[string][]float32{"image": {1}}},
		}
		for i, q := range bad {
			_, err := store.Search(ctx, "media", q)
			assert.ErrorIs(t, err, ErrAmbiguousQuery, "query %d", i)
		}
	})
}

func TestAssertVectorDim(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)
	_, err := store.CreateOrRecreateCollection(ctx, "media", mediaSpec(), false, nil)
	require.NoError(t, err)
	_, err = store.CreateOrRecreateCollection(ctx, "text", SingleSpec(3, qdrant.Distance_Cosine), false, nil)
	require.NoError(t, err)

	tests := []struct {
		name       string
		collection string
		slot       string
		sample     []float32
		wantErr    error
	}{
		{"single ok", "text", "", []float32{1, 2, 3}, nil},
		{"single ignores slot", "text", "image", []float32{1, 2, 3}, nil},
		{"single mismatch", "text", "", []float32{1, 2}, ErrDimensionMismatch},
		{"named ok", "media", "image", []float32{1, 2, 3, 4}, nil},
		{"named mismatch", "media", "caption", []float32{1, 2, 3, 4}, ErrDimensionMismatch},
		{"named without slot", "media", "", []float32{1}, ErrVectorNameRequired},
		{"unknown slot", "media", "audio", []float32{1}, ErrDimensionMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := store.AssertVectorDim(ctx, tt.collection, tt.slot, tt.sample)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}

	err = store.AssertVectorDim(ctx, "missing", "", []float32{1})
	assert.Error(t, err)
}

func TestCreatePayloadIndexes_BestEffort(t *testing.T) {
	ctx := context.Background()
	store, srv := newTestStore(t)
	_, err := store.CreateOrRecreateCollection(ctx, "docs", SingleSpec(3, qdrant.Distance_Cosine), false, nil)
	require.NoError(t, err)
	srv.FailIndex["page"] = true

	errs := store.CreatePayloadIndexes(ctx, "docs", []string{"doc_id", "page", "license"})
	require.Len(t, errs, 1)
	assert.ErrorContains(t, errs[0], "docs.page")
	assert.Equal(t, []string{"doc_id", "license"}, srv.Indexes["docs"])
}
