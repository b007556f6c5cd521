// Package vector wraps the Qdrant gRPC API with collection lifecycle helpers and
// batched point operations.
package vector

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"github.com/andrew/rag-vault/pkg/logger"
	"github.com/andrew/rag-vault/pkg/models"
)

// DefaultBatchSize is used when a batch size of zero or less is passed.
const DefaultBatchSize = 256

var (
	// ErrLengthMismatch is returned when ids, vectors and payloads differ in length.
	ErrLengthMismatch = errors.New("ids, vectors and payloads must have the same length")

	// ErrDimensionMismatch is returned when a vector does not match the collection schema.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrVectorNameRequired is returned when a named-vector collection is addressed
	// without a slot name.
	ErrVectorNameRequired = errors.New("vector name required for named-vector collection")

	// ErrAmbiguousQuery is returned when a search does not select exactly one vector.
	ErrAmbiguousQuery = errors.New("search must select exactly one vector")

	// ErrCollectionNotFound is returned when a collection does not exist.
	ErrCollectionNotFound = errors.New("collection not found")
)

// Config contains the connection settings for a Qdrant server.
type Config struct {
	// URL is host:port of the gRPC endpoint. An https:// prefix enables TLS.
	URL     string
	APIKey  string
	Timeout time.Duration
}

// Store issues collection and point operations against Qdrant.
type Store struct {
	conn        *grpc.ClientConn
	collections qdrant.CollectionsClient
	points      qdrant.PointsClient
	timeout     time.Duration
}

// NewStore builds a Store over existing clients.
func NewStore(collections qdrant.CollectionsClient, points qdrant.PointsClient) *Store {
	return &Store{collections: collections, points: points}
}

// Dial connects to Qdrant over gRPC.
func Dial(cfg Config) (*Store, error) {
	addr := cfg.URL
	if addr == "" {
		addr = "localhost:6334"
	}

	creds := insecure.NewCredentials()
	switch {
	case strings.HasPrefix(addr, "https://"):
		creds = credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})
		addr = strings.TrimPrefix(addr, "https://")
	case strings.HasPrefix(addr, "http://"):
		addr = strings.TrimPrefix(addr, "http://")
	}
	addr = strings.TrimRight(addr, "/")

	opts := []grpc.DialOption{grpc.WithTransportCredentials(creds)}
	if cfg.APIKey != "" {
		opts = append(opts, grpc.WithUnaryInterceptor(apiKeyInterceptor(cfg.APIKey)))
	}

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Qdrant at %s: %w", addr, err)
	}

	s := NewStore(qdrant.NewCollectionsClient(conn), qdrant.NewPointsClient(conn))
	s.conn = conn
	s.timeout = cfg.Timeout
	return s, nil
}

func apiKeyInterceptor(key string) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		ctx = metadata.AppendToOutgoingContext(ctx, "api-key", key)
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// Close releases the connection, if the Store owns one.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

// CollectionOptions are passed through to collection creation.
type CollectionOptions struct {
	OnDiskPayload          bool
	ShardNumber            *uint32
	ReplicationFactor      *uint32
	WriteConsistencyFactor *uint32
	HnswConfig             *qdrant.HnswConfigDiff
	OptimizersConfig       *qdrant.OptimizersConfigDiff
	QuantizationConfig     *qdrant.QuantizationConfig
}

// Exists reports whether a collection exists.
func (s *Store) Exists(ctx context.Context, name string) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	resp, err := s.collections.List(ctx, &qdrant.ListCollectionsRequest{})
	if err != nil {
		return false, fmt.Errorf("failed to list collections: %w", err)
	}
	for _, c := range resp.GetCollections() {
		if c.GetName() == name {
			return true, nil
		}
	}
	return false, nil
}

// CreateOrRecreateCollection creates a collection from spec. When the collection
// already exists it is left untouched unless force is set, in which case it is
// DROPPED and created again with the new schema: every stored point is lost.
// It reports whether a collection was created.
func (s *Store) CreateOrRecreateCollection(ctx context.Context, name string, spec VectorSpec, force bool, opts *CollectionOptions) (bool, error) {
	if err := spec.Validate(); err != nil {
		return false, err
	}

	exists, err := s.Exists(ctx, name)
	if err != nil {
		return false, err
	}
	if exists && !force {
		logger.Debug("Collection %s exists, leaving it as is", name)
		return false, nil
	}
	if exists {
		logger.Warn("Recreating collection %s: existing points will be deleted", name)
		if err := s.DeleteCollection(ctx, name); err != nil {
			return false, err
		}
	}

	req := &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig:  spec.vectorsConfig(),
	}
	if opts != nil {
		req.OnDiskPayload = &opts.OnDiskPayload
		req.ShardNumber = opts.ShardNumber
		req.ReplicationFactor = opts.ReplicationFactor
		req.WriteConsistencyFactor = opts.WriteConsistencyFactor
		req.HnswConfig = opts.HnswConfig
		req.OptimizersConfig = opts.OptimizersConfig
		req.QuantizationConfig = opts.QuantizationConfig
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if _, err := s.collections.Create(ctx, req); err != nil {
		return false, fmt.Errorf("failed to create collection %s: %w", name, err)
	}
	return true, nil
}

// DeleteCollection drops a collection and all its points.
func (s *Store) DeleteCollection(ctx context.Context, name string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if _, err := s.collections.Delete(ctx, &qdrant.DeleteCollection{CollectionName: name}); err != nil {
		return fmt.Errorf("failed to delete collection %s: %w", name, err)
	}
	return nil
}

// CollectionInfo returns the server's description of a collection.
func (s *Store) CollectionInfo(ctx context.Context, name string) (*qdrant.CollectionInfo, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	resp, err := s.collections.Get(ctx, &qdrant.GetCollectionInfoRequest{CollectionName: name})
	if err != nil {
		return nil, fmt.Errorf("failed to get collection %s: %w", name, err)
	}
	if resp.GetResult() == nil {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}
	return resp.GetResult(), nil
}

// Schema reads the vector schema of a collection.
func (s *Store) Schema(ctx context.Context, name string) (VectorSpec, error) {
	info, err := s.CollectionInfo(ctx, name)
	if err != nil {
		return VectorSpec{}, err
	}
	return specFromConfig(info.GetConfig().GetParams().GetVectorsConfig()), nil
}

// CreatePayloadIndex creates an index on a payload field. A nil schema means keyword.
func (s *Store) CreatePayloadIndex(ctx context.Context, collection, field string, schema *qdrant.FieldType) error {
	if schema == nil {
		schema = qdrant.FieldType_FieldTypeKeyword.Enum()
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	wait := true
	_, err := s.points.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: collection,
		Wait:           &wait,
		FieldName:      field,
		FieldType:      schema,
	})
	if err != nil {
		return fmt.Errorf("failed to index %s.%s: %w", collection, field, err)
	}
	return nil
}

// CreatePayloadIndexes creates keyword indexes on fields, best effort. Failures do not
// stop the loop; they are returned as non-fatal diagnostics, one per failed field.
func (s *Store) CreatePayloadIndexes(ctx context.Context, collection string, fields []string) []error {
	var errs []error
	for _, field := range fields {
		if err := s.CreatePayloadIndex(ctx, collection, field, nil); err != nil {
			logger.Debug("Payload index skipped: %v", err)
			errs = append(errs, err)
		}
	}
	return errs
}

// UpsertPoints writes points in batches of batchSize, one request per batch. ids and
// vectors must have the same length; payloads may be nil, or must match as well.
// It returns the number of points written.
func (s *Store) UpsertPoints(ctx context.Context, collection string, ids []*qdrant.PointId, vectors []Vectors, payloads []map[string]any, batchSize int) (int, error) {
	if len(ids) != len(vectors) || (payloads != nil && len(payloads) != len(ids)) {
		return 0, fmt.Errorf("%w: %d ids, %d vectors, %d payloads", ErrLengthMismatch, len(ids), len(vectors), len(payloads))
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	wait := true
	written := 0
	for start := 0; start < len(ids); start += batchSize {
		end := min(start+batchSize, len(ids))

		points := make([]*qdrant.PointStruct, 0, end-start)
		for i := start; i < end; i++ {
			vecs, err := vectors[i].proto()
			if err != nil {
				return written, fmt.Errorf("point %s: %w", IDString(ids[i]), err)
			}
			var payload map[string]*qdrant.Value
			if payloads != nil {
				if payload, err = ToPayload(payloads[i]); err != nil {
					return written, fmt.Errorf("point %s: %w", IDString(ids[i]), err)
				}
			}
			points = append(points, &qdrant.PointStruct{Id: ids[i], Vectors: vecs, Payload: payload})
		}

		if err := s.upsert(ctx, &qdrant.UpsertPoints{CollectionName: collection, Wait: &wait, Points: points}); err != nil {
			return written, fmt.Errorf("failed to upsert points %d-%d into %s: %w", start, end, collection, err)
		}
		written += len(points)
		logger.Debug("Upserted %d/%d points into %s", written, len(ids), collection)
	}
	return written, nil
}

func (s *Store) upsert(ctx context.Context, req *qdrant.UpsertPoints) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	_, err := s.points.Upsert(ctx, req)
	return err
}

// Record is a stored point as returned by RetrievePoints.
type Record struct {
	ID      string
	Payload map[string]any
}

// RetrievePoints fetches points by id in batches of batchSize.
func (s *Store) RetrievePoints(ctx context.Context, collection string, ids []*qdrant.PointId, withPayload bool, batchSize int) ([]Record, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	records := make([]Record, 0, len(ids))
	for start := 0; start < len(ids); start += batchSize {
		end := min(start+batchSize, len(ids))

		resp, err := s.get(ctx, &qdrant.GetPoints{
			CollectionName: collection,
			Ids:            ids[start:end],
			WithPayload:    &qdrant.WithPayloadSelector{SelectorOptions: &qdrant.WithPayloadSelector_Enable{Enable: withPayload}},
			WithVectors:    &qdrant.WithVectorsSelector{SelectorOptions: &qdrant.WithVectorsSelector_Enable{Enable: false}},
		})
		if err != nil {
			return records, fmt.Errorf("failed to retrieve points from %s: %w", collection, err)
		}
		for _, p := range resp.GetResult() {
			records = append(records, Record{ID: IDString(p.GetId()), Payload: FromPayload(p.GetPayload())})
		}
	}
	return records, nil
}

func (s *Store) get(ctx context.Context, req *qdrant.GetPoints) (*qdrant.GetResponse, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.points.Get(ctx, req)
}

// DeletePoints removes points by id in batches of batchSize.
func (s *Store) DeletePoints(ctx context.Context, collection string, ids []*qdrant.PointId, batchSize int) error {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	wait := true
	for start := 0; start < len(ids); start += batchSize {
		end := min(start+batchSize, len(ids))
		req := &qdrant.DeletePoints{
			CollectionName: collection,
			Wait:           &wait,
			Points: &qdrant.PointsSelector{
				PointsSelectorOneOf: &qdrant.PointsSelector_Points{
					Points: &qdrant.PointsIdsList{Ids: ids[start:end]},
				},
			},
		}
		if err := s.delete(ctx, req); err != nil {
			return fmt.Errorf("failed to delete points %d-%d from %s: %w", start, end, collection, err)
		}
	}
	return nil
}

func (s *Store) delete(ctx context.Context, req *qdrant.DeletePoints) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	_, err := s.points.Delete(ctx, req)
	return err
}

// Query selects the vector to search with. Set Vector for a single-vector collection,
// or Vector plus VectorName for a named slot, or Named with exactly one entry.
type Query struct {
	Vector     []float32
	VectorName string
	Named      map[string][]float32

	Limit          uint64
	Filter         *qdrant.Filter
	ScoreThreshold *float32
	Offset         uint64
	WithPayload    bool
}

// resolve returns the vector and optional slot name a query selects.
func (q Query) resolve() ([]float32, string, error) {
	if q.Named == nil {
		if len(q.Vector) == 0 {
			return nil, "", fmt.Errorf("%w: no query vector", ErrAmbiguousQuery)
		}
		return q.Vector, q.VectorName, nil
	}
	if q.Vector != nil {
		return nil, "", fmt.Errorf("%w: both a plain and a named vector given", ErrAmbiguousQuery)
	}
	if len(q.Named) != 1 {
		return nil, "", fmt.Errorf("%w: %d named vectors given", ErrAmbiguousQuery, len(q.Named))
	}
	for name, v := range q.Named {
		if q.VectorName != "" && q.VectorName != name {
			return nil, "", fmt.Errorf("%w: vector name %q conflicts with %q", ErrAmbiguousQuery, q.VectorName, name)
		}
		return v, name, nil
	}
	return nil, "", nil
}

// Search returns the points closest to the query vector, best first.
func (s *Store) Search(ctx context.Context, collection string, q Query) ([]models.SearchResult, error) {
	vec, name, err := q.resolve()
	if err != nil {
		return nil, err
	}
	limit := q.Limit
	if limit == 0 {
		limit = 10
	}

	req := &qdrant.SearchPoints{
		CollectionName: collection,
		Vector:         vec,
		Filter:         q.Filter,
		Limit:          limit,
		ScoreThreshold: q.ScoreThreshold,
		WithPayload:    &qdrant.WithPayloadSelector{SelectorOptions: &qdrant.WithPayloadSelector_Enable{Enable: q.WithPayload}},
	}
	if name != "" {
		req.VectorName = &name
	}
	if q.Offset > 0 {
		req.Offset = &q.Offset
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	resp, err := s.points.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to search %s: %w", collection, err)
	}

	results := make([]models.SearchResult, 0, len(resp.GetResult()))
	for _, p := range resp.GetResult() {
		results = append(results, models.SearchResult{
			ID:      IDString(p.GetId()),
			Score:   p.GetScore(),
			Payload: FromPayload(p.GetPayload()),
		})
	}
	return results, nil
}

// Count returns the number of points, optionally exact and filtered.
func (s *Store) Count(ctx context.Context, collection string, exact bool, filter *qdrant.Filter) (uint64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	resp, err := s.points.Count(ctx, &qdrant.CountPoints{
		CollectionName: collection,
		Filter:         filter,
		Exact:          &exact,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", collection, err)
	}
	return resp.GetResult().GetCount(), nil
}

// AssertVectorDim compares a sample vector's length with the collection's declared
// size for the given slot. Run it after bulk loads.
func (s *Store) AssertVectorDim(ctx context.Context, collection, vectorName string, sample []float32) error {
	spec, err := s.Schema(ctx, collection)
	if err != nil {
		return err
	}
	if spec.IsNamed() && vectorName == "" {
		return fmt.Errorf("%w: %s", ErrVectorNameRequired, collection)
	}
	if !spec.IsNamed() {
		vectorName = ""
	}

	space, ok := spec.Space(vectorName)
	if !ok {
		return fmt.Errorf("%w: %s has no vector %q", ErrDimensionMismatch, collection, vectorName)
	}

	label := collection
	if vectorName != "" {
		label += "/" + vectorName
	}
	if got := uint64(len(sample)); got != space.Size {
		return fmt.Errorf("%w for %q: expected %d, got %d", ErrDimensionMismatch, label, space.Size, got)
	}
	return nil
}
