// Package vectortest provides an in-memory stand-in for the Qdrant gRPC services,
// recording the requests it receives so tests can assert on batching.
package vectortest

import (
	"context"
	"math"
	"sort"
	"strconv"
	"sync"

	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Server holds collections and points in memory.
type Server struct {
	mu          sync.Mutex
	collections map[string]*collection

	// UpsertBatches records the number of points in each upsert request.
	UpsertBatches []int
	// GetBatches records the number of ids in each get request.
	GetBatches []int
	// DeleteBatches records the number of ids in each delete request.
	DeleteBatches []int
	// Created and Deleted record collection lifecycle calls in order.
	Created []string
	Deleted []string
	// Indexes records created payload indexes per collection.
	Indexes map[string][]string
	// FailIndex makes index creation fail for the named fields.
	FailIndex map[string]bool
	// Searches records every search request.
	Searches []*qdrant.SearchPoints
}

type collection struct {
	config *qdrant.VectorsConfig
	points map[string]*qdrant.PointStruct
}

// New returns an empty server.
func New() *Server {
	return &Server{
		collections: make(map[string]*collection),
		Indexes:     make(map[string][]string),
		FailIndex:   make(map[string]bool),
	}
}

// Collections returns a CollectionsClient backed by the server.
func (s *Server) Collections() qdrant.CollectionsClient {
	return &collectionsClient{srv: s}
}

// Points returns a PointsClient backed by the server.
func (s *Server) Points() qdrant.PointsClient {
	return &pointsClient{srv: s}
}

// Len returns the number of points in a collection.
func (s *Server) Len(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.collections[name]; ok {
		return len(c.points)
	}
	return 0
}

// Point returns a stored point by its id text.
func (s *Server) Point(name, id string) (*qdrant.PointStruct, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[name]
	if !ok {
		return nil, false
	}
	p, ok := c.points[id]
	return p, ok
}

// PointIDs returns the sorted id texts stored in a collection.
func (s *Server) PointIDs(name string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	if c, ok := s.collections[name]; ok {
		for id := range c.points {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func (s *Server) get(name string) (*collection, error) {
	c, ok := s.collections[name]
	if !ok {
		return nil, status.Errorf(codes.NotFound, "collection %s not found", name)
	}
	return c, nil
}

func idKey(id *qdrant.PointId) string {
	switch v := id.GetPointIdOptions().(type) {
	case *qdrant.PointId_Num:
		return strconv.FormatUint(v.Num, 10)
	case *qdrant.PointId_Uuid:
		return v.Uuid
	}
	return ""
}

type collectionsClient struct {
	qdrant.CollectionsClient
	srv *Server
}

func (c *collectionsClient) List(_ context.Context, _ *qdrant.ListCollectionsRequest, _ ...grpc.CallOption) (*qdrant.ListCollectionsResponse, error) {
	c.srv.mu.Lock()
	defer c.srv.mu.Unlock()

	resp := &qdrant.ListCollectionsResponse{}
	for name := range c.srv.collections {
		resp.Collections = append(resp.Collections, &qdrant.CollectionDescription{Name: name})
	}
	return resp, nil
}

func (c *collectionsClient) Create(_ context.Context, req *qdrant.CreateCollection, _ ...grpc.CallOption) (*qdrant.CollectionOperationResponse, error) {
	c.srv.mu.Lock()
	defer c.srv.mu.Unlock()

	if _, ok := c.srv.collections[req.GetCollectionName()]; ok {
		return nil, status.Errorf(codes.AlreadyExists, "collection %s already exists", req.GetCollectionName())
	}
	c.srv.collections[req.GetCollectionName()] = &collection{
		config: req.GetVectorsConfig(),
		points: make(map[string]*qdrant.PointStruct),
	}
	c.srv.Created = append(c.srv.Created, req.GetCollectionName())
	return &qdrant.CollectionOperationResponse{Result: true}, nil
}

func (c *collectionsClient) Delete(_ context.Context, req *qdrant.DeleteCollection, _ ...grpc.CallOption) (*qdrant.CollectionOperationResponse, error) {
	c.srv.mu.Lock()
	defer c.srv.mu.Unlock()

	_, ok := c.srv.collections[req.GetCollectionName()]
	delete(c.srv.collections, req.GetCollectionName())
	c.srv.Deleted = append(c.srv.Deleted, req.GetCollectionName())
	return &qdrant.CollectionOperationResponse{Result: ok}, nil
}

func (c *collectionsClient) Get(_ context.Context, req *qdrant.GetCollectionInfoRequest, _ ...grpc.CallOption) (*qdrant.GetCollectionInfoResponse, error) {
	c.srv.mu.Lock()
	defer c.srv.mu.Unlock()

	col, err := c.srv.get(req.GetCollectionName())
	if err != nil {
		return nil, err
	}
	count := uint64(len(col.points))
	return &qdrant.GetCollectionInfoResponse{
		Result: &qdrant.CollectionInfo{
			PointsCount: &count,
			Config: &qdrant.CollectionConfig{
				Params: &qdrant.CollectionParams{VectorsConfig: col.config},
			},
		},
	}, nil
}

type pointsClient struct {
	qdrant.PointsClient
	srv *Server
}

func (p *pointsClient) Upsert(_ context.Context, req *qdrant.UpsertPoints, _ ...grpc.CallOption) (*qdrant.PointsOperationResponse, error) {
	p.srv.mu.Lock()
	defer p.srv.mu.Unlock()

	col, err := p.srv.get(req.GetCollectionName())
	if err != nil {
		return nil, err
	}
	for _, pt := range req.GetPoints() {
		col.points[idKey(pt.GetId())] = pt
	}
	p.srv.UpsertBatches = append(p.srv.UpsertBatches, len(req.GetPoints()))
	return &qdrant.PointsOperationResponse{}, nil
}

func (p *pointsClient) Get(_ context.Context, req *qdrant.GetPoints, _ ...grpc.CallOption) (*qdrant.GetResponse, error) {
	p.srv.mu.Lock()
	defer p.srv.mu.Unlock()

	col, err := p.srv.get(req.GetCollectionName())
	if err != nil {
		return nil, err
	}
	p.srv.GetBatches = append(p.srv.GetBatches, len(req.GetIds()))

	withPayload := req.GetWithPayload().GetEnable()
	resp := &qdrant.GetResponse{}
	for _, id := range req.GetIds() {
		pt, ok := col.points[idKey(id)]
		if !ok {
			continue
		}
		rp := &qdrant.RetrievedPoint{Id: pt.GetId()}
		if withPayload {
			rp.Payload = pt.GetPayload()
		}
		resp.Result = append(resp.Result, rp)
	}
	return resp, nil
}

func (p *pointsClient) Delete(_ context.Context, req *qdrant.DeletePoints, _ ...grpc.CallOption) (*qdrant.PointsOperationResponse, error) {
	p.srv.mu.Lock()
	defer p.srv.mu.Unlock()

	col, err := p.srv.get(req.GetCollectionName())
	if err != nil {
		return nil, err
	}
	ids := req.GetPoints().GetPoints().GetIds()
	for _, id := range ids {
		delete(col.points, idKey(id))
	}
	p.srv.DeleteBatches = append(p.srv.DeleteBatches, len(ids))
	return &qdrant.PointsOperationResponse{}, nil
}

func (p *pointsClient) CreateFieldIndex(_ context.Context, req *qdrant.CreateFieldIndexCollection, _ ...grpc.CallOption) (*qdrant.PointsOperationResponse, error) {
	p.srv.mu.Lock()
	defer p.srv.mu.Unlock()

	if _, err := p.srv.get(req.GetCollectionName()); err != nil {
		return nil, err
	}
	if p.srv.FailIndex[req.GetFieldName()] {
		return nil, status.Errorf(codes.InvalidArgument, "cannot index %s", req.GetFieldName())
	}
	p.srv.Indexes[req.GetCollectionName()] = append(p.srv.Indexes[req.GetCollectionName()], req.GetFieldName())
	return &qdrant.PointsOperationResponse{}, nil
}

func (p *pointsClient) Count(_ context.Context, req *qdrant.CountPoints, _ ...grpc.CallOption) (*qdrant.CountResponse, error) {
	p.srv.mu.Lock()
	defer p.srv.mu.Unlock()

	col, err := p.srv.get(req.GetCollectionName())
	if err != nil {
		return nil, err
	}
	var n uint64
	for _, pt := range col.points {
		if matches(req.GetFilter(), pt.GetPayload()) {
			n++
		}
	}
	return &qdrant.CountResponse{Result: &qdrant.CountResult{Count: n}}, nil
}

func (p *pointsClient) Search(_ context.Context, req *qdrant.SearchPoints, _ ...grpc.CallOption) (*qdrant.SearchResponse, error) {
	p.srv.mu.Lock()
	defer p.srv.mu.Unlock()

	col, err := p.srv.get(req.GetCollectionName())
	if err != nil {
		return nil, err
	}
	p.srv.Searches = append(p.srv.Searches, req)

	var hits []*qdrant.ScoredPoint
	for _, pt := range col.points {
		stored := vectorFor(pt.GetVectors(), req.GetVectorName())
		if stored == nil || !matches(req.GetFilter(), pt.GetPayload()) {
			continue
		}
		score := cosine(req.GetVector(), stored)
		if req.ScoreThreshold != nil && score < req.GetScoreThreshold() {
			continue
		}
		hit := &qdrant.ScoredPoint{Id: pt.GetId(), Score: score}
		if req.GetWithPayload().GetEnable() {
			hit.Payload = pt.GetPayload()
		}
		hits = append(hits, hit)
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return idKey(hits[i].Id) < idKey(hits[j].Id)
	})

	offset := int(req.GetOffset())
	if offset > len(hits) {
		offset = len(hits)
	}
	hits = hits[offset:]
	if limit := int(req.GetLimit()); limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return &qdrant.SearchResponse{Result: hits}, nil
}

func vectorFor(v *qdrant.Vectors, name string) []float32 {
	if name == "" {
		return v.GetVector().GetData()
	}
	return v.GetVectors().GetVectors()[name].GetData()
}

func cosine(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

// matches supports Must conditions with keyword matches, against string fields or
// lists of strings.
func matches(f *qdrant.Filter, payload map[string]*qdrant.Value) bool {
	for _, cond := range f.GetMust() {
		field := cond.GetField()
		if field == nil {
			continue
		}
		want := field.GetMatch().GetKeyword()
		v, ok := payload[field.GetKey()]
		if !ok {
			return false
		}
		if _, isString := v.GetKind().(*qdrant.Value_StringValue); isString && v.GetStringValue() == want {
			continue
		}
		found := false
		for _, item := range v.GetListValue().GetValues() {
			if item.GetStringValue() == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
