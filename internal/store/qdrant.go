package store

import (
	"context"
	"fmt"
	"sort"
	"strings"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Payload keys reserved by QdrantStore.
const (
	qdrantKeyResource = "resource_id"
	qdrantKeyText     = "text"
	qdrantKeyMetaPfx  = "meta."
)

const qdrantScrollPage = 256

// QdrantStore implements VectorStore on a Qdrant collection over gRPC.
// Segment IDs must be UUIDs.
type QdrantStore struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	collection  string
	dims        int
}

// NewQdrantStore connects to Qdrant at addr and ensures the collection
// exists with the given dimension.
func NewQdrantStore(ctx context.Context, addr, collection string, dims int) (*QdrantStore, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial qdrant %s: %w", addr, err)
	}
	s := NewQdrantStoreWithClients(pb.NewPointsClient(conn), pb.NewCollectionsClient(conn), collection, dims)
	s.conn = conn

	if err := s.EnsureCollection(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return s, nil
}

// NewQdrantStoreWithClients builds a store on existing gRPC clients.
func NewQdrantStoreWithClients(points pb.PointsClient, collections pb.CollectionsClient, collection string, dims int) *QdrantStore {
	return &QdrantStore{
		points:      points,
		collections: collections,
		collection:  collection,
		dims:        dims,
	}
}

// EnsureCollection creates the collection if it doesn't exist.
func (q *QdrantStore) EnsureCollection(ctx context.Context) error {
	list, err := q.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == q.collection {
			return nil
		}
	}

	_, err = q.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(q.dims),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("create collection %s: %w", q.collection, err)
	}
	return nil
}

// AddAll upserts one point per segment.
func (q *QdrantStore) AddAll(ctx context.Context, vectors [][]float32, segments []Segment) ([]string, error) {
	if len(segments) == 0 {
		return nil, nil
	}
	if len(segments) != len(vectors) {
		return nil, fmt.Errorf("segments and vectors length mismatch: %d vs %d", len(segments), len(vectors))
	}

	points := make([]*pb.PointStruct, len(segments))
	ids := make([]string, len(segments))
	for i, seg := range segments {
		if len(vectors[i]) != q.dims {
			return nil, ErrDimensionMismatch{Expected: q.dims, Got: len(vectors[i])}
		}
		payload := map[string]*pb.Value{
			qdrantKeyResource: stringValue(seg.ResourceID),
			qdrantKeyText:     stringValue(seg.Text),
		}
		for k, v := range seg.Metadata {
			payload[qdrantKeyMetaPfx+k] = stringValue(v)
		}
		points[i] = &pb.PointStruct{
			Id: pointID(seg.ID),
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: vectors[i]},
				},
			},
			Payload: payload,
		}
		ids[i] = seg.ID
	}

	wait := true
	_, err := q.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: q.collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return nil, fmt.Errorf("upsert %d points: %w", len(points), err)
	}
	return ids, nil
}

// RemoveAll deletes points by ID.
func (q *QdrantStore) RemoveAll(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	pids := make([]*pb.PointId, len(ids))
	for i, id := range ids {
		pids[i] = pointID(id)
	}

	wait := true
	_, err := q.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: q.collection,
		Wait:           &wait,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Points{
				Points: &pb.PointsIdsList{Ids: pids},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("delete %d points: %w", len(ids), err)
	}
	return nil
}

// RemoveByResource deletes every point of a resource.
func (q *QdrantStore) RemoveByResource(ctx context.Context, resourceID string) error {
	wait := true
	_, err := q.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: q.collection,
		Wait:           &wait,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Filter{
				Filter: &pb.Filter{
					Must: []*pb.Condition{fieldMatch(qdrantKeyResource, resourceID)},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("delete by resource %s: %w", resourceID, err)
	}
	return nil
}

// Search performs k-NN cosine search.
func (q *QdrantStore) Search(ctx context.Context, query []float32, k int) ([]Hit, error) {
	if len(query) != q.dims {
		return nil, ErrDimensionMismatch{Expected: q.dims, Got: len(query)}
	}
	if k <= 0 {
		return []Hit{}, nil
	}

	resp, err := q.points.Search(ctx, &pb.SearchPoints{
		CollectionName: q.collection,
		Vector:         query,
		Limit:          uint64(k),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	hits := make([]Hit, 0, len(resp.GetResult()))
	for _, r := range resp.GetResult() {
		hits = append(hits, Hit{
			Segment: segmentFromPayload(r.GetId().GetUuid(), r.GetPayload()),
			Score:   float64(r.GetScore()),
		})
	}
	return hits, nil
}

// AllIDs scrolls the whole collection.
func (q *QdrantStore) AllIDs(ctx context.Context) ([]string, error) {
	var (
		ids    []string
		offset *pb.PointId
	)
	limit := uint32(qdrantScrollPage)
	for {
		resp, err := q.points.Scroll(ctx, &pb.ScrollPoints{
			CollectionName: q.collection,
			Limit:          &limit,
			Offset:         offset,
			WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: false}},
		})
		if err != nil {
			return nil, fmt.Errorf("scroll: %w", err)
		}
		for _, p := range resp.GetResult() {
			ids = append(ids, p.GetId().GetUuid())
		}
		offset = resp.GetNextPageOffset()
		if offset == nil || len(resp.GetResult()) == 0 {
			break
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Count returns the exact point count.
func (q *QdrantStore) Count(ctx context.Context) (int, error) {
	exact := true
	resp, err := q.points.Count(ctx, &pb.CountPoints{
		CollectionName: q.collection,
		Exact:          &exact,
	})
	if err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return int(resp.GetResult().GetCount()), nil
}

// Close closes the gRPC connection.
func (q *QdrantStore) Close() error {
	if q.conn == nil {
		return nil
	}
	return q.conn.Close()
}

var _ VectorStore = (*QdrantStore)(nil)

func pointID(id string) *pb.PointId {
	return &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: id}}
}

func stringValue(s string) *pb.Value {
	return &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}}
}

func segmentFromPayload(id string, payload map[string]*pb.Value) Segment {
	seg := Segment{ID: id, Metadata: make(map[string]string)}
	for k, v := range payload {
		s := v.GetStringValue()
		switch {
		case k == qdrantKeyResource:
			seg.ResourceID = s
		case k == qdrantKeyText:
			seg.Text = s
		case strings.HasPrefix(k, qdrantKeyMetaPfx):
			seg.Metadata[strings.TrimPrefix(k, qdrantKeyMetaPfx)] = s
		}
	}
	return seg
}

func fieldMatch(key, value string) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key: key,
				Match: &pb.Match{
					MatchValue: &pb.Match_Keyword{Keyword: value},
				},
			},
		},
	}
}
