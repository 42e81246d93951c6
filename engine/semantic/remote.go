package semantic

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/AlphaAgentAI/alphaagent-mvp/engine/domain"
)

// pointNamespace derives deterministic point IDs so re-upserting the same
// chunk overwrites rather than duplicates.
var pointNamespace = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

// Remote is a Searcher backed by a Qdrant collection over gRPC. It is the
// sole owner of all Qdrant operations.
type Remote struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	collection  string
}

// NewRemote connects to Qdrant at the given gRPC address.
func NewRemote(addr, collection string) (*Remote, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("semantic: dial qdrant %s: %w", addr, err)
	}
	return &Remote{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
	}, nil
}

// Close closes the underlying gRPC connection.
func (r *Remote) Close() error {
	return r.conn.Close()
}

// EnsureCollection creates the cosine-distance collection if missing.
func (r *Remote) EnsureCollection(ctx context.Context, dims int) error {
	list, err := r.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("semantic: list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == r.collection {
			return nil
		}
	}

	_, err = r.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: r.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(dims),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("semantic: create collection %s: %w", r.collection, err)
	}
	return nil
}

// DeleteCollection drops the collection.
func (r *Remote) DeleteCollection(ctx context.Context) error {
	_, err := r.collections.Delete(ctx, &pb.DeleteCollection{
		CollectionName: r.collection,
	})
	if err != nil {
		return fmt.Errorf("semantic: delete collection %s: %w", r.collection, err)
	}
	return nil
}

// PointID returns the deterministic Qdrant point ID for a chunk.
func PointID(docID string, chunkID int) string {
	return uuid.NewSHA1(pointNamespace, []byte(fmt.Sprintf("%s:%d", docID, chunkID))).String()
}

// Upsert stores indexed records as points. Payload fields mirror the JSONL
// record fields minus the embedding.
func (r *Remote) Upsert(ctx context.Context, records []domain.IndexedRecord) error {
	if len(records) == 0 {
		return nil
	}

	points := make([]*pb.PointStruct, len(records))
	for i, rec := range records {
		points[i] = &pb.PointStruct{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{Uuid: PointID(rec.DocID, rec.ChunkID)},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: rec.Embedding},
				},
			},
			Payload: map[string]*pb.Value{
				"doc_id":      {Kind: &pb.Value_StringValue{StringValue: rec.DocID}},
				"chunk_id":    {Kind: &pb.Value_IntegerValue{IntegerValue: int64(rec.ChunkID)}},
				"source_path": {Kind: &pb.Value_StringValue{StringValue: rec.SourcePath}},
				"text":        {Kind: &pb.Value_StringValue{StringValue: rec.Text}},
			},
		}
	}

	wait := true
	_, err := r.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: r.collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("semantic: upsert %d points: %w", len(records), err)
	}
	return nil
}

// DeleteByDocID removes all points for one document. Used on re-ingestion.
func (r *Remote) DeleteByDocID(ctx context.Context, docID string) error {
	wait := true
	_, err := r.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: r.collection,
		Wait:           &wait,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Filter{
				Filter: &pb.Filter{
					Must: []*pb.Condition{{
						ConditionOneOf: &pb.Condition_Field{
							Field: &pb.FieldCondition{
								Key: "doc_id",
								Match: &pb.Match{
									MatchValue: &pb.Match_Keyword{Keyword: docID},
								},
							},
						},
					}},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("semantic: delete by doc_id %s: %w", docID, err)
	}
	return nil
}

// Search performs cosine k-NN over the collection.
func (r *Remote) Search(ctx context.Context, vector []float32, topK int) ([]domain.Citation, error) {
	if topK <= 0 {
		return nil, nil
	}
	resp, err := r.points.Search(ctx, &pb.SearchPoints{
		CollectionName: r.collection,
		Vector:         vector,
		Limit:          uint64(topK),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("semantic: search: %w", err)
	}

	results := make([]domain.Citation, len(resp.GetResult()))
	for i, hit := range resp.GetResult() {
		c := domain.Citation{Score: float64(hit.GetScore())}
		for k, val := range hit.GetPayload() {
			switch k {
			case "doc_id":
				c.DocID = val.GetStringValue()
			case "chunk_id":
				c.ChunkID = int(val.GetIntegerValue())
			case "source_path":
				c.SourcePath = val.GetStringValue()
			case "text":
				c.Text = val.GetStringValue()
			}
		}
		results[i] = c
	}
	return results, nil
}
