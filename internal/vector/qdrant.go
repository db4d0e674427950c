package vector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/krsache/recall/internal/embedding"
	"github.com/krsache/recall/internal/observability"
	"github.com/krsache/recall/internal/retry"
)

// QdrantRepository implements Repository using Qdrant over gRPC.
type QdrantRepository struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	collection  string
	timeout     time.Duration
	policy      retry.Policy
	logger      *zap.Logger
}

// NewQdrant creates a Qdrant-backed repository. timeout applies per store
// call; policy governs retries on the query and lookup paths.
func NewQdrant(host string, port int, collection string, timeout time.Duration, policy retry.Policy, logger *zap.Logger) (*QdrantRepository, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("qdrant connect: %w", err)
	}
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	policy.Retryable = storeRetryable
	return &QdrantRepository{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
		timeout:     timeout,
		policy:      policy,
		logger:      logger,
	}, nil
}

// storeRetryable never retries an absent collection; everything else follows
// the shared predicate.
func storeRetryable(err error) bool {
	if errors.Is(err, ErrCollectionMissing) {
		return false
	}
	return retry.IsRetryable(err)
}

func (r *QdrantRepository) Query(ctx context.Context, vector []float32, limit int) ([]Candidate, error) {
	ctx, span := observability.StartStoreSpan(ctx, "search", r.collection)
	defer span.End()

	var out []Candidate
	err := r.policy.Do(ctx, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()

		resp, err := r.points.Search(ctx, &pb.SearchPoints{
			CollectionName: r.collection,
			Vector:         vector,
			Limit:          uint64(limit),
			WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
		})
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return fmt.Errorf("%w: %s", ErrCollectionMissing, r.collection)
			}
			return err
		}

		out = make([]Candidate, len(resp.Result))
		for i, pt := range resp.Result {
			out[i] = Candidate{
				Chunk: decodeChunk(pt.Payload, r.logger),
				// Cosine collections report similarity; the core works in
				// distance space.
				Distance: 1 - float64(pt.Score),
			}
		}
		return nil
	})
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}
	return out, nil
}

func (r *QdrantRepository) FetchByChunkID(ctx context.Context, id string) (*Chunk, error) {
	ctx, span := observability.StartStoreSpan(ctx, "scroll", r.collection)
	defer span.End()

	var out *Chunk
	err := r.policy.Do(ctx, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()

		limit := uint32(1)
		resp, err := r.points.Scroll(ctx, &pb.ScrollPoints{
			CollectionName: r.collection,
			Filter: &pb.Filter{
				Must: []*pb.Condition{{
					ConditionOneOf: &pb.Condition_Field{Field: &pb.FieldCondition{
						Key:   "chunk_id",
						Match: &pb.Match{MatchValue: &pb.Match_Keyword{Keyword: id}},
					}},
				}},
			},
			Limit:       &limit,
			WithPayload: &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
		})
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return fmt.Errorf("%w: %s", ErrCollectionMissing, r.collection)
			}
			return err
		}

		if len(resp.Result) == 0 {
			out = nil
			return nil
		}
		chunk := decodeChunk(resp.Result[0].Payload, r.logger)
		out = &chunk
		return nil
	})
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}
	return out, nil
}

func (r *QdrantRepository) EnsureCollection(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	exists, err := r.collections.CollectionExists(ctx, &pb.CollectionExistsRequest{
		CollectionName: r.collection,
	})
	if err != nil {
		return fmt.Errorf("check collection: %w", err)
	}
	if exists.GetResult().GetExists() {
		return nil
	}

	_, err = r.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: r.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{Params: &pb.VectorParams{
				Size:     embedding.Dimension,
				Distance: pb.Distance_Cosine,
			}},
		},
	})
	if err != nil {
		return fmt.Errorf("create collection %s: %w", r.collection, err)
	}
	r.logger.Info("created collection",
		zap.String("collection", r.collection), zap.Int("dimension", embedding.Dimension))
	return nil
}

func (r *QdrantRepository) Upsert(ctx context.Context, chunks []Chunk) error {
	points := make([]*pb.PointStruct, len(chunks))
	for i, c := range chunks {
		points[i] = &pb.PointStruct{
			Id:      &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: uuid.NewString()}},
			Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: c.Embedding}}},
			Payload: encodePayload(c),
		}
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: r.collection,
		Points:         points,
	})
	return err
}

func (r *QdrantRepository) Close() error {
	return r.conn.Close()
}

var _ Repository = (*QdrantRepository)(nil)
