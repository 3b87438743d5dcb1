package vectorstore

import (
	"cmp"
	"context"
	"fmt"
	"net/url"
	"slices"
	"strconv"

	"github.com/qdrant/go-client/qdrant"

	"groundedqa/internal/apperr"
	"groundedqa/internal/contextutil"
	"groundedqa/internal/storage"
)

const (
	upsertBatchSize = 256
	tieOverfetch    = 2
)

// Payload keys stored with every point.
const (
	payloadSource   = "source"
	payloadText     = "text"
	payloadOffset   = "offset"
	payloadLength   = "length"
	payloadPosition = "position"
)

// QdrantStore mirrors a built index into a Qdrant collection and can serve
// searches from it. Point IDs are the chunk IDs.
type QdrantStore struct {
	client     *qdrant.Client
	collection string
	dimension  int
	count      int
}

// NewQdrantStore creates a new Qdrant vector store client.
// urlStr should be in the format "http://host:port" (e.g., "http://localhost:6333").
// The gRPC port (typically 6334) will be derived from the HTTP port.
func NewQdrantStore(urlStr, collection string) (*QdrantStore, error) {
	if collection == "" {
		return nil, apperr.Configf("qdrant collection name is required")
	}

	host, port, err := qdrantAddr(urlStr)
	if err != nil {
		return nil, err
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Qdrant client: %w", err)
	}

	return &QdrantStore{
		client:     client,
		collection: collection,
	}, nil
}

// qdrantAddr derives the gRPC host and port from the Qdrant HTTP URL.
func qdrantAddr(urlStr string) (string, int, error) {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return "", 0, apperr.Configf("invalid Qdrant URL %q: %v", urlStr, err)
	}

	host := parsedURL.Hostname()
	if host == "" {
		host = "localhost"
	}

	port := 6334 // Default gRPC port
	if parsedURL.Port() != "" {
		httpPort, err := strconv.Atoi(parsedURL.Port())
		if err == nil {
			// gRPC port is typically HTTP port + 1
			port = httpPort + 1
		}
	}
	return host, port, nil
}

// Close releases the gRPC connection.
func (s *QdrantStore) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}

// ReplaceCollection drops the collection and recreates it from index, so the
// mirror always holds exactly one build.
func (s *QdrantStore) ReplaceCollection(ctx context.Context, index *FlatIndex) error {
	logger := contextutil.LoggerFromContext(ctx)

	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection existence: %w", err)
	}
	if exists {
		if err := s.client.DeleteCollection(ctx, s.collection); err != nil {
			return fmt.Errorf("failed to drop collection %s: %w", s.collection, err)
		}
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(index.Dimension()),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	records := index.Records()
	for start := 0; start < len(records); start += upsertBatchSize {
		end := min(start+upsertBatchSize, len(records))
		if _, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.collection,
			Wait:           qdrant.PtrOf(true),
			Points:         toPoints(records[start:end], start),
		}); err != nil {
			logger.ErrorContext(ctx, "failed to upsert points", "collection", s.collection, "offset", start, "error", err)
			return fmt.Errorf("failed to upsert points: %w", err)
		}
	}

	s.dimension = index.Dimension()
	s.count = len(records)
	logger.InfoContext(ctx, "collection replaced", "collection", s.collection, "points", len(records), "vector_size", index.Dimension())
	return nil
}

func toPoints(records []storage.Record, offset int) []*qdrant.PointStruct {
	points := make([]*qdrant.PointStruct, 0, len(records))
	for i, rec := range records {
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewID(rec.Chunk.ID),
			Vectors: qdrant.NewVectors(rec.Vector...),
			Payload: qdrant.NewValueMap(map[string]any{
				payloadSource:   rec.Chunk.Source,
				payloadText:     rec.Chunk.Text,
				payloadOffset:   rec.Chunk.Offset,
				payloadLength:   rec.Chunk.Length,
				payloadPosition: offset + i,
			}),
		})
	}
	return points
}

// Open validates that the collection exists with vectorSize dimensions and
// caches its point count. It must be called before Search.
func (s *QdrantStore) Open(ctx context.Context, vectorSize int) error {
	logger := contextutil.LoggerFromContext(ctx)

	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection existence: %w", err)
	}
	if !exists {
		return &apperr.IndexNotFoundError{Path: "qdrant collection " + s.collection}
	}

	info, err := s.client.GetCollectionInfo(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("failed to get collection info: %w", err)
	}

	var actualSize int
	if config := info.GetConfig(); config != nil && config.GetParams() != nil {
		if params := config.GetParams().GetVectorsConfig().GetParams(); params != nil {
			actualSize = int(params.GetSize())
		}
	}
	if actualSize == 0 {
		return fmt.Errorf("could not determine collection vector size")
	}
	if actualSize != vectorSize {
		return apperr.WrapError(&apperr.DimensionMismatchError{Expected: actualSize, Got: vectorSize},
			fmt.Sprintf("collection %s", s.collection))
	}

	count, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("failed to count points: %w", err)
	}

	s.dimension = actualSize
	s.count = int(count)
	logger.InfoContext(ctx, "collection validated", "collection", s.collection, "vector_size", actualSize, "points", s.count)
	return nil
}

// Dimension returns the collection vector size.
func (s *QdrantStore) Dimension() int {
	return s.dimension
}

// Len returns the point count observed by Open or ReplaceCollection.
func (s *QdrantStore) Len() int {
	return s.count
}

// Search performs a cosine similarity search against the collection.
func (s *QdrantStore) Search(ctx context.Context, query []float32, k int) ([]Result, error) {
	logger := contextutil.LoggerFromContext(ctx)

	if k <= 0 {
		return nil, apperr.Configf("k must be a positive integer, got %d", k)
	}
	if len(query) != s.dimension {
		return nil, &apperr.DimensionMismatchError{Expected: s.dimension, Got: len(query)}
	}

	// Over-fetch so chunks tied at the k-th score are ranked by position
	// here rather than by whichever points Qdrant chose to return.
	limit := uint64(k * tieOverfetch)
	scoredPoints, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(query...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		logger.ErrorContext(ctx, "failed to search points", "collection", s.collection, "k", k, "error", err)
		return nil, fmt.Errorf("failed to search points: %w", err)
	}

	results := make([]Result, 0, len(scoredPoints))
	for _, point := range scoredPoints {
		res, err := resultFromPayload(point.GetId().GetUuid(), point.GetScore(), convertPayloadToMap(point.GetPayload()))
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	results = topK(results, k)

	logger.DebugContext(ctx, "search completed", "collection", s.collection, "k", k, "results", len(results))
	return results, nil
}

// topK ranks results and keeps the first k.
func topK(results []Result, k int) []Result {
	rankResults(results)
	if len(results) > k {
		results = results[:k]
	}
	return results
}

// rankResults orders results by score descending then position and assigns ranks.
// Qdrant does not guarantee an order among equal scores.
func rankResults(results []Result) {
	slices.SortFunc(results, func(a, b Result) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.Position, b.Position)
	})
	for i := range results {
		results[i].Rank = i + 1
	}
}

func resultFromPayload(id string, score float32, payload map[string]any) (Result, error) {
	source, _ := payload[payloadSource].(string)
	text, _ := payload[payloadText].(string)
	offset, okOffset := payload[payloadOffset].(int64)
	length, okLength := payload[payloadLength].(int64)
	position, okPosition := payload[payloadPosition].(int64)
	if source == "" || text == "" || !okOffset || !okLength || !okPosition {
		return Result{}, fmt.Errorf("point %s has an incomplete payload", id)
	}

	return Result{
		Chunk: storage.Chunk{
			ID:     id,
			Source: source,
			Text:   text,
			Offset: int(offset),
			Length: int(length),
		},
		Score:    score,
		Position: int(position),
	}, nil
}

// convertPayloadToMap converts Qdrant payload to map[string]any.
func convertPayloadToMap(payload map[string]*qdrant.Value) map[string]any {
	result := make(map[string]any, len(payload))
	for k, v := range payload {
		if v == nil {
			continue
		}
		result[k] = convertValue(v)
	}
	return result
}

// convertValue converts a Qdrant Value to Go any type.
func convertValue(v *qdrant.Value) any {
	switch val := v.Kind.(type) {
	case *qdrant.Value_BoolValue:
		return val.BoolValue
	case *qdrant.Value_IntegerValue:
		return val.IntegerValue
	case *qdrant.Value_DoubleValue:
		return val.DoubleValue
	case *qdrant.Value_StringValue:
		return val.StringValue
	case *qdrant.Value_ListValue:
		list := make([]any, len(val.ListValue.Values))
		for i, item := range val.ListValue.Values {
			list[i] = convertValue(item)
		}
		return list
	case *qdrant.Value_StructValue:
		return convertPayloadToMap(val.StructValue.Fields)
	default:
		return nil
	}
}
