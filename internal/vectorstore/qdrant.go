package vectorstore

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/qdrant/go-client/qdrant"
)

// QdrantStore implements Searcher using Qdrant.
type QdrantStore struct {
	client *qdrant.Client
}

// NewQdrantStore creates a new Qdrant client.
// url should be in format "host:port" (e.g., "localhost:6334").
func NewQdrantStore(url string) (*QdrantStore, error) {
	host, portStr, err := net.SplitHostPort(url)
	if err != nil {
		host = url
		portStr = "6334"
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid port in qdrant url: %w", err)
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	return &QdrantStore{client: client}, nil
}

// Close closes the Qdrant client connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

// CollectionExists checks if a collection exists.
func (s *QdrantStore) CollectionExists(ctx context.Context, collection string) (bool, error) {
	exists, err := s.client.CollectionExists(ctx, collection)
	if err != nil {
		return false, fmt.Errorf("failed to check collection existence: %w", err)
	}
	return exists, nil
}

// Search performs dense similarity search.
func (s *QdrantStore) Search(ctx context.Context, collection string, vector []float32, topK int, minScore float32) ([]SearchResult, error) {
	response, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(topK)),
		WithPayload:    qdrant.NewWithPayload(true),
		ScoreThreshold: qdrant.PtrOf(minScore),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	results := make([]SearchResult, 0, len(response))
	for _, point := range response {
		results = append(results, toSearchResult(point.GetId(), point.GetScore(), point.GetPayload()))
	}

	return results, nil
}

func toSearchResult(id *qdrant.PointId, score float32, payload map[string]*qdrant.Value) SearchResult {
	result := SearchResult{Score: score}

	switch {
	case id.GetUuid() != "":
		result.ID = id.GetUuid()
	case id != nil:
		result.ID = strconv.FormatUint(id.GetNum(), 10)
	}

	if v, ok := payload[PayloadDocumentID]; ok {
		result.DocumentID = v.GetStringValue()
	}
	if v, ok := payload[PayloadContent]; ok {
		result.Content = v.GetStringValue()
	}
	if v, ok := payload[PayloadChunkIndex]; ok {
		switch kind := v.GetKind().(type) {
		case *qdrant.Value_IntegerValue:
			result.ChunkIndex, result.HasChunkIndex = int(kind.IntegerValue), true
		case *qdrant.Value_DoubleValue:
			result.ChunkIndex, result.HasChunkIndex = int(kind.DoubleValue), true
		case *qdrant.Value_StringValue:
			if n, err := strconv.Atoi(kind.StringValue); err == nil {
				result.ChunkIndex, result.HasChunkIndex = n, true
			}
		}
	}

	return result
}

var _ Searcher = (*QdrantStore)(nil)
