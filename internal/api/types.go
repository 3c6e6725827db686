// Package api defines the wire contract of the passage service: method names, request and
// response shapes, their google.protobuf.Struct encoding, and a gRPC client.
package api

import (
	"github.com/knoguchi/rse/internal/passage"
	"github.com/knoguchi/rse/internal/rse"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "rse.v1.PassageService"

// Full gRPC method names.
const (
	MethodFilter            = "/" + ServiceName + "/Filter"
	MethodRerank            = "/" + ServiceName + "/Rerank"
	MethodEvaluatePrecision = "/" + ServiceName + "/EvaluatePrecision"
	MethodRetrieveAndFilter = "/" + ServiceName + "/RetrieveAndFilter"
)

// Reranker backends selectable per request.
const (
	RerankerNVIDIA = "nvidia"
	RerankerLLM    = "llm"
)

// FilterRequest runs relevance segment extraction over a batch. Options override the
// server's configured defaults field by field.
type FilterRequest struct {
	passage.Batch
	Options *rse.Overrides `json:"options,omitempty"`
}

// FilterResponse carries the filtered batch and the configuration it was computed with.
type FilterResponse struct {
	passage.Result
	Config rse.Config `json:"config"`
	Cached bool       `json:"cached"`
}

// RerankRequest re-scores a batch and keeps the TopK best passages per query.
type RerankRequest struct {
	passage.Batch
	TopK int `json:"top_k"`
	// Reranker selects the backend; empty means the server default.
	Reranker string `json:"reranker,omitempty"`
}

// RerankResponse carries the reranked batch.
type RerankResponse struct {
	passage.Result
	Cached bool `json:"cached"`
}

// PrecisionRequest asks an LLM judge how many retrieved contexts are relevant per query.
type PrecisionRequest struct {
	Queries           []string   `json:"queries"`
	RetrievedContents [][]string `json:"retrieved_contents"`
}

// PrecisionResponse holds the per-query precision and its mean.
type PrecisionResponse struct {
	Scores []float64 `json:"scores"`
	Mean   float64   `json:"mean"`
	Cached bool      `json:"cached"`
}

// RetrieveRequest searches the vector store for each query and filters the hits.
type RetrieveRequest struct {
	Queries []string `json:"queries"`
	// TopK is the number of chunks retrieved per query before filtering.
	TopK       int            `json:"top_k"`
	MinScore   float32        `json:"min_score,omitempty"`
	Collection string         `json:"collection,omitempty"`
	Options    *rse.Overrides `json:"options,omitempty"`
}

// RetrieveResponse carries the retrieved batch alongside its filtered form.
type RetrieveResponse struct {
	Retrieved passage.Batch  `json:"retrieved"`
	Filtered  passage.Result `json:"filtered"`
	Config    rse.Config     `json:"config"`
}
