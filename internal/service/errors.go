package service

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/knoguchi/rse/internal/evaluate"
	"github.com/knoguchi/rse/internal/llm"
	"github.com/knoguchi/rse/internal/passage"
	"github.com/knoguchi/rse/internal/reranker"
	"github.com/knoguchi/rse/internal/rse"
)

// toStatus translates package errors into gRPC statuses. Errors that already carry a status
// pass through unchanged.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	var statusErr *reranker.StatusError
	var llmStatusErr *llm.StatusError
	switch {
	case errors.Is(err, passage.ErrInvalidBatch),
		errors.Is(err, rse.ErrInvalidConfig),
		errors.Is(err, reranker.ErrInvalidTopK),
		errors.Is(err, evaluate.ErrMisalignedInput):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, reranker.ErrMissingCredentials):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.As(err, &statusErr), errors.As(err, &llmStatusErr):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
