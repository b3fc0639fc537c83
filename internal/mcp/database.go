// File: internal/mcp/database.go
package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-jsrecon/api/schemas"
)

const (
	defaultQueryLimit = 100
	maxQueryLimit     = 1000
)

// errInvalidQuery marks parameter errors that are the caller's fault.
var errInvalidQuery = errors.New("invalid query")

// QueryService validates endpoint queries and runs them against the store.
type QueryService struct {
	store EndpointStore
	log   *zap.Logger
}

// NewQueryService creates a new QueryService. A nil store yields a service
// whose queries fail.
func NewQueryService(store EndpointStore, logger *zap.Logger) *QueryService {
	if store == nil {
		logger.Warn("QueryService initialized without a store. Database operations will fail.")
	}
	return &QueryService{
		store: store,
		log:   logger.Named("mcp_query_service"),
	}
}

// QueryEndpoints returns the endpoints of one run, filtered and truncated per params.
func (s *QueryService) QueryEndpoints(ctx context.Context, params QueryParams) ([]schemas.Endpoint, error) {
	if s.store == nil {
		return nil, errors.New("database connection not available; configure database.url")
	}
	if strings.TrimSpace(params.RunID) == "" {
		return nil, fmt.Errorf("%w: run_id is required", errInvalidQuery)
	}

	var risk schemas.RiskLevel
	if params.Risk != "" {
		risk = schemas.RiskLevel(strings.ToUpper(params.Risk))
		if risk.Rank() == 0 {
			return nil, fmt.Errorf("%w: invalid risk level %s. Valid options: LOW, MEDIUM, HIGH", errInvalidQuery, params.Risk)
		}
	}

	limit := params.Limit
	switch {
	case limit < 0:
		return nil, fmt.Errorf("%w: limit must not be negative", errInvalidQuery)
	case limit == 0:
		limit = defaultQueryLimit
	case limit > maxQueryLimit:
		limit = maxQueryLimit
	}

	endpoints, err := s.store.GetEndpoints(ctx, params.RunID, risk)
	if err != nil {
		return nil, err
	}
	if len(endpoints) > limit {
		s.log.Debug("Truncating endpoint query", zap.Int("total", len(endpoints)), zap.Int("limit", limit))
		endpoints = endpoints[:limit]
	}
	return endpoints, nil
}
