package routes

import (
	"context"
	"errors"
	"net/http"

	"github.com/spacebio/knowledge-engine/backend/pkg/ai"
	"github.com/spacebio/knowledge-engine/backend/pkg/common"
	"github.com/spacebio/knowledge-engine/backend/pkg/leaselock"
	"github.com/spacebio/knowledge-engine/backend/pkg/logger"
	"github.com/spacebio/knowledge-engine/backend/pkg/query"

	"github.com/labstack/echo/v4"
)

// Error kinds returned in the "error" field.
const (
	KindBadRequest       = "bad_request"
	KindNotFound         = "not_found"
	KindStoreUnavailable = "store_unavailable"
	KindAIUnavailable    = "ai_unavailable"
	KindRateLimited      = "rate_limited"
	KindPaymentRequired  = "payment_required"
	KindBusy             = "busy"
	KindInternal         = "internal"
)

type ErrorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail"`
}

func errorJSON(c echo.Context, status int, kind, detail string) error {
	return c.JSON(status, ErrorResponse{Error: kind, Detail: detail})
}

func badRequest(c echo.Context, detail string) error {
	return errorJSON(c, http.StatusBadRequest, KindBadRequest, detail)
}

// classify maps an error onto its HTTP status and kind. Internal errors
// get a generic detail so no internals leak.
func classify(err error) (int, string, string) {
	switch {
	case errors.Is(err, common.ErrNotFound):
		return http.StatusNotFound, KindNotFound, err.Error()
	case errors.Is(err, common.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, KindStoreUnavailable, "graph store unavailable, try again later"
	case errors.Is(err, ai.ErrRateLimited):
		return http.StatusTooManyRequests, KindRateLimited, "request limit exceeded, try again later"
	case errors.Is(err, ai.ErrPaymentRequired):
		return http.StatusPaymentRequired, KindPaymentRequired, "insufficient credits for the language model"
	case errors.Is(err, query.ErrEmptyQuestion):
		return http.StatusBadRequest, KindBadRequest, err.Error()
	case errors.Is(err, leaselock.ErrBusy):
		return http.StatusConflict, KindBusy, "a graph rebuild is already running"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, KindInternal, "request timed out"
	}
	return http.StatusInternalServerError, KindInternal, "internal server error"
}

func handleError(c echo.Context, err error) error {
	status, kind, detail := classify(err)
	if status >= http.StatusInternalServerError {
		logger.Error("[Server] Request failed", "path", c.Path(), "err", err)
	} else {
		logger.Debug("[Server] Request rejected", "path", c.Path(), "status", status, "err", err)
	}
	return errorJSON(c, status, kind, detail)
}
