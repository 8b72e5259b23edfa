package routes

import (
	"context"
	"net/http"

	"github.com/spacebio/knowledge-engine/backend/internal/server/middleware"
	"github.com/spacebio/knowledge-engine/backend/pkg/common"
	"github.com/spacebio/knowledge-engine/backend/pkg/graph"

	"github.com/labstack/echo/v4"
)

type topFunc func(g *graph.GraphClient, ctx context.Context, n int) ([]common.EntityCount, error)

// topHandler serves a ranking. n defaults to graph.DefaultTopN.
func topHandler(top topFunc) echo.HandlerFunc {
	type topParams struct {
		N int `query:"n" validate:"omitempty,min=1,max=100"`
	}

	type responseData struct {
		Items []common.EntityCount `json:"items"`
	}

	return func(c echo.Context) error {
		params := new(topParams)
		if err := c.Bind(params); err != nil {
			return badRequest(c, "n must be a number")
		}
		if err := c.Validate(params); err != nil {
			return badRequest(c, "n must be between 1 and 100")
		}

		g := c.(*middleware.AppContext).App.Graph
		items, err := top(g, c.Request().Context(), params.N)
		if err != nil {
			return handleError(c, err)
		}
		return c.JSON(http.StatusOK, responseData{Items: items})
	}
}

var (
	GetTopOrganizationsHandler = topHandler((*graph.GraphClient).TopOrganizations)
	GetTopAuthorsHandler       = topHandler((*graph.GraphClient).TopAuthors)
	GetTopLocationsHandler     = topHandler((*graph.GraphClient).TopLocations)
)
