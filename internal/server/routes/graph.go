package routes

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/spacebio/knowledge-engine/backend/internal/server/middleware"

	"github.com/labstack/echo/v4"
)

// GetPublicationSubgraphHandler serves /graph/publication/<key or DOI> and
// /graph/publication?doi=<DOI>. DOIs contain slashes, so the path form takes
// the rest of the path.
func GetPublicationSubgraphHandler(c echo.Context) error {
	id := c.QueryParam("doi")
	if id == "" {
		raw := c.Param("*")
		unescaped, err := url.PathUnescape(raw)
		if err != nil {
			return badRequest(c, "invalid publication id")
		}
		id = unescaped
	}
	if strings.TrimSpace(id) == "" {
		return badRequest(c, "publication key or doi is required")
	}

	g := c.(*middleware.AppContext).App.Graph
	sg, err := g.SubgraphForPublication(c.Request().Context(), id)
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, sg)
}

func GetGraphStatsHandler(c echo.Context) error {
	g := c.(*middleware.AppContext).App.Graph
	stats, err := g.Stats(c.Request().Context())
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, stats)
}
