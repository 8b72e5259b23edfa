package routes

import (
	"net/http"

	"github.com/spacebio/knowledge-engine/backend/internal/server/middleware"
	"github.com/spacebio/knowledge-engine/backend/pkg/common"

	"github.com/labstack/echo/v4"
)

func ExtractKeywordsHandler(c echo.Context) error {
	type keywordsRequest struct {
		Query string `json:"query" validate:"required"`
	}

	type responseData struct {
		Keywords []string `json:"keywords"`
	}

	data := new(keywordsRequest)
	if err := c.Bind(data); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := c.Validate(data); err != nil {
		return badRequest(c, "query is required")
	}

	g := c.(*middleware.AppContext).App.Graph
	keywords, err := g.ExtractKeywords(c.Request().Context(), data.Query)
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, responseData{Keywords: keywords.Sorted()})
}

func SearchPublicationsHandler(c echo.Context) error {
	type searchRequest struct {
		Query string `json:"query" validate:"required"`
		Limit int    `json:"limit" validate:"omitempty,min=1,max=100"`
	}

	type responseData struct {
		Keywords     []string             `json:"keywords"`
		Publications []common.Publication `json:"publications"`
	}

	data := new(searchRequest)
	if err := c.Bind(data); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := c.Validate(data); err != nil {
		return badRequest(c, "query is required and limit must be between 1 and 100")
	}

	g := c.(*middleware.AppContext).App.Graph
	keywords, pubs, err := g.SearchPublications(c.Request().Context(), data.Query, data.Limit)
	if err != nil {
		return handleError(c, err)
	}

	resp := responseData{Keywords: []string{}, Publications: pubs}
	if keywords != nil {
		resp.Keywords = keywords.Sorted()
	}
	if resp.Publications == nil {
		resp.Publications = []common.Publication{}
	}
	return c.JSON(http.StatusOK, resp)
}
