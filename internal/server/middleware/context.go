package middleware

import (
	"github.com/spacebio/knowledge-engine/backend/internal/ingest"
	"github.com/spacebio/knowledge-engine/backend/internal/queue"
	"github.com/spacebio/knowledge-engine/backend/pkg/graph"
	"github.com/spacebio/knowledge-engine/backend/pkg/query"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

type AppUser struct {
	UserID      string
	Role        string
	Permissions []string
}

// KeySource resolves the verification key of a JWT. keyfunc.Keyfunc
// satisfies it.
type KeySource interface {
	Keyfunc(token *jwt.Token) (any, error)
}

// App holds the services handlers work with. Query is nil when no AI
// adapter is configured; Queue is nil when jobs run in-process.
type App struct {
	Graph        *graph.GraphClient
	Query        *query.QueryClient
	Runner       *ingest.Runner
	Queue        queue.Channel
	Key          KeySource
	MasterAPIKey string
	// ManifestPath is ingested when an ingest request names no manifest.
	ManifestPath string
}

type AppContext struct {
	echo.Context
	App  *App
	User *AppUser
}

func AppContextMiddleware(app *App) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cc := &AppContext{c, app, nil}
			return next(cc)
		}
	}
}
