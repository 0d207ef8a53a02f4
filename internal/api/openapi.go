package api

import (
	"net/http"
	"strconv"
)

// handleOpenAPI handles GET /openapi.json (no auth).
func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, buildOpenAPIDoc())
}

// buildOpenAPIDoc returns an OpenAPI 3.1 document for the API routes.
func buildOpenAPIDoc() map[string]any {
	fenBody := map[string]any{
		"required": true,
		"content": map[string]any{
			"application/json": map[string]any{
				"schema": map[string]any{
					"type":     "object",
					"required": []string{"fen"},
					"properties": map[string]any{
						"fen": map[string]any{"type": "string", "description": "Position in FEN"},
					},
				},
			},
		},
	}
	secured := []any{map[string]any{"BearerAuth": []string{}}}

	op := func(id, summary string, extra map[string]any, codes ...int) map[string]any {
		responses := map[string]any{"200": map[string]any{"description": "OK"}}
		for _, c := range codes {
			responses[strconv.Itoa(c)] = map[string]any{"description": http.StatusText(c)}
		}
		o := map[string]any{
			"operationId": id,
			"summary":     summary,
			"responses":   responses,
		}
		for k, v := range extra {
			o[k] = v
		}
		return o
	}
	withBody := func(body map[string]any) map[string]any {
		return map[string]any{"requestBody": body, "security": secured}
	}
	auth := map[string]any{"security": secured}

	paths := map[string]any{
		"/healthz": map[string]any{
			"get": op("healthz", "Service and reader health", nil),
		},
		"/query": map[string]any{
			"post": op("query", "Book continuations of a position", withBody(fenBody), 400, 401, 403, 502, 503, 504),
		},
		"/assess": map[string]any{
			"post": op("assess", "Mainline and sidelines of a position", withBody(fenBody), 400, 401, 403, 502, 503, 504),
		},
		"/bestmove": map[string]any{
			"post": op("bestmove", "Most played continuation of a position", withBody(fenBody), 400, 401, 403, 404, 502),
		},
		"/books": map[string]any{
			"get": op("listBooks", "Configured books", auth, 401, 403),
		},
		"/books/current": map[string]any{
			"put": op("selectBook", "Switch the current book", withBody(map[string]any{
				"required": true,
				"content": map[string]any{
					"application/json": map[string]any{
						"schema": map[string]any{
							"type":       "object",
							"required":   []string{"name"},
							"properties": map[string]any{"name": map[string]any{"type": "string"}},
						},
					},
				},
			}), 400, 401, 403, 404, 502),
		},
		"/status": map[string]any{
			"get": op("status", "Current reader status", auth, 401, 403),
		},
		"/queries": map[string]any{
			"get": op("listQueries", "Recent lookups", auth, 400, 401, 403),
		},
		"/queries/{queryID}": map[string]any{
			"get": op("getQuery", "One logged lookup", auth, 401, 403, 404),
		},
		"/events": map[string]any{
			"get": op("events", "Server-sent event stream", map[string]any{
				"security": secured,
				"parameters": []any{
					queryParam("types", "Comma-separated event types; a trailing '.' matches a family"),
					queryParam("last_event_id", "Resume after this event id"),
				},
			}, 401, 403),
		},
	}

	return map[string]any{
		"openapi": "3.1.0",
		"info": map[string]any{
			"title":   "openbook",
			"version": "1.0",
		},
		"paths": paths,
		"components": map[string]any{
			"securitySchemes": map[string]any{
				"BearerAuth": map[string]any{
					"type":   "http",
					"scheme": "bearer",
				},
			},
		},
	}
}

func queryParam(name, description string) map[string]any {
	return map[string]any{
		"name":        name,
		"in":          "query",
		"required":    false,
		"description": description,
		"schema":      map[string]any{"type": "string"},
	}
}
