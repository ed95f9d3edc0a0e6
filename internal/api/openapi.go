package api

import (
	"net/http"

	"github.com/mattjoyce/taskgate/internal/task"
)

// buildOpenAPIDoc returns an OpenAPI 3.1 document for the task API. The kind
// enum lists every task type the classifier may produce.
func buildOpenAPIDoc(kinds []task.Kind) map[string]any {
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}

	errorResponse := func(desc string) map[string]any {
		return map[string]any{
			"description": desc,
			"content": map[string]any{
				"application/json": map[string]any{
					"schema": map[string]any{"$ref": "#/components/schemas/Error"},
				},
			},
		}
	}
	secured := []any{map[string]any{"BearerAuth": []string{}}}
	pathParam := map[string]any{"name": "path", "in": "query", "required": true, "schema": map[string]any{"type": "string"}}

	return map[string]any{
		"openapi": "3.1.0",
		"info": map[string]any{
			"title":   "taskgate",
			"version": "1.0",
		},
		"paths": map[string]any{
			"/run": map[string]any{
				"post": map[string]any{
					"operationId": "run",
					"summary":     "Classify and execute a plain-English task",
					"parameters": []any{
						map[string]any{"name": "task", "in": "query", "schema": map[string]any{"type": "string"}},
					},
					"requestBody": map[string]any{
						"required": false,
						"content":  map[string]any{"text/plain": map[string]any{"schema": map[string]any{"type": "string"}}},
					},
					"responses": map[string]any{
						"200": map[string]any{"description": "Task succeeded"},
						"400": errorResponse("Validation failure or unknown task type"),
						"408": errorResponse("Deadline elapsed"),
						"500": errorResponse("Handler failure"),
					},
					"security": secured,
				},
			},
			"/read": map[string]any{
				"get": map[string]any{
					"operationId": "read",
					"summary":     "Read a file inside the sandbox",
					"parameters":  []any{pathParam},
					"responses": map[string]any{
						"200": map[string]any{"description": "File contents", "content": map[string]any{"text/plain": map[string]any{}}},
						"403": errorResponse("Path outside the sandbox"),
						"404": errorResponse("File not found"),
					},
					"security": secured,
				},
			},
			"/filter-csv": map[string]any{
				"get": map[string]any{
					"operationId": "filterCSV",
					"summary":     "Rows of a CSV file whose column equals value",
					"parameters": []any{
						pathParam,
						map[string]any{"name": "column", "in": "query", "required": true, "schema": map[string]any{"type": "string"}},
						map[string]any{"name": "value", "in": "query", "required": true, "schema": map[string]any{"type": "string"}},
					},
					"responses": map[string]any{
						"200": map[string]any{"description": "Matching rows"},
						"400": errorResponse("Missing parameter or unknown column"),
						"403": errorResponse("Path outside the sandbox"),
						"404": errorResponse("File not found"),
					},
					"security": secured,
				},
			},
		},
		"components": map[string]any{
			"schemas": map[string]any{
				"Error": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"error": map[string]any{"type": "string"},
						"code":  map[string]any{"type": "string"},
					},
				},
				"TaskKind": map[string]any{"type": "string", "enum": names},
			},
			"securitySchemes": map[string]any{
				"BearerAuth": map[string]any{
					"type":   "http",
					"scheme": "bearer",
				},
			},
		},
	}
}

func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, buildOpenAPIDoc(task.Kinds()))
}
