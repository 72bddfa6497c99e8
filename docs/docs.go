// Package docs registers the OpenAPI description served at /swagger.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/healthz": {
            "get": {
                "produces": ["application/json"],
                "tags": ["health"],
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "additionalProperties": true}},
                    "503": {"description": "Service Unavailable", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        },
        "/api/v1/ws": {
            "get": {
                "description": "Upgrade an authenticated request to the realtime event stream. The access token is read from the token query parameter or the Authorization header.",
                "tags": ["websocket"],
                "summary": "WebSocket connection",
                "parameters": [
                    {"type": "string", "description": "Access token", "name": "token", "in": "query"},
                    {"type": "string", "description": "Bearer access token", "name": "Authorization", "in": "header"}
                ],
                "responses": {
                    "101": {"description": "Switching Protocols - WebSocket connection established"},
                    "401": {"description": "Missing, expired or non-access credential", "schema": {"$ref": "#/definitions/response.ErrorResponse"}},
                    "429": {"description": "Too many handshakes from this address", "schema": {"$ref": "#/definitions/response.ErrorResponse"}}
                }
            }
        },
        "/internal/v1/events": {
            "post": {
                "security": [{"InternalKey": []}],
                "description": "Hand a command to the realtime core. Acceptance does not mean any client received it.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["internal"],
                "summary": "Publish a realtime event",
                "parameters": [
                    {"description": "Command", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ingest.Command"}}
                ],
                "responses": {
                    "202": {"description": "Command accepted", "schema": {"type": "object", "additionalProperties": {"type": "string"}}},
                    "400": {"description": "Invalid or unknown command", "schema": {"$ref": "#/definitions/response.ErrorResponse"}},
                    "403": {"description": "Missing or invalid internal key", "schema": {"$ref": "#/definitions/response.ErrorResponse"}},
                    "503": {"description": "Access cache unavailable", "schema": {"$ref": "#/definitions/response.ErrorResponse"}}
                }
            }
        },
        "/internal/v1/presence": {
            "get": {
                "security": [{"InternalKey": []}],
                "description": "Connections admitted by this instance, and the users online anywhere when presence is mirrored.",
                "produces": ["application/json"],
                "tags": ["internal"],
                "summary": "List connections",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.PresenceListResponse"}}
                }
            }
        },
        "/internal/v1/presence/{userId}": {
            "get": {
                "security": [{"InternalKey": []}],
                "produces": ["application/json"],
                "tags": ["internal"],
                "summary": "Presence of one user",
                "parameters": [
                    {"type": "string", "description": "User ID", "name": "userId", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.UserPresenceResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/response.ErrorResponse"}}
                }
            },
            "delete": {
                "security": [{"InternalKey": []}],
                "description": "Close every connection of the user on this instance.",
                "produces": ["application/json"],
                "tags": ["internal"],
                "summary": "Force disconnect a user",
                "parameters": [
                    {"type": "string", "description": "User ID", "name": "userId", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "Number of closed connections", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        }
    },
    "definitions": {
        "ingest.Command": {
            "type": "object",
            "required": ["type"],
            "properties": {
                "type": {"type": "string", "example": "notify-user"},
                "userId": {"type": "string", "example": "42"},
                "role": {"type": "string", "example": "GEOMETRA"},
                "payload": {"type": "object"}
            }
        },
        "response.ErrorResponse": {
            "type": "object",
            "properties": {
                "code": {"type": "integer", "example": 4001},
                "message": {"type": "string", "example": "invalid command"},
                "detail": {"type": "string", "example": "notify-user requires userId"}
            }
        },
        "ws.ConnectionInfo": {
            "type": "object",
            "properties": {
                "connectionId": {"type": "string"},
                "userId": {"type": "string"},
                "email": {"type": "string"},
                "role": {"type": "string"},
                "connectedAt": {"type": "string"},
                "topics": {"type": "array", "items": {"type": "string"}}
            }
        },
        "handlers.PresenceListResponse": {
            "type": "object",
            "properties": {
                "count": {"type": "integer", "example": 2},
                "users": {"type": "array", "items": {"type": "string"}},
                "connections": {"type": "array", "items": {"$ref": "#/definitions/ws.ConnectionInfo"}},
                "clusterUsers": {"type": "array", "items": {"type": "string"}}
            }
        },
        "handlers.UserPresenceResponse": {
            "type": "object",
            "properties": {
                "userId": {"type": "string", "example": "42"},
                "connected": {"type": "boolean", "example": true},
                "connections": {"type": "array", "items": {"$ref": "#/definitions/ws.ConnectionInfo"}},
                "clusterOnline": {"type": "boolean"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {"description": "Type \"Bearer\" followed by a space and JWT token.", "type": "apiKey", "name": "Authorization", "in": "header"},
        "InternalKey": {"type": "apiKey", "name": "X-Internal-Key", "in": "header"}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/",
	Schemes:          []string{"http", "https"},
	Title:            "Office Realtime API",
	Description:      "Authenticated WebSocket event stream and internal producer API of the office backend",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
