// Package docs registers the OpenAPI document served under /swagger.
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
        "/attribution/b2b/calculate": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["attribution"],
                "summary": "Attribute one opportunity across its touchpoints",
                "parameters": [
                    {"type": "string", "description": "Tenant whose model tables apply", "name": "X-Tenant-ID", "in": "header"},
                    {"description": "Opportunity, touchpoints and optional weights", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/AttributionRequest"}}
                ],
                "responses": {
                    "200": {"description": "Per-touchpoint credit"},
                    "400": {"description": "Invalid request", "schema": {"$ref": "#/definitions/Error"}},
                    "422": {"description": "Invalid factor weights", "schema": {"$ref": "#/definitions/Error"}}
                }
            }
        },
        "/attribution/b2b/batch": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["attribution"],
                "summary": "Attribute many opportunities, grouping touchpoints by account",
                "responses": {"200": {"description": "Results in opportunity order"}}
            }
        },
        "/attribution/b2b/channel-insights": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["insights"],
                "summary": "Rank channels by return on attributed value",
                "responses": {"200": {"description": "Ranked channels and recommendations"}}
            }
        },
        "/attribution/b2b/alignment-report": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["insights"],
                "summary": "Score sales and marketing alignment",
                "responses": {"200": {"description": "Alignment report"}}
            }
        },
        "/attribution/compare": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["attribution"],
                "summary": "Compare weighted attribution with rule-based models",
                "responses": {"200": {"description": "Credit per model"}}
            }
        },
        "/attribution/b2b/touchpoint-types": {
            "get": {
                "produces": ["application/json"],
                "tags": ["introspection"],
                "summary": "List touchpoint types with their weights",
                "responses": {"200": {"description": "Touchpoint catalog"}}
            }
        },
        "/attribution/b2b/model-info": {
            "get": {
                "produces": ["application/json"],
                "tags": ["introspection"],
                "summary": "Describe the model factors and default weights",
                "responses": {"200": {"description": "Model description"}}
            }
        },
        "/attribution/b2b/config": {
            "get": {
                "produces": ["application/json"],
                "tags": ["config"],
                "summary": "Read the tenant model configuration",
                "responses": {"200": {"description": "Model configuration"}}
            },
            "put": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["config"],
                "summary": "Replace the tenant model configuration",
                "security": [{"BearerAuth": []}],
                "responses": {"200": {"description": "Stored configuration"}, "400": {"description": "Missing tenant or invalid config", "schema": {"$ref": "#/definitions/Error"}}, "401": {"description": "Missing or invalid bearer token", "schema": {"$ref": "#/definitions/Error"}}, "403": {"description": "Token lacks the admin scope", "schema": {"$ref": "#/definitions/Error"}}}
            }
        },
        "/attribution/runs": {
            "get": {
                "produces": ["application/json"],
                "tags": ["history"],
                "summary": "List stored runs for the tenant",
                "parameters": [
                    {"type": "integer", "name": "limit", "in": "query"},
                    {"type": "integer", "name": "offset", "in": "query"}
                ],
                "responses": {"200": {"description": "Runs, newest first"}, "503": {"description": "History disabled", "schema": {"$ref": "#/definitions/Error"}}}
            }
        },
        "/attribution/runs/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["history"],
                "summary": "Fetch one stored run with its credits",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "Run"}, "404": {"description": "Unknown run", "schema": {"$ref": "#/definitions/Error"}}}
            }
        },
        "/attribution/channels/leaderboard": {
            "get": {
                "produces": ["application/json"],
                "tags": ["history"],
                "summary": "Channels ranked by total stored credit",
                "parameters": [{"type": "integer", "name": "limit", "in": "query"}],
                "responses": {"200": {"description": "Channel leaderboard"}}
            }
        },
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["ops"],
                "summary": "Service and dependency health",
                "responses": {"200": {"description": "Healthy"}, "503": {"description": "Degraded"}}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "definitions": {
        "AttributionRequest": {
            "type": "object",
            "required": ["opportunity", "touchpoints"],
            "properties": {
                "opportunity": {"type": "object"},
                "touchpoints": {"type": "array", "items": {"type": "object"}},
                "leads": {"type": "array", "items": {"type": "object"}},
                "weights": {"$ref": "#/definitions/FactorWeights"}
            }
        },
        "FactorWeights": {
            "type": "object",
            "properties": {
                "time_decay": {"type": "number"},
                "lead_quality": {"type": "number"},
                "account_based": {"type": "number"},
                "stage_progression": {"type": "number"},
                "velocity_bonus": {"type": "number"}
            }
        },
        "Error": {
            "type": "object",
            "properties": {
                "error": {"type": "string"},
                "message": {"type": "string"},
                "category": {"type": "string"},
                "request_id": {"type": "string"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "B2B Attribution API",
	Description:      "Multi-touch attribution of closed B2B opportunities.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
