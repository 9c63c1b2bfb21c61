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
        "/autonomous/chat": {"post": {"tags": ["autonomous"], "summary": "Start an autonomous task", "parameters": [{"in": "body", "name": "payload", "required": true, "schema": {"$ref": "#/definitions/handler.AutonomousChatReq"}}], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/serializer.Response"}}}}},
        "/autonomous/execute/{task_id}": {"post": {"tags": ["autonomous"], "summary": "Execute a task", "parameters": [{"in": "path", "name": "task_id", "type": "string", "required": true}], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/serializer.Response"}}, "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/serializer.Response"}}, "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/serializer.Response"}}}}},
        "/autonomous/status/{task_id}": {"get": {"tags": ["autonomous"], "summary": "Get task status", "parameters": [{"in": "path", "name": "task_id", "type": "string", "required": true}], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/serializer.Response"}}, "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/serializer.Response"}}}}},
        "/autonomous/tasks": {"get": {"tags": ["autonomous"], "summary": "List tasks", "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/serializer.Response"}}}}},
        "/autonomous/analyze": {"post": {"tags": ["autonomous"], "summary": "Analyze intent", "parameters": [{"in": "body", "name": "payload", "required": true, "schema": {"$ref": "#/definitions/handler.AutonomousChatReq"}}], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/serializer.Response"}}}}},
        "/autonomous/memory": {"post": {"tags": ["autonomous"], "summary": "Store a memory entry", "parameters": [{"in": "body", "name": "payload", "required": true, "schema": {"$ref": "#/definitions/handler.RememberReq"}}], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/serializer.Response"}}}}},
        "/autonomous/memory/{key}": {"get": {"tags": ["autonomous"], "summary": "Read a memory entry", "parameters": [{"in": "path", "name": "key", "type": "string", "required": true}], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/serializer.Response"}}, "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/serializer.Response"}}}}},
        "/chat/modes/session": {"post": {"tags": ["chat-modes"], "summary": "Create chat session", "parameters": [{"in": "body", "name": "payload", "required": true, "schema": {"$ref": "#/definitions/handler.CreateModeSessionReq"}}], "responses": {"201": {"description": "Created", "schema": {"$ref": "#/definitions/serializer.Response"}}}}},
        "/chat/modes/session/{session_id}": {
            "get": {"tags": ["chat-modes"], "summary": "Get chat session info", "parameters": [{"in": "path", "name": "session_id", "type": "string", "required": true}], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/serializer.Response"}}, "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/serializer.Response"}}}},
            "delete": {"tags": ["chat-modes"], "summary": "Delete chat session", "parameters": [{"in": "path", "name": "session_id", "type": "string", "required": true}], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/serializer.Response"}}, "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/serializer.Response"}}}}
        },
        "/chat/modes/sessions": {"get": {"tags": ["chat-modes"], "summary": "List chat sessions", "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/serializer.Response"}}}}},
        "/chat/modes/message": {"post": {"tags": ["chat-modes"], "summary": "Send a message to a chat session", "parameters": [{"in": "body", "name": "payload", "required": true, "schema": {"$ref": "#/definitions/handler.SendModeMessageReq"}}], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/serializer.Response"}}, "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/serializer.Response"}}}}},
        "/chat/modes/switch": {"post": {"tags": ["chat-modes"], "summary": "Switch session mode", "parameters": [{"in": "body", "name": "payload", "required": true, "schema": {"$ref": "#/definitions/handler.SwitchModeReq"}}], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/serializer.Response"}}}}},
        "/chat/global/register": {"post": {"tags": ["global-chat"], "summary": "Register chat user", "parameters": [{"in": "body", "name": "payload", "required": true, "schema": {"$ref": "#/definitions/handler.RegisterUserReq"}}], "responses": {"201": {"description": "Created", "schema": {"$ref": "#/definitions/serializer.Response"}}, "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/serializer.Response"}}}}},
        "/chat/global/channels": {"get": {"tags": ["global-chat"], "summary": "List channels visible to a user", "parameters": [{"in": "query", "name": "user_id", "type": "string"}], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/serializer.Response"}}}}},
        "/chat/global/messages/{channel_id}": {"get": {"tags": ["global-chat"], "summary": "Channel history", "parameters": [{"in": "path", "name": "channel_id", "type": "string", "required": true}, {"in": "query", "name": "limit", "type": "integer"}, {"in": "query", "name": "before", "type": "string"}], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/serializer.Response"}}, "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/serializer.Response"}}}}},
        "/chat/global/send": {"post": {"tags": ["global-chat"], "summary": "Send a channel message", "parameters": [{"in": "body", "name": "payload", "required": true, "schema": {"$ref": "#/definitions/handler.SendChatReq"}}], "responses": {"201": {"description": "Created", "schema": {"$ref": "#/definitions/serializer.Response"}}, "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/serializer.Response"}}, "429": {"description": "Too Many Requests", "schema": {"$ref": "#/definitions/serializer.Response"}}}}},
        "/chat/global/join": {"post": {"tags": ["global-chat"], "summary": "Join a channel", "parameters": [{"in": "body", "name": "payload", "required": true, "schema": {"$ref": "#/definitions/handler.ChannelMembershipReq"}}], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/serializer.Response"}}, "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/serializer.Response"}}}}},
        "/chat/global/leave": {"post": {"tags": ["global-chat"], "summary": "Leave a channel", "parameters": [{"in": "body", "name": "payload", "required": true, "schema": {"$ref": "#/definitions/handler.ChannelMembershipReq"}}], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/serializer.Response"}}}}},
        "/chat/global/reaction": {"post": {"tags": ["global-chat"], "summary": "React to a message", "parameters": [{"in": "body", "name": "payload", "required": true, "schema": {"$ref": "#/definitions/handler.ReactionReq"}}], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/serializer.Response"}}, "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/serializer.Response"}}}}},
        "/chat/global/online": {"get": {"tags": ["global-chat"], "summary": "Online users", "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/serializer.Response"}}}}},
        "/chat/global/stats": {"get": {"tags": ["global-chat"], "summary": "Chat statistics", "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/serializer.Response"}}}}},
        "/chat/global/users/{user_id}/role": {"put": {"security": [{"BearerAuth": []}], "tags": ["global-chat"], "summary": "Change a user's role", "parameters": [{"in": "path", "name": "user_id", "type": "string", "required": true}, {"in": "body", "name": "payload", "required": true, "schema": {"$ref": "#/definitions/handler.SetRoleReq"}}], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/serializer.Response"}}, "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/serializer.Response"}}}}},
        "/chat/global/stream": {"get": {"tags": ["global-chat"], "summary": "Event stream", "produces": ["text/event-stream"], "parameters": [{"in": "query", "name": "user_id", "type": "string", "required": true}], "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/serializer.Response"}}}}}
    },
    "definitions": {
        "serializer.Response": {"type": "object", "properties": {"code": {"type": "integer"}, "data": {}, "msg": {"type": "string"}, "error": {"type": "string"}}},
        "handler.AutonomousChatReq": {"type": "object", "required": ["message"], "properties": {"message": {"type": "string", "example": "Build a landing page for my coffee shop"}}},
        "handler.RememberReq": {"type": "object", "required": ["key"], "properties": {"key": {"type": "string", "example": "favorite_color"}, "value": {}}},
        "handler.CreateModeSessionReq": {"type": "object", "properties": {"mode": {"type": "string", "example": "adaptive"}, "user_id": {"type": "string"}}},
        "handler.SendModeMessageReq": {"type": "object", "required": ["session_id", "message"], "properties": {"session_id": {"type": "string"}, "message": {"type": "string"}, "mode": {"type": "string", "example": "agent"}}},
        "handler.SwitchModeReq": {"type": "object", "required": ["session_id", "mode"], "properties": {"session_id": {"type": "string"}, "mode": {"type": "string", "example": "chat"}}},
        "handler.RegisterUserReq": {"type": "object", "required": ["username"], "properties": {"username": {"type": "string", "example": "alice"}, "display_name": {"type": "string"}, "role": {"type": "string", "example": "user"}}},
        "handler.SendChatReq": {"type": "object", "required": ["user_id", "channel_id", "content"], "properties": {"user_id": {"type": "string"}, "channel_id": {"type": "string", "example": "general"}, "content": {"type": "string"}, "message_type": {"type": "string", "example": "text"}, "reply_to": {"type": "string"}, "attachments": {"type": "array", "items": {"type": "string"}}}},
        "handler.ChannelMembershipReq": {"type": "object", "required": ["user_id", "channel_id"], "properties": {"user_id": {"type": "string"}, "channel_id": {"type": "string"}, "handle": {"type": "string"}}},
        "handler.ReactionReq": {"type": "object", "required": ["user_id", "message_id", "emoji"], "properties": {"user_id": {"type": "string"}, "message_id": {"type": "string"}, "emoji": {"type": "string"}}},
        "handler.SetRoleReq": {"type": "object", "required": ["role"], "properties": {"role": {"type": "string", "example": "moderator"}}}
    },
    "securityDefinitions": {
        "BearerAuth": {"description": "Admin bearer token (e.g. \"Bearer vadm-xxxx\")", "type": "apiKey", "name": "Authorization", "in": "header"}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{"http", "https"},
	Title:            "Valis API",
	Description:      "Autonomous tasks, mode-routed chat sessions and the global chat.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
