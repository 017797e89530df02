package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Session Attendance API",
        "description": "Class-session scheduling and attendance integrity engine",
        "version": "1.0.0"
    },
    "basePath": "/",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Timetables", "description": "Free-text timetable upload and lookup"},
        {"name": "Attendance", "description": "Session resolution and the attendance ledger"},
        {"name": "Locking", "description": "Lock state machine and admin overrides"},
        {"name": "Corrections", "description": "Student correction workflow"},
        {"name": "Substitutes", "description": "Per-date substitute teacher assignments"},
        {"name": "Audit", "description": "Read-only audit trails"}
    ],
    "paths": {
        "/health": {
            "get": {
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/ready": {
            "get": {
                "summary": "Readiness check",
                "responses": {
                    "200": {"description": "Ready"},
                    "503": {"description": "Degraded"}
                }
            }
        },
        "/timetables": {
            "get": {
                "tags": ["Timetables"],
                "summary": "List sections with a timetable",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/timetables/{section}": {
            "get": {
                "tags": ["Timetables"],
                "summary": "Get a section's timetable",
                "parameters": [
                    {"name": "section", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "No timetable for section"}
                }
            }
        },
        "/timetables/upload": {
            "post": {
                "tags": ["Timetables"],
                "summary": "Upload timetable text",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UploadTimetableRequest"}}
                ],
                "responses": {
                    "200": {"description": "Stored, possibly with warnings", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "Rejected with a batch error report", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/sessions/current": {
            "get": {
                "tags": ["Attendance"],
                "summary": "Resolve the session actionable right now",
                "parameters": [
                    {"name": "section", "in": "query", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "No active or grace session"}
                }
            }
        },
        "/attendance": {
            "get": {
                "tags": ["Attendance"],
                "summary": "List a section's sessions for a date",
                "parameters": [
                    {"name": "section", "in": "query", "required": true, "type": "string"},
                    {"name": "date", "in": "query", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Attendance"],
                "summary": "Record attendance for the current session",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/MarkSessionRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Session already recorded"},
                    "422": {"description": "No session open for marking"}
                }
            }
        },
        "/attendance/{id}": {
            "get": {
                "tags": ["Attendance"],
                "summary": "Get one attendance session",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/attendance/{id}/lock": {
            "post": {
                "tags": ["Locking"],
                "summary": "Lock an attendance session",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/attendance/{id}/unlock": {
            "post": {
                "tags": ["Locking"],
                "summary": "Unlock an attendance session",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UnlockRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Session is not locked"}
                }
            }
        },
        "/attendance/{id}/override": {
            "post": {
                "tags": ["Locking"],
                "summary": "Override marks on a session",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/OverrideRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/attendance/retroactive": {
            "post": {
                "tags": ["Locking"],
                "summary": "Record a session after its window closed",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RetroactivePayload"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/attendance/sweep": {
            "post": {
                "tags": ["Locking"],
                "summary": "Run the end-of-day lock sweep now",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/students/{id}/attendance": {
            "get": {
                "tags": ["Attendance"],
                "summary": "A student's attendance history",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "subject", "in": "query", "type": "string"},
                    {"name": "from", "in": "query", "type": "string"},
                    {"name": "to", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/students/{id}/attendance/summary": {
            "get": {
                "tags": ["Attendance"],
                "summary": "A student's attendance percentage",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "subject", "in": "query", "type": "string"},
                    {"name": "from", "in": "query", "type": "string"},
                    {"name": "to", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/corrections": {
            "get": {
                "tags": ["Corrections"],
                "summary": "List correction requests",
                "parameters": [
                    {"name": "student", "in": "query", "type": "string"},
                    {"name": "session", "in": "query", "type": "string"},
                    {"name": "status", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Corrections"],
                "summary": "Submit a correction request",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SubmitCorrectionRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "A pending request already exists"}
                }
            }
        },
        "/corrections/{id}": {
            "get": {
                "tags": ["Corrections"],
                "summary": "Get one correction request",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/corrections/{id}/review": {
            "post": {
                "tags": ["Corrections"],
                "summary": "Approve or reject a correction request",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ReviewDecision"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Already reviewed"}
                }
            }
        },
        "/substitutes": {
            "get": {
                "tags": ["Substitutes"],
                "summary": "List assignments for a date",
                "parameters": [
                    {"name": "date", "in": "query", "required": true, "type": "string"},
                    {"name": "section", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Substitutes"],
                "summary": "Assign a substitute teacher to a slot",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/AssignSubstitutePayload"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/substitutes/{id}": {
            "get": {
                "tags": ["Substitutes"],
                "summary": "Get one assignment",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/substitutes/{id}/status": {
            "put": {
                "tags": ["Substitutes"],
                "summary": "Update an assignment's status",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpdateSubstituteStatusRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/audit/{type}/{id}": {
            "get": {
                "tags": ["Audit"],
                "summary": "Audit trail for one entity",
                "parameters": [
                    {"name": "type", "in": "path", "required": true, "type": "string"},
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/audit/actors/{id}": {
            "get": {
                "tags": ["Audit"],
                "summary": "Audit trail for one actor",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/audit/sections/{section}": {
            "get": {
                "tags": ["Audit"],
                "summary": "Audit trail for one section over a date range",
                "parameters": [
                    {"name": "section", "in": "path", "required": true, "type": "string"},
                    {"name": "from", "in": "query", "required": true, "type": "string"},
                    {"name": "to", "in": "query", "required": true, "type": "string"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "UploadTimetableRequest": {
            "type": "object",
            "properties": {
                "text": {"type": "string"}
            },
            "required": ["text"]
        },
        "MarkSessionRequest": {
            "type": "object",
            "properties": {
                "section": {"type": "string"},
                "students": {"type": "array", "items": {"type": "string"}},
                "statuses": {"type": "object", "additionalProperties": {"type": "string", "enum": ["present", "absent", "late"]}}
            },
            "required": ["section", "students"]
        },
        "UnlockRequest": {
            "type": "object",
            "properties": {
                "reason": {"type": "string"}
            },
            "required": ["reason"]
        },
        "OverrideRequest": {
            "type": "object",
            "properties": {
                "statuses": {"type": "object", "additionalProperties": {"type": "string", "enum": ["present", "absent", "late"]}},
                "reason": {"type": "string"}
            },
            "required": ["statuses", "reason"]
        },
        "RetroactivePayload": {
            "type": "object",
            "properties": {
                "section": {"type": "string"},
                "date": {"type": "string"},
                "time_label": {"type": "string"},
                "students": {"type": "array", "items": {"type": "string"}},
                "statuses": {"type": "object", "additionalProperties": {"type": "string"}},
                "reason": {"type": "string"}
            },
            "required": ["section", "date", "time_label", "students", "reason"]
        },
        "SubmitCorrectionRequest": {
            "type": "object",
            "properties": {
                "session_id": {"type": "string"},
                "requested_status": {"type": "string", "enum": ["present", "absent", "late"]},
                "justification": {"type": "string"},
                "proof_url": {"type": "string"}
            },
            "required": ["session_id", "requested_status", "justification"]
        },
        "ReviewDecision": {
            "type": "object",
            "properties": {
                "approve": {"type": "boolean"},
                "comments": {"type": "string"}
            },
            "required": ["approve"]
        },
        "AssignSubstitutePayload": {
            "type": "object",
            "properties": {
                "section": {"type": "string"},
                "date": {"type": "string"},
                "time_label": {"type": "string"},
                "substitute_teacher_id": {"type": "string"},
                "reason": {"type": "string"}
            },
            "required": ["section", "date", "time_label", "substitute_teacher_id", "reason"]
        },
        "UpdateSubstituteStatusRequest": {
            "type": "object",
            "properties": {
                "status": {"type": "string", "enum": ["PENDING", "CONFIRMED", "COMPLETED", "CANCELLED"]}
            },
            "required": ["status"]
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "warnings": {"type": "array", "items": {"type": "string"}},
                "pagination": {"$ref": "#/definitions/Pagination"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
