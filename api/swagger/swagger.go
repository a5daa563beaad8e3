package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Studio Makeup API",
        "description": "Makeup-class availability, deadline and booking engine for recurring studio classes.",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    },
    "tags": [
        {
            "name": "Makeup",
            "description": "Calendars, bookable slots and deadlines"
        },
        {
            "name": "Reschedules",
            "description": "Moving fixed-class occurrences"
        },
        {
            "name": "Credits",
            "description": "Makeup credits and their usage ledger"
        },
        {
            "name": "Slots",
            "description": "Recurring slot catalog"
        },
        {
            "name": "Holidays",
            "description": "Studio closures"
        },
        {
            "name": "Enrollments",
            "description": "Fixed-class membership"
        },
        {
            "name": "Admin",
            "description": "Ledger diagnostics"
        }
    ],
    "paths": {
        "/makeup/calendar": {
            "get": {
                "tags": [
                    "Makeup"
                ],
                "summary": "Per-day eligibility grid for a student",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "student_id",
                        "in": "query",
                        "type": "string",
                        "required": false,
                        "description": "Student ID (defaults to the caller for students)"
                    },
                    {
                        "name": "from",
                        "in": "query",
                        "type": "string",
                        "required": false,
                        "description": "YYYY-MM-DD, defaults to today"
                    },
                    {
                        "name": "to",
                        "in": "query",
                        "type": "string",
                        "required": false,
                        "description": "YYYY-MM-DD"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/makeup/bookable-slots": {
            "get": {
                "tags": [
                    "Makeup"
                ],
                "summary": "List (date, slot) pairs with free seats",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "student_id",
                        "in": "query",
                        "type": "string",
                        "required": false,
                        "description": "Student ID (defaults to the caller for students)"
                    },
                    {
                        "name": "from",
                        "in": "query",
                        "type": "string",
                        "required": false,
                        "description": "YYYY-MM-DD, defaults to today"
                    },
                    {
                        "name": "to",
                        "in": "query",
                        "type": "string",
                        "required": false,
                        "description": "YYYY-MM-DD"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/makeup/absences/{id}": {
            "get": {
                "tags": [
                    "Makeup"
                ],
                "summary": "Get an absence with its repayment status",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "ID"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "404": {
                        "description": "NOT_FOUND",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/makeup/absences/{id}/deadline": {
            "get": {
                "tags": [
                    "Makeup"
                ],
                "summary": "Repayment deadline of an absence",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "ID"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "500": {
                        "description": "DEADLINE_UNREACHABLE",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/makeup/credits/{id}/deadline": {
            "get": {
                "tags": [
                    "Makeup"
                ],
                "summary": "Usage deadline of a makeup credit",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "ID"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "500": {
                        "description": "DEADLINE_UNREACHABLE",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/reschedules": {
            "post": {
                "tags": [
                    "Reschedules"
                ],
                "summary": "Request to move one occurrence of a fixed class",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/CreateRescheduleRequest"
                        }
                    }
                ],
                "responses": {
                    "201": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "409": {
                        "description": "SLOT_FULL or DUPLICATE_REQUEST",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "422": {
                        "description": "INVALID_DESTINATION",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/reschedules/{id}": {
            "get": {
                "tags": [
                    "Reschedules"
                ],
                "summary": "Get a reschedule request",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "ID"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            },
            "delete": {
                "tags": [
                    "Reschedules"
                ],
                "summary": "Delete a pending or rejected request",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "ID"
                    }
                ],
                "responses": {
                    "204": {
                        "description": "No Content"
                    },
                    "409": {
                        "description": "INVALID_TRANSITION",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/reschedules/{id}/approve": {
            "post": {
                "tags": [
                    "Reschedules"
                ],
                "summary": "Approve a pending request",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "ID"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "409": {
                        "description": "SLOT_FULL or INVALID_TRANSITION",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "422": {
                        "description": "INVALID_DESTINATION",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "description": "Staff only."
            }
        },
        "/reschedules/{id}/reject": {
            "post": {
                "tags": [
                    "Reschedules"
                ],
                "summary": "Reject a pending request",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "ID"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "409": {
                        "description": "INVALID_TRANSITION",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "description": "Staff only."
            }
        },
        "/reschedules/{id}/revert": {
            "post": {
                "tags": [
                    "Reschedules"
                ],
                "summary": "Return an approved or rejected request to pending",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "ID"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "409": {
                        "description": "INVALID_TRANSITION or DUPLICATE_REQUEST",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "description": "Staff only."
            }
        },
        "/credits": {
            "post": {
                "tags": [
                    "Credits"
                ],
                "summary": "Grant a makeup credit",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/GrantCreditRequest"
                        }
                    }
                ],
                "responses": {
                    "201": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "description": "Staff only."
            }
        },
        "/credits/{id}": {
            "get": {
                "tags": [
                    "Credits"
                ],
                "summary": "Get a makeup credit",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "ID"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            },
            "delete": {
                "tags": [
                    "Credits"
                ],
                "summary": "Delete a credit and its usage ledger",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "ID"
                    }
                ],
                "responses": {
                    "204": {
                        "description": "No Content"
                    }
                },
                "description": "Staff only."
            }
        },
        "/credits/{id}/usages": {
            "post": {
                "tags": [
                    "Credits"
                ],
                "summary": "Book an extra class against a credit",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "ID"
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/UseCreditRequest"
                        }
                    }
                ],
                "responses": {
                    "201": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "409": {
                        "description": "CREDIT_EXHAUSTED or SLOT_FULL",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "410": {
                        "description": "CREDIT_EXPIRED",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "422": {
                        "description": "INVALID_DESTINATION",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/slots": {
            "get": {
                "tags": [
                    "Slots"
                ],
                "summary": "List active slots",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "weekday",
                        "in": "query",
                        "type": "integer",
                        "required": false,
                        "description": "0 = Sunday"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/slots/{id}": {
            "delete": {
                "tags": [
                    "Slots"
                ],
                "summary": "Deactivate a slot",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "ID"
                    }
                ],
                "responses": {
                    "204": {
                        "description": "No Content"
                    }
                },
                "description": "Staff only."
            }
        },
        "/slots/{id}/occupancy": {
            "get": {
                "tags": [
                    "Slots"
                ],
                "summary": "Seat picture of a slot on a date",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "ID"
                    },
                    {
                        "name": "date",
                        "in": "query",
                        "type": "string",
                        "required": false,
                        "description": "YYYY-MM-DD, defaults to today"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/holidays": {
            "get": {
                "tags": [
                    "Holidays"
                ],
                "summary": "List holidays",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "from",
                        "in": "query",
                        "type": "string",
                        "required": false,
                        "description": ""
                    },
                    {
                        "name": "to",
                        "in": "query",
                        "type": "string",
                        "required": false,
                        "description": ""
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            },
            "post": {
                "tags": [
                    "Holidays"
                ],
                "summary": "Mark a date as closed",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/HolidayRequest"
                        }
                    }
                ],
                "responses": {
                    "201": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "description": "Staff only."
            }
        },
        "/holidays/{date}": {
            "delete": {
                "tags": [
                    "Holidays"
                ],
                "summary": "Reopen a closed date",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "date",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "YYYY-MM-DD"
                    }
                ],
                "responses": {
                    "204": {
                        "description": "No Content"
                    }
                },
                "description": "Staff only."
            }
        },
        "/enrollments": {
            "post": {
                "tags": [
                    "Enrollments"
                ],
                "summary": "Enroll a student in a recurring slot",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/EnrollRequest"
                        }
                    }
                ],
                "responses": {
                    "201": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "409": {
                        "description": "CONFLICT",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "description": "Staff only."
            }
        },
        "/admin/ledger/discrepancies": {
            "get": {
                "tags": [
                    "Admin"
                ],
                "summary": "Reconcile every credit counter against its usage ledger",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "description": "Staff only."
            }
        },
        "/admin/ledger/credits/{id}": {
            "get": {
                "tags": [
                    "Admin"
                ],
                "summary": "Verify one credit's counter against its ledger",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "ID"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "500": {
                        "description": "LEDGER_INTEGRITY",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "description": "Staff only."
            }
        }
    },
    "definitions": {
        "CreateRescheduleRequest": {
            "type": "object",
            "properties": {
                "student_id": {
                    "type": "string"
                },
                "origin_slot_id": {
                    "type": "string"
                },
                "origin_date": {
                    "type": "string",
                    "format": "date",
                    "example": "2024-03-06"
                },
                "dest_slot_id": {
                    "type": "string"
                },
                "dest_date": {
                    "type": "string",
                    "format": "date",
                    "example": "2024-03-06"
                },
                "absence_id": {
                    "type": "string"
                }
            },
            "required": [
                "student_id",
                "origin_slot_id",
                "origin_date",
                "dest_slot_id",
                "dest_date"
            ]
        },
        "UseCreditRequest": {
            "type": "object",
            "properties": {
                "dest_slot_id": {
                    "type": "string"
                },
                "dest_date": {
                    "type": "string",
                    "format": "date",
                    "example": "2024-03-06"
                }
            },
            "required": [
                "dest_slot_id",
                "dest_date"
            ]
        },
        "GrantCreditRequest": {
            "type": "object",
            "properties": {
                "student_id": {
                    "type": "string"
                },
                "modality_id": {
                    "type": "string"
                },
                "quantity": {
                    "type": "integer",
                    "minimum": 1,
                    "maximum": 100
                },
                "validity_date": {
                    "type": "string",
                    "format": "date",
                    "example": "2024-03-06"
                }
            },
            "required": [
                "student_id",
                "quantity",
                "validity_date"
            ]
        },
        "HolidayRequest": {
            "type": "object",
            "properties": {
                "date": {
                    "type": "string",
                    "format": "date",
                    "example": "2024-03-06"
                },
                "description": {
                    "type": "string",
                    "maxLength": 200
                }
            },
            "required": [
                "date"
            ]
        },
        "EnrollRequest": {
            "type": "object",
            "properties": {
                "student_id": {
                    "type": "string"
                },
                "slot_id": {
                    "type": "string"
                },
                "supersedes_id": {
                    "type": "string"
                }
            },
            "required": [
                "student_id",
                "slot_id"
            ]
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {
                    "type": "integer"
                },
                "page_size": {
                    "type": "integer"
                },
                "total_count": {
                    "type": "integer"
                }
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {
                    "type": "string"
                },
                "message": {
                    "type": "string"
                },
                "status": {
                    "type": "integer"
                },
                "reason": {
                    "type": "string",
                    "enum": [
                        "holiday",
                        "ownFixedClass",
                        "alreadyBooked",
                        "noSlots",
                        "notAfterOrigin",
                        "notInFuture",
                        "slotInactive",
                        "slotNotOffered",
                        "modalityMismatch",
                        "pastDeadline"
                    ]
                }
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {
                    "type": "object"
                },
                "error": {
                    "$ref": "#/definitions/APIError"
                },
                "pagination": {
                    "$ref": "#/definitions/Pagination"
                },
                "meta": {
                    "type": "object"
                }
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
