package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Timetable Engine API",
        "description": "Constraint-based university timetable scheduling service",
        "version": "0.1.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "paths": {
        "/health": {
            "get": {
                "summary": "Health check",
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                }
            }
        },
        "/ready": {
            "get": {
                "summary": "Readiness check",
                "responses": {
                    "200": {
                        "description": "Ready"
                    }
                }
            }
        },
        "/schedules/generator": {
            "post": {
                "summary": "Generate a schedule proposal",
                "responses": {
                    "200": {
                        "description": "Proposal"
                    }
                }
            }
        },
        "/schedule/save": {
            "post": {
                "summary": "Save a schedule proposal",
                "responses": {
                    "201": {
                        "description": "Saved"
                    }
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
