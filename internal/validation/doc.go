// Auditwal - Durable Audit Journal and Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditwal

// Package validation checks inbound audit entries with go-playground/validator.
//
// The ingest API validates each decoded audit.Entry before handing it to the
// WAL engine. Field rules live as validate tags on the types themselves:
//
//	Phase         `validate:"required,oneof=begin end"`
//	CorrelationID `validate:"required,max=128,identifier"`
//	HTTPCode      `validate:"omitempty,min=100,max=599"`
//
// Failures come back as *RequestValidationError, whose ToAPIError produces
// the VALIDATION_ERROR body:
//
//	if verr := validation.ValidateStruct(&entry); verr != nil {
//	    apiErr := verr.ToAPIError()
//	    ...
//	}
//
// Validation here is about shape. Whether an end entry can be normalized
// (status or http_code present) is decided by the correlator, which drops
// the entry rather than rejecting the request.
package validation
