// Auditwal - Durable Audit Journal and Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditwal

// Package testinfra provides shared fixtures for writer and engine tests.
//
// MockIngestServer is an httptest endpoint that records batches, answers
// with scripted status codes and tracks which correlation IDs it accepted.
// It has no build tag so unit tests in any package can use it.
//
// Container helpers use testcontainers-go and are built only with the
// integration tag:
//
//	func TestPostgresWriter(t *testing.T) {
//	    testinfra.SkipIfNoDocker(t)
//	    ctx := context.Background()
//	    pg, err := testinfra.NewPostgresContainer(ctx)
//	    if err != nil {
//	        t.Fatal(err)
//	    }
//	    defer testinfra.CleanupContainer(t, ctx, pg)
//
//	    w, err := writer.NewDBWriter(ctx, writer.DBConfig{Driver: "postgres", DSN: pg.DSN})
//	    // ...
//	}
//
// Tests skip gracefully when Docker is unavailable. The first run pulls
// images; later runs use the local cache.
package testinfra
