// Package cbc provides the lazy model and query framework used by every
// platform resource.
//
// # Overview
//
// A resource is described by a ResourceInfo (URL templates, primary key,
// save convention). Instances are Models: a field map plus a fully-loaded
// flag. Reading a field that is not cached triggers exactly one refresh of the
// full document; construction never performs I/O. MutableModel adds a
// dirty-field set and Save.
//
// Getting a client
//
//	import (
//	  "context"
//	  "log"
//
//	  "github.com/fivetwenty-io/cbc-client/pkg/cbc"
//	  "github.com/fivetwenty-io/cbc-client/pkg/cbcclient"
//	)
//
//	func example() {
//	  ctx := context.Background()
//	  api, err := cbcclient.New(ctx, &cbc.Config{Profile: "default"})
//	  if err != nil { log.Fatal(err) }
//
//	  device, err := api.GetDevice(ctx, "1234")
//	  if err != nil { log.Fatal(err) }
//	  _ = device
//	}
//
// # Queries
//
// Query builds a deferred search. Builder methods (Where, AddCriteria,
// SortBy, SetFields, SetRows, SetTimeRange) never touch the network; only
// All, Execute, First, One, Count, Facet and ExecuteAsync do:
//
//	q := api.Devices().AddCriteria("status", "REGISTERED").SortBy("last_contact_time", cbc.SortDesc)
//	for device, err := range q.All(ctx) {
//	  if err != nil { return err }
//	  fmt.Println(device.Name())
//	}
//
// A raw query string (Where) and structured criteria (AddCriteria) are sent
// side by side in the request body and the server applies their conjunction.
// The client never rewrites one form into the other.
//
// # Search jobs
//
// AsyncQuery and FacetQuery drive server-side jobs through the states
// UNSUBMITTED, SUBMITTED, QUERYING, and one of COMPLETED, FAILED or CANCELLED.
// The transition rule is the pure function NextJobState; the I/O loop polls
// with bounded backoff and cancels the job on timeout.
//
// # Errors
//
// Failures are classified, never swallowed: *NotFoundError for 404s and
// empty One results, *MoreThanOneResultError, *TimeoutError, *APIError for
// everything else, and *CredentialError at construction time.
package cbc
