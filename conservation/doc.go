// Package conservation models the Layer-2 Conservation library on which the
// engine builds: conservation domains, data witnesses, and byte-level
// conservation checks, reached through the opaque-handle contract of Service.
//
// Reference is an in-process implementation of Service. It tracks live
// handles so that callers (and tests) can confirm that every created
// domain and witness is eventually destroyed, on success and error paths
// alike.
//
// Context is the owned-resource wrapper used by projections and shards:
// it holds exactly one domain and one witness, which it releases together
// and exactly once upon Close. Contexts are never copied; a shard which
// must be cloned creates a new Context from the same bytes.
package conservation
