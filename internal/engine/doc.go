// Package engine turns a resolved program tree into a live graph of
// message-passing computation nodes.
//
// ARCHITECTURE:
//
// Value nodes:
// Every reactive unit is a Node: a driving goroutine that produces a
// sequence of Values, caches the latest one for late subscribers, and fans
// it out over bounded channels. The cached value is replaced only by the
// node's own driving task (single-writer); the subscriber registry is the
// only mutex-guarded state.
//
// Combinator evaluation:
// The evaluator walks the resolved tree bottom-up and instantiates the
// node subgraph for each construct, wiring new nodes to their already-built
// upstreams. Combinator kinds are a closed sum (see the tree package);
// the evaluator switches exhaustively, so adding a construct is a compile
// error until every site handles it. Frozen constructs (THEN, WHEN arms)
// re-enter the evaluator at runtime: each tick builds a transient subgraph
// in its own scope, takes its first value, and tears it down.
//
// Ownership:
// Node lifetime follows the program's static scope nesting, never
// subscriber counts. Scopes form an explicit tree; dropping a scope
// cancels every descendant node task at its next suspension point and
// closes its subscriptions. A consumer must never outlive its producer,
// and a producer is never kept alive only by a departing consumer - the
// scope tree makes both directions structural instead of incidental.
// Keepalives that must outlive a transient expression are named
// registrations in the owning scope's table, inspectable for diagnostics.
//
// Ordering:
// A single channel delivers in strict send order. Fan-in nodes resolve
// simultaneous arrivals by declaration order: they block for one message,
// drain everything immediately available, and process the batch sorted
// stably by declaration index. Wall-clock timing never decides a
// tie-break.
//
// Teardown races:
// A send toward a cancelled subscriber fails silently at the send site.
// This favors producer liveness over strict delivery and places the
// correctness burden on the ownership discipline above, not on the channel
// layer. The diagnostics stream reports task-ended and
// driving-stream-exhausted events per node to make premature teardown
// visible during development.
package engine
