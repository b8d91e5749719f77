// Package dom resolves declarative locators against a live, evolving page tree.
//
// The package has two halves. Document and Element describe the handful of
// page operations the post workflow needs; the browser package implements
// them on Playwright element handles and the domtest package implements them
// on an in-memory HTML tree. Resolver is the single waiting primitive every
// workflow step uses:
//
//  1. an immediate lookup (no waiting when the element is already present)
//  2. a subscription to mutations under the root, re-checking on each one
//  3. a timer bounding the wait, after which NotFoundError is returned
//
// Whichever of "found" and "timer fired" happens first wins, and the mutation
// subscription and timer are always released before returning.
package dom
