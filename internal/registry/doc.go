// Package registry holds the catalog of derived functions and the resolver
// that uses it.
//
// A derived function (Descriptor) declares the attributes it consumes on the
// current step (Inputs), the attributes it reads through historical lookups
// (TemporalInputs), the attributes it produces (Outputs), and the minimum
// track length required before it may run (MinHistory).
//
// Descriptors are registered once at process start, in order. Registration
// order is the selection order when more than one descriptor can produce an
// attribute. Two descriptors that produce the same attribute under identical
// requirements can never be told apart, so registering the second one fails
// with a RegistryConflictError.
//
// After Seal the registry is read-only and safe for concurrent use by any
// number of entities.
//
// Infer resolves one attribute for one entity. A missing provider is not an
// error: Infer returns nil, which callers treat as "not available yet".
package registry
