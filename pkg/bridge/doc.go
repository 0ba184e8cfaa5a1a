// Package bridge exposes age decryption to Starlark scripts.
//
// Two builtins share one pipeline:
//
//	importAge(identities, path, configs)    # decrypt, parse and evaluate
//	readAgeFile(identities, path, configs)  # decrypt and return a string
//
// identities is a list of path values naming key files, path is the path of
// the encrypted file and configs is a dict or struct with optional keys
// cache (bool, default True) and cache_dir (path or string).
//
// The pipeline is:
//
//  1. [Extract] validates the arguments in a fixed order and converts them
//     to [Args]. Type errors are *hostval.TypeMismatchError values carrying
//     the call position.
//  2. [Invoker] calls the [Collaborator] exactly once. The collaborator
//     reports failure as a nil result plus a separate LastError query, so
//     the pair runs under a process-wide lock and is collapsed into a
//     *[DecryptionError].
//  3. The result is materialized. importAge parses the plaintext as an
//     expression with the [Host] and evaluates it with relative paths
//     resolving against "/"; failures become a *[TraceError] that keeps
//     the host error reachable through errors.As. readAgeFile returns the
//     plaintext as a string.
//
// The plaintext buffer is released exactly once on every path.
package bridge
