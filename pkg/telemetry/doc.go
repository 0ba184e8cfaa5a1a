// Package telemetry provides observability instrumentation for froyo-age.
//
// The package integrates structured logging (zerolog), distributed tracing
// (OpenTelemetry), metrics (Prometheus), and event publishing into a single
// Telemetry value that travels in a context.Context.
//
// # Usage
//
// Initialize telemetry at startup and attach it to the context handed to
// the evaluator:
//
//	cfg := telemetry.DefaultConfig()
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	ctx = tel.WithContext(ctx)
//
// # Decryption instrumentation
//
// Each builtin invocation is wrapped in an operation span and reported once
// it finishes:
//
//	op := telemetry.StartOperation(ctx, "importAge", telemetry.AttrCiphertextPath.String(path))
//	defer op.End(err)
//	telemetry.RecordDecrypt(op.Ctx, info, err)
//
// RecordDecrypt increments decrypt_calls_total, observes
// decrypt_duration_seconds and publishes a decrypt.succeeded or
// decrypt.failed event. The audit store subscribes to those events.
//
// Plaintext and identity contents are never logged, traced or published.
// Only paths, counts, and error messages are.
//
// # Events
//
// Events are delivered synchronously by default so that subscribers have
// seen every event by the time Publish returns. With EnableAsync they are
// buffered and delivered in batches from a background goroutine, and
// Shutdown drains the buffer.
package telemetry
