// Package batch coalesces individually submitted work items into batches.
//
// A Scheduler accepts items one at a time and hands them to a ProcessFunc in
// groups of at most MaxBatchSize. A batch is flushed as soon as it is full or
// when the oldest pending item has waited MaxWaitTime. At most Concurrency
// batches are processed at once; further flushes wait for a slot.
//
// Every submitted item gets a Future that is resolved exactly once, either
// with its positional result or with the error of its batch. A processor that
// returns the wrong number of results fails the whole batch with
// ErrBatchCountMismatch, and a panicking processor fails it with
// ErrProcessPanic, so no caller is left waiting.
//
// Example:
//
//	s, err := batch.New(batch.DefaultConfig(), func(ctx context.Context, texts []string) ([][]float32, error) {
//	    return provider.EmbedAll(ctx, texts)
//	})
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//
//	vec, err := s.Do(ctx, "hello world")
package batch
