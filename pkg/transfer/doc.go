// Package transfer moves survey files between the operator's machine and
// booking storage. It routes each file by size onto one of three upload
// strategies (direct presigned PUT, single proxied call, sequential
// chunked posts), schedules batches with bounded concurrency and
// backpressure delays, retries each file with capped exponential backoff,
// and reassembles chunked resources on download.
//
// The package is transport-agnostic at its seams: the booking backend and
// raw storage are consumed through the BackendAPI and StorageClient
// interfaces, implemented by the api and presigned subpackages.
//
// Basic usage:
//
//	cfg, err := config.Load(
//		config.WithAPIBaseURL("https://api.example.com"),
//		config.WithToken(token),
//	)
//	if err != nil { ... }
//
//	uploader, err := cfg.BuildUploader()
//	result, err := uploader.Upload(ctx, bookingID, files)
//
// Per-file failures never abort a batch; they are reported in the
// result's Failed list after retries are exhausted.
package transfer
