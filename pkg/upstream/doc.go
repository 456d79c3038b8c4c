// Package upstream is the pooled HTTP transport shared by every call the
// gateway makes to the Kiira, SeaArt and uploader services.
//
// A single Transport bounds concurrency with a slot pool, applies separate
// connect, read, write and pool timeouts plus a ceiling per call, retries
// idempotent calls with exponential backoff, and transparently decodes
// gzip, deflate, brotli and zstd bodies.
//
// Unary calls return the whole body:
//
//	resp, err := t.DoJSON(ctx, &upstream.Request{
//		Operation: "login",
//		URL:       base + "/api/v1/login-guest",
//	}, struct{}{})
//
// Streamed calls return a LineStream:
//
//	s, err := t.Stream(ctx, req)
//	if err != nil {
//		return err
//	}
//	defer s.Close()
//	for {
//		line, err := s.Next()
//		...
//	}
package upstream
