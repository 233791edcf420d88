// Package client implements an HTTP client for the eKV admin API (see package server).
//
// Requests are distributed round-robin over all configured endpoints. Requests that
// fail before a response arrives are retried up to ClientConfig.RetryCount times,
// responses with an unexpected status are returned as *StatusError carrying the
// error message of the server.
//
// Usage Example:
//
//	c, err := client.NewClient(common.ClientConfig{
//		Endpoints:     []string{"http://localhost:8080"},
//		TimeoutSecond: 10,
//		RetryCount:    3,
//	})
//	if err != nil {
//		panic(err)
//	}
//	defer c.Close()
//
//	err = c.Put(ctx, "greeting", []byte("hello"), db.Options{TTL: time.Minute})
//	value, err := c.Get(ctx, "greeting", false)
package client
