// Package server implements the MCP (Model Context Protocol) server for the
// image trimmer.
//
// This package provides a JSON-RPC 2.0 server that exposes border trimming,
// transparency and OLE extraction through the MCP protocol, so an MCP client
// can inspect an image, pick a threshold and run batch jobs.
//
// # Protocol
//
// The server communicates over stdio using JSON-RPC 2.0:
//   - Input: JSON-RPC requests on stdin (one per line)
//   - Output: JSON-RPC responses and notifications on stdout
//
// Supported MCP methods:
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - ping: Health check
//
// # Available Tools
//
// Basic Image Information:
//   - image_load: Load image and get metadata
//   - image_sample_color: Get color at pixel and its background classification
//
// Trimming:
//   - image_bounding_box: Foreground box without modifying the image
//   - image_trim: Crop near-white borders, save or preview the result
//   - image_make_transparent: Clear alpha on a grey range and save as PNG
//
// Batch Operations:
//   - image_trim_directory: Trim every image in a directory
//   - image_extract_database: Extract, trim and save OLE pictures from Access
//
// Threshold and transparency arguments are optional. Omitted values come
// from the configuration passed to New.
//
// # Progress
//
// When a tools/call request carries params._meta.progressToken, the batch
// tools emit notifications/progress messages before the response:
//
//	{"jsonrpc":"2.0","method":"notifications/progress",
//	 "params":{"progressToken":"t1","progress":3,"total":10}}
//
// Progress starts at 0 and ends at total. Notifications and responses share
// stdout and are written one at a time.
//
// # Image Caching
//
// The server maintains an in-memory cache of loaded images. Images are cached
// by path and reused across multiple tool calls, avoiding redundant disk I/O.
// Batch tools read their inputs directly and do not fill the cache.
//
// # Error Handling
//
// Tool execution errors are returned as JSON-RPC error responses with:
//   - code: -32000 (tool execution failure) or standard JSON-RPC codes
//   - message: Human-readable error description
//   - data: Additional error details (typically the Go error string)
//
// A line that is not valid JSON gets a -32700 parse error with a null id.
//
// # Usage
//
//	srv := server.New(cfg)
//	if err := srv.Run(); err != nil {
//	    log.Fatal(err)
//	}
package server
