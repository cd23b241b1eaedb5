// Package batch drives the trimming workflows: a single file, every image in
// a directory, and the picture blobs of an Access database.
//
// A Runner loads or unwraps each input, crops it to its foreground with
// imaging.ComputeBoundingBox and imaging.Crop, optionally clears the alpha of
// near-white greys, and saves the result. Items run concurrently on a bounded
// errgroup; each owns its buffers, so nothing is shared but the report and
// the progress counter.
//
// Output names:
//
//	single file     <base>_trimmed.<format>
//	directory       <prefix><index>.<format>   index in sorted file order
//	database        <prefix><id>.<format>
//
// Per-item failures and all-background images are recorded in the Report
// and never abort the run. Cancellation is checked before each item starts.
package batch
