// Package config loads settings for the houdl command.
//
// Values are layered, each source overriding the one before it:
//
//  1. [Default]
//  2. a YAML file given with -config
//  3. environment variables (SESI_USER_ID, SESI_USER_SECRET and the HOUDL_ prefix)
//  4. command-line flags, applied by the caller with [Config.Merge]
//
// # Example File
//
//	user_id: abc123
//	product: houdini
//	platform: linux
//	output: s3://builds?region=us-east-1
//	timeout: 45s
//	chunk_size: 1MiB
//	throttle:
//	  rps: 5
//	  burst: 5
//	log_level: debug
package config
