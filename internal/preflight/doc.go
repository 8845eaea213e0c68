// Package preflight runs the environment checks behind 'ragindex doctor'
// and the first start of 'ragindex serve': configuration, free disk space,
// a writable data directory, the open file limit and the embedding
// provider.
//
// A passing run leaves a marker in the data directory so serve only
// repeats the checks after an upgrade or a 'doctor' failure.
package preflight
