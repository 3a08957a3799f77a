// Command brepdiff validates, inspects, and records training
// configurations for the B-rep diffusion pipeline.
package main
