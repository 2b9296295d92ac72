// Package memory provides small allocation helpers shared by the codec
// and event layers.
package memory
