// Package logx is a thin zerolog wrapper with a dynamic root.
//
// The Service owns the sinks (console, file) and can swap level/outputs at
// runtime via Apply(); Loggers handed out by the Service stay live across
// those swaps.
package logx
