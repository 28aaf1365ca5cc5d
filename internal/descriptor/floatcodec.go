package descriptor

import "math"

// floatBits and bitsFloat let float64 fields ride the codec's long
// (zig-zag varint) encoding without a dedicated floating-point primitive.
func floatBits(f float64) int64 { return int64(math.Float64bits(f)) }
func bitsFloat(b int64) float64 { return math.Float64frombits(uint64(b)) }
