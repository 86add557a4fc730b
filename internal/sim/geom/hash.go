package geom

// FloorDiv divides rounding toward negative infinity. b must be > 0.
func FloorDiv(a, b int) int {
	q := a / b
	if r := a % b; r < 0 {
		q--
	}
	return q
}

// Mod is the non-negative remainder of a/b. b must be > 0.
func Mod(a, b int) int {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}

// SnapDown rounds a down to a multiple of size.
func SnapDown(a, size int) int {
	return FloorDiv(a, size) * size
}

// SnapUp rounds a up to a multiple of size.
func SnapUp(a, size int) int {
	return -FloorDiv(-a, size) * size
}

func AbsInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func mix64(z uint64) uint64 {
	z += 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

// Hash2 is a stateless 2D integer hash. Same inputs give the same output on every run.
func Hash2(seed int64, x, y int) uint64 {
	ux := uint64(uint32(int32(x)))
	uy := uint64(uint32(int32(y)))
	return mix64(uint64(seed) ^ (ux * 0x9e3779b97f4a7c15) ^ (uy * 0xbf58476d1ce4e5b9))
}

func Hash3(seed int64, x, y, z int) uint64 {
	ux := uint64(uint32(int32(x)))
	uy := uint64(uint32(int32(y)))
	uz := uint64(uint32(int32(z)))
	return mix64(uint64(seed) ^ (ux * 0x9e3779b97f4a7c15) ^ (uy * 0xc2b2ae3d27d4eb4f) ^ (uz * 0xbf58476d1ce4e5b9))
}

// HashString folds s into seed (FNV-1a, then mixed).
func HashString(seed int64, s string) int64 {
	h := uint64(14695981039346656037)
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= 1099511628211
	}
	return int64(mix64(h ^ uint64(seed)))
}

// TileSeed derives the per-tile seed used by biome lookups.
func TileSeed(seed int64, x, y int) int64 {
	return int64(Hash2(seed, x, y) >> 1)
}

// Unit maps a hash onto [0, 1).
func Unit(h uint64) float64 {
	return float64(h>>11) / float64(uint64(1)<<53)
}
