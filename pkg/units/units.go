// Package units names the byte sizes used when sizing storage.
package units

// Decimal sizes.
const (
	Kb = 1000
	Mb = Kb * Kb
	Gb = Mb * Kb
)

// Binary sizes, as used for block and file sizes on disk.
const (
	Kib = 1 << 10
	Mib = Kib << 10
	Gib = Mib << 10
)
