//go:build !linux

package parblock

// supported is false outside Linux: the portable xfs backend has no
// extent map and pread/pwrite-based ranged copies gain nothing from
// block splitting, so the simpler file-parallel driver is used instead.
const supported = false
