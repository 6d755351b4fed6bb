//go:build linux

package parblock

// supported is true on Linux, where the xfs backend can map extents and
// copy ranges via copy_file_range.
const supported = true
