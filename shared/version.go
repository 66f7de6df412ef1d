package shared

// Version is stamped into startup log fields by the binaries.
const Version = "0.3.1"
