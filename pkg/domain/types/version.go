package types

// Version is the nxpatch version, overridden at build time via -ldflags
var Version = "dev"

// AppName is used in the User-Agent header and log attributes
const AppName = "nxpatch"
