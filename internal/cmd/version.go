package cmd

// Version is set at build time via -ldflags; "dev" when built locally.
var Version = "dev"
