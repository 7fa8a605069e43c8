package internal

// Version is the current version of sharehub.
// This should be updated with each release
const Version = "1.0.0"
