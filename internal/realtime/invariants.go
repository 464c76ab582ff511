//go:build !chatdebug

package realtime

// invariantChecks turns a broken table invariant into a panic. Release builds
// repair the entry and log instead; build with -tags chatdebug to fail loudly.
const invariantChecks = false
