//go:build chatdebug

package realtime

const invariantChecks = true
