// Package rollup hosts the serialized state engine. A single actor goroutine
// owns the merged record set, the debounce ledger, and the last evaluation,
// applying each update as an atomic merge-evaluate-dispatch-persist cycle.
package rollup
