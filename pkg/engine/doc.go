// Package engine plans and executes provisioning runs: it derives an
// ordered plan from probe results, executes it strictly sequentially with
// fail-fast semantics, and produces the final convergence report.
package engine
