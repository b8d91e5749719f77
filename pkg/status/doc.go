// Package status carries workflow status events from the page to whoever is
// listening, and retains the latest state of every operation for a bounded
// time so late queries can still be answered.
package status
