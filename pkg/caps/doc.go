// Package caps evaluates month-to-date spend against configured soft and
// hard thresholds.
//
// Four scopes are evaluated on every pass: the three providers plus the
// cross-provider global aggregate. Each scope carries an independent soft
// and hard threshold; a threshold of zero is treated as not configured.
// Evaluation is pure and recomputes everything from the record set, so a
// breach that stops being true (records replaced, caps raised) simply
// disappears on the next pass.
package caps
