// Package schedule computes when a cron job is next due.
//
// # Schedule kinds
//
//   - "every": fixed interval in milliseconds, measured from the last completion.
//   - "at": one-shot at an absolute timestamp; never due again once it has run.
//   - "cron": 5-field (min hour dom mon dow) or 6-field (with seconds) cron
//     expressions and descriptors such as "@hourly", evaluated in the job's
//     timezone.
//
// # Catch-up
//
// When the process was down long enough that the computed due time lies more
// than one period in the past, the job is due "now" exactly once instead of
// replaying every missed occurrence.
package schedule
