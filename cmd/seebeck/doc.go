// Command seebeck is the bench operator CLI: it queues and inspects
// measurement runs, renders reports, exports raw samples, and reports
// daemon health.
package main
