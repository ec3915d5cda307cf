// Package mail defines the outbound email collaborator. Export
// notifications are best-effort: a send failure is logged by the caller
// and never fails the job.
package mail

import "context"

// Mailer sends the "export ready" notification.
type Mailer interface {
	SendExportReady(ctx context.Context, address, downloadLink string) error
}
