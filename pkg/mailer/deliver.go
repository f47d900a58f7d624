package mailer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	tpl "github.com/mtreat/mtreat-backend/pkg/mailer/templates"
)

// ErrBadJob marks a job that can never be delivered; it should be dropped, not requeued.
var ErrBadJob = errors.New("bad email job")

// Deliver decodes one queued job, renders its template when set and sends it.
// Errors wrapping ErrBadJob are permanent; any other error is a send failure worth retrying.
func Deliver(ctx context.Context, s Sender, body []byte) error {
	var job EmailJob
	if err := json.Unmarshal(body, &job); err != nil {
		return fmt.Errorf("%w: decode: %v", ErrBadJob, err)
	}
	if job.To == "" {
		return fmt.Errorf("%w: missing recipient", ErrBadJob)
	}
	job.EnsureRecipient()

	subject, text, html := job.Subject, job.Text, job.HTML
	if job.Template != "" {
		var err error
		subject, text, html, err = tpl.Render(job.Template, job.Data)
		if err != nil {
			return fmt.Errorf("%w: render %s: %v", ErrBadJob, job.Template, err)
		}
	}
	if subject == "" || (text == "" && html == "") {
		return fmt.Errorf("%w: empty message", ErrBadJob)
	}

	c, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	return s.Send(c, job.To, subject, text, html)
}
