package application

import (
	"context"
	"time"

	"github.com/mtreat/mtreat-backend/config"
	"github.com/mtreat/mtreat-backend/internal/domain/entity"
	"github.com/mtreat/mtreat-backend/pkg/helpers"
	"github.com/mtreat/mtreat-backend/pkg/mailer"
	tpl "github.com/mtreat/mtreat-backend/pkg/mailer/templates"
)

// Notifier tells patients about changes to their account.
type Notifier interface {
	Welcome(ctx context.Context, p *entity.Patient) error
	ProfileUpdated(ctx context.Context, p *entity.Patient, changes map[string]string, meta RequestMeta) error
}

// EmailNotifier queues template emails for the email worker.
type EmailNotifier struct {
	Pub helpers.Publisher
	Cfg *config.Config
}

func NewEmailNotifier(pub helpers.Publisher, cfg *config.Config) *EmailNotifier {
	return &EmailNotifier{Pub: pub, Cfg: cfg}
}

func (n *EmailNotifier) Welcome(ctx context.Context, p *entity.Patient) error {
	if !n.enabled() {
		return nil
	}
	data := tpl.NewWelcomeData(n.Cfg, p.Username, p.Email, tpl.WithTime(time.Now()))
	return n.Pub.PublishJSON(ctx, mailer.EmailJob{To: p.Email, Template: tpl.Welcome, Data: data})
}

func (n *EmailNotifier) ProfileUpdated(ctx context.Context, p *entity.Patient, changes map[string]string, meta RequestMeta) error {
	if !n.enabled() || len(changes) == 0 {
		return nil
	}
	data := tpl.NewProfileUpdatedData(n.Cfg, p.Username, p.Email, changes,
		tpl.WithTime(time.Now()),
		tpl.WithIP(meta.IP),
		tpl.WithUserAgent(meta.UserAgent),
	)
	return n.Pub.PublishJSON(ctx, mailer.EmailJob{To: p.Email, Template: tpl.ProfileUpdated, Data: data})
}

func (n *EmailNotifier) enabled() bool {
	return n != nil && n.Pub != nil && (n.Cfg == nil || n.Cfg.MailSendEnabled)
}

var _ Notifier = (*EmailNotifier)(nil)
