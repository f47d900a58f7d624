package mailer

import "testing"

func TestEnsureRecipient(t *testing.T) {
	j := EmailJob{To: "a@x.com"}
	j.EnsureRecipient()
	if j.Data["Email"] != "a@x.com" || j.Data["RecipientEmail"] != "a@x.com" {
		t.Errorf("unexpected data: %v", j.Data)
	}

	j = EmailJob{To: "a@x.com", Data: map[string]any{"Email": "b@x.com"}}
	j.EnsureRecipient()
	if j.Data["Email"] != "b@x.com" {
		t.Errorf("existing Email should be kept, got %v", j.Data["Email"])
	}
	if j.Data["RecipientEmail"] != "a@x.com" {
		t.Errorf("expected RecipientEmail to be filled, got %v", j.Data["RecipientEmail"])
	}
}
