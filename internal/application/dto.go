package application

import "github.com/mtreat/mtreat-backend/internal/domain/entity"

// Profile is the public view of a patient. It never carries the password hash.
type Profile struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Address  string `json:"address"`
}

// ContactView is the response body of a profile update.
type ContactView struct {
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

func ProfileOf(p *entity.Patient) Profile {
	return Profile{Username: p.Username, Email: p.Email, Phone: p.Phone, Address: p.Address}
}

func ContactOf(p *entity.Patient) ContactView {
	return ContactView{Phone: p.Phone, Address: p.Address}
}

type RegisterInput struct {
	Username string
	Email    string
	Phone    string
	Address  string
	Password string
}

// RequestMeta describes the HTTP caller for notifications.
type RequestMeta struct {
	IP        string
	UserAgent string
}
