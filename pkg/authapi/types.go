package authapi

import (
	"time"

	"github.com/google/uuid"
	"github.com/jinzhu/copier"
	"github.com/turbootoys/idm/pkg/user"
)

// PhoneRequest is the body of send-otp. Older clients send the number as
// "mobile".
type PhoneRequest struct {
	Phone  string `json:"phone"`
	Mobile string `json:"mobile"`
}

func (p PhoneRequest) number() string {
	if p.Phone != "" {
		return p.Phone
	}
	return p.Mobile
}

type VerifyOtpRequest struct {
	PhoneRequest
	Otp string `json:"otp"`
}

type SignupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type SigninRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

type ResetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

// UserView is the public profile returned to clients
type UserView struct {
	ID        string    `json:"id"`
	Name      string    `json:"name,omitempty"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	IsAdmin   bool      `json:"isAdmin"`
	GoogleID  string    `json:"googleId,omitempty"`
	Avatar    string    `json:"avatar,omitempty"`
	Provider  string    `json:"provider,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

var uuidToString = copier.TypeConverter{
	SrcType: uuid.UUID{},
	DstType: copier.String,
	Fn: func(src interface{}) (interface{}, error) {
		return src.(uuid.UUID).String(), nil
	},
}

// newUserView projects identity through the default field selection, so
// secrets never reach a response.
func newUserView(identity user.Identity) (UserView, error) {
	view := UserView{}
	err := copier.CopyWithOption(&view, identity.Select(user.DefaultFields), copier.Option{
		Converters: []copier.TypeConverter{uuidToString},
	})
	return view, err
}

type messageResponse struct {
	Message string `json:"message"`
}

type otpResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type otpLoginResponse struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	Token   string   `json:"token"`
	User    UserView `json:"user"`
}

type sessionResponse struct {
	Token string   `json:"token"`
	User  UserView `json:"user"`
}

type meResponse struct {
	User UserView `json:"user"`
}

type healthResponse struct {
	Status string `json:"status"`
}
