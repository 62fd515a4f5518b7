package user

// UnnamedUser is shown for accounts without a display name.
const UnnamedUser = "İsimsiz Kullanıcı"

// Profile is the public part of a user record used by presence and chat.
type Profile struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	PhotoURL      string `json:"photo_url"`
	Status        string `json:"status"`
	AllowMessages bool   `json:"allow_messages"`
}

// ProfileUpdate changes only the non-nil fields.
type ProfileUpdate struct {
	Name          *string `json:"name"`
	PhotoURL      *string `json:"photo_url"`
	Status        *string `json:"status"`
	AllowMessages *bool   `json:"allow_messages"`
}

func (u ProfileUpdate) empty() bool {
	return u.Name == nil && u.PhotoURL == nil && u.Status == nil && u.AllowMessages == nil
}
