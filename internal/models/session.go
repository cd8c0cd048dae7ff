package models

// Session вошедший пользователь. Передается явно каждому компоненту,
// который действует от его имени
type Session struct {
	UID         string `json:"uid"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	PhotoURL    string `json:"photo_url,omitempty"`
}

// Identity подпись, которая записывается как создатель комнаты
func (s Session) Identity() string {
	if s.DisplayName != "" {
		return s.DisplayName
	}
	return s.Email
}

func (s Session) Author() Author {
	return Author{UID: s.UID, Name: s.DisplayName, AvatarURL: s.PhotoURL}
}
