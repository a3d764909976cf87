package model

import "encoding/json"

type NotificationSettings struct {
	Push      bool `json:"push"`
	Email     bool `json:"email"`
	Petitions bool `json:"petitions"`
	Messages  bool `json:"messages"`
}

type PrivacySettings struct {
	ProfileVisible bool `json:"profile_visible"`
	ShowActivity   bool `json:"show_activity"`
	AllowMessages  bool `json:"allow_messages"`
}

// Settings holds per-member preferences. The device cache keeps the fast copy;
// the backend keeps the durable one.
type Settings struct {
	Notifications NotificationSettings `json:"notifications"`
	Privacy       PrivacySettings      `json:"privacy"`
	Theme         string               `json:"theme"`
	Language      string               `json:"language"`
}

func DefaultSettings() Settings {
	return Settings{
		Notifications: NotificationSettings{
			Push:      true,
			Email:     true,
			Petitions: true,
			Messages:  true,
		},
		Privacy: PrivacySettings{
			ProfileVisible: true,
			ShowActivity:   true,
			AllowMessages:  true,
		},
		Theme:    "system",
		Language: "en",
	}
}

// DecodeSettings unmarshals data over the defaults so fields missing from
// older documents keep their default values.
func DecodeSettings(data []byte) (Settings, error) {
	s := DefaultSettings()
	if len(data) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return DefaultSettings(), err
	}
	return s, nil
}
