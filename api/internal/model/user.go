package model

import "time"

// Notification preference values stored in User.NotificationSettings.
const (
	NotifyAll        = "all"
	NotifyDayBefore  = "day_before"
	NotifyWeekBefore = "week_before"
	NotifyOff        = "off"
)

// User is a bot user as stored by the backing API. UserTid is the
// Telegram-side numeric identity, UserOid the store-side one.
type User struct {
	UserOid              string            `json:"user_oid"`
	UserTid              int64             `json:"user_tid"`
	Name                 string            `json:"name"`
	Email                string            `json:"email"`
	Status               string            `json:"status"`
	RegistrationDate     string            `json:"registration_date"`
	PremiumExpiryDate    string            `json:"premium_expiry_date"`
	LastActive           string            `json:"last_active"`
	NotificationSettings map[string]string `json:"notification_settings"`
}

func (u *User) IsPremium() bool {
	return u.Status == "premium"
}

// NotificationPreference returns the stored preference, defaulting to off.
func (u *User) NotificationPreference() string {
	if u.NotificationSettings == nil {
		return NotifyOff
	}
	pref, ok := u.NotificationSettings["notifications"]
	if !ok {
		return NotifyOff
	}
	return pref
}

// WantsNotification reports whether the user should receive a reminder for
// the given threshold ("day_before" or "week_before").
func (u *User) WantsNotification(when string) bool {
	pref := u.NotificationPreference()
	return pref == NotifyAll || pref == when
}

// NewUser builds a not-yet-persisted user record for lazy registration on
// first contact.
func NewUser(tid int64, name string, now time.Time) *User {
	return &User{
		UserOid:              OidUnassigned,
		UserTid:              tid,
		Name:                 name,
		Status:               "free",
		RegistrationDate:     now.UTC().Format(time.RFC3339),
		LastActive:           now.UTC().Format(time.RFC3339),
		NotificationSettings: map[string]string{},
	}
}
