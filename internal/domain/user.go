package domain

// User is the identity record the backend returns from the profile, login
// and register endpoints.
type User struct {
	ID           int           `json:"id"`
	Username     string        `json:"username"`
	FirstName    string        `json:"first_name"`
	LastName     string        `json:"last_name"`
	Email        string        `json:"email"`
	UserType     string        `json:"user_type"`
	PhoneNumber  string        `json:"phone_number,omitempty"`
	IsStaff      bool          `json:"is_staff"`
	IsSuperuser  bool          `json:"is_superuser"`
	IsVerified   bool          `json:"is_verified"`
	ReferralCode string        `json:"referral_code,omitempty"`
	Subscription *Subscription `json:"subscription,omitempty"`
}

// Subscription is the part of the user's subscription the session reads.
type Subscription struct {
	IsActive bool   `json:"is_active"`
	Plan     string `json:"plan,omitempty"`
	Status   string `json:"status,omitempty"`
	EndDate  string `json:"end_date,omitempty"`
}

// FullName returns "First Last", falling back to the username or email.
func (u *User) FullName() string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	case u.Username != "":
		return u.Username
	default:
		return u.Email
	}
}

// Clone returns a deep copy so callers can't mutate session-held identity.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	if u.Subscription != nil {
		s := *u.Subscription
		c.Subscription = &s
	}
	return &c
}

// TokenPair holds an access and refresh token pair as the backend issues it.
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}
