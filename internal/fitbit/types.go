package fitbit

// Profile is the subset of /1/user/-/profile.json the server uses itself.
type Profile struct {
	User struct {
		EncodedID   string `json:"encodedId"`
		DisplayName string `json:"displayName"`
		FullName    string `json:"fullName"`
		Timezone    string `json:"timezone"`
		MemberSince string `json:"memberSince"`
	} `json:"user"`
}

// ProfilePath is the current user's profile endpoint.
const ProfilePath = "/1/user/-/profile.json"
