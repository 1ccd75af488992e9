package models

// collection names in the document store
const (
	CollectionUsers    = "users"
	CollectionChats    = "chats"
	CollectionMessages = "messages"
	CollectionAccounts = "accounts"
)

// user record fields
const (
	FieldUserID     = "userId"
	FieldEmail      = "email"
	FieldName       = "name"
	FieldProfileURL = "profileUrl"
)

type User struct {
	UserID     string `json:"userId"`
	Email      string `json:"email"`
	Name       string `json:"name"`
	ProfileURL string `json:"profileUrl,omitempty"`
}

// Fields renders the user as a document field map. profileUrl is left out
// while empty so a signup write does not clobber it.
func (u User) Fields() map[string]any {
	f := map[string]any{
		FieldUserID: u.UserID,
		FieldEmail:  u.Email,
		FieldName:   u.Name,
	}
	if u.ProfileURL != "" {
		f[FieldProfileURL] = u.ProfileURL
	}
	return f
}

// UserFromFields decodes a user record or an embedded user map.
func UserFromFields(f map[string]any) User {
	return User{
		UserID:     stringField(f, FieldUserID),
		Email:      stringField(f, FieldEmail),
		Name:       stringField(f, FieldName),
		ProfileURL: stringField(f, FieldProfileURL),
	}
}

// UserPath is the document path of a user record.
func UserPath(userID string) string {
	return CollectionUsers + "/" + userID
}
