package domain

// User is a catalog account. No password is stored; see auth.SharedCredential.
type User struct {
	Syncable
	Username      string `json:"username" validate:"required"`
	FavoriteGenre string `json:"favorite_genre" validate:"required"`
}
