package domain

// Author is a person credited on one or more books.
// Authors are created implicitly the first time a book names them.
type Author struct {
	Syncable
	Name string `json:"name" validate:"required"`
	// Born is the birth year; nil when unknown.
	Born *int `json:"born,omitempty" validate:"omitempty,gte=-2147483648,lte=2147483647"`
}

// SetBorn overwrites the birth year.
func (a *Author) SetBorn(year int) {
	a.Born = &year
	a.Touch()
}

// AuthorSummary pairs an author with the number of books that reference it.
type AuthorSummary struct {
	*Author
	BookCount int `json:"bookCount"`
}
