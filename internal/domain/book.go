package domain

import "slices"

// Book is a catalog entry. Books are immutable once created.
type Book struct {
	Syncable
	Title     string   `json:"title" validate:"required"`
	Published int      `json:"published" validate:"gte=-2147483648,lte=2147483647"`
	Genres    []string `json:"genres"`
	AuthorID  string   `json:"author_id" validate:"required"`
}

// HasGenre reports whether genre is one of the book's genre tags.
func (b *Book) HasGenre(genre string) bool {
	return slices.Contains(b.Genres, genre)
}
