package models

// Category is one entry of a user's category vocabulary, used when matching
// category mentions in a query.
type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
