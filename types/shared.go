package types

// Fragment is one piece of retrieved context with its similarity score.
type Fragment struct {
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// Turn is one user/bot exchange kept in session history.
type Turn struct {
	User string `json:"user"`
	Bot  string `json:"bot"`
}

// Record is one portable result row returned to clients.
type Record = map[string]any
