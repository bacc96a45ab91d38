package models

// User is a candidate peer returned by user search.
type User struct {
	ID       UserID `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
	Avatar   string `json:"avatar,omitempty"`
}
