package models

// Answer is the natural-language reply written from a query result.
type Answer struct {
	Text  string `json:"text"`
	Model string `json:"model,omitempty"`
}
