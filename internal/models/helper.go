package models

import "encoding/json"

// ParseQuizJSON decodes a quiz in its JSON form, as carried by the embed
// placeholder and the HTTP API.
func ParseQuizJSON(data []byte) (*Quiz, error) {
	var quiz Quiz
	if err := json.Unmarshal(data, &quiz); err != nil {
		return nil, err
	}
	return &quiz, nil
}

// Ptr returns a pointer to v. Used for the optional fields of the quiz model.
func Ptr[T any](v T) *T {
	return &v
}
