package vqa

import "time"

// Session binds one uploaded image to its caption and accumulated
// question/answer history. Image bytes stay server-side and are never
// serialized out.
type Session struct {
	ID         string    `json:"session_id"`
	Caption    string    `json:"caption"`
	CreatedAt  time.Time `json:"created_at"`
	LastAccess time.Time `json:"last_access"`
	Turns      []Turn    `json:"turns"`
}

// Turn is one question/answer exchange. Turns are append-only; their order
// is replayed verbatim into the model as conversational context.
type Turn struct {
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	CreatedAt time.Time `json:"created_at"`
}
