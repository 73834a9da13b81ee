package model

import "time"

type Profile struct {
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	MBTIType    string    `json:"mbti_type,omitempty"`
	BirthDate   string    `json:"birth_date,omitempty"` // YYYY-MM-DD
	ZodiacSign  string    `json:"zodiac_sign,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
