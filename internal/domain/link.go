package domain

import "time"

// Link is one shortened URL with its click counter.
type Link struct {
	Code      string    `json:"code" gorm:"primaryKey" dynamodbav:"code"`
	URL       string    `json:"url" dynamodbav:"url"`
	Clicks    int64     `json:"clicks" dynamodbav:"clicks"`
	CreatedAt time.Time `json:"createdAt" dynamodbav:"createdAt"`
}
