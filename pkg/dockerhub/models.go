package dockerhub

import "time"

type GetImageTagsResponse struct {
	Count    int        `json:"count"`
	Next     *string    `json:"next"`
	Previous *string    `json:"previous"`
	Results  []ImageTag `json:"results"`
}

type ImageTag struct {
	ID            int        `json:"id"`
	Name          string     `json:"name"`
	Images        []Image    `json:"images"`
	Digest        string     `json:"digest"`
	FullSize      int        `json:"full_size"`
	LastUpdated   time.Time  `json:"last_updated"`
	TagStatus     string     `json:"tag_status"`
	TagLastPulled *time.Time `json:"tag_last_pulled"`
	TagLastPushed time.Time  `json:"tag_last_pushed"`
}

// Image is a platform-specific member of a tag.
type Image struct {
	Architecture string     `json:"architecture"`
	Variant      *string    `json:"variant"`
	Digest       string     `json:"digest"`
	OS           string     `json:"os"`
	Size         int        `json:"size"`
	Status       string     `json:"status"`
	LastPulled   *time.Time `json:"last_pulled"`
	LastPushed   time.Time  `json:"last_pushed"`
}
