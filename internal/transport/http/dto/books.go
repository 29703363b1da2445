package dto

import "time"

type CreateBookReq struct {
	Title       string `json:"title"`
	Author      string `json:"author"`
	Description string `json:"description"`
	// decimal string, e.g. "19.99"
	Price string `json:"price"`
}

type ReasonReq struct {
	Reason string `json:"reason"`
}

type DiscountReq struct {
	Percentage int       `json:"percentage"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
}
