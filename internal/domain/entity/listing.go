package entity

import (
	"time"
)

type ListingStatus string

const (
	ListingPending  ListingStatus = "pending"
	ListingActive   ListingStatus = "active"
	ListingRejected ListingStatus = "rejected"
	ListingSold     ListingStatus = "sold"
)

// CanTransitionTo reports whether the moderation/sale state machine has an edge from s to target.
func (s ListingStatus) CanTransitionTo(target ListingStatus) bool {
	switch s {
	case ListingPending:
		return target == ListingActive || target == ListingRejected
	case ListingActive:
		return target == ListingSold
	case ListingSold:
		return target == ListingActive
	case ListingRejected:
		return target == ListingPending
	}
	return false
}

func (s ListingStatus) Valid() bool {
	switch s {
	case ListingPending, ListingActive, ListingRejected, ListingSold:
		return true
	}
	return false
}

type Category string

const (
	CategoryElectronics Category = "electronics"
	CategoryFashion     Category = "fashion"
	CategoryHome        Category = "home"
	CategoryBooks       Category = "books"
	CategorySports      Category = "sports"
	CategoryToys        Category = "toys"
	CategoryVehicles    Category = "vehicles"
	CategoryOther       Category = "other"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryElectronics, CategoryFashion, CategoryHome, CategoryBooks,
		CategorySports, CategoryToys, CategoryVehicles, CategoryOther:
		return true
	}
	return false
}

type Condition string

const (
	ConditionNew     Condition = "new"
	ConditionLikeNew Condition = "like_new"
	ConditionGood    Condition = "good"
	ConditionFair    Condition = "fair"
	ConditionPoor    Condition = "poor"
)

func (c Condition) Valid() bool {
	switch c {
	case ConditionNew, ConditionLikeNew, ConditionGood, ConditionFair, ConditionPoor:
		return true
	}
	return false
}

type Listing struct {
	ID              string        `json:"id" firestore:"id"`
	Title           string        `json:"title" firestore:"title"`
	Description     string        `json:"description" firestore:"description"`
	Price           int64         `json:"price" firestore:"price"`
	Category        Category      `json:"category" firestore:"category"`
	Condition       Condition     `json:"condition" firestore:"condition"`
	Location        string        `json:"location" firestore:"location"`
	SellerID        string        `json:"seller_id" firestore:"sellerId"`
	Status          ListingStatus `json:"status" firestore:"status"`
	RejectionReason string        `json:"rejection_reason,omitempty" firestore:"rejectionReason,omitempty"`
	Version         int64         `json:"version" firestore:"version"`
	CreatedAt       time.Time     `json:"created_at" firestore:"createdAt"`
	UpdatedAt       time.Time     `json:"updated_at" firestore:"updatedAt"`
}

// Clone returns a copy safe to mutate without affecting the original.
func (l *Listing) Clone() *Listing {
	c := *l
	return &c
}
