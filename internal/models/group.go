package models

import (
	"fmt"
	"strings"
	"time"
)

// Group is the filtered record of a VRChat group kept by the bot.
type Group struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	ShortCode     string `json:"shortCode"`
	Discriminator string `json:"discriminator"`
	Description   string `json:"description"`
	IconURL       string `json:"iconUrl"`
	BannerURL     string `json:"bannerUrl"`
	OwnerID       string `json:"ownerId"`
}

// Code returns the human readable SHORT.1234 form.
func (g Group) Code() string {
	if g.ShortCode == "" {
		return ""
	}
	if g.Discriminator == "" {
		return g.ShortCode
	}
	return g.ShortCode + "." + g.Discriminator
}

// ValidateGroupID checks the grp_ prefix VRChat uses for group ids.
func ValidateGroupID(id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("group id is required")
	}
	if !strings.HasPrefix(id, "grp_") {
		return fmt.Errorf("group id must start with grp_")
	}
	return nil
}

// GroupMembership is one entry of a user's joined groups list.
type GroupMembership struct {
	GroupID       string    `json:"groupId"`
	Name          string    `json:"name"`
	ShortCode     string    `json:"shortCode"`
	Discriminator string    `json:"discriminator"`
	OwnerID       string    `json:"ownerId"`
	CachedAt      time.Time `json:"-"`
}
