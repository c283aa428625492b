package chzzk

import (
	"bytes"
	"encoding/json"
	"strings"
)

// LiveStatus is the subset of the channel status document used to locate the
// live chat room.
type LiveStatus struct {
	Status              string `json:"status"`
	LiveTitle           string `json:"liveTitle,omitempty"`
	ConcurrentUserCount int    `json:"concurrentUserCount"`
	AccumulateCount     int    `json:"accumulateCount"`
	OpenDate            string `json:"openDate,omitempty"`
	CloseDate           string `json:"closeDate,omitempty"`
	ChatChannelID       string `json:"chatChannelId,omitempty"`
	CategoryType        string `json:"categoryType,omitempty"`
	LiveCategory        string `json:"liveCategory,omitempty"`
	LiveCategoryValue   string `json:"liveCategoryValue,omitempty"`
}

// IsOpen reports whether the channel is broadcasting.
func (s LiveStatus) IsOpen() bool { return strings.EqualFold(s.Status, "open") }

// AccessToken is the credential for one chat room connection.
type AccessToken struct {
	AccessToken string `json:"accessToken"`
	ExtraToken  string `json:"extraToken"`
}

// Profile describes a chat sender.
type Profile struct {
	UserIDHash        string             `json:"userIdHash"`
	Nickname          string             `json:"nickname"`
	ProfileImageURL   string             `json:"profileImageUrl,omitempty"`
	UserRoleCode      string             `json:"userRoleCode,omitempty"`
	Badge             json.RawMessage    `json:"badge,omitempty"`
	Title             json.RawMessage    `json:"title,omitempty"`
	VerifiedMark      bool               `json:"verifiedMark"`
	ActivityBadges    []json.RawMessage  `json:"activityBadges,omitempty"`
	StreamingProperty *StreamingProperty `json:"streamingProperty,omitempty"`
	ViewerBadges      []json.RawMessage  `json:"viewerBadges,omitempty"`
}

// StreamingProperty carries channel-specific sender decorations.
type StreamingProperty struct {
	Following *struct {
		FollowDate string `json:"followDate"`
	} `json:"following,omitempty"`
	Subscription *struct {
		AccumulativeMonth int `json:"accumulativeMonth"`
		Tier              int `json:"tier"`
		Badge             *struct {
			ImageURL string `json:"imageUrl"`
		} `json:"badge,omitempty"`
	} `json:"subscription,omitempty"`
	NicknameColor *struct {
		ColorCode string `json:"colorCode"`
	} `json:"nicknameColor,omitempty"`
}

// DonationExtras describes the paid part of a donation.
type DonationExtras struct {
	PayType          string `json:"payType"`
	PayAmount        int    `json:"payAmount"`
	DonationType     string `json:"donationType"`
	DonationImageURL string `json:"donationImageUrl,omitempty"`
}

// SystemExtras carries the human readable text of a system message.
type SystemExtras struct {
	Description string `json:"description"`
}

// DecodeEmbedded unmarshals raw into v, first unwrapping it when the platform
// sent the object as a JSON-encoded string.
func DecodeEmbedded(raw json.RawMessage, v any) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return err
		}
		raw = json.RawMessage(s)
	}
	return json.Unmarshal(raw, v)
}
