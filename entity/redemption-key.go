package entity

import "time"

type KeyStatus string

const (
	KeyActive  KeyStatus = "active"
	KeyExpired KeyStatus = "expired"
	KeyUsed    KeyStatus = "used"
)

// Redemption is one entry of a key's redeemer list.
type Redemption struct {
	UserId   string    `json:"user_id" bson:"user_id"`
	Username string    `json:"username,omitempty" bson:"username,omitempty"`
	JoinedAt time.Time `json:"joined_at" bson:"joined_at"`
}

// RedemptionKey is a multi-use code redeemable by up to Uses distinct
// actors. Invariants maintained by the redemption engine:
// RemainingUses == Uses - len(UsersInfo), no user id appears twice in
// UsersInfo, and GiveawayWinner is set exactly once when the last use
// is consumed.
type RedemptionKey struct {
	Id             string       `json:"id" bson:"_id"`
	Platform       string       `json:"platform" bson:"platform"`
	KeyCode        string       `json:"key_code" bson:"key_code"`
	Uses           int          `json:"uses" bson:"uses"`
	RemainingUses  int          `json:"remaining_uses" bson:"remaining_uses"`
	Description    string       `json:"description,omitempty" bson:"description,omitempty"`
	ExpiresAt      time.Time    `json:"expires_at,omitempty" bson:"expires_at,omitempty"`
	Status         KeyStatus    `json:"status" bson:"status"`
	UsersInfo      []Redemption `json:"users_info" bson:"users_info"`
	GiveawayWinner string       `json:"giveaway_winner,omitempty" bson:"giveaway_winner,omitempty"`
	CreatedAt      time.Time    `json:"created_at" bson:"created_at"`
	RedeemedAt     time.Time    `json:"redeemed_at,omitempty" bson:"redeemed_at,omitempty"`
}

// ComputeStatus derives the key status at a given moment.
// Expiry dominates exhaustion: a fully-used key past its expiry
// reports expired.
func (k *RedemptionKey) ComputeStatus(now time.Time) KeyStatus {
	if !k.ExpiresAt.IsZero() && now.After(k.ExpiresAt) {
		return KeyExpired
	}
	if k.RemainingUses == 0 {
		return KeyUsed
	}
	return KeyActive
}

// HasRedeemer reports whether the actor already consumed a use.
func (k *RedemptionKey) HasRedeemer(userId string) bool {
	for _, r := range k.UsersInfo {
		if r.UserId == userId {
			return true
		}
	}
	return false
}
