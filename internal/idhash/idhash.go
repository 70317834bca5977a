package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeCampaignID computes a deterministic campaign_id using SHA256.
// Formula: SHA256(creator|symbol|created_at)
// Returns hex-encoded hash (64 characters).
func ComputeCampaignID(creator, symbol string, createdAt int64) string {
	data := fmt.Sprintf("%s|%s|%d", creator, symbol, createdAt)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// ComputeContributionID computes a deterministic contribution_id.
// Formula: SHA256(campaign_id|contributor|deposit_tx)
func ComputeContributionID(campaignID, contributor, depositTx string) string {
	data := fmt.Sprintf("%s|%s|%s", campaignID, contributor, depositTx)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// ComputeClaimID computes a deterministic fee-claim id.
// Formula: SHA256(wallet|campaign_id|created_at)
func ComputeClaimID(wallet string, campaignID *string, createdAt int64) string {
	cid := ""
	if campaignID != nil {
		cid = *campaignID
	}
	data := fmt.Sprintf("%s|%s|%d", wallet, cid, createdAt)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
